// Package telemetry provides a small metrics registry with Prometheus
// text exposition, following the same no-SDK approach as the rest of
// the platform: counters and gauges are plain atomics behind a registry
// and are scraped from a single /metrics endpoint.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

// Counter is a monotonically increasing metric.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a metric that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64)  { g.value.Store(v) }
func (g *Gauge) Inc()         { g.value.Add(1) }
func (g *Gauge) Dec()         { g.value.Add(-1) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Registry holds all registered metrics for one service instance.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
	}
}

// Counter returns the counter with the given name, registering it on
// first use.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// Gauge returns the gauge with the given name, registering it on first
// use.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// Exposition renders all metrics in Prometheus text format.
func (r *Registry) Exposition() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.counters)+len(r.gauges))
	for n := range r.counters {
		names = append(names, n)
	}
	for n := range r.gauges {
		names = append(names, n)
	}
	sort.Strings(names)

	var out string
	for _, n := range names {
		if c, ok := r.counters[n]; ok {
			if c.help != "" {
				out += fmt.Sprintf("# HELP %s %s\n", n, c.help)
			}
			out += fmt.Sprintf("# TYPE %s counter\n%s %d\n", n, n, c.Value())
			continue
		}
		g := r.gauges[n]
		if g.help != "" {
			out += fmt.Sprintf("# HELP %s %s\n", n, g.help)
		}
		out += fmt.Sprintf("# TYPE %s gauge\n%s %d\n", n, n, g.Value())
	}
	return out
}

// Handler returns the /metrics scrape endpoint.
func (r *Registry) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, r.Exposition())
	}
}
