// Package client is a Go subscriber for the consult event stream. It
// maintains a WebSocket subscription with a bounded-jitter reconnect
// loop bound to a context, de-duplicates events by per-consult sequence
// number, and surfaces sequence gaps as refetch signals instead of
// pretending the partial stream is complete.
package client

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/url"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
)

// Event mirrors the server's event payload.
type Event struct {
	ConsultID       string          `json:"consultId"`
	Sequence        int64           `json:"sequence"`
	Kind            string          `json:"kind"`
	Status          string          `json:"status"`
	Urgency         string          `json:"urgency"`
	AssignedTo      *string         `json:"assignedTo,omitempty"`
	IsOverdue       bool            `json:"isOverdue"`
	EscalationLevel int             `json:"escalationLevel"`
	Timestamp       time.Time       `json:"timestamp"`
	Consult         json.RawMessage `json:"consult,omitempty"`
	Note            json.RawMessage `json:"note,omitempty"`
}

// Handler receives events and gap notifications. OnGap means events for
// the consult were lost; the application must refetch its full state.
type Handler interface {
	OnEvent(ev Event)
	OnGap(consultID string, lastSeen, received int64)
}

// Options configures a Client.
type Options struct {
	// URL is the ws:// or wss:// endpoint of the subscription route.
	URL string
	// Token is the caller's bearer token, passed explicitly rather than
	// taken from ambient state.
	Token string
	// MinBackoff and MaxBackoff bound the reconnect delay. Defaults:
	// 1s and 30s.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client is a reconnecting subscriber. Run blocks until the context is
// cancelled; the connection lifetime is bound to it.
type Client struct {
	opts    Options
	handler Handler

	mu       sync.Mutex
	lastSeen map[string]int64
	rng      *rand.Rand
}

func New(opts Options, handler Handler) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Client{
		opts:     opts,
		handler:  handler,
		lastSeen: make(map[string]int64),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run connects and consumes events, reconnecting with bounded-jitter
// backoff until ctx is cancelled. Each successful dial resets the
// backoff, so a long-lived connection that drops reconnects quickly.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_ = c.consume(ctx, func() { attempt = 0 })
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
}

// backoff returns an exponential delay with full jitter, clamped to
// [MinBackoff, MaxBackoff].
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.MinBackoff
	for i := 1; i < attempt && d < c.opts.MaxBackoff; i++ {
		d *= 2
	}
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}

	c.mu.Lock()
	jitter := time.Duration(c.rng.Int63n(int64(d)))
	c.mu.Unlock()

	if jitter < c.opts.MinBackoff {
		jitter = c.opts.MinBackoff
	}
	return jitter
}

// consume dials and reads frames until the connection fails or the
// context is cancelled. connected is invoked once after a successful
// dial.
func (c *Client) consume(ctx context.Context, connected func()) error {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()

	conn, _, err := gorillawebsocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	connected()

	// Close the socket when the context is cancelled so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue // ignore malformed frames
		}
		c.observe(ev)
	}
}

// observe applies de-duplication and gap detection before handing the
// event to the application.
func (c *Client) observe(ev Event) {
	c.mu.Lock()
	last, known := c.lastSeen[ev.ConsultID]
	switch {
	case known && ev.Sequence <= last:
		// Duplicate or stale; at-least-once delivery makes these normal.
		c.mu.Unlock()
		return
	case known && ev.Sequence > last+1:
		c.lastSeen[ev.ConsultID] = ev.Sequence
		c.mu.Unlock()
		c.handler.OnGap(ev.ConsultID, last, ev.Sequence)
		c.handler.OnEvent(ev)
		return
	default:
		c.lastSeen[ev.ConsultID] = ev.Sequence
		c.mu.Unlock()
		c.handler.OnEvent(ev)
	}
}
