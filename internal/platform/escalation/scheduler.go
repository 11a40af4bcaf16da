// Package escalation runs the periodic SLA scan. The scan itself is
// owned by the consult service; this package is just the cadence around
// it, safe to run on any number of instances because every escalation
// write is optimistic.
package escalation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/telemetry"
)

// Escalator evaluates open consults against SLA policy and escalates
// the overdue ones, returning how many escalations were raised.
type Escalator interface {
	EscalateOverdue(ctx context.Context, now time.Time) (int, error)
}

// Scheduler invokes the escalator on a fixed interval until its context
// is cancelled.
type Scheduler struct {
	escalator Escalator
	interval  time.Duration
	logger    zerolog.Logger
	scans     *telemetry.Counter
	raised    *telemetry.Counter
	now       func() time.Time
}

func NewScheduler(escalator Escalator, interval time.Duration, logger zerolog.Logger, metrics *telemetry.Registry) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if metrics == nil {
		metrics = telemetry.NewRegistry()
	}
	return &Scheduler{
		escalator: escalator,
		interval:  interval,
		logger:    logger.With().Str("component", "escalation").Logger(),
		scans:     metrics.Counter("escalation_scans_total", "SLA scans performed."),
		raised:    metrics.Counter("escalation_raised_total", "Escalations raised."),
		now:       time.Now,
	}
}

// Run blocks, scanning on each tick, until ctx is cancelled. Errors are
// logged and the cadence continues; a failed scan is retried by the
// next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("escalation scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("escalation scheduler stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan performs one SLA pass. Also invoked opportunistically outside
// the cadence.
func (s *Scheduler) Scan(ctx context.Context) {
	s.scans.Inc()
	n, err := s.escalator.EscalateOverdue(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("escalation scan failed")
		return
	}
	if n > 0 {
		s.raised.Add(int64(n))
		s.logger.Info().Int("escalated", n).Msg("escalation scan raised consults")
	}
}
