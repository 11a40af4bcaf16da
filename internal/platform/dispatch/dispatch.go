// Package dispatch implements the notification fan-out: one committed
// domain event goes to every live connection and registered device of
// the consult's audience. Delivery is at-least-once and strictly
// downstream of the state write; a failed or slow recipient is logged
// and dropped, never surfaced to the caller of the transition.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/consult"
	"github.com/carelink/carelink/internal/platform/telemetry"
)

// LivePublisher pushes a payload to every live connection of a user.
// The call must not block on slow readers.
type LivePublisher interface {
	PublishToUser(userID uuid.UUID, data []byte)
}

// DeviceToken is one push-capable delivery target.
type DeviceToken struct {
	UserID   uuid.UUID
	DeviceID string
	Token    string
	Platform string
}

// DeviceSource lists registered push targets for a set of users.
type DeviceSource interface {
	TokensForUsers(ctx context.Context, userIDs []uuid.UUID) ([]DeviceToken, error)
}

// PushGateway delivers one payload to one device token. Implementations
// wrap an external push backend; a push to a dead token is simply an
// error here and a drop at the gateway.
type PushGateway interface {
	Push(ctx context.Context, target DeviceToken, payload []byte) error
}

// Dispatcher resolves an event's audience and fans out concurrently to
// live subscriptions and devices. Each recipient gets an isolated
// delivery attempt bounded by Timeout.
type Dispatcher struct {
	directory consult.Directory
	live      LivePublisher
	devices   DeviceSource
	push      PushGateway
	log       *DeliveryLog
	logger    zerolog.Logger
	timeout   time.Duration
	inflight  sync.WaitGroup

	delivered  *telemetry.Counter
	failed     *telemetry.Counter
	dispatched *telemetry.Counter
}

// Config carries the dispatcher's collaborators.
type Config struct {
	Directory consult.Directory
	Live      LivePublisher
	Devices   DeviceSource
	Push      PushGateway
	Timeout   time.Duration
	Logger    zerolog.Logger
	Metrics   *telemetry.Registry
	LogSize   int
}

func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.LogSize <= 0 {
		cfg.LogSize = 512
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewRegistry()
	}
	return &Dispatcher{
		directory:  cfg.Directory,
		live:       cfg.Live,
		devices:    cfg.Devices,
		push:       cfg.Push,
		log:        NewDeliveryLog(cfg.LogSize),
		logger:     cfg.Logger.With().Str("component", "dispatch").Logger(),
		timeout:    cfg.Timeout,
		delivered:  cfg.Metrics.Counter("dispatch_deliveries_total", "Delivery attempts that succeeded."),
		failed:     cfg.Metrics.Counter("dispatch_failures_total", "Delivery attempts that failed or timed out."),
		dispatched: cfg.Metrics.Counter("dispatch_events_total", "Events accepted for fan-out."),
	}
}

// Log exposes the recent-delivery ring for inspection endpoints.
func (d *Dispatcher) Log() *DeliveryLog { return d.log }

// Dispatch implements consult.EventSink. It returns immediately; the
// fan-out runs detached from the triggering request's context so a
// client disconnect cannot cancel delivery to others.
func (d *Dispatcher) Dispatch(ctx context.Context, ev consult.Event) {
	d.dispatched.Inc()
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.fanOut(context.WithoutCancel(ctx), ev)
	}()
}

// Drain blocks until all in-flight fan-outs complete. Shutdown and
// tests only.
func (d *Dispatcher) Drain() { d.inflight.Wait() }

func (d *Dispatcher) fanOut(ctx context.Context, ev consult.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error().Err(err).Str("consult_id", ev.ConsultID.String()).Msg("marshal event")
		return
	}

	audience := d.resolveAudience(ctx, ev)
	if len(audience) == 0 {
		return
	}

	tokens := d.resolveTokens(ctx, audience)

	var wg sync.WaitGroup
	for _, userID := range audience {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			d.deliverLive(ev, userID, payload)
		}(userID)
	}
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok DeviceToken) {
			defer wg.Done()
			d.deliverPush(ctx, ev, tok, payload)
		}(tok)
	}
	wg.Wait()
}

// resolveAudience returns the users interested in the event: the
// requester, the assignee, every active member of the target
// department, and for escalations the newly targeted senior member.
func (d *Dispatcher) resolveAudience(ctx context.Context, ev consult.Event) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	add := func(id uuid.UUID) {
		if id != uuid.Nil {
			seen[id] = struct{}{}
		}
	}

	if ev.Consult != nil {
		add(ev.Consult.RequestedBy)
	}
	if ev.AssignedTo != nil {
		add(*ev.AssignedTo)
	}

	var deptID uuid.UUID
	if ev.Consult != nil {
		deptID = ev.Consult.TargetDeptID
	}
	if deptID != uuid.Nil {
		cfg, err := d.directory.GetDepartmentConfig(ctx, deptID)
		if err != nil {
			// The requester and assignee still get the event.
			d.logger.Warn().Err(err).Str("dept_id", deptID.String()).Msg("audience lookup degraded")
		} else {
			for _, m := range cfg.Hierarchy {
				add(m.UserID)
			}
			if ev.Kind == consult.EventEscalated {
				if target, ok := cfg.EscalationTarget(ev.EscalationLevel); ok {
					add(target.UserID)
				}
			}
		}
	}

	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func (d *Dispatcher) resolveTokens(ctx context.Context, audience []uuid.UUID) []DeviceToken {
	if d.devices == nil || d.push == nil {
		return nil
	}
	tokens, err := d.devices.TokensForUsers(ctx, audience)
	if err != nil {
		d.logger.Warn().Err(err).Msg("device lookup failed; push skipped")
		return nil
	}
	return tokens
}

func (d *Dispatcher) deliverLive(ev consult.Event, userID uuid.UUID, payload []byte) {
	// The hub never blocks; full buffers are dropped inside it.
	d.live.PublishToUser(userID, payload)
	d.delivered.Inc()
	d.log.Record(Attempt{
		ConsultID: ev.ConsultID,
		Sequence:  ev.Sequence,
		Kind:      ev.Kind,
		Channel:   ChannelLive,
		Recipient: userID,
		OK:        true,
		At:        time.Now().UTC(),
	})
}

func (d *Dispatcher) deliverPush(ctx context.Context, ev consult.Event, tok DeviceToken, payload []byte) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	a := Attempt{
		ConsultID: ev.ConsultID,
		Sequence:  ev.Sequence,
		Kind:      ev.Kind,
		Channel:   ChannelPush,
		Recipient: tok.UserID,
		DeviceID:  tok.DeviceID,
		At:        time.Now().UTC(),
	}

	if err := d.push.Push(attemptCtx, tok, payload); err != nil {
		a.Error = err.Error()
		d.failed.Inc()
		d.logger.Warn().Err(err).
			Str("consult_id", ev.ConsultID.String()).
			Str("device_id", tok.DeviceID).
			Msg("push delivery failed")
	} else {
		a.OK = true
		d.delivered.Inc()
	}
	d.log.Record(a)
}
