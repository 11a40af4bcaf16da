package consult

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the state change an event describes.
type EventKind string

const (
	EventSubmitted    EventKind = "Submitted"
	EventAcknowledged EventKind = "Acknowledged"
	EventAssigned     EventKind = "Assigned"
	EventNoteAdded    EventKind = "NoteAdded"
	EventCompleted    EventKind = "Completed"
	EventEscalated    EventKind = "Escalated"
	EventClosed       EventKind = "Closed"
	EventCancelled    EventKind = "Cancelled"
)

// Event is an immutable, sequenced notification describing one state
// change to a consult. Sequence numbers are per-consult, strictly
// increasing, and gap-free under normal operation; a client observing a
// gap must refetch full state rather than trust the partial stream.
// The event carries the full consult snapshot so clients can render
// without a follow-up read.
type Event struct {
	ConsultID       uuid.UUID       `json:"consultId"`
	Sequence        int64           `json:"sequence"`
	Kind            EventKind       `json:"kind"`
	Status          Status          `json:"status"`
	Urgency         Urgency         `json:"urgency"`
	AssignedTo      *uuid.UUID      `json:"assignedTo,omitempty"`
	IsOverdue       bool            `json:"isOverdue"`
	EscalationLevel int             `json:"escalationLevel"`
	Timestamp       time.Time       `json:"timestamp"`
	Consult         *ConsultRequest `json:"consult,omitempty"`
	Note            *ConsultNote    `json:"note,omitempty"`
}

// EventSink receives events after the transition that produced them has
// been durably committed. Delivery downstream of the sink is
// best-effort; a sink must never fail the transition it follows, so
// Dispatch returns nothing.
type EventSink interface {
	Dispatch(ctx context.Context, ev Event)
}

// NopSink discards events. Used when no dispatcher is wired, and in
// tests that do not care about fan-out.
type NopSink struct{}

func (NopSink) Dispatch(context.Context, Event) {}

// newEvent builds an event from a committed consult snapshot. isOverdue
// is computed by the caller against the department SLA config.
func newEvent(kind EventKind, c *ConsultRequest, note *ConsultNote, overdue bool, now time.Time) Event {
	snapshot := *c
	ev := Event{
		ConsultID:       c.ID,
		Sequence:        c.LastEventSeq,
		Kind:            kind,
		Status:          c.Status,
		Urgency:         c.Urgency,
		AssignedTo:      c.AssignedTo,
		IsOverdue:       overdue,
		EscalationLevel: c.EscalationLevel,
		Timestamp:       now,
		Consult:         &snapshot,
	}
	if note != nil {
		n := *note
		ev.Note = &n
	}
	return ev
}
