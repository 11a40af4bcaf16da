// Package consult implements the inter-department consult request
// lifecycle: the status state machine, SLA deadlines, escalation, and
// the domain events emitted on every successful transition.
package consult

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a consult request.
type Status string

const (
	StatusSubmitted        Status = "SUBMITTED"
	StatusAcknowledged     Status = "ACKNOWLEDGED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusMoreInfoRequired Status = "MORE_INFO_REQUIRED"
	StatusCompleted        Status = "COMPLETED"
	StatusClosed           Status = "CLOSED"
	StatusCancelled        Status = "CANCELLED"
)

// transitions is the edge set of the status graph. CANCELLED is handled
// separately: it is reachable from every non-terminal state. CLOSED is
// reachable from every non-terminal state too, via a CLOSE_CONSULT
// note.
var transitions = map[Status][]Status{
	StatusSubmitted:        {StatusAcknowledged, StatusClosed},
	StatusAcknowledged:     {StatusInProgress, StatusClosed},
	StatusInProgress:       {StatusMoreInfoRequired, StatusCompleted, StatusClosed},
	StatusMoreInfoRequired: {StatusInProgress, StatusCompleted, StatusClosed},
}

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed || s == StatusCancelled
}

// Open reports whether the consult still counts against its SLA deadline.
func (s Status) Open() bool {
	return !s.Terminal()
}

// Valid reports whether s is one of the declared states.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusAcknowledged, StatusInProgress,
		StatusMoreInfoRequired, StatusCompleted, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge from -> to exists in the state
// graph.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Urgency classifies a consult's priority and selects the SLA window.
type Urgency string

const (
	UrgencyEmergency Urgency = "EMERGENCY"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyRoutine   Urgency = "ROUTINE"
)

// Valid reports whether u is a declared urgency level.
func (u Urgency) Valid() bool {
	return u == UrgencyEmergency || u == UrgencyUrgent || u == UrgencyRoutine
}

// NoteCategory types a consult note. Two categories carry status
// side-effects applied atomically with the note append.
type NoteCategory string

const (
	CategoryProgress        NoteCategory = "PROGRESS"
	CategoryPlan            NoteCategory = "PLAN"
	CategoryRequestMoreInfo NoteCategory = "REQUEST_MORE_INFO"
	CategoryAssignment      NoteCategory = "ASSIGNMENT"
	CategoryCloseConsult    NoteCategory = "CLOSE_CONSULT"
)

// Valid reports whether c is a declared note category.
func (c NoteCategory) Valid() bool {
	switch c {
	case CategoryProgress, CategoryPlan, CategoryRequestMoreInfo,
		CategoryAssignment, CategoryCloseConsult:
		return true
	}
	return false
}

// ConsultRequest maps to the consult_request table. It is the aggregate
// root: all transitions go through a single versioned read-modify-write
// against this row.
type ConsultRequest struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	RequestingDeptID uuid.UUID  `db:"requesting_dept_id" json:"requesting_dept_id"`
	TargetDeptID     uuid.UUID  `db:"target_dept_id" json:"target_dept_id"`
	RequestedBy      uuid.UUID  `db:"requested_by" json:"requested_by"`
	Urgency          Urgency    `db:"urgency" json:"urgency"`
	Status           Status     `db:"status" json:"status"`
	AssignedTo       *uuid.UUID `db:"assigned_to" json:"assigned_to,omitempty"`
	EscalationLevel  int        `db:"escalation_level" json:"escalation_level"`
	Reason           string     `db:"reason" json:"reason"`
	Question         string     `db:"question" json:"question"`
	History          *string    `db:"history" json:"history,omitempty"`
	CancelReason     *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	AcknowledgedBy   *uuid.UUID `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	AcknowledgedAt   *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	LastEventSeq     int64      `db:"last_event_seq" json:"last_event_seq"`
	Version          int        `db:"version" json:"version"`
}

// GetVersion returns the current optimistic-concurrency version.
func (c *ConsultRequest) GetVersion() int { return c.Version }

// SetVersion sets the optimistic-concurrency version.
func (c *ConsultRequest) SetVersion(v int) { c.Version = v }

// ConsultNote maps to the consult_note table. Notes are append-only and
// never mutate after creation.
type ConsultNote struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ConsultID      uuid.UUID    `db:"consult_id" json:"consult_id"`
	AuthorID       uuid.UUID    `db:"author_id" json:"author_id"`
	Category       NoteCategory `db:"category" json:"category"`
	Text           string       `db:"text" json:"text"`
	Recommendation *string      `db:"recommendation" json:"recommendation,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
