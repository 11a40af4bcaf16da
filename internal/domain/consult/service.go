package consult

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Permission actions checked against the directory before any write.
const (
	ActionSubmit      = "consult.submit"
	ActionAcknowledge = "consult.acknowledge"
	ActionAssign      = "consult.assign"
	ActionNote        = "consult.note"
	ActionComplete    = "consult.complete"
	ActionCancel      = "consult.cancel"
	ActionRead        = "consult.read"
)

// TxRunner executes fn inside a database transaction carried in the
// context, so repository calls made by fn share one atomic commit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// nopTxRunner runs fn directly. Used when the repositories are not
// transactional (in-memory mocks).
type nopTxRunner struct{}

func (nopTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service owns the authoritative status of consult requests. Every
// transition is a single versioned read-modify-write; the store write
// is the transaction boundary, and exactly one event is dispatched
// after it commits.
type Service struct {
	consults  ConsultRepository
	notes     NoteRepository
	directory Directory
	sink      EventSink
	tx        TxRunner
	now       func() time.Time
}

func NewService(consults ConsultRepository, notes NoteRepository, directory Directory, sink EventSink) *Service {
	if sink == nil {
		sink = NopSink{}
	}
	return &Service{
		consults:  consults,
		notes:     notes,
		directory: directory,
		sink:      sink,
		tx:        nopTxRunner{},
		now:       time.Now,
	}
}

// SetTxRunner attaches the transaction runner used to make note-append
// plus status-change a single atomic operation.
func (s *Service) SetTxRunner(tx TxRunner) { s.tx = tx }

// SetClock overrides the wall clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SubmitInput carries the caller-supplied fields of a new consult.
type SubmitInput struct {
	PatientID        uuid.UUID `json:"patient_id"`
	RequestingDeptID uuid.UUID `json:"requesting_dept_id"`
	TargetDeptID     uuid.UUID `json:"target_dept_id"`
	Urgency          Urgency   `json:"urgency"`
	Reason           string    `json:"reason"`
	Question         string    `json:"question"`
	History          *string   `json:"history,omitempty"`
}

// Submit creates a consult in SUBMITTED and emits the Submitted event.
func (s *Service) Submit(ctx context.Context, actor uuid.UUID, in SubmitInput) (*ConsultRequest, error) {
	if !in.Urgency.Valid() {
		return nil, validationError("urgency must be EMERGENCY, URGENT, or ROUTINE")
	}
	if in.Reason == "" {
		return nil, validationError("reason is required")
	}
	if in.Question == "" {
		return nil, validationError("question is required")
	}
	if in.PatientID == uuid.Nil || in.RequestingDeptID == uuid.Nil || in.TargetDeptID == uuid.Nil {
		return nil, validationError("patient_id, requesting_dept_id, and target_dept_id are required")
	}
	if in.RequestingDeptID == in.TargetDeptID {
		return nil, validationError("requesting and target departments must differ")
	}

	c := &ConsultRequest{
		PatientID:        in.PatientID,
		RequestingDeptID: in.RequestingDeptID,
		TargetDeptID:     in.TargetDeptID,
		RequestedBy:      actor,
		Urgency:          in.Urgency,
		Status:           StatusSubmitted,
		Reason:           in.Reason,
		Question:         in.Question,
		History:          in.History,
		LastEventSeq:     1,
	}

	if err := s.authorize(ctx, actor, ActionSubmit, c); err != nil {
		return nil, err
	}
	// Target department must exist before the record is written.
	cfg, err := s.directory.GetDepartmentConfig(ctx, in.TargetDeptID)
	if err != nil {
		return nil, directoryError(err)
	}

	if err := s.consults.Create(ctx, c); err != nil {
		return nil, err
	}

	s.sink.Dispatch(ctx, newEvent(EventSubmitted, c, nil, Overdue(c, cfg.SLA, s.now()), s.now().UTC()))
	return c, nil
}

// Acknowledge moves a SUBMITTED consult to ACKNOWLEDGED and stamps
// acknowledged_at. Re-invocation by the actor who already acknowledged
// is a no-op success; acknowledgment by anyone else after the fact is a
// conflict.
func (s *Service) Acknowledge(ctx context.Context, consultID, actor uuid.UUID) (*ConsultRequest, error) {
	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, ActionAcknowledge, c); err != nil {
		return nil, err
	}

	if !CanTransition(c.Status, StatusAcknowledged) {
		if c.Status == StatusAcknowledged && c.AcknowledgedBy != nil && *c.AcknowledgedBy == actor {
			return c, nil
		}
		if c.Status == StatusAcknowledged {
			return nil, fmt.Errorf("%w: already acknowledged by another actor", ErrConflict)
		}
		return nil, invalidTransitionError(c.Status, StatusAcknowledged)
	}

	now := s.now().UTC()
	c.Status = StatusAcknowledged
	c.AcknowledgedAt = &now
	c.AcknowledgedBy = &actor
	return s.commit(ctx, c, EventAcknowledged, nil)
}

// Assign sets the assignee of an ACKNOWLEDGED or IN_PROGRESS consult
// and moves an ACKNOWLEDGED consult into IN_PROGRESS. The write is
// conditioned on observedVersion: a concurrent conflicting assignment
// fails with ErrConflict instead of silently overwriting. Passing
// observedVersion 0 conditions on the version read inside this call.
func (s *Service) Assign(ctx context.Context, consultID, actor, assignee uuid.UUID, observedVersion int) (*ConsultRequest, error) {
	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, ActionAssign, c); err != nil {
		return nil, err
	}

	if c.Status != StatusAcknowledged && c.Status != StatusInProgress {
		return nil, invalidTransitionError(c.Status, StatusInProgress)
	}
	if observedVersion != 0 && observedVersion != c.Version {
		return nil, fmt.Errorf("%w: consult changed since it was read", ErrConflict)
	}

	member, err := s.directory.GetUser(ctx, assignee)
	if err != nil {
		return nil, directoryError(err)
	}
	if !member.Active || member.DepartmentID != c.TargetDeptID {
		return nil, validationError("assignee must be an active member of the target department")
	}

	c.AssignedTo = &assignee
	c.Status = StatusInProgress
	return s.commit(ctx, c, EventAssigned, nil)
}

// NoteInput carries the fields of a new consult note.
type NoteInput struct {
	Category       NoteCategory `json:"category"`
	Text           string       `json:"text"`
	Recommendation *string      `json:"recommendation,omitempty"`
}

// AddNote appends a note to a non-terminal consult. REQUEST_MORE_INFO
// and CLOSE_CONSULT notes additionally drive a status transition; note
// append and transition commit as one atomic operation. A PROGRESS note
// on a MORE_INFO_REQUIRED consult resumes it to IN_PROGRESS.
func (s *Service) AddNote(ctx context.Context, consultID, actor uuid.UUID, in NoteInput) (*ConsultRequest, *ConsultNote, error) {
	if !in.Category.Valid() {
		return nil, nil, validationError("unknown note category %q", in.Category)
	}
	if in.Text == "" {
		return nil, nil, validationError("note text is required")
	}

	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, actor, ActionNote, c); err != nil {
		return nil, nil, err
	}
	if c.Status.Terminal() {
		return nil, nil, invalidTransitionError(c.Status, c.Status)
	}

	kind := EventNoteAdded
	switch in.Category {
	case CategoryRequestMoreInfo:
		if !CanTransition(c.Status, StatusMoreInfoRequired) {
			return nil, nil, invalidTransitionError(c.Status, StatusMoreInfoRequired)
		}
		c.Status = StatusMoreInfoRequired
	case CategoryCloseConsult:
		if !CanTransition(c.Status, StatusClosed) {
			return nil, nil, invalidTransitionError(c.Status, StatusClosed)
		}
		c.Status = StatusClosed
		kind = EventClosed
	case CategoryProgress:
		if c.Status == StatusMoreInfoRequired {
			c.Status = StatusInProgress
		}
	}

	note := &ConsultNote{
		ConsultID:      c.ID,
		AuthorID:       actor,
		Category:       in.Category,
		Text:           in.Text,
		Recommendation: in.Recommendation,
	}

	expected := c.Version
	c.LastEventSeq++
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.notes.Append(ctx, note); err != nil {
			return err
		}
		return s.consults.Update(ctx, c, expected)
	})
	if err != nil {
		return nil, nil, err
	}

	s.dispatch(ctx, kind, c, note)
	return c, note, nil
}

// Complete moves an IN_PROGRESS or MORE_INFO_REQUIRED consult to
// COMPLETED and stamps completed_at.
func (s *Service) Complete(ctx context.Context, consultID, actor uuid.UUID) (*ConsultRequest, error) {
	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, ActionComplete, c); err != nil {
		return nil, err
	}

	if !CanTransition(c.Status, StatusCompleted) {
		return nil, invalidTransitionError(c.Status, StatusCompleted)
	}

	now := s.now().UTC()
	c.Status = StatusCompleted
	c.CompletedAt = &now
	return s.commit(ctx, c, EventCompleted, nil)
}

// Cancel terminates a non-terminal consult. A reason is required.
func (s *Service) Cancel(ctx context.Context, consultID, actor uuid.UUID, reason string) (*ConsultRequest, error) {
	if reason == "" {
		return nil, validationError("cancel reason is required")
	}

	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, ActionCancel, c); err != nil {
		return nil, err
	}

	if !CanTransition(c.Status, StatusCancelled) {
		return nil, invalidTransitionError(c.Status, StatusCancelled)
	}

	c.Status = StatusCancelled
	c.CancelReason = &reason
	return s.commit(ctx, c, EventCancelled, nil)
}

// EscalateOverdue scans all open consults and escalates each one past
// its SLA deadline whose level has not reached the hierarchy depth.
// The level increment is conditioned on the version read here, so
// concurrent scheduler instances cannot double-escalate: the loser's
// write conflicts and is skipped. Returns the number of consults
// escalated.
func (s *Service) EscalateOverdue(ctx context.Context, now time.Time) (int, error) {
	open, err := s.consults.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, c := range open {
		cfg, err := s.directory.GetDepartmentConfig(ctx, c.TargetDeptID)
		if err != nil {
			continue // skip this consult, retry on next scan
		}
		if !Overdue(c, cfg.SLA, now) {
			continue
		}
		if c.EscalationLevel >= cfg.MaxEscalationLevel() {
			continue
		}

		expected := c.Version
		c.EscalationLevel++
		c.LastEventSeq++
		if err := s.consults.Update(ctx, c, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				continue // another instance or a transition got there first
			}
			return escalated, err
		}

		s.sink.Dispatch(ctx, newEvent(EventEscalated, c, nil, true, now.UTC()))
		escalated++
	}
	return escalated, nil
}

// View is a consult enriched with its on-demand SLA evaluation.
type View struct {
	*ConsultRequest
	Deadline  time.Time `json:"deadline"`
	IsOverdue bool      `json:"is_overdue"`
}

// Get returns one consult with its SLA evaluation, performing the
// caller's read permission check.
func (s *Service) Get(ctx context.Context, consultID, actor uuid.UUID) (*View, error) {
	c, err := s.consults.GetByID(ctx, consultID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, ActionRead, c); err != nil {
		return nil, err
	}
	return s.view(ctx, c), nil
}

// List returns consults matching the filter, each with its SLA
// evaluation.
func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*View, int, error) {
	consults, total, err := s.consults.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*View, 0, len(consults))
	for _, c := range consults {
		views = append(views, s.view(ctx, c))
	}
	return views, total, nil
}

// Notes returns the append-only note trail of a consult.
func (s *Service) Notes(ctx context.Context, consultID uuid.UUID, limit, offset int) ([]*ConsultNote, int, error) {
	return s.notes.ListByConsult(ctx, consultID, limit, offset)
}

func (s *Service) view(ctx context.Context, c *ConsultRequest) *View {
	v := &View{ConsultRequest: c}
	cfg, err := s.directory.GetDepartmentConfig(ctx, c.TargetDeptID)
	if err != nil {
		return v
	}
	v.Deadline = Deadline(c.Urgency, cfg.SLA, c.CreatedAt)
	v.IsOverdue = Overdue(c, cfg.SLA, s.now())
	return v
}

// commit bumps the event sequence, applies the optimistic write, and
// dispatches the resulting event. The caller has already mutated c.
func (s *Service) commit(ctx context.Context, c *ConsultRequest, kind EventKind, note *ConsultNote) (*ConsultRequest, error) {
	expected := c.Version
	c.LastEventSeq++
	if err := s.consults.Update(ctx, c, expected); err != nil {
		return nil, err
	}
	s.dispatch(ctx, kind, c, note)
	return c, nil
}

// dispatch hands the committed state change to the sink. Overdue status
// is evaluated best-effort; a failed config lookup defaults it to
// false rather than blocking the event.
func (s *Service) dispatch(ctx context.Context, kind EventKind, c *ConsultRequest, note *ConsultNote) {
	overdue := false
	if cfg, err := s.directory.GetDepartmentConfig(ctx, c.TargetDeptID); err == nil {
		overdue = Overdue(c, cfg.SLA, s.now())
	}
	s.sink.Dispatch(ctx, newEvent(kind, c, note, overdue, s.now().UTC()))
}

func (s *Service) authorize(ctx context.Context, actor uuid.UUID, action string, c *ConsultRequest) error {
	ok, err := s.directory.HasPermission(ctx, actor, action, c)
	if err != nil {
		return directoryError(err)
	}
	if !ok {
		return forbiddenError(action)
	}
	return nil
}

func directoryError(err error) error {
	return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
}
