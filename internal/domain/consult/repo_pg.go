package consult

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

// queryable abstracts pgxpool.Pool, pgxpool.Conn, and pgx.Tx so queries
// run against the transaction carried in the context when one exists.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const consultColumns = `id, patient_id, requesting_dept_id, target_dept_id, requested_by,
	urgency, status, assigned_to, escalation_level, reason, question, history,
	cancel_reason, acknowledged_by, created_at, acknowledged_at, completed_at,
	last_event_seq, version`

type consultRepoPG struct {
	pool *pgxpool.Pool
}

func NewConsultRepo(pool *pgxpool.Pool) ConsultRepository {
	return &consultRepoPG{pool: pool}
}

func (r *consultRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *consultRepoPG) Create(ctx context.Context, c *ConsultRequest) error {
	c.ID = uuid.New()
	c.Version = 1

	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consult_request (
			id, patient_id, requesting_dept_id, target_dept_id, requested_by,
			urgency, status, escalation_level, reason, question, history,
			last_event_seq, version
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13
		) RETURNING created_at`,
		c.ID, c.PatientID, c.RequestingDeptID, c.TargetDeptID, c.RequestedBy,
		c.Urgency, c.Status, c.EscalationLevel, c.Reason, c.Question, c.History,
		c.LastEventSeq, c.Version,
	).Scan(&c.CreatedAt)
}

func (r *consultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsultRequest, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultColumns+` FROM consult_request WHERE id = $1`, id))
}

// Update applies the full mutable state of c conditioned on the stored
// version still matching expectedVersion. Zero rows affected means a
// concurrent writer won: ErrConflict.
func (r *consultRepoPG) Update(ctx context.Context, c *ConsultRequest, expectedVersion int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consult_request SET
			status = $3, assigned_to = $4, escalation_level = $5,
			cancel_reason = $6, acknowledged_by = $7,
			acknowledged_at = $8, completed_at = $9,
			last_event_seq = $10, version = version + 1
		WHERE id = $1 AND version = $2`,
		c.ID, expectedVersion,
		c.Status, c.AssignedTo, c.EscalationLevel,
		c.CancelReason, c.AcknowledgedBy,
		c.AcknowledgedAt, c.CompletedAt,
		c.LastEventSeq,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: consult %s version %d is stale", ErrConflict, c.ID, expectedVersion)
	}
	c.Version = expectedVersion + 1
	return nil
}

func (r *consultRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ConsultRequest, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if f.TargetDeptID != uuid.Nil {
		add("target_dept_id", f.TargetDeptID)
	}
	if f.RequestingDeptID != uuid.Nil {
		add("requesting_dept_id", f.RequestingDeptID)
	}
	if f.PatientID != uuid.Nil {
		add("patient_id", f.PatientID)
	}
	if f.AssignedTo != uuid.Nil {
		add("assigned_to", f.AssignedTo)
	}
	if f.Status != "" {
		add("status", f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consult_request `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM consult_request %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		consultColumns, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var consults []*ConsultRequest
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		consults = append(consults, c)
	}
	return consults, total, rows.Err()
}

func (r *consultRepoPG) ListOpen(ctx context.Context) ([]*ConsultRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consultColumns+` FROM consult_request
		WHERE status NOT IN ('COMPLETED', 'CLOSED', 'CANCELLED')
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consults []*ConsultRequest
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		consults = append(consults, c)
	}
	return consults, rows.Err()
}

func (r *consultRepoPG) scan(row pgx.Row) (*ConsultRequest, error) {
	var c ConsultRequest
	err := row.Scan(
		&c.ID, &c.PatientID, &c.RequestingDeptID, &c.TargetDeptID, &c.RequestedBy,
		&c.Urgency, &c.Status, &c.AssignedTo, &c.EscalationLevel, &c.Reason,
		&c.Question, &c.History, &c.CancelReason, &c.AcknowledgedBy,
		&c.CreatedAt, &c.AcknowledgedAt, &c.CompletedAt,
		&c.LastEventSeq, &c.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consultRepoPG) scanRow(rows pgx.Rows) (*ConsultRequest, error) {
	var c ConsultRequest
	err := rows.Scan(
		&c.ID, &c.PatientID, &c.RequestingDeptID, &c.TargetDeptID, &c.RequestedBy,
		&c.Urgency, &c.Status, &c.AssignedTo, &c.EscalationLevel, &c.Reason,
		&c.Question, &c.History, &c.CancelReason, &c.AcknowledgedBy,
		&c.CreatedAt, &c.AcknowledgedAt, &c.CompletedAt,
		&c.LastEventSeq, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -- Note Repository --

type noteRepoPG struct {
	pool *pgxpool.Pool
}

func NewNoteRepo(pool *pgxpool.Pool) NoteRepository {
	return &noteRepoPG{pool: pool}
}

func (r *noteRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *noteRepoPG) Append(ctx context.Context, n *ConsultNote) error {
	n.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consult_note (id, consult_id, author_id, category, text, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		n.ID, n.ConsultID, n.AuthorID, n.Category, n.Text, n.Recommendation,
	).Scan(&n.CreatedAt)
}

func (r *noteRepoPG) ListByConsult(ctx context.Context, consultID uuid.UUID, limit, offset int) ([]*ConsultNote, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consult_note WHERE consult_id = $1`, consultID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consult_id, author_id, category, text, recommendation, created_at
		FROM consult_note
		WHERE consult_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`, consultID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notes []*ConsultNote
	for rows.Next() {
		var n ConsultNote
		if err := rows.Scan(&n.ID, &n.ConsultID, &n.AuthorID, &n.Category,
			&n.Text, &n.Recommendation, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		notes = append(notes, &n)
	}
	return notes, total, rows.Err()
}
