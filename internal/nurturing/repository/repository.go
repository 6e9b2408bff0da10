// Package repository persists nurturing sequences, enrollments, and the
// dispatch task queue.
package repository

import (
	"context"
	"errors"
	"time"

	"closing_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentCancelled = "cancelled"
)

// Task statuses. Claiming moves pending tasks to processing; the dispatcher
// settles them as sent, failed, or skipped. There is no retry status: a
// failed delivery stays failed.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskSent       = "sent"
	TaskFailed     = "failed"
	TaskSkipped    = "skipped"
)

// Dispatch channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var (
	ErrSequenceNotFound   = apperr.NotFound("sequence not found")
	ErrEnrollmentNotFound = apperr.NotFound("enrollment not found")
	ErrAlreadyEnrolled    = apperr.Conflict("lead already has an active enrollment in this sequence")
)

// Sequence is a named drip campaign. Steps are ordered by StepOrder.
type Sequence struct {
	ID          uuid.UUID
	Name        string
	Description string
	Active      bool
	Steps       []Step
	CreatedAt   time.Time
}

// Step is one message of a sequence, sent OffsetHours after enrollment.
type Step struct {
	ID          uuid.UUID
	SequenceID  uuid.UUID
	StepOrder   int
	OffsetHours int
	Channel     string
	Subject     string
	Body        string
}

// Enrollment binds a lead to a sequence.
type Enrollment struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	SequenceID   uuid.UUID
	Status       string
	EnrolledAt   time.Time
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Task is one scheduled dispatch, precomputed at enrollment time.
type Task struct {
	ID           uuid.UUID
	EnrollmentID uuid.UUID
	LeadID       uuid.UUID
	StepID       uuid.UUID
	Channel      string
	Subject      string
	Body         string
	RunAt        time.Time
	Status       string
	Attempts     int
	ExecutedAt   *time.Time
	LastError    *string
}

// DispatchAudit is one immutable record of a dispatch attempt outcome.
type DispatchAudit struct {
	ID        uuid.UUID
	TaskID    uuid.UUID
	LeadID    uuid.UUID
	Channel   string
	Status    string
	Detail    string
	CreatedAt time.Time
}

// SequenceReport is one row of the ROI aggregation. Converted counts
// enrollments whose lead ended up converted, so a lead enrolled in two
// sequences credits both.
type SequenceReport struct {
	SequenceID   uuid.UUID
	SequenceName string
	Enrolled     int
	Active       int
	Completed    int
	Cancelled    int
	Converted    int
	TasksSent    int
	TasksFailed  int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertSequence inserts or updates a sequence by name and replaces its
// steps. Used by the seed loader; running it twice is a no-op in effect.
func (r *Repository) UpsertSequence(ctx context.Context, seq Sequence) (uuid.UUID, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO nurturing_sequences (name, description, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description, active = EXCLUDED.active
		RETURNING id`,
		seq.Name, seq.Description, seq.Active,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM nurturing_steps WHERE sequence_id = $1`, id); err != nil {
		return uuid.Nil, err
	}

	for _, step := range seq.Steps {
		_, err := tx.Exec(ctx, `
			INSERT INTO nurturing_steps (sequence_id, step_order, offset_hours, channel, subject, body)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, step.StepOrder, step.OffsetHours, step.Channel, step.Subject, step.Body,
		)
		if err != nil {
			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetSequenceByName loads a sequence and its ordered steps.
func (r *Repository) GetSequenceByName(ctx context.Context, name string) (Sequence, error) {
	var seq Sequence
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, active, created_at
		FROM nurturing_sequences WHERE name = $1`, name,
	).Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Active, &seq.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sequence{}, ErrSequenceNotFound
	}
	if err != nil {
		return Sequence{}, err
	}

	steps, err := r.listSteps(ctx, seq.ID)
	if err != nil {
		return Sequence{}, err
	}
	seq.Steps = steps
	return seq, nil
}

// ListSequences returns all sequences with their steps.
func (r *Repository) ListSequences(ctx context.Context) ([]Sequence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, active, created_at
		FROM nurturing_sequences ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sequences := make([]Sequence, 0)
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Active, &seq.CreatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range sequences {
		steps, err := r.listSteps(ctx, sequences[i].ID)
		if err != nil {
			return nil, err
		}
		sequences[i].Steps = steps
	}
	return sequences, nil
}

func (r *Repository) listSteps(ctx context.Context, sequenceID uuid.UUID) ([]Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence_id, step_order, offset_hours, channel, subject, body
		FROM nurturing_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]Step, 0)
	for rows.Next() {
		var step Step
		if err := rows.Scan(&step.ID, &step.SequenceID, &step.StepOrder, &step.OffsetHours,
			&step.Channel, &step.Subject, &step.Body); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// Enroll creates an enrollment and all its scheduled tasks in one
// transaction. Each task runs OffsetHours after the enrollment instant. A
// second active enrollment of the same lead in the same sequence violates
// the partial unique index and is reported as a conflict.
func (r *Repository) Enroll(ctx context.Context, leadID, sequenceID uuid.UUID, now time.Time) (Enrollment, []Task, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Enrollment{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var enrollment Enrollment
	err = tx.QueryRow(ctx, `
		INSERT INTO nurturing_enrollments (lead_id, sequence_id, status, enrolled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, lead_id, sequence_id, status, enrolled_at, cancel_reason, created_at, updated_at`,
		leadID, sequenceID, EnrollmentActive, now,
	).Scan(&enrollment.ID, &enrollment.LeadID, &enrollment.SequenceID, &enrollment.Status,
		&enrollment.EnrolledAt, &enrollment.CancelReason, &enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Enrollment{}, nil, ErrAlreadyEnrolled
		}
		return Enrollment{}, nil, err
	}

	steps, err := r.listStepsTx(ctx, tx, sequenceID)
	if err != nil {
		return Enrollment{}, nil, err
	}

	tasks := make([]Task, 0, len(steps))
	for _, step := range steps {
		runAt := now.Add(time.Duration(step.OffsetHours) * time.Hour)
		var task Task
		err := tx.QueryRow(ctx, `
			INSERT INTO nurturing_tasks (enrollment_id, lead_id, step_id, channel, subject, body, run_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, enrollment_id, lead_id, step_id, channel, subject, body, run_at, status, attempts, executed_at, last_error`,
			enrollment.ID, leadID, step.ID, step.Channel, step.Subject, step.Body, runAt, TaskPending,
		).Scan(&task.ID, &task.EnrollmentID, &task.LeadID, &task.StepID, &task.Channel,
			&task.Subject, &task.Body, &task.RunAt, &task.Status, &task.Attempts, &task.ExecutedAt, &task.LastError)
		if err != nil {
			return Enrollment{}, nil, err
		}
		tasks = append(tasks, task)
	}

	if err := tx.Commit(ctx); err != nil {
		return Enrollment{}, nil, err
	}
	return enrollment, tasks, nil
}

func (r *Repository) listStepsTx(ctx context.Context, tx pgx.Tx, sequenceID uuid.UUID) ([]Step, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, sequence_id, step_order, offset_hours, channel, subject, body
		FROM nurturing_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]Step, 0)
	for rows.Next() {
		var step Step
		if err := rows.Scan(&step.ID, &step.SequenceID, &step.StepOrder, &step.OffsetHours,
			&step.Channel, &step.Subject, &step.Body); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ClaimDue atomically claims up to limit due pending tasks, moving them to
// processing. Row locks are skipped, so concurrent schedulers never claim
// the same task twice.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM nurturing_tasks
		WHERE status = 'pending' AND run_at <= $1
		ORDER BY run_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE nurturing_tasks t
	SET status = 'processing', attempts = attempts + 1, updated_at = now()
	FROM cte
	WHERE t.id = cte.id
	RETURNING t.id, t.enrollment_id, t.lead_id, t.step_id, t.channel, t.subject, t.body,
		t.run_at, t.status, t.attempts, t.executed_at, t.last_error`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var task Task
		if err := rows.Scan(&task.ID, &task.EnrollmentID, &task.LeadID, &task.StepID, &task.Channel,
			&task.Subject, &task.Body, &task.RunAt, &task.Status, &task.Attempts, &task.ExecutedAt, &task.LastError); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkTaskSent settles a task as sent.
func (r *Repository) MarkTaskSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_tasks
		SET status = 'sent', last_error = NULL, executed_at = now(), updated_at = now()
		WHERE id = $1`, id)
	return err
}

// MarkTaskFailed settles a task as permanently failed.
func (r *Repository) MarkTaskFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_tasks
		SET status = 'failed', last_error = $2, executed_at = now(), updated_at = now()
		WHERE id = $1`, id, lastError)
	return err
}

// MarkTaskSkipped settles a claimed task as skipped without dispatching.
func (r *Repository) MarkTaskSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_tasks
		SET status = 'skipped', last_error = $2, updated_at = now()
		WHERE id = $1`, id, reason)
	return err
}

// CompleteEnrollmentIfDone marks an enrollment completed once none of its
// tasks can still run.
func (r *Repository) CompleteEnrollmentIfDone(ctx context.Context, enrollmentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'active'
		AND NOT EXISTS (
			SELECT 1 FROM nurturing_tasks
			WHERE enrollment_id = $1 AND status IN ('pending', 'processing')
		)`, enrollmentID)
	return err
}

// CancelActiveEnrollments cancels every active enrollment of a lead and its
// remaining pending tasks, in one transaction. Returns the number of
// enrollments cancelled.
func (r *Repository) CancelActiveEnrollments(ctx context.Context, leadID uuid.UUID, reason string) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE nurturing_enrollments
		SET status = 'cancelled', cancel_reason = $2, updated_at = now()
		WHERE lead_id = $1 AND status = 'active'`, leadID, reason)
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE nurturing_tasks
		SET status = 'skipped', last_error = $2, updated_at = now()
		WHERE lead_id = $1 AND status = 'pending'`, leadID, reason)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListEnrollments returns all enrollments of a lead, newest first.
func (r *Repository) ListEnrollments(ctx context.Context, leadID uuid.UUID) ([]Enrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, sequence_id, status, enrolled_at, cancel_reason, created_at, updated_at
		FROM nurturing_enrollments
		WHERE lead_id = $1
		ORDER BY enrolled_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	enrollments := make([]Enrollment, 0)
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.LeadID, &e.SequenceID, &e.Status, &e.EnrolledAt,
			&e.CancelReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

// InsertDispatchAudit records the outcome of one dispatch attempt.
func (r *Repository) InsertDispatchAudit(ctx context.Context, audit DispatchAudit) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO nurturing_dispatch_audit (task_id, lead_id, channel, status, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		audit.TaskID, audit.LeadID, audit.Channel, audit.Status, audit.Detail)
	return err
}

// SequenceReports aggregates enrollment and dispatch outcomes per active
// sequence in a single query, joining lead status for the conversion count.
// One query means numerator and denominator come from the same snapshot.
func (r *Repository) SequenceReports(ctx context.Context) ([]SequenceReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.name,
			COUNT(e.id) AS enrolled,
			COUNT(e.id) FILTER (WHERE e.status = 'active') AS active,
			COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed,
			COUNT(e.id) FILTER (WHERE e.status = 'cancelled') AS cancelled,
			COUNT(e.id) FILTER (WHERE l.status = 'converted') AS converted,
			COALESCE(SUM((SELECT COUNT(*) FROM nurturing_tasks t WHERE t.enrollment_id = e.id AND t.status = 'sent')), 0) AS tasks_sent,
			COALESCE(SUM((SELECT COUNT(*) FROM nurturing_tasks t WHERE t.enrollment_id = e.id AND t.status = 'failed')), 0) AS tasks_failed
		FROM nurturing_sequences s
		LEFT JOIN nurturing_enrollments e ON e.sequence_id = s.id
		LEFT JOIN leads l ON l.id = e.lead_id
		WHERE s.active = true
		GROUP BY s.id, s.name
		ORDER BY s.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]SequenceReport, 0)
	for rows.Next() {
		var report SequenceReport
		if err := rows.Scan(&report.SequenceID, &report.SequenceName, &report.Enrolled,
			&report.Active, &report.Completed, &report.Cancelled, &report.Converted,
			&report.TasksSent, &report.TasksFailed); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
