package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NurturingRepository is the persistence surface the nurturing service
// depends on. The pgx implementation lives in this package; tests
// substitute fakes.
type NurturingRepository interface {
	UpsertSequence(ctx context.Context, seq Sequence) (uuid.UUID, error)
	GetSequenceByName(ctx context.Context, name string) (Sequence, error)
	ListSequences(ctx context.Context) ([]Sequence, error)
	Enroll(ctx context.Context, leadID, sequenceID uuid.UUID, now time.Time) (Enrollment, []Task, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error)
	MarkTaskSent(ctx context.Context, id uuid.UUID) error
	MarkTaskFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkTaskSkipped(ctx context.Context, id uuid.UUID, reason string) error
	CompleteEnrollmentIfDone(ctx context.Context, enrollmentID uuid.UUID) error
	CancelActiveEnrollments(ctx context.Context, leadID uuid.UUID, reason string) (int, error)
	ListEnrollments(ctx context.Context, leadID uuid.UUID) ([]Enrollment, error)
	InsertDispatchAudit(ctx context.Context, audit DispatchAudit) error
	SequenceReports(ctx context.Context) ([]SequenceReport, error)
}
