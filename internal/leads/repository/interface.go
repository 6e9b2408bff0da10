package repository

import (
	"context"

	"github.com/google/uuid"
)

// LeadsRepository is the persistence surface the leads services depend on.
// The pgx implementation lives in this package; tests substitute fakes.
type LeadsRepository interface {
	Create(ctx context.Context, params CreateLeadParams) (Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (Lead, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(lead *Lead) (*StageAudit, error)) (Lead, error)
	ListStageAudit(ctx context.Context, leadID uuid.UUID) ([]StageAudit, error)
	SetOptedOut(ctx context.Context, leadID uuid.UUID, optedOut bool) error
	ListActiveAgents(ctx context.Context, agencyID uuid.UUID) ([]Agent, error)
	AssignRoundRobin(ctx context.Context, leadID uuid.UUID, agencyID uuid.UUID) (*Agent, error)
	GetAgent(ctx context.Context, id uuid.UUID) (Agent, error)
}
