package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"closing_backend/internal/leads/domain"
	"closing_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lead does not exist.
var ErrNotFound = apperr.NotFound("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lead is the persisted lead record. Funding is the decoded discriminated
// union; FundingMethod mirrors the stored discriminator column.
type Lead struct {
	ID                 uuid.UUID
	AgencyID           uuid.UUID
	FirstName          string
	LastName           string
	Phone              string
	Email              *string
	Source             *string
	Score              int
	Status             string
	SalesStage         *domain.Stage
	AppointmentHonored bool
	FundingMethod      *domain.FundingMethod
	Funding            domain.FundingDetails
	RelanceCount       int
	CallAttempts       int
	OptedOut           bool
	AssignedAgentID    *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StageAudit is one immutable entry of the per-lead transition log.
type StageAudit struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Action     string
	ActorID    uuid.UUID
	PriorStage *domain.Stage
	NewStage   *domain.Stage
	Details    map[string]any
	CreatedAt  time.Time
}

type CreateLeadParams struct {
	AgencyID        uuid.UUID
	FirstName       string
	LastName        string
	Phone           string
	Email           *string
	Source          *string
	Score           int
	Status          string
	AssignedAgentID *uuid.UUID
}

const leadColumns = `id, agency_id, first_name, last_name, phone, email, source,
	score, status, sales_stage, appointment_honored, funding_method, funding_details,
	relance_count, call_attempts, opted_out, assigned_agent_id, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (agency_id, first_name, last_name, phone, email, source, score, status, assigned_agent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+leadColumns,
		params.AgencyID, params.FirstName, params.LastName, params.Phone, params.Email,
		params.Source, params.Score, params.Status, params.AssignedAgentID,
	)
	return scanLead(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return lead, err
}

// Mutate runs fn inside a transaction holding a row lock on the lead. The
// closure mutates the in-memory lead; the updated row and the optional audit
// entry are persisted atomically. Any error from fn rolls everything back,
// so a failed guard leaves the prior state untouched.
func (r *Repository) Mutate(ctx context.Context, id uuid.UUID, fn func(lead *Lead) (*StageAudit, error)) (Lead, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Lead{}, apperr.Wrap(apperr.KindInternal, "begin lead transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}

	audit, err := fn(&lead)
	if err != nil {
		return Lead{}, err
	}

	fundingJSON, err := domain.MarshalFundingDetails(lead.Funding)
	if err != nil {
		return Lead{}, apperr.Wrap(apperr.KindInternal, "encode funding details", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE leads
		SET score = $2, status = $3, sales_stage = $4, appointment_honored = $5,
			funding_method = $6, funding_details = $7, relance_count = $8,
			call_attempts = $9, opted_out = $10, assigned_agent_id = $11, updated_at = now()
		WHERE id = $1`,
		lead.ID, lead.Score, lead.Status, stageValue(lead.SalesStage), lead.AppointmentHonored,
		methodValue(lead.FundingMethod), fundingJSON, lead.RelanceCount,
		lead.CallAttempts, lead.OptedOut, lead.AssignedAgentID,
	)
	if err != nil {
		return Lead{}, err
	}

	if audit != nil {
		if err := insertAudit(ctx, tx, lead.ID, audit); err != nil {
			return Lead{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Lead{}, err
	}

	return lead, nil
}

func insertAudit(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, audit *StageAudit) error {
	detailsJSON, err := json.Marshal(audit.Details)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "encode audit details", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO lead_stage_audit (lead_id, action, actor_id, prior_stage, new_stage, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		leadID, audit.Action, audit.ActorID, stageValue(audit.PriorStage), stageValue(audit.NewStage), detailsJSON,
	)
	return err
}

// ListStageAudit returns the transition log of a lead, oldest first.
func (r *Repository) ListStageAudit(ctx context.Context, leadID uuid.UUID) ([]StageAudit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, action, actor_id, prior_stage, new_stage, details, created_at
		FROM lead_stage_audit
		WHERE lead_id = $1
		ORDER BY created_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]StageAudit, 0)
	for rows.Next() {
		var entry StageAudit
		var priorStage, newStage *string
		var detailsJSON []byte
		if err := rows.Scan(&entry.ID, &entry.LeadID, &entry.Action, &entry.ActorID,
			&priorStage, &newStage, &detailsJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.PriorStage = stageFromValue(priorStage)
		entry.NewStage = stageFromValue(newStage)
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &entry.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetOptedOut flips the nurturing suppression flag on the lead.
func (r *Repository) SetOptedOut(ctx context.Context, leadID uuid.UUID, optedOut bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE leads SET opted_out = $2, updated_at = now() WHERE id = $1`, leadID, optedOut)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var lead Lead
	var salesStage, fundingMethod *string
	var fundingJSON []byte

	err := row.Scan(
		&lead.ID, &lead.AgencyID, &lead.FirstName, &lead.LastName, &lead.Phone, &lead.Email, &lead.Source,
		&lead.Score, &lead.Status, &salesStage, &lead.AppointmentHonored, &fundingMethod, &fundingJSON,
		&lead.RelanceCount, &lead.CallAttempts, &lead.OptedOut, &lead.AssignedAgentID,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}

	lead.SalesStage = stageFromValue(salesStage)

	if fundingMethod != nil {
		method := domain.FundingMethod(*fundingMethod)
		lead.FundingMethod = &method
		details, err := domain.UnmarshalFundingDetails(method, fundingJSON)
		if err != nil {
			return Lead{}, err
		}
		lead.Funding = details
	}

	return lead, nil
}

func stageValue(stage *domain.Stage) *string {
	if stage == nil {
		return nil
	}
	value := string(*stage)
	return &value
}

func stageFromValue(value *string) *domain.Stage {
	if value == nil {
		return nil
	}
	stage := domain.Stage(*value)
	return &stage
}

func methodValue(method *domain.FundingMethod) *string {
	if method == nil {
		return nil
	}
	value := string(*method)
	return &value
}
