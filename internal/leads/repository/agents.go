package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Agent is a sales agent able to receive lead assignments.
type Agent struct {
	ID       uuid.UUID
	AgencyID uuid.UUID
	Name     string
	IsActive bool
}

// ListActiveAgents returns the active agents of an agency in a stable order.
// The order matters: the rotation index is relative to it.
func (r *Repository) ListActiveAgents(ctx context.Context, agencyID uuid.UUID) ([]Agent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agency_id, name, is_active
		FROM agents
		WHERE agency_id = $1 AND is_active = true
		ORDER BY created_at ASC, id ASC`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := make([]Agent, 0)
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.ID, &agent.AgencyID, &agent.Name, &agent.IsActive); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// AssignRoundRobin picks the next agent of the agency using the persisted
// rotation cursor, assigns the lead to them, and advances the cursor. The
// whole selection runs in one transaction with the cursor row locked, so
// concurrent assignments still rotate fairly. Returns nil when the agency
// has no active agents; the lead is left unassigned.
func (r *Repository) AssignRoundRobin(ctx context.Context, leadID uuid.UUID, agencyID uuid.UUID) (*Agent, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Ensure the cursor row exists, then lock it for the rotation step.
	_, err = tx.Exec(ctx, `
		INSERT INTO agency_rotation (agency_id, last_index)
		VALUES ($1, -1)
		ON CONFLICT (agency_id) DO NOTHING`, agencyID)
	if err != nil {
		return nil, err
	}

	var lastIndex int
	err = tx.QueryRow(ctx, `
		SELECT last_index FROM agency_rotation WHERE agency_id = $1 FOR UPDATE`, agencyID,
	).Scan(&lastIndex)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, agency_id, name, is_active
		FROM agents
		WHERE agency_id = $1 AND is_active = true
		ORDER BY created_at ASC, id ASC`, agencyID)
	if err != nil {
		return nil, err
	}

	agents := make([]Agent, 0)
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(&agent.ID, &agent.AgencyID, &agent.Name, &agent.IsActive); err != nil {
			rows.Close()
			return nil, err
		}
		agents = append(agents, agent)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if len(agents) == 0 {
		return nil, nil
	}

	nextIndex := (lastIndex + 1) % len(agents)
	selected := agents[nextIndex]

	tag, err := tx.Exec(ctx, `
		UPDATE leads SET assigned_agent_id = $2, updated_at = now() WHERE id = $1`,
		leadID, selected.ID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE agency_rotation SET last_index = $2 WHERE agency_id = $1`,
		agencyID, nextIndex)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &selected, nil
}

// GetAgent returns a single agent by ID.
func (r *Repository) GetAgent(ctx context.Context, id uuid.UUID) (Agent, error) {
	var agent Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, agency_id, name, is_active FROM agents WHERE id = $1`, id,
	).Scan(&agent.ID, &agent.AgencyID, &agent.Name, &agent.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return agent, err
}
