// Package assignment routes leads to agents.
package assignment

import (
	"context"

	"closing_backend/internal/events"
	"closing_backend/internal/leads/repository"
	"closing_backend/platform/logger"

	"github.com/google/uuid"
)

// Service assigns leads to agents using a persisted round-robin rotation,
// so fairness survives process restarts.
type Service struct {
	repo repository.LeadsRepository
	bus  events.Bus
	log  *logger.Logger
}

// New creates a new assignment service.
func New(repo repository.LeadsRepository, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, bus: bus, log: log}
}

// AutoAssign routes the lead to the next active agent of its agency. When
// the agency has no active agents the lead is left unassigned and no error
// is returned.
func (s *Service) AutoAssign(ctx context.Context, leadID uuid.UUID, agencyID uuid.UUID) (*repository.Agent, error) {
	agent, err := s.repo.AssignRoundRobin(ctx, leadID, agencyID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		if s.log != nil {
			s.log.Debug("no eligible agents for assignment", "agencyId", agencyID)
		}
		return nil, nil
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
			AgencyID:  agencyID,
			AgentID:   agent.ID,
		})
	}

	return agent, nil
}
