// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"closing_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when a new lead is ingested.
type LeadCreated struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	AgencyID        uuid.UUID  `json:"agencyId"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	Score           int        `json:"score"`
	Source          string     `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadStageChanged is published after every committed sales stage transition.
type LeadStageChanged struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	Action     string    `json:"action"`
	PriorStage string    `json:"priorStage"`
	NewStage   string    `json:"newStage"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (e LeadStageChanged) EventName() string { return "leads.stage.changed" }

// LeadAssigned is published when a lead is routed to an agent.
type LeadAssigned struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	AgentID  uuid.UUID `json:"agentId"`
}

func (e LeadAssigned) EventName() string { return "leads.assigned" }

// =============================================================================
// Nurturing Domain Events
// =============================================================================

// LeadOptedOut is published when a lead is suppressed from nurturing.
type LeadOptedOut struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadOptedOut) EventName() string { return "nurturing.lead.opted_out" }

// EnrollmentsCancelled is published after a bulk cancellation of a lead's
// active enrollments.
type EnrollmentsCancelled struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Cancelled int       `json:"cancelled"`
	Reason    string    `json:"reason"`
}

func (e EnrollmentsCancelled) EventName() string { return "nurturing.enrollments.cancelled" }
