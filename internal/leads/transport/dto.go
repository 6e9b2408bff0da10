// Package transport defines request/response DTOs for the leads module.
package transport

import (
	"time"

	"closing_backend/internal/leads/domain"
	"closing_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// CreateLeadRequest is the ingestion payload.
type CreateLeadRequest struct {
	AgencyID  uuid.UUID `json:"agencyId" validate:"required"`
	FirstName string    `json:"firstName" validate:"required"`
	LastName  string    `json:"lastName" validate:"required"`
	Phone     string    `json:"phone" validate:"required"`
	Email     *string   `json:"email,omitempty" validate:"omitempty,email"`
	Source    *string   `json:"source,omitempty"`
}

// QualifyAppointmentRequest records whether the appointment was honored.
// Reason is required when it was not.
type QualifyAppointmentRequest struct {
	Honored bool   `json:"honored"`
	Reason  string `json:"reason,omitempty"`
}

// DecisionRequest carries the qualification decision.
type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=CONTINUE DEFER ABANDON"`
}

// ChooseFinancingRequest selects the funding branch.
type ChooseFinancingRequest struct {
	Method string `json:"method" validate:"required,oneof=personal cpf opco"`
}

// ValidateOfferRequest records the personal-pay offer terms.
type ValidateOfferRequest struct {
	PriceCents       int64 `json:"priceCents" validate:"required,gt=0"`
	ThresholdPercent int64 `json:"thresholdPercent" validate:"required,gte=1,lte=100"`
}

// RecordPaymentRequest records one partial payment.
type RecordPaymentRequest struct {
	AmountCents int64 `json:"amountCents" validate:"required,gt=0"`
}

// AccountStatusRequest records the CPF account verification outcome.
type AccountStatusRequest struct {
	Verified bool `json:"verified"`
}

// PlacementTestRequest records the CPF placement test result.
type PlacementTestRequest struct {
	Score int `json:"score" validate:"gte=0,lte=100"`
}

// OPCOFileRequest submits the employer funding file reference.
type OPCOFileRequest struct {
	FileReference string `json:"fileReference" validate:"required"`
}

// LeadResponse is the API representation of a lead.
type LeadResponse struct {
	ID                 uuid.UUID  `json:"id"`
	AgencyID           uuid.UUID  `json:"agencyId"`
	FirstName          string     `json:"firstName"`
	LastName           string     `json:"lastName"`
	Phone              string     `json:"phone"`
	Email              *string    `json:"email,omitempty"`
	Source             *string    `json:"source,omitempty"`
	Score              int        `json:"score"`
	Status             string     `json:"status"`
	SalesStage         *string    `json:"salesStage,omitempty"`
	AppointmentHonored bool       `json:"appointmentHonored"`
	FundingMethod      *string    `json:"fundingMethod,omitempty"`
	Funding            any        `json:"funding,omitempty"`
	RelanceCount       int        `json:"relanceCount"`
	CallAttempts       int        `json:"callAttempts"`
	OptedOut           bool       `json:"optedOut"`
	AssignedAgentID    *uuid.UUID `json:"assignedAgentId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// PaymentResponse is returned by the payment operation.
type PaymentResponse struct {
	Lead           LeadResponse `json:"lead"`
	Enrolled       bool         `json:"enrolled"`
	RemainingCents int64        `json:"remainingCents"`
}

// RecallResponse is returned by the recall operation.
type RecallResponse struct {
	Lead         LeadResponse `json:"lead"`
	RelanceCount int          `json:"relanceCount"`
	Lost         bool         `json:"lost"`
}

// AuditEntryResponse is one stage transition log entry.
type AuditEntryResponse struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	ActorID    uuid.UUID      `json:"actorId"`
	PriorStage *string        `json:"priorStage,omitempty"`
	NewStage   *string        `json:"newStage,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ToLeadResponse maps a repository lead to its API representation.
func ToLeadResponse(lead repository.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                 lead.ID,
		AgencyID:           lead.AgencyID,
		FirstName:          lead.FirstName,
		LastName:           lead.LastName,
		Phone:              lead.Phone,
		Email:              lead.Email,
		Source:             lead.Source,
		Score:              lead.Score,
		Status:             lead.Status,
		AppointmentHonored: lead.AppointmentHonored,
		RelanceCount:       lead.RelanceCount,
		CallAttempts:       lead.CallAttempts,
		OptedOut:           lead.OptedOut,
		AssignedAgentID:    lead.AssignedAgentID,
		CreatedAt:          lead.CreatedAt,
		UpdatedAt:          lead.UpdatedAt,
	}
	if lead.SalesStage != nil {
		stage := string(*lead.SalesStage)
		resp.SalesStage = &stage
	}
	if lead.FundingMethod != nil {
		method := string(*lead.FundingMethod)
		resp.FundingMethod = &method
		resp.Funding = lead.Funding
	}
	return resp
}

// ToAuditResponse maps a stage audit entry to its API representation.
func ToAuditResponse(entry repository.StageAudit) AuditEntryResponse {
	resp := AuditEntryResponse{
		ID:        entry.ID,
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		Details:   entry.Details,
		CreatedAt: entry.CreatedAt,
	}
	if entry.PriorStage != nil {
		stage := string(*entry.PriorStage)
		resp.PriorStage = &stage
	}
	if entry.NewStage != nil {
		stage := string(*entry.NewStage)
		resp.NewStage = &stage
	}
	return resp
}

// ParseFundingMethod converts the wire value into the domain type.
func ParseFundingMethod(raw string) (domain.FundingMethod, bool) {
	method := domain.FundingMethod(raw)
	return method, domain.IsValidFundingMethod(method)
}
