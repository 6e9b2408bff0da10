// Package service implements the sales closing workflow: lead ingestion,
// the guarded stage machine operations, and re-scoring.
package service

import (
	"context"
	"fmt"
	"strings"

	"closing_backend/internal/events"
	"closing_backend/internal/leads/assignment"
	"closing_backend/internal/leads/domain"
	"closing_backend/internal/leads/repository"
	"closing_backend/internal/leads/scoring"
	"closing_backend/platform/apperr"
	"closing_backend/platform/logger"
	"closing_backend/platform/phone"

	"github.com/google/uuid"
)

// maxRecallAttempts is the number of unanswered relances after which a
// pre-funding lead is considered unreachable.
const maxRecallAttempts = 3

type Service struct {
	store    repository.LeadsRepository
	assigner *assignment.Service
	bus      events.Bus
	log      *logger.Logger
}

func NewService(store repository.LeadsRepository, assigner *assignment.Service, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, assigner: assigner, bus: bus, log: log}
}

// CreateLeadInput carries a new lead from any acquisition channel.
type CreateLeadInput struct {
	AgencyID  uuid.UUID
	FirstName string
	LastName  string
	Phone     string
	Email     *string
	Source    *string
}

// CreateLead ingests a lead: normalizes the phone number, computes the
// initial score, and routes high-score leads to an agent immediately.
func (s *Service) CreateLead(ctx context.Context, input CreateLeadInput) (repository.Lead, error) {
	normalized := phone.NormalizeE164(input.Phone)
	if normalized == "" {
		return repository.Lead{}, apperr.Validation("phone number is required")
	}

	prospect := repository.Lead{
		AgencyID:  input.AgencyID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     normalized,
		Email:     input.Email,
		Source:    input.Source,
	}
	score := scoring.CalculateScore(prospect)

	lead, err := s.store.Create(ctx, repository.CreateLeadParams{
		AgencyID:  input.AgencyID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     normalized,
		Email:     input.Email,
		Source:    input.Source,
		Score:     score,
		Status:    domain.StatusNew,
	})
	if err != nil {
		return repository.Lead{}, err
	}

	if score >= scoring.AutoAssignThreshold && s.assigner != nil {
		agent, err := s.assigner.AutoAssign(ctx, lead.ID, lead.AgencyID)
		if err != nil {
			if s.log != nil {
				s.log.Warn("auto-assignment failed", "leadId", lead.ID.String(), "error", err.Error())
			}
		} else if agent != nil {
			lead.AssignedAgentID = &agent.ID
		}
	}

	if s.bus != nil {
		source := ""
		if lead.Source != nil {
			source = *lead.Source
		}
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent:       events.NewBaseEvent(),
			LeadID:          lead.ID,
			AgencyID:        lead.AgencyID,
			AssignedAgentID: lead.AssignedAgentID,
			Score:           lead.Score,
			Source:          source,
		})
	}

	return lead, nil
}

func (s *Service) GetLead(ctx context.Context, id uuid.UUID) (repository.Lead, error) {
	return s.store.GetByID(ctx, id)
}

// ListAudit returns the complete transition log of a lead, oldest first.
func (s *Service) ListAudit(ctx context.Context, leadID uuid.UUID) ([]repository.StageAudit, error) {
	if _, err := s.store.GetByID(ctx, leadID); err != nil {
		return nil, err
	}
	return s.store.ListStageAudit(ctx, leadID)
}

// Rescore recomputes the lead's score from its current attributes.
func (s *Service) Rescore(ctx context.Context, leadID uuid.UUID) (repository.Lead, error) {
	return s.store.Mutate(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		lead.Score = scoring.CalculateScore(*lead)
		return nil, nil
	})
}

// ScheduleAppointment records that an appointment was booked for the lead,
// either the first one or a re-plan after a miss.
func (s *Service) ScheduleAppointment(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		return fire(lead, domain.EventAppointmentSet, "appointment_scheduled", actorID, nil)
	})
}

// QualifyAppointment records the outcome of a booked appointment. A missed
// appointment requires a reason and moves the lead to the missed stage. An
// honored one only records the shown-up flag; the stage does not move until
// the qualification decision follows.
func (s *Service) QualifyAppointment(ctx context.Context, leadID, actorID uuid.UUID, honored bool, reason string) (repository.Lead, error) {
	if !honored && strings.TrimSpace(reason) == "" {
		return repository.Lead{}, apperr.Validation("a reason is required when the appointment was not honored")
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		if honored {
			if stageOf(lead) != domain.StageAppointmentSet {
				return nil, apperr.Conflict(fmt.Sprintf("no appointment to qualify in stage %s", stageOf(lead)))
			}
			lead.AppointmentHonored = true
			return recordOnly(lead, "appointment_qualified", actorID,
				map[string]any{"honored": true}), nil
		}
		return fire(lead, domain.EventAppointmentMissed, "appointment_qualified", actorID,
			map[string]any{"honored": false, "reason": reason})
	})
}

// Decision values accepted by HandleQualificationDecision.
const (
	DecisionContinue = "CONTINUE"
	DecisionDefer    = "DEFER"
	DecisionAbandon  = "ABANDON"
)

// HandleQualificationDecision records whether the lead wants to continue
// toward financing, think it over, or stop.
func (s *Service) HandleQualificationDecision(ctx context.Context, leadID, actorID uuid.UUID, decision string) (repository.Lead, error) {
	var event domain.Event
	switch decision {
	case DecisionContinue:
		event = domain.EventDecisionContinue
	case DecisionDefer:
		event = domain.EventDecisionDefer
	case DecisionAbandon:
		event = domain.EventDecisionAbandon
	default:
		return repository.Lead{}, apperr.Validation(fmt.Sprintf("unknown decision %q", decision))
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		return fire(lead, event, "qualification_decision", actorID,
			map[string]any{"decision": decision})
	})
}

// ChooseFinancingMethod selects the funding branch. The choice is permanent:
// re-choosing is rejected so branch-specific progress is never silently lost.
func (s *Service) ChooseFinancingMethod(ctx context.Context, leadID, actorID uuid.UUID, method domain.FundingMethod) (repository.Lead, error) {
	if !domain.IsValidFundingMethod(method) {
		return repository.Lead{}, apperr.Validation(fmt.Sprintf("unknown financing method %q", method))
	}

	var event domain.Event
	switch method {
	case domain.FundingPersonal:
		event = domain.EventChoosePersonal
	case domain.FundingCPF:
		event = domain.EventChooseCPF
	case domain.FundingOPCO:
		event = domain.EventChooseOPCO
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		if lead.FundingMethod != nil {
			return nil, apperr.Conflict(fmt.Sprintf("financing method already chosen: %s", *lead.FundingMethod))
		}

		audit, err := fire(lead, event, "financing_chosen", actorID,
			map[string]any{"method": string(method)})
		if err != nil {
			return nil, err
		}

		details, err := domain.NewFundingDetails(method)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "initialize funding details", err)
		}
		lead.FundingMethod = &method
		lead.Funding = details
		return audit, nil
	})
}

// ValidatePersonalOffer records the agreed price and the payment threshold
// at which the lead enrolls.
func (s *Service) ValidatePersonalOffer(ctx context.Context, leadID, actorID uuid.UUID, priceCents, thresholdPercent int64) (repository.Lead, error) {
	if priceCents <= 0 {
		return repository.Lead{}, apperr.Validation("price must be positive")
	}
	if thresholdPercent < 1 || thresholdPercent > 100 {
		return repository.Lead{}, apperr.Validation("threshold percent must be between 1 and 100")
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := personalFunding(lead)
		if err != nil {
			return nil, err
		}

		audit, err := fire(lead, domain.EventOfferValidated, "offer_validated", actorID,
			map[string]any{"priceCents": priceCents, "thresholdPercent": thresholdPercent})
		if err != nil {
			return nil, err
		}

		funding.PriceCents = priceCents
		funding.ThresholdPercent = thresholdPercent
		return audit, nil
	})
}

// PaymentResult reports the outcome of one recorded payment.
type PaymentResult struct {
	Lead           repository.Lead
	Enrolled       bool
	RemainingCents int64
}

// RecordPersonalPayment accumulates a partial payment. When the paid total
// reaches the offer threshold the lead enrolls and the welcome kit is flagged
// for dispatch. Below the threshold only the running total moves.
func (s *Service) RecordPersonalPayment(ctx context.Context, leadID, actorID uuid.UUID, amountCents int64) (PaymentResult, error) {
	if amountCents <= 0 {
		return PaymentResult{}, apperr.Validation("payment amount must be positive")
	}

	var result PaymentResult
	lead, err := s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := personalFunding(lead)
		if err != nil {
			return nil, err
		}
		if stageOf(lead) != domain.StageAwaitingPayment {
			return nil, apperr.Conflict(fmt.Sprintf("cannot record a payment in stage %s", stageOf(lead)))
		}

		funding.PaidCents += amountCents
		details := map[string]any{
			"amountCents": amountCents,
			"paidCents":   funding.PaidCents,
		}

		if funding.PaidCents >= funding.ThresholdCents() {
			audit, err := fire(lead, domain.EventPaymentThresholdMet, "payment_recorded", actorID, details)
			if err != nil {
				return nil, err
			}
			funding.KitSent = true
			result.Enrolled = true
			result.RemainingCents = 0
			return audit, nil
		}

		result.RemainingCents = funding.RemainingCents()
		return recordOnly(lead, "payment_recorded", actorID, details), nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	result.Lead = lead
	return result, nil
}

// SetFundingAccountStatus records the CPF account verification outcome.
// A failed verification only records the attempt; the lead stays in place
// until the account is confirmed.
func (s *Service) SetFundingAccountStatus(ctx context.Context, leadID, actorID uuid.UUID, verified bool) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := cpfFunding(lead)
		if err != nil {
			return nil, err
		}

		details := map[string]any{"verified": verified}
		if !verified {
			if stageOf(lead) != domain.StageCPFAccountCheck {
				return nil, apperr.Conflict(fmt.Sprintf("cannot check the account in stage %s", stageOf(lead)))
			}
			return recordOnly(lead, "cpf_account_checked", actorID, details), nil
		}

		audit, err := fire(lead, domain.EventCPFAccountVerified, "cpf_account_checked", actorID, details)
		if err != nil {
			return nil, err
		}
		funding.AccountVerified = true
		return audit, nil
	})
}

// ValidateIdentity records the CPF identity check.
func (s *Service) ValidateIdentity(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := cpfFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventCPFIdentityChecked, "cpf_identity_validated", actorID, nil)
		if err != nil {
			return nil, err
		}
		funding.IdentityChecked = true
		return audit, nil
	})
}

// ValidatePlacementTest records the placement test result.
func (s *Service) ValidatePlacementTest(ctx context.Context, leadID, actorID uuid.UUID, score int) (repository.Lead, error) {
	if score < 0 || score > 100 {
		return repository.Lead{}, apperr.Validation("placement test score must be between 0 and 100")
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := cpfFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventCPFTestValidated, "cpf_test_validated", actorID,
			map[string]any{"score": score})
		if err != nil {
			return nil, err
		}
		funding.PlacementTestScore = &score
		return audit, nil
	})
}

// ValidateExternalFile records the final CPF file validation and enrolls
// the lead.
func (s *Service) ValidateExternalFile(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := cpfFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventCPFFileValidated, "cpf_file_validated", actorID, nil)
		if err != nil {
			return nil, err
		}
		funding.FileValidated = true
		return audit, nil
	})
}

// SignOPCOAgreement records the signed employer funding agreement.
func (s *Service) SignOPCOAgreement(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := opcoFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventOPCOAgreementSigned, "opco_agreement_signed", actorID, nil)
		if err != nil {
			return nil, err
		}
		funding.AgreementSigned = true
		return audit, nil
	})
}

// SendOPCOFile records the funding file submitted to the employer's OPCO.
func (s *Service) SendOPCOFile(ctx context.Context, leadID, actorID uuid.UUID, fileReference string) (repository.Lead, error) {
	if strings.TrimSpace(fileReference) == "" {
		return repository.Lead{}, apperr.Validation("file reference is required")
	}

	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := opcoFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventOPCOFileSent, "opco_file_sent", actorID,
			map[string]any{"fileReference": fileReference})
		if err != nil {
			return nil, err
		}
		funding.FileReference = fileReference
		return audit, nil
	})
}

// ValidateOPCOFile records the OPCO's funding approval and enrolls the lead.
func (s *Service) ValidateOPCOFile(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		funding, err := opcoFunding(lead)
		if err != nil {
			return nil, err
		}
		audit, err := fire(lead, domain.EventOPCOFileValidated, "opco_file_validated", actorID, nil)
		if err != nil {
			return nil, err
		}
		funding.FileValidated = true
		return audit, nil
	})
}

// RecallResult reports the outcome of one relance attempt.
type RecallResult struct {
	Lead         repository.Lead
	RelanceCount int
	Lost         bool
}

// ProcessRecallAttempt records one unanswered relance. When the attempt count
// reaches the limit on a pre-funding stage, the lead is lost as unreachable.
// Leads already inside a funding branch keep counting without being lost.
func (s *Service) ProcessRecallAttempt(ctx context.Context, leadID, actorID uuid.UUID) (RecallResult, error) {
	var result RecallResult
	lead, err := s.mutateWithEvent(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		if domain.IsTerminal(stageOf(lead)) {
			return nil, apperr.Conflict(fmt.Sprintf("lead is in terminal stage %s", stageOf(lead)))
		}

		lead.RelanceCount++
		result.RelanceCount = lead.RelanceCount
		details := map[string]any{"relanceCount": lead.RelanceCount}

		if lead.RelanceCount >= maxRecallAttempts {
			if _, ok := domain.Next(stageOf(lead), domain.EventRecallExhausted); ok {
				audit, err := fire(lead, domain.EventRecallExhausted, "recall_attempt", actorID, details)
				if err != nil {
					return nil, err
				}
				result.Lost = true
				return audit, nil
			}
		}
		return recordOnly(lead, "recall_attempt", actorID, details), nil
	})
	if err != nil {
		return RecallResult{}, err
	}

	result.Lead = lead
	return result, nil
}

// RecordCallAttempt increments the outbound call counter without touching
// the stage machine.
func (s *Service) RecordCallAttempt(ctx context.Context, leadID, actorID uuid.UUID) (repository.Lead, error) {
	return s.store.Mutate(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		lead.CallAttempts++
		return recordOnly(lead, "call_attempt", actorID,
			map[string]any{"callAttempts": lead.CallAttempts}), nil
	})
}

// mutateWithEvent runs the mutation and publishes a stage-changed event when
// the committed audit entry records an actual transition.
func (s *Service) mutateWithEvent(ctx context.Context, leadID uuid.UUID, fn func(lead *repository.Lead) (*repository.StageAudit, error)) (repository.Lead, error) {
	var audit *repository.StageAudit
	lead, err := s.store.Mutate(ctx, leadID, func(lead *repository.Lead) (*repository.StageAudit, error) {
		entry, err := fn(lead)
		audit = entry
		return entry, err
	})
	if err != nil {
		return repository.Lead{}, err
	}

	if s.bus != nil && audit != nil && audit.NewStage != nil && audit.PriorStage != nil && *audit.NewStage != *audit.PriorStage {
		s.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     lead.ID,
			Action:     audit.Action,
			PriorStage: string(*audit.PriorStage),
			NewStage:   string(*audit.NewStage),
			ActorID:    audit.ActorID,
		})
	}

	return lead, nil
}

// stageOf returns the effective stage of a lead. A lead without a recorded
// stage has not left the entry stage yet.
func stageOf(lead *repository.Lead) domain.Stage {
	if lead.SalesStage == nil {
		return domain.StageNew
	}
	return *lead.SalesStage
}

// fire applies one stage machine event to the lead. Terminal stages reject
// every event; a (stage, event) pair outside the adjacency graph is a
// conflict. On success the lead's stage and coarse status are updated and
// the matching audit entry is returned.
func fire(lead *repository.Lead, event domain.Event, action string, actorID uuid.UUID, details map[string]any) (*repository.StageAudit, error) {
	current := stageOf(lead)
	if domain.IsTerminal(current) {
		return nil, apperr.Conflict(fmt.Sprintf("lead is in terminal stage %s", current))
	}

	next, ok := domain.Next(current, event)
	if !ok {
		return nil, apperr.Conflict(fmt.Sprintf("cannot %s from stage %s", action, current))
	}

	prior := current
	lead.SalesStage = &next
	if status := domain.StatusForStage(next); status != "" {
		lead.Status = status
	} else if lead.Status == domain.StatusNew {
		lead.Status = domain.StatusWorking
	}

	return &repository.StageAudit{
		Action:     action,
		ActorID:    actorID,
		PriorStage: &prior,
		NewStage:   &next,
		Details:    details,
	}, nil
}

// recordOnly builds an audit entry for an operation that does not move the
// stage machine.
func recordOnly(lead *repository.Lead, action string, actorID uuid.UUID, details map[string]any) *repository.StageAudit {
	return &repository.StageAudit{
		Action:     action,
		ActorID:    actorID,
		PriorStage: lead.SalesStage,
		NewStage:   lead.SalesStage,
		Details:    details,
	}
}

func personalFunding(lead *repository.Lead) (*domain.PersonalFunding, error) {
	funding, ok := lead.Funding.(*domain.PersonalFunding)
	if !ok {
		return nil, apperr.Conflict("lead is not on the personal funding branch")
	}
	return funding, nil
}

func cpfFunding(lead *repository.Lead) (*domain.CPFFunding, error) {
	funding, ok := lead.Funding.(*domain.CPFFunding)
	if !ok {
		return nil, apperr.Conflict("lead is not on the CPF funding branch")
	}
	return funding, nil
}

func opcoFunding(lead *repository.Lead) (*domain.OPCOFunding, error) {
	funding, ok := lead.Funding.(*domain.OPCOFunding)
	if !ok {
		return nil, apperr.Conflict("lead is not on the OPCO funding branch")
	}
	return funding, nil
}
