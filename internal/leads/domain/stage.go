// Package domain provides core business rules for the leads bounded context:
// the sales stage machine, its transition table, and the funding branch types.
package domain

// Stage is the fine-grained sales stage of a qualified lead.
// A lead has no stage until it reaches the appointment step.
type Stage string

const (
	// Qualification stages
	StageNew               Stage = "new"
	StageAppointmentSet    Stage = "appointment_set"
	StageAppointmentMissed Stage = "appointment_missed"
	StageDecisionPending   Stage = "decision_pending"

	// Funding choice
	StageFundingChoice Stage = "funding_choice"

	// Personal-pay branch
	StageOfferIssued     Stage = "offer_issued"
	StageAwaitingPayment Stage = "awaiting_payment"

	// CPF branch
	StageCPFAccountCheck     Stage = "cpf_account_check"
	StageCPFIdentityCheck    Stage = "cpf_identity_check"
	StageCPFPlacementTest    Stage = "cpf_placement_test"
	StageCPFPendingValidation Stage = "cpf_pending_validation"

	// OPCO branch
	StageOPCOAgreementSent    Stage = "opco_agreement_sent"
	StageOPCOFileSubmitted    Stage = "opco_file_submitted"
	StageOPCOPendingValidation Stage = "opco_pending_validation"

	// Terminal stages
	StageEnrolled          Stage = "enrolled"
	StageLostNotInterested Stage = "lost_not_interested"
	StageLostUnreachable   Stage = "lost_unreachable"
)

// Event identifies a stage machine trigger. Guards (required reason, payment
// threshold, recall count) are enforced by the service layer before firing.
type Event string

const (
	EventAppointmentSet    Event = "appointment_set"
	EventAppointmentMissed Event = "appointment_missed"

	EventDecisionContinue Event = "decision_continue"
	EventDecisionDefer    Event = "decision_defer"
	EventDecisionAbandon  Event = "decision_abandon"

	EventChoosePersonal Event = "choose_personal"
	EventChooseCPF      Event = "choose_cpf"
	EventChooseOPCO     Event = "choose_opco"

	EventOfferValidated      Event = "offer_validated"
	EventPaymentThresholdMet Event = "payment_threshold_met"

	EventCPFAccountVerified Event = "cpf_account_verified"
	EventCPFIdentityChecked Event = "cpf_identity_checked"
	EventCPFTestValidated   Event = "cpf_test_validated"
	EventCPFFileValidated   Event = "cpf_file_validated"

	EventOPCOAgreementSigned Event = "opco_agreement_signed"
	EventOPCOFileSent        Event = "opco_file_sent"
	EventOPCOFileValidated   Event = "opco_file_validated"

	EventRecallExhausted Event = "recall_exhausted"
)

// transition is one row of the declared adjacency graph.
type transition struct {
	from  Stage
	event Event
	to    Stage
}

// transitions is the complete adjacency graph of the stage machine. Any
// (stage, event) pair not listed here is an illegal transition.
var transitions = []transition{
	// Qualification. A missed appointment can be re-planned, and both the
	// honored and missed paths can reach a qualification decision.
	{StageNew, EventAppointmentSet, StageAppointmentSet},
	{StageAppointmentSet, EventAppointmentMissed, StageAppointmentMissed},
	{StageAppointmentMissed, EventAppointmentSet, StageAppointmentSet},
	{StageAppointmentSet, EventDecisionContinue, StageFundingChoice},
	{StageAppointmentSet, EventDecisionDefer, StageDecisionPending},
	{StageAppointmentSet, EventDecisionAbandon, StageLostNotInterested},
	{StageAppointmentMissed, EventDecisionContinue, StageFundingChoice},
	{StageAppointmentMissed, EventDecisionDefer, StageDecisionPending},
	{StageAppointmentMissed, EventDecisionAbandon, StageLostNotInterested},
	{StageDecisionPending, EventDecisionContinue, StageFundingChoice},
	{StageDecisionPending, EventDecisionAbandon, StageLostNotInterested},

	// Funding choice routes to the branch entry stage.
	{StageFundingChoice, EventChoosePersonal, StageOfferIssued},
	{StageFundingChoice, EventChooseCPF, StageCPFAccountCheck},
	{StageFundingChoice, EventChooseOPCO, StageOPCOAgreementSent},

	// Personal-pay branch.
	{StageOfferIssued, EventOfferValidated, StageAwaitingPayment},
	{StageAwaitingPayment, EventPaymentThresholdMet, StageEnrolled},

	// CPF branch, linear.
	{StageCPFAccountCheck, EventCPFAccountVerified, StageCPFIdentityCheck},
	{StageCPFIdentityCheck, EventCPFIdentityChecked, StageCPFPlacementTest},
	{StageCPFPlacementTest, EventCPFTestValidated, StageCPFPendingValidation},
	{StageCPFPendingValidation, EventCPFFileValidated, StageEnrolled},

	// OPCO branch, linear.
	{StageOPCOAgreementSent, EventOPCOAgreementSigned, StageOPCOFileSubmitted},
	{StageOPCOFileSubmitted, EventOPCOFileSent, StageOPCOPendingValidation},
	{StageOPCOPendingValidation, EventOPCOFileValidated, StageEnrolled},

	// Exhausted recall attempts lose the lead from any pre-funding stage.
	{StageNew, EventRecallExhausted, StageLostUnreachable},
	{StageAppointmentSet, EventRecallExhausted, StageLostUnreachable},
	{StageAppointmentMissed, EventRecallExhausted, StageLostUnreachable},
	{StageDecisionPending, EventRecallExhausted, StageLostUnreachable},
	{StageFundingChoice, EventRecallExhausted, StageLostUnreachable},
}

type stageEvent struct {
	stage Stage
	event Event
}

var transitionIndex = buildTransitionIndex()

func buildTransitionIndex() map[stageEvent]Stage {
	index := make(map[stageEvent]Stage, len(transitions))
	for _, t := range transitions {
		index[stageEvent{t.from, t.event}] = t.to
	}
	return index
}

// Next returns the target stage of firing event from the given stage,
// or false when the transition is not in the adjacency graph.
func Next(from Stage, event Event) (Stage, bool) {
	to, ok := transitionIndex[stageEvent{from, event}]
	return to, ok
}

// terminalStages are stages where the closing workflow is complete. Further
// non-administrative transitions are rejected.
var terminalStages = map[Stage]bool{
	StageEnrolled:          true,
	StageLostNotInterested: true,
	StageLostUnreachable:   true,
}

// IsTerminal returns true if the stage is terminal.
func IsTerminal(stage Stage) bool {
	return terminalStages[stage]
}

var knownStages = buildKnownStages()

func buildKnownStages() map[Stage]struct{} {
	known := map[Stage]struct{}{
		StageEnrolled:          {},
		StageLostNotInterested: {},
		StageLostUnreachable:   {},
	}
	for _, t := range transitions {
		known[t.from] = struct{}{}
		known[t.to] = struct{}{}
	}
	return known
}

// IsKnownStage reports whether the stage is part of the machine.
func IsKnownStage(stage Stage) bool {
	_, ok := knownStages[stage]
	return ok
}

// KnownStages returns every stage of the machine, for exhaustive tests.
func KnownStages() []Stage {
	stages := make([]Stage, 0, len(knownStages))
	for stage := range knownStages {
		stages = append(stages, stage)
	}
	return stages
}

// EventsFrom returns the events that may fire from the given stage.
func EventsFrom(stage Stage) []Event {
	var out []Event
	for _, t := range transitions {
		if t.from == stage {
			out = append(out, t.event)
		}
	}
	return out
}

// BranchOf returns the funding branch a stage belongs to, or empty when the
// stage is not branch-specific. StageEnrolled is shared by all branches and
// reports no branch.
func BranchOf(stage Stage) FundingMethod {
	switch stage {
	case StageOfferIssued, StageAwaitingPayment:
		return FundingPersonal
	case StageCPFAccountCheck, StageCPFIdentityCheck, StageCPFPlacementTest, StageCPFPendingValidation:
		return FundingCPF
	case StageOPCOAgreementSent, StageOPCOFileSubmitted, StageOPCOPendingValidation:
		return FundingOPCO
	default:
		return ""
	}
}
