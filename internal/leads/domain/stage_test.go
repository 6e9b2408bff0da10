package domain

import "testing"

func TestNextKnownTransitions(t *testing.T) {
	tests := []struct {
		from  Stage
		event Event
		want  Stage
	}{
		{StageNew, EventAppointmentSet, StageAppointmentSet},
		{StageAppointmentMissed, EventAppointmentSet, StageAppointmentSet},
		{StageAppointmentSet, EventDecisionContinue, StageFundingChoice},
		{StageDecisionPending, EventDecisionContinue, StageFundingChoice},
		{StageFundingChoice, EventChoosePersonal, StageOfferIssued},
		{StageFundingChoice, EventChooseCPF, StageCPFAccountCheck},
		{StageFundingChoice, EventChooseOPCO, StageOPCOAgreementSent},
		{StageAwaitingPayment, EventPaymentThresholdMet, StageEnrolled},
		{StageCPFPendingValidation, EventCPFFileValidated, StageEnrolled},
		{StageOPCOPendingValidation, EventOPCOFileValidated, StageEnrolled},
		{StageFundingChoice, EventRecallExhausted, StageLostUnreachable},
	}

	for _, tt := range tests {
		got, ok := Next(tt.from, tt.event)
		if !ok {
			t.Errorf("Next(%s, %s): expected transition, got none", tt.from, tt.event)
			continue
		}
		if got != tt.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.event, got, tt.want)
		}
	}
}

func TestNextRejectsUnknownPairs(t *testing.T) {
	tests := []struct {
		from  Stage
		event Event
	}{
		// No skipping ahead.
		{StageNew, EventChoosePersonal},
		{StageNew, EventAppointmentMissed},
		{StageAppointmentSet, EventPaymentThresholdMet},
		{StageOfferIssued, EventPaymentThresholdMet},
		// No crossing branches.
		{StageCPFAccountCheck, EventOPCOAgreementSigned},
		{StageOPCOAgreementSent, EventCPFAccountVerified},
		{StageAwaitingPayment, EventCPFFileValidated},
		// No recall loss once a funding branch is entered.
		{StageOfferIssued, EventRecallExhausted},
		{StageCPFAccountCheck, EventRecallExhausted},
		{StageOPCOFileSubmitted, EventRecallExhausted},
	}

	for _, tt := range tests {
		if to, ok := Next(tt.from, tt.event); ok {
			t.Errorf("Next(%s, %s): expected no transition, got %s", tt.from, tt.event, to)
		}
	}
}

func TestTerminalStagesHaveNoOutgoingEdges(t *testing.T) {
	for _, stage := range KnownStages() {
		events := EventsFrom(stage)
		if IsTerminal(stage) && len(events) > 0 {
			t.Errorf("terminal stage %s has outgoing events %v", stage, events)
		}
		if !IsTerminal(stage) && len(events) == 0 {
			t.Errorf("non-terminal stage %s is a dead end", stage)
		}
	}
}

func TestEveryTransitionTargetsKnownStage(t *testing.T) {
	for _, tr := range transitions {
		if !IsKnownStage(tr.from) || !IsKnownStage(tr.to) {
			t.Errorf("transition %s -[%s]-> %s references an unknown stage", tr.from, tr.event, tr.to)
		}
	}
}

func TestTransitionsAreDeterministic(t *testing.T) {
	seen := make(map[stageEvent]Stage)
	for _, tr := range transitions {
		key := stageEvent{tr.from, tr.event}
		if prev, ok := seen[key]; ok && prev != tr.to {
			t.Errorf("(%s, %s) maps to both %s and %s", tr.from, tr.event, prev, tr.to)
		}
		seen[key] = tr.to
	}
}

func TestBranchOf(t *testing.T) {
	tests := []struct {
		stage Stage
		want  FundingMethod
	}{
		{StageOfferIssued, FundingPersonal},
		{StageAwaitingPayment, FundingPersonal},
		{StageCPFAccountCheck, FundingCPF},
		{StageCPFPendingValidation, FundingCPF},
		{StageOPCOAgreementSent, FundingOPCO},
		{StageOPCOPendingValidation, FundingOPCO},
		{StageFundingChoice, ""},
		{StageEnrolled, ""},
	}

	for _, tt := range tests {
		if got := BranchOf(tt.stage); got != tt.want {
			t.Errorf("BranchOf(%s) = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func TestStatusForStage(t *testing.T) {
	if got := StatusForStage(StageEnrolled); got != StatusConverted {
		t.Errorf("StatusForStage(%s) = %q, want %q", StageEnrolled, got, StatusConverted)
	}
	for _, stage := range []Stage{StageLostNotInterested, StageLostUnreachable} {
		if got := StatusForStage(stage); got != StatusLost {
			t.Errorf("StatusForStage(%s) = %q, want %q", stage, got, StatusLost)
		}
	}
	if got := StatusForStage(StageFundingChoice); got != "" {
		t.Errorf("StatusForStage(%s) = %q, want empty", StageFundingChoice, got)
	}
}
