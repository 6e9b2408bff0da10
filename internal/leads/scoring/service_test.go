package scoring

import (
	"testing"

	"closing_backend/internal/leads/domain"
	"closing_backend/internal/leads/repository"
)

func strPtr(s string) *string { return &s }

func TestCalculateScoreIsDeterministic(t *testing.T) {
	lead := repository.Lead{
		Phone:  "+33612345678",
		Email:  strPtr("claire@example.fr"),
		Source: strPtr("referral"),
	}

	first := CalculateScore(lead)
	for i := 0; i < 5; i++ {
		if got := CalculateScore(lead); got != first {
			t.Fatalf("score changed between calls: %d then %d", first, got)
		}
	}
}

func TestCalculateScoreBounds(t *testing.T) {
	method := domain.FundingPersonal
	best := repository.Lead{
		Phone:              "+33612345678",
		Email:              strPtr("a@b.fr"),
		Source:             strPtr("referral"),
		AppointmentHonored: true,
		FundingMethod:      &method,
		Funding:            &domain.PersonalFunding{PaidCents: 50_000},
	}
	worst := repository.Lead{
		Phone:        "",
		Source:       strPtr("fichier achat"),
		CallAttempts: 7,
		RelanceCount: 10,
		OptedOut:     true,
	}

	for _, lead := range []repository.Lead{best, worst} {
		score := CalculateScore(lead)
		if score < 0 || score > 100 {
			t.Errorf("score %d out of [0, 100]", score)
		}
	}
}

func TestCalculateScoreOrdering(t *testing.T) {
	referral := repository.Lead{Phone: "+33612345678", Source: strPtr("referral")}
	purchased := repository.Lead{Phone: "+33612345678", Source: strPtr("purchased list")}
	if CalculateScore(referral) <= CalculateScore(purchased) {
		t.Error("a referral lead should outscore a purchased-list lead")
	}

	honored := repository.Lead{Phone: "+33612345678", AppointmentHonored: true}
	plain := repository.Lead{Phone: "+33612345678"}
	if CalculateScore(honored) <= CalculateScore(plain) {
		t.Error("an honored appointment should raise the score")
	}

	relanced := plain
	relanced.RelanceCount = 2
	if CalculateScore(relanced) >= CalculateScore(plain) {
		t.Error("relances should lower the score")
	}

	noPhone := repository.Lead{Phone: ""}
	if CalculateScore(noPhone) >= CalculateScore(plain) {
		t.Error("a missing phone number should lower the score")
	}
}

func TestCalculateScorePaymentSignal(t *testing.T) {
	method := domain.FundingPersonal
	chosen := repository.Lead{
		Phone:         "+33612345678",
		FundingMethod: &method,
		Funding:       &domain.PersonalFunding{},
	}
	paying := chosen
	paying.Funding = &domain.PersonalFunding{PaidCents: 10_000}

	if CalculateScore(paying) <= CalculateScore(chosen) {
		t.Error("a recorded payment should raise the score above method choice alone")
	}
}

func TestReferralLeadReachesAutoAssignThreshold(t *testing.T) {
	lead := repository.Lead{
		Phone:  "+33612345678",
		Email:  strPtr("claire@example.fr"),
		Source: strPtr("parrainage"),
	}
	if got := CalculateScore(lead); got < AutoAssignThreshold {
		t.Errorf("expected score >= %d for a referral lead with full contact details, got %d", AutoAssignThreshold, got)
	}
}
