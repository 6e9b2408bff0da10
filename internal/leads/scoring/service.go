// Package scoring computes lead quality scores.
package scoring

import (
	"math"
	"strings"

	"closing_backend/internal/leads/domain"
	"closing_backend/internal/leads/repository"
	"closing_backend/platform/phone"
)

const (
	// baseScore - leads start at 50 and factors add/subtract from this.
	baseScore = 50.0

	// AutoAssignThreshold is the score at or above which a lead is eligible
	// for automatic round-robin assignment.
	AutoAssignThreshold = 75
)

// sourceScoreTable maps acquisition channel keywords to quality scores.
// Higher scores indicate better conversion rates.
var sourceScoreTable = []struct {
	keywords []string
	score    float64
}{
	// Best: direct demand and referrals show high intent
	{[]string{"referral", "parrainage"}, 12},
	{[]string{"direct", "inbound", "callback"}, 10},
	{[]string{"website", "organic", "seo"}, 8},
	// Good: targeted campaigns
	{[]string{"email", "newsletter"}, 5},
	{[]string{"social", "facebook", "instagram", "linkedin"}, 4},
	{[]string{"google", "search", "sea"}, 4},
	// Lower: mass acquisition
	{[]string{"partner", "affiliate"}, 2},
	{[]string{"cold", "outbound"}, -4},
	{[]string{"purchased", "bought", "fichier"}, -6},
}

// CalculateScore computes a deterministic quality score in [0, 100] from the
// lead's own attributes. It is a pure function: no clock, no I/O, safe to
// call repeatedly for re-scoring.
func CalculateScore(lead repository.Lead) int {
	score := baseScore

	score += scoreContact(lead)
	score += scoreSource(lead)
	score += scoreEngagement(lead)
	score += scoreFunding(lead)

	// Suppressed leads are never good automatic-assignment candidates.
	if lead.OptedOut {
		score -= 25
	}

	return clampScore(score)
}

// scoreContact evaluates reachability. A valid phone number is the primary
// signal; an email address adds a secondary channel.
func scoreContact(lead repository.Lead) float64 {
	score := 0.0

	if phone.IsValid(lead.Phone) {
		score += 10
	} else if strings.TrimSpace(lead.Phone) == "" {
		score -= 15
	}

	if lead.Email != nil && strings.Contains(*lead.Email, "@") {
		score += 5
	}

	return score
}

// scoreSource evaluates the acquisition channel quality.
func scoreSource(lead repository.Lead) float64 {
	if lead.Source == nil {
		return 0
	}
	source := strings.ToLower(*lead.Source)
	if source == "" {
		return 0
	}

	for _, entry := range sourceScoreTable {
		if containsAny(source, entry.keywords) {
			return entry.score
		}
	}
	return 0
}

// scoreEngagement evaluates how the lead has responded to contact so far.
// Repeated unanswered calls and relances are negative signals; an honored
// appointment is the strongest positive one.
func scoreEngagement(lead repository.Lead) float64 {
	score := 0.0

	if lead.AppointmentHonored {
		score += 15
	}

	switch {
	case lead.CallAttempts >= 5:
		score -= 10
	case lead.CallAttempts >= 3:
		score -= 5
	case lead.CallAttempts == 0:
		score += 2 // Untouched lead, full potential
	}

	score -= float64(lead.RelanceCount) * 6

	return score
}

// scoreFunding evaluates closing progress. Having chosen a financing method
// means the lead survived qualification; recorded payments are the strongest
// commitment signal of all.
func scoreFunding(lead repository.Lead) float64 {
	if lead.FundingMethod == nil {
		return 0
	}

	score := 8.0
	if personal, ok := lead.Funding.(*domain.PersonalFunding); ok && personal.PaidCents > 0 {
		score += 10
	}
	return score
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func clampScore(value float64) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
