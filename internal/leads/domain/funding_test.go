package domain

import "testing"

func TestPersonalFundingThresholdCents(t *testing.T) {
	tests := []struct {
		name             string
		priceCents       int64
		thresholdPercent int64
		want             int64
	}{
		{"thirty percent of 1000 euros", 100_000, 30, 30_000},
		{"full price", 250_000, 100, 250_000},
		{"rounds down", 99_999, 33, 32_999},
		{"one percent", 100, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			funding := PersonalFunding{PriceCents: tt.priceCents, ThresholdPercent: tt.thresholdPercent}
			if got := funding.ThresholdCents(); got != tt.want {
				t.Errorf("ThresholdCents() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPersonalFundingRemainingCents(t *testing.T) {
	funding := PersonalFunding{PriceCents: 100_000, ThresholdPercent: 30, PaidCents: 20_000}
	if got := funding.RemainingCents(); got != 10_000 {
		t.Errorf("RemainingCents() = %d, want 10000", got)
	}

	funding.PaidCents = 35_000
	if got := funding.RemainingCents(); got != 0 {
		t.Errorf("overpaid RemainingCents() = %d, want 0", got)
	}
}

func TestFundingDetailsRoundTrip(t *testing.T) {
	score := 72
	variants := []FundingDetails{
		&PersonalFunding{PriceCents: 100_000, ThresholdPercent: 30, PaidCents: 20_000, KitSent: true},
		&CPFFunding{AccountVerified: true, IdentityChecked: true, PlacementTestScore: &score},
		&OPCOFunding{AgreementSigned: true, FileReference: "OPCO-2026-0042"},
	}

	for _, original := range variants {
		raw, err := MarshalFundingDetails(original)
		if err != nil {
			t.Fatalf("marshal %s: %v", original.Method(), err)
		}
		decoded, err := UnmarshalFundingDetails(original.Method(), raw)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", original.Method(), err)
		}
		if decoded.Method() != original.Method() {
			t.Errorf("round trip changed method: %s -> %s", original.Method(), decoded.Method())
		}
	}
}

func TestUnmarshalFundingDetailsEmptyPayload(t *testing.T) {
	details, err := UnmarshalFundingDetails(FundingCPF, nil)
	if err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if _, ok := details.(*CPFFunding); !ok {
		t.Fatalf("expected zero CPF variant, got %T", details)
	}
}

func TestNewFundingDetailsRejectsUnknownMethod(t *testing.T) {
	if _, err := NewFundingDetails("crypto"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}
