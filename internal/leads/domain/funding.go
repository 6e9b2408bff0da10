package domain

import (
	"encoding/json"
	"fmt"
)

// FundingMethod discriminates the branch-specific funding details of a lead.
type FundingMethod string

const (
	FundingPersonal FundingMethod = "personal"
	FundingCPF      FundingMethod = "cpf"
	FundingOPCO     FundingMethod = "opco"
)

// IsValidFundingMethod reports whether the value is a known funding method.
func IsValidFundingMethod(method FundingMethod) bool {
	switch method {
	case FundingPersonal, FundingCPF, FundingOPCO:
		return true
	}
	return false
}

// FundingDetails is the discriminated union of branch-specific closing data.
// The variant is chosen exactly once, when the financing method is decided,
// and only fields of that variant can exist on the lead afterwards.
type FundingDetails interface {
	Method() FundingMethod
	fundingDetails()
}

// PersonalFunding holds the self-pay branch data. All amounts are integer
// cents; accumulation never touches floating point.
type PersonalFunding struct {
	PriceCents       int64 `json:"priceCents"`
	ThresholdPercent int64 `json:"thresholdPercent"`
	PaidCents        int64 `json:"paidCents"`
	KitSent          bool  `json:"kitSent"`
}

func (PersonalFunding) Method() FundingMethod { return FundingPersonal }
func (PersonalFunding) fundingDetails()       {}

// ThresholdCents is the paid amount at which the lead enrolls:
// price × threshold / 100, rounded down.
func (f PersonalFunding) ThresholdCents() int64 {
	return f.PriceCents * f.ThresholdPercent / 100
}

// RemainingCents is the amount still owed before the threshold is met.
// Never negative.
func (f PersonalFunding) RemainingCents() int64 {
	remaining := f.ThresholdCents() - f.PaidCents
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CPFFunding holds the public-funding branch data.
type CPFFunding struct {
	AccountVerified    bool `json:"accountVerified"`
	IdentityChecked    bool `json:"identityChecked"`
	PlacementTestScore *int `json:"placementTestScore,omitempty"`
	FileValidated      bool `json:"fileValidated"`
}

func (CPFFunding) Method() FundingMethod { return FundingCPF }
func (CPFFunding) fundingDetails()       {}

// OPCOFunding holds the employer-funding branch data.
type OPCOFunding struct {
	AgreementSigned bool   `json:"agreementSigned"`
	FileReference   string `json:"fileReference,omitempty"`
	FileValidated   bool   `json:"fileValidated"`
}

func (OPCOFunding) Method() FundingMethod { return FundingOPCO }
func (OPCOFunding) fundingDetails()       {}

// NewFundingDetails returns the zero-value variant for the chosen method.
func NewFundingDetails(method FundingMethod) (FundingDetails, error) {
	switch method {
	case FundingPersonal:
		return &PersonalFunding{}, nil
	case FundingCPF:
		return &CPFFunding{}, nil
	case FundingOPCO:
		return &OPCOFunding{}, nil
	default:
		return nil, fmt.Errorf("unknown funding method %q", method)
	}
}

// MarshalFundingDetails serializes the variant for jsonb storage.
func MarshalFundingDetails(details FundingDetails) ([]byte, error) {
	if details == nil {
		return nil, nil
	}
	return json.Marshal(details)
}

// UnmarshalFundingDetails decodes the stored jsonb into the variant named by
// the persisted discriminator.
func UnmarshalFundingDetails(method FundingMethod, raw []byte) (FundingDetails, error) {
	if len(raw) == 0 {
		return NewFundingDetails(method)
	}

	details, err := NewFundingDetails(method)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("decode %s funding details: %w", method, err)
	}
	return details, nil
}
