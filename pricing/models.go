package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// RuleKind is the closed set of price adjustments a rule can make.
type RuleKind string

const (
	RuleKindPercentageDiscount RuleKind = "percentage_discount"
	RuleKindFixedDiscount      RuleKind = "fixed_discount"
	RuleKindMarkup             RuleKind = "markup"

	// RuleKindAgencyDiscount only appears on AppliedRule entries produced from an
	// agency's negotiated rate; no stored rule carries it.
	RuleKindAgencyDiscount RuleKind = "agency_discount"
)

// Audience restricts which callers a rule applies to.
type Audience string

const (
	AudienceAllCustomers   Audience = "all_customers"
	AudienceAllAgencies    Audience = "all_agencies"
	AudienceSpecificAgency Audience = "specific_agency"
)

// CallerType is the role a price is computed for.
type CallerType string

const (
	CallerCustomer CallerType = "customer"
	CallerAgency   CallerType = "agency"
	CallerAdmin    CallerType = "admin"
)

// Valid reports whether c is one of the known caller types.
func (c CallerType) Valid() bool {
	switch c {
	case CallerCustomer, CallerAgency, CallerAdmin:
		return true
	default:
		return false
	}
}

// PriceRule is an administrator-defined promotion or markup. Nil scope and
// window fields are wildcards.
type PriceRule struct {
	ID        string
	Name      string
	Kind      RuleKind
	Value     decimal.Decimal
	HotelCode *string
	BoardType *string
	Audience  Audience
	AgencyID  *string
	StartDate *time.Time
	EndDate   *time.Time
	Priority  int
	IsActive  bool
	CreatedAt time.Time
}

// Context is the input of a single price computation.
type Context struct {
	BasePrice  decimal.Decimal
	CallerType CallerType
	AgencyID   string
	HotelCode  string
	BoardType  string
	Currency   string
}

// AppliedRule records one adjustment in a priced result. DiscountAmount is
// negative for markups.
type AppliedRule struct {
	RuleID         string          `json:"ruleId"`
	Label          string          `json:"label"`
	Kind           RuleKind        `json:"kind"`
	Value          decimal.Decimal `json:"value"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Result is the priced outcome. The agency discount compounds on the
// post-rule price, so FinalPrice can drift from OriginalPrice minus
// TotalDiscount by a cent after independent rounding, and by more once the
// price is clamped at zero.
type Result struct {
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	FinalPrice       decimal.Decimal `json:"finalPrice"`
	TotalDiscount    decimal.Decimal `json:"totalDiscount"`
	AppliedRules     []AppliedRule   `json:"appliedRules"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	Currency         string          `json:"currency,omitempty"`
}
