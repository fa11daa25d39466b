package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is how a commission amount is derived from a price.
type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

// Commission is an agency payout. Nil scope and window fields are wildcards.
type Commission struct {
	ID        string
	AgencyID  string
	Kind      Kind
	Value     decimal.Decimal
	HotelCode *string
	BoardType *string
	StartDate *time.Time
	EndDate   *time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Query narrows the commissions a store returns for one resolution.
type Query struct {
	AgencyID  string
	At        time.Time
	HotelCode string
	BoardType string
}

// specificity ranks a commission's scope; lower is more specific.
func (c Commission) specificity() int {
	switch {
	case c.HotelCode != nil && c.BoardType != nil:
		return 1
	case c.HotelCode != nil:
		return 2
	case c.BoardType != nil:
		return 3
	default:
		return 4
	}
}
