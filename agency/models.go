package agency

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the approval state of a travel agency account.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// Agency is a B2B reseller with a negotiated discount. DiscountRate is a
// percentage applied after any price rule.
type Agency struct {
	ID           string
	CompanyName  string
	DiscountRate decimal.Decimal
	Status       Status
	CreatedAt    time.Time
}

// IsApproved reports whether the agency may book at agency prices.
func (a Agency) IsApproved() bool {
	return a.Status == StatusApproved
}
