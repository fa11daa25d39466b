package auth

import "hotelhub/pricing"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgency   Role = "agency"
	RoleAdmin    Role = "admin"
)

// Caller is the authenticated identity behind an API request. Anonymous
// requests are represented by Anonymous.
type Caller struct {
	Subject  string
	Role     Role
	AgencyID string
}

// Anonymous prices like a customer.
var Anonymous = Caller{Role: RoleCustomer}

// CallerType maps the role onto the pricing audience it is priced as.
func (c Caller) CallerType() pricing.CallerType {
	switch c.Role {
	case RoleAgency:
		return pricing.CallerAgency
	case RoleAdmin:
		return pricing.CallerAdmin
	default:
		return pricing.CallerCustomer
	}
}

// CanViewAgency reports whether c may read the profile of agency id.
func (c Caller) CanViewAgency(id string) bool {
	return c.Role == RoleAdmin || (c.Role == RoleAgency && c.AgencyID == id)
}
