package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownKind signals a commission whose kind has no calculation.
var ErrUnknownKind = errors.New("commission: unknown kind")

var hundred = decimal.NewFromInt(100)

// Lister abstracts commission storage. Implementations return candidates in
// store order (oldest first); the resolver filters again.
type Lister interface {
	ListCandidates(ctx context.Context, q Query) ([]Commission, error)
}

// Resolver picks the most specific active commission of an agency.
type Resolver struct {
	repo Lister
	now  func() time.Time
}

// NewResolver builds a resolver over the given store.
func NewResolver(repo Lister) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// WithClock overrides the time source used for validity windows.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ResolveCommission returns the commission owed on price, or zero when no
// commission applies. Empty hotelCode or boardType only match unscoped
// commissions.
func (r *Resolver) ResolveCommission(ctx context.Context, agencyID string, price decimal.Decimal, hotelCode, boardType string) (decimal.Decimal, error) {
	if agencyID == "" {
		return decimal.Zero, nil
	}

	q := Query{
		AgencyID:  agencyID,
		At:        r.now(),
		HotelCode: hotelCode,
		BoardType: boardType,
	}

	candidates, err := r.repo.ListCandidates(ctx, q)
	if err != nil {
		return decimal.Zero, fmt.Errorf("commission: list candidates: %w", err)
	}

	var best *Commission
	for i := range candidates {
		c := &candidates[i]
		if !c.matches(q) {
			continue
		}
		// Strictly better tier only, so the first match of a tier wins.
		if best == nil || c.specificity() < best.specificity() {
			best = c
		}
	}
	if best == nil {
		return decimal.Zero, nil
	}

	amount, err := best.amount(price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: commission %s has kind %q", err, best.ID, best.Kind)
	}
	return amount, nil
}

func (c *Commission) matches(q Query) bool {
	if c.AgencyID != q.AgencyID || !c.IsActive {
		return false
	}
	if c.StartDate != nil && c.StartDate.After(q.At) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(q.At) {
		return false
	}
	return scopeMatches(c.HotelCode, q.HotelCode) && scopeMatches(c.BoardType, q.BoardType)
}

func (c *Commission) amount(price decimal.Decimal) (decimal.Decimal, error) {
	switch c.Kind {
	case KindPercentage:
		return price.Mul(c.Value).Div(hundred), nil
	case KindFixed:
		return c.Value, nil
	default:
		return decimal.Zero, ErrUnknownKind
	}
}

func scopeMatches(scope *string, value string) bool {
	if scope == nil {
		return true
	}
	return value != "" && *scope == value
}
