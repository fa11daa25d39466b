package pricing

import (
	"context"
	"fmt"
	"time"
)

// RuleQuery narrows the rules a store needs to return for one computation.
type RuleQuery struct {
	At         time.Time
	CallerType CallerType
	AgencyID   string
	HotelCode  string
	BoardType  string
}

// RuleReader abstracts rule storage for the selector. Implementations may
// return a superset of the applicable rules; the selector filters again.
type RuleReader interface {
	ListCandidates(ctx context.Context, q RuleQuery) ([]PriceRule, error)
}

// RuleSelector picks the single rule that applies to a price computation.
type RuleSelector struct {
	repo RuleReader
	now  func() time.Time
}

// NewRuleSelector builds a selector over the given store.
func NewRuleSelector(repo RuleReader) *RuleSelector {
	return &RuleSelector{repo: repo, now: time.Now}
}

// WithClock overrides the time source used for validity windows.
func (s *RuleSelector) WithClock(now func() time.Time) *RuleSelector {
	s.now = now
	return s
}

// SelectRule returns the highest-priority applicable rule, or nil when none
// applies. Equal priorities fall back to the oldest rule, then the lowest id.
func (s *RuleSelector) SelectRule(ctx context.Context, pc Context) (*PriceRule, error) {
	q := RuleQuery{
		At:         s.now(),
		CallerType: pc.CallerType,
		AgencyID:   pc.AgencyID,
		HotelCode:  pc.HotelCode,
		BoardType:  pc.BoardType,
	}

	// Admins never match an audience, so skip the round trip.
	if q.CallerType == CallerAdmin {
		return nil, nil
	}

	candidates, err := s.repo.ListCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pricing: select rule: %w", err)
	}

	var best *PriceRule
	for i := range candidates {
		rule := &candidates[i]
		if !rule.appliesTo(q) {
			continue
		}
		if best == nil || outranks(rule, best) {
			best = rule
		}
	}
	if best == nil {
		return nil, nil
	}

	selected := *best
	return &selected, nil
}

func (r *PriceRule) appliesTo(q RuleQuery) bool {
	if !r.IsActive {
		return false
	}
	if !withinWindow(r.StartDate, r.EndDate, q.At) {
		return false
	}
	if !r.audienceMatches(q) {
		return false
	}
	return scopeMatches(r.HotelCode, q.HotelCode) && scopeMatches(r.BoardType, q.BoardType)
}

func (r *PriceRule) audienceMatches(q RuleQuery) bool {
	switch q.CallerType {
	case CallerAgency:
		switch r.Audience {
		case AudienceAllAgencies:
			return true
		case AudienceSpecificAgency:
			return r.AgencyID != nil && q.AgencyID != "" && *r.AgencyID == q.AgencyID
		}
		return false
	case CallerCustomer:
		return r.Audience == AudienceAllCustomers
	default:
		return false
	}
}

func outranks(a, b *PriceRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// withinWindow treats nil bounds as open and both bounds as inclusive.
func withinWindow(start, end *time.Time, at time.Time) bool {
	if start != nil && start.After(at) {
		return false
	}
	if end != nil && end.Before(at) {
		return false
	}
	return true
}

// scopeMatches implements the "unset or equal" scope contract. An unknown
// context value only matches unscoped entries.
func scopeMatches(scope *string, value string) bool {
	if scope == nil {
		return true
	}
	return value != "" && *scope == value
}
