package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hotelhub/pricing"
)

// Event types emitted by the pricing API.
const (
	EventPriceQuoted    = "price.quoted"
	EventPriceConfirmed = "price.confirmed"
	EventPriceMismatch  = "price.mismatch"
)

// Event is one priced outcome shipped to downstream consumers.
type Event struct {
	ID               string          `json:"id"`
	Type             string          `json:"type"`
	OccurredAt       time.Time       `json:"occurredAt"`
	CallerType       string          `json:"callerType"`
	AgencyID         string          `json:"agencyId,omitempty"`
	HotelCode        string          `json:"hotelCode,omitempty"`
	BoardType        string          `json:"boardType,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	OriginalPrice    decimal.Decimal `json:"originalPrice"`
	FinalPrice       decimal.Decimal `json:"finalPrice"`
	TotalDiscount    decimal.Decimal `json:"totalDiscount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	RuleIDs          []string        `json:"ruleIds"`
}

// NewPriceEvent builds an event describing res computed for pc.
func NewPriceEvent(eventType string, pc pricing.Context, res pricing.Result) Event {
	ruleIDs := make([]string, 0, len(res.AppliedRules))
	for _, r := range res.AppliedRules {
		ruleIDs = append(ruleIDs, r.RuleID)
	}
	return Event{
		ID:               uuid.NewString(),
		Type:             eventType,
		OccurredAt:       time.Now().UTC(),
		CallerType:       string(pc.CallerType),
		AgencyID:         pc.AgencyID,
		HotelCode:        pc.HotelCode,
		BoardType:        pc.BoardType,
		Currency:         res.Currency,
		OriginalPrice:    res.OriginalPrice,
		FinalPrice:       res.FinalPrice,
		TotalDiscount:    res.TotalDiscount,
		CommissionAmount: res.CommissionAmount,
		RuleIDs:          ruleIDs,
	}
}

// partitionKey keeps one agency's events ordered on a single partition.
func (e Event) partitionKey() []byte {
	if e.AgencyID != "" {
		return []byte(e.AgencyID)
	}
	return []byte(e.CallerType)
}
