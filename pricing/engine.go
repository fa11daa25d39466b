package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"hotelhub/agency"
	"hotelhub/metrics"
)

// ErrUnknownRuleKind signals a rule whose kind has no calculation.
var ErrUnknownRuleKind = errors.New("pricing: unknown rule kind")

var hundred = decimal.NewFromInt(100)

// Selector picks at most one rule for a computation.
type Selector interface {
	SelectRule(ctx context.Context, pc Context) (*PriceRule, error)
}

// AgencyReader loads the negotiated discount of an agency.
type AgencyReader interface {
	GetByID(ctx context.Context, id string) (agency.Agency, error)
}

// CommissionResolver computes the commission owed to an agency on a price.
type CommissionResolver interface {
	ResolveCommission(ctx context.Context, agencyID string, price decimal.Decimal, hotelCode, boardType string) (decimal.Decimal, error)
}

// Engine turns an upstream base price into the price charged to a caller.
type Engine struct {
	selector    Selector
	agencies    AgencyReader
	commissions CommissionResolver
	logger      *zap.Logger
}

// NewEngine wires the engine. A nil logger disables logging.
func NewEngine(selector Selector, agencies AgencyReader, commissions CommissionResolver, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		selector:    selector,
		agencies:    agencies,
		commissions: commissions,
		logger:      logger,
	}
}

// ComputePrice applies, in order, one price rule, the agency discount and the
// agency commission. Missing rules, agencies or commissions have no effect;
// only store failures are returned as errors.
func (e *Engine) ComputePrice(ctx context.Context, pc Context) (Result, error) {
	res, err := e.compute(ctx, pc)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PriceComputations.WithLabelValues(string(pc.CallerType), outcome).Inc()
	return res, err
}

func (e *Engine) compute(ctx context.Context, pc Context) (Result, error) {
	final := pc.BasePrice
	total := decimal.Zero
	applied := []AppliedRule{}

	rule, err := e.selector.SelectRule(ctx, pc)
	if err != nil {
		return Result{}, err
	}
	if rule != nil {
		amount, err := ruleDiscount(rule.Kind, rule.Value, final)
		if err != nil {
			return Result{}, fmt.Errorf("%w: rule %s has kind %q", err, rule.ID, rule.Kind)
		}
		final = final.Sub(amount)
		total = total.Add(amount)
		applied = append(applied, AppliedRule{
			RuleID:         rule.ID,
			Label:          rule.Name,
			Kind:           rule.Kind,
			Value:          rule.Value,
			DiscountAmount: amount,
		})
		e.logger.Debug("price rule applied",
			zap.String("rule_id", rule.ID),
			zap.String("kind", string(rule.Kind)),
			zap.String("amount", amount.String()))
	}

	commission := decimal.Zero
	if pc.CallerType == CallerAgency && pc.AgencyID != "" {
		ag, err := e.agencies.GetByID(ctx, pc.AgencyID)
		switch {
		case errors.Is(err, agency.ErrNotFound):
			e.logger.Debug("agency not found, no agency discount", zap.String("agency_id", pc.AgencyID))
		case err != nil:
			return Result{}, fmt.Errorf("pricing: load agency: %w", err)
		case ag.DiscountRate.IsPositive():
			amount := final.Mul(ag.DiscountRate).Div(hundred)
			final = final.Sub(amount)
			total = total.Add(amount)
			applied = append(applied, AppliedRule{
				RuleID:         "agency:" + ag.ID,
				Label:          ag.CompanyName,
				Kind:           RuleKindAgencyDiscount,
				Value:          ag.DiscountRate,
				DiscountAmount: amount,
			})
		}

		// A fixed discount can push the price below zero before clamping;
		// commission is never paid on a negative price.
		base := decimal.Max(final, decimal.Zero)
		commission, err = e.commissions.ResolveCommission(ctx, pc.AgencyID, base, pc.HotelCode, pc.BoardType)
		if err != nil {
			return Result{}, fmt.Errorf("pricing: resolve commission: %w", err)
		}
	}

	if final.IsNegative() {
		final = decimal.Zero
	}

	return Result{
		OriginalPrice:    pc.BasePrice,
		FinalPrice:       final.Round(2),
		TotalDiscount:    total.Round(2),
		AppliedRules:     applied,
		CommissionAmount: commission.Round(2),
		Currency:         pc.Currency,
	}, nil
}

// ruleDiscount returns the amount a rule takes off the current price. Markups
// yield a negative amount.
func ruleDiscount(kind RuleKind, value, price decimal.Decimal) (decimal.Decimal, error) {
	switch kind {
	case RuleKindPercentageDiscount:
		return price.Mul(value).Div(hundred), nil
	case RuleKindFixedDiscount:
		return value, nil
	case RuleKindMarkup:
		return price.Mul(value).Div(hundred).Neg(), nil
	default:
		return decimal.Zero, ErrUnknownRuleKind
	}
}
