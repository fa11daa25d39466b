package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"hotelhub/agency"
)

type fakeAgencies struct {
	agencies map[string]agency.Agency
	err      error
}

func (f *fakeAgencies) GetByID(_ context.Context, id string) (agency.Agency, error) {
	if f.err != nil {
		return agency.Agency{}, f.err
	}
	a, ok := f.agencies[id]
	if !ok {
		return agency.Agency{}, agency.ErrNotFound
	}
	return a, nil
}

type fakeCommissions struct {
	rate   decimal.Decimal
	err    error
	prices []decimal.Decimal
}

func (f *fakeCommissions) ResolveCommission(_ context.Context, _ string, price decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	f.prices = append(f.prices, price)
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return price.Mul(f.rate).Div(decimal.NewFromInt(100)), nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, field string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s: expected %s, got %s", field, want, got)
	}
}

type engineFixture struct {
	rules       *fakeRuleReader
	agencies    *fakeAgencies
	commissions *fakeCommissions
	engine      *Engine
}

func newFixture(rules ...PriceRule) *engineFixture {
	f := &engineFixture{
		rules:       &fakeRuleReader{rules: rules},
		agencies:    &fakeAgencies{agencies: map[string]agency.Agency{}},
		commissions: &fakeCommissions{rate: decimal.Zero},
	}
	f.engine = NewEngine(newSelector(f.rules), f.agencies, f.commissions, nil)
	return f
}

func TestComputePrice_NoRuleIsNeutral(t *testing.T) {
	f := newFixture()

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer, Currency: "EUR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "originalPrice", res.OriginalPrice, dec("100"))
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("100"))
	assertDecimal(t, "totalDiscount", res.TotalDiscount, decimal.Zero)
	assertDecimal(t, "commission", res.CommissionAmount, decimal.Zero)
	if res.AppliedRules == nil || len(res.AppliedRules) != 0 {
		t.Fatalf("expected empty applied rules, got %#v", res.AppliedRules)
	}
	if res.Currency != "EUR" {
		t.Fatalf("expected currency EUR, got %q", res.Currency)
	}
}

func TestComputePrice_PercentageDiscount(t *testing.T) {
	f := newFixture(rule("r1", RuleKindPercentageDiscount, 15, AudienceAllCustomers, 1))

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("85"))
	assertDecimal(t, "totalDiscount", res.TotalDiscount, dec("15"))
	if len(res.AppliedRules) != 1 || res.AppliedRules[0].RuleID != "r1" {
		t.Fatalf("expected one applied rule r1, got %+v", res.AppliedRules)
	}
	assertDecimal(t, "discountAmount", res.AppliedRules[0].DiscountAmount, dec("15"))
}

func TestComputePrice_Markup(t *testing.T) {
	f := newFixture(rule("r-markup", RuleKindMarkup, 12, AudienceAllCustomers, 1))

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("112"))
	assertDecimal(t, "totalDiscount", res.TotalDiscount, dec("-12"))
	assertDecimal(t, "discountAmount", res.AppliedRules[0].DiscountAmount, dec("-12"))
}

func TestComputePrice_AgencyDiscountCompounds(t *testing.T) {
	f := newFixture(rule("r1", RuleKindPercentageDiscount, 10, AudienceAllAgencies, 1))
	f.agencies.agencies["agency-1"] = agency.Agency{ID: "agency-1", CompanyName: "Blue Lagoon Travel", DiscountRate: dec("10"), Status: agency.StatusApproved}

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAgency, AgencyID: "agency-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("81"))
	assertDecimal(t, "totalDiscount", res.TotalDiscount, dec("19"))
	if len(res.AppliedRules) != 2 {
		t.Fatalf("expected two applied rules, got %+v", res.AppliedRules)
	}
	agencyRule := res.AppliedRules[1]
	if agencyRule.Kind != RuleKindAgencyDiscount || agencyRule.Label != "Blue Lagoon Travel" {
		t.Fatalf("unexpected agency entry: %+v", agencyRule)
	}
	assertDecimal(t, "agency discount", agencyRule.DiscountAmount, dec("9"))
}

func TestComputePrice_OnlyHighestPriorityRuleApplies(t *testing.T) {
	f := newFixture(
		rule("r-p5", RuleKindPercentageDiscount, 5, AudienceAllCustomers, 5),
		rule("r-p10", RuleKindPercentageDiscount, 10, AudienceAllCustomers, 10),
	)

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.AppliedRules) != 1 || res.AppliedRules[0].RuleID != "r-p10" {
		t.Fatalf("expected only r-p10, got %+v", res.AppliedRules)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("90"))
}

func TestComputePrice_FixedDiscountClampsAtZero(t *testing.T) {
	f := newFixture(rule("r-fixed", RuleKindFixedDiscount, 150, AudienceAllCustomers, 1))

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, decimal.Zero)
	assertDecimal(t, "totalDiscount", res.TotalDiscount, dec("150"))
}

func TestComputePrice_AgencyScenarioRounding(t *testing.T) {
	f := newFixture(rule("r15", RuleKindPercentageDiscount, 15, AudienceAllAgencies, 1))
	f.agencies.agencies["agency-1"] = agency.Agency{ID: "agency-1", CompanyName: "Coastline Holidays", DiscountRate: dec("5"), Status: agency.StatusApproved}
	f.commissions.rate = dec("10")

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("250"), CallerType: CallerAgency, AgencyID: "agency-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("201.88"))
	assertDecimal(t, "totalDiscount", res.TotalDiscount, dec("48.13"))
	assertDecimal(t, "commission", res.CommissionAmount, dec("20.19"))
	if len(res.AppliedRules) != 2 {
		t.Fatalf("expected two applied rules, got %+v", res.AppliedRules)
	}
	assertDecimal(t, "rule discount", res.AppliedRules[0].DiscountAmount, dec("37.5"))
	assertDecimal(t, "agency discount", res.AppliedRules[1].DiscountAmount, dec("10.625"))

	// Commission is computed on the post-agency price, before rounding.
	if len(f.commissions.prices) != 1 {
		t.Fatalf("expected one commission call, got %d", len(f.commissions.prices))
	}
	assertDecimal(t, "commission base", f.commissions.prices[0], dec("201.875"))
}

func TestComputePrice_CustomerNeverPaysCommissionOrAgencyDiscount(t *testing.T) {
	f := newFixture()
	f.agencies.agencies["agency-1"] = agency.Agency{ID: "agency-1", DiscountRate: dec("10")}
	f.commissions.rate = dec("10")

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer, AgencyID: "agency-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("100"))
	assertDecimal(t, "commission", res.CommissionAmount, decimal.Zero)
	if len(f.commissions.prices) != 0 {
		t.Fatalf("expected commission resolver to be skipped")
	}
}

func TestComputePrice_UnknownAgencyIsNeutral(t *testing.T) {
	f := newFixture()

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAgency, AgencyID: "ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("100"))
	if len(res.AppliedRules) != 0 {
		t.Fatalf("expected no applied rules, got %+v", res.AppliedRules)
	}
}

func TestComputePrice_AdminSeesBasePrice(t *testing.T) {
	f := newFixture(
		rule("r-customers", RuleKindPercentageDiscount, 10, AudienceAllCustomers, 1),
		rule("r-agencies", RuleKindPercentageDiscount, 10, AudienceAllAgencies, 1),
	)

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, dec("100"))
}

func TestComputePrice_NegativePriceCommissionBaseIsZero(t *testing.T) {
	f := newFixture(rule("r-fixed", RuleKindFixedDiscount, 150, AudienceAllAgencies, 1))
	f.commissions.rate = dec("10")

	res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAgency, AgencyID: "agency-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertDecimal(t, "finalPrice", res.FinalPrice, decimal.Zero)
	assertDecimal(t, "commission", res.CommissionAmount, decimal.Zero)
}

func TestComputePrice_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("db down")

	t.Run("rules", func(t *testing.T) {
		f := newFixture()
		f.rules.err = boom
		if _, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer}); !errors.Is(err, boom) {
			t.Fatalf("expected rule store error, got %v", err)
		}
	})

	t.Run("agencies", func(t *testing.T) {
		f := newFixture()
		f.agencies.err = boom
		if _, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAgency, AgencyID: "a"}); !errors.Is(err, boom) {
			t.Fatalf("expected agency store error, got %v", err)
		}
	})

	t.Run("commissions", func(t *testing.T) {
		f := newFixture()
		f.commissions.err = boom
		if _, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerAgency, AgencyID: "a"}); !errors.Is(err, boom) {
			t.Fatalf("expected commission store error, got %v", err)
		}
	})
}

func TestComputePrice_UnknownRuleKind(t *testing.T) {
	f := newFixture(rule("r-bogus", RuleKind("bogus"), 10, AudienceAllCustomers, 1))

	_, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: dec("100"), CallerType: CallerCustomer})
	if !errors.Is(err, ErrUnknownRuleKind) {
		t.Fatalf("expected ErrUnknownRuleKind, got %v", err)
	}
}

func TestComputePrice_ConcurrentCallsAreIndependent(t *testing.T) {
	f := newFixture(rule("r1", RuleKindPercentageDiscount, 10, AudienceAllCustomers, 1))

	const workers = 32
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		base := decimal.NewFromInt(int64(100 + i))
		go func() {
			res, err := f.engine.ComputePrice(context.Background(), Context{BasePrice: base, CallerType: CallerCustomer})
			if err != nil {
				errs <- err
				return
			}
			want := base.Mul(dec("0.9")).Round(2)
			if !res.FinalPrice.Equal(want) {
				errs <- errors.New("unexpected final price " + res.FinalPrice.String() + " for base " + base.String())
				return
			}
			errs <- nil
		}()
	}
	for i := 0; i < workers; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}
