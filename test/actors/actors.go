package actors

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"hotelhub/pricing"
)

// Pricer is the part of the pricing engine the quoting actors drive.
type Pricer interface {
	ComputePrice(ctx context.Context, pc pricing.Context) (pricing.Result, error)
}

// Tokens is the part of the upstream token broker the token actors drive.
type Tokens interface {
	AccessToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Counters tallies what the actors did so the test can report it.
type Counters struct {
	Quotes        atomic.Int64
	QuoteErrors   atomic.Int64
	Tokens        atomic.Int64
	TokenErrors   atomic.Int64
	Invalidations atomic.Int64
	Edits         atomic.Int64
}

var (
	hotels = []string{"", "HTL-1", "HTL-2", "HTL-3"}
	boards = []string{"", "BB", "HB", "AI"}
)

func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

func pick(xs []string) string { return xs[rand.Intn(len(xs))] }

func jitter(base, spread int) {
	time.Sleep(time.Duration(base+rand.Intn(spread)) * time.Millisecond)
}

// Quoter prices random offers for random callers while rules change under it.
// Store failures are tolerated since chaos kills connections; a result that
// breaks a pricing invariant ends the run.
func Quoter(ctx context.Context, p Pricer, agencyIDs []string, c *Counters, stop <-chan struct{}) error {
	callers := []pricing.CallerType{pricing.CallerCustomer, pricing.CallerAgency, pricing.CallerAdmin}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		pc := pricing.Context{
			BasePrice:  decimal.NewFromInt(int64(1 + rand.Intn(500))).Add(decimal.New(int64(rand.Intn(100)), -2)),
			CallerType: callers[rand.Intn(len(callers))],
			HotelCode:  pick(hotels),
			BoardType:  pick(boards),
			Currency:   "EUR",
		}
		if pc.CallerType == pricing.CallerAgency && len(agencyIDs) > 0 {
			pc.AgencyID = agencyIDs[rand.Intn(len(agencyIDs))]
		}

		res, err := p.ComputePrice(ctx, pc)
		if err != nil {
			c.QuoteErrors.Add(1)
			jitter(5, 10)
			continue
		}
		c.Quotes.Add(1)
		if err := CheckResult(pc, res); err != nil {
			return err
		}
		jitter(1, 5)
	}
}

// CheckResult verifies the invariants every priced result must hold.
func CheckResult(pc pricing.Context, res pricing.Result) error {
	switch {
	case res.FinalPrice.IsNegative():
		return fmt.Errorf("negative final price %s for %+v", res.FinalPrice, pc)
	case res.CommissionAmount.IsNegative():
		return fmt.Errorf("negative commission %s for %+v", res.CommissionAmount, pc)
	case !res.OriginalPrice.Equal(pc.BasePrice):
		return fmt.Errorf("original price %s differs from base %s", res.OriginalPrice, pc.BasePrice)
	case !res.FinalPrice.Equal(res.FinalPrice.Round(2)):
		return fmt.Errorf("final price %s is not rounded to cents", res.FinalPrice)
	case len(res.AppliedRules) > 2:
		return fmt.Errorf("%d adjustments applied, at most one rule and one agency discount allowed", len(res.AppliedRules))
	}

	if pc.CallerType != pricing.CallerAgency && !res.CommissionAmount.IsZero() {
		return fmt.Errorf("%s caller charged commission %s", pc.CallerType, res.CommissionAmount)
	}
	if pc.CallerType == pricing.CallerAdmin {
		if len(res.AppliedRules) != 0 || !res.FinalPrice.Equal(res.OriginalPrice) {
			return fmt.Errorf("admin price was adjusted: %+v", res)
		}
	}
	return nil
}

// RuleEditor keeps inserting, toggling and retiring price rules.
func RuleEditor(ctx context.Context, pool *pgxpool.Pool, agencyIDs []string, c *Counters, stop <-chan struct{}) error {
	kinds := []string{"percentage_discount", "fixed_discount", "markup"}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		switch rand.Intn(4) {
		case 0, 1:
			audience := "all_customers"
			var agencyID any
			switch rand.Intn(3) {
			case 1:
				audience = "all_agencies"
			case 2:
				if len(agencyIDs) > 0 {
					audience = "specific_agency"
					agencyID = agencyIDs[rand.Intn(len(agencyIDs))]
				}
			}
			start := time.Now().Add(-time.Duration(rand.Intn(48)) * time.Hour)
			end := start.Add(time.Duration(1+rand.Intn(96)) * time.Hour)
			_, _ = pool.Exec(ctx, `
				INSERT INTO price_rules (name, kind, value, hotel_code, board_type, audience, agency_id,
				                         start_date, end_date, priority)
				VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)`,
				fmt.Sprintf("stress-%d", rand.Int63()),
				kinds[rand.Intn(len(kinds))],
				decimal.NewFromInt(int64(rand.Intn(60))),
				pick(hotels), pick(boards), audience, agencyID,
				start, end, rand.Intn(5))
		case 2:
			_, _ = pool.Exec(ctx, `
				UPDATE price_rules SET is_active = NOT is_active
				WHERE id = (SELECT id FROM price_rules ORDER BY random() LIMIT 1)`)
		case 3:
			_, _ = pool.Exec(ctx, `
				DELETE FROM price_rules
				WHERE id IN (SELECT id FROM price_rules ORDER BY created_at LIMIT 2)
				  AND (SELECT COUNT(*) FROM price_rules) > 20`)
		}
		c.Edits.Add(1)
		jitter(20, 40)
	}
}

// CommissionEditor rotates the commission contracts of the seeded agencies.
func CommissionEditor(ctx context.Context, pool *pgxpool.Pool, agencyIDs []string, c *Counters, stop <-chan struct{}) error {
	if len(agencyIDs) == 0 {
		return nil
	}
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}

		agencyID := agencyIDs[rand.Intn(len(agencyIDs))]
		if rand.Intn(2) == 0 {
			kind, value := "percentage", decimal.NewFromInt(int64(rand.Intn(20)))
			if rand.Intn(3) == 0 {
				kind, value = "fixed", decimal.NewFromInt(int64(rand.Intn(30)))
			}
			_, _ = pool.Exec(ctx, `
				INSERT INTO commissions (agency_id, kind, value, hotel_code)
				VALUES ($1, $2, $3, NULLIF($4, ''))`, agencyID, kind, value, pick(hotels))
		} else {
			_, _ = pool.Exec(ctx, `
				UPDATE commissions SET is_active = false
				WHERE id = (SELECT id FROM commissions WHERE agency_id = $1 AND is_active ORDER BY created_at LIMIT 1)`,
				agencyID)
		}
		c.Edits.Add(1)
		jitter(30, 60)
	}
}

// TokenConsumer asks the broker for a token in a tight loop. Every caller
// must get a non-empty token or an error.
func TokenConsumer(ctx context.Context, tokens Tokens, c *Counters, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		tok, err := tokens.AccessToken(ctx)
		switch {
		case err != nil:
			c.TokenErrors.Add(1)
		case tok == "":
			return fmt.Errorf("broker returned an empty token without error")
		default:
			c.Tokens.Add(1)
		}
		jitter(1, 10)
	}
}

// TokenInvalidator drops the cached token now and then, as a 401 would.
func TokenInvalidator(ctx context.Context, tokens Tokens, c *Counters, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		if err := tokens.Invalidate(ctx); err == nil {
			c.Invalidations.Add(1)
		}
		jitter(300, 400)
	}
}
