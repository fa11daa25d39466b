package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRuleRepository reads price rules from PostgreSQL.
type PGRuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository wires a pgxpool-backed rule repository.
func NewRuleRepository(pool *pgxpool.Pool) *PGRuleRepository {
	return &PGRuleRepository{pool: pool}
}

// ListCandidates returns the active rules applicable to q, best first. Nullable
// scope, audience and window columns act as wildcards.
func (r *PGRuleRepository) ListCandidates(ctx context.Context, q RuleQuery) ([]PriceRule, error) {
	const query = `
		SELECT id::text, name, kind, value, hotel_code, board_type, audience, agency_id::text,
		       start_date, end_date, priority, is_active, created_at
		FROM price_rules
		WHERE is_active = true
		  AND (start_date IS NULL OR start_date <= $1)
		  AND (end_date IS NULL OR end_date >= $1)
		  AND (hotel_code IS NULL OR hotel_code = $2)
		  AND (board_type IS NULL OR board_type = $3)
		  AND (
		        ($4::text = 'customer' AND audience = 'all_customers')
		     OR ($4::text = 'agency' AND (
		             audience = 'all_agencies'
		          OR (audience = 'specific_agency' AND agency_id::text = $5)))
		  )
		ORDER BY priority DESC, created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query,
		q.At,
		nullable(q.HotelCode),
		nullable(q.BoardType),
		string(q.CallerType),
		nullable(q.AgencyID),
	)
	if err != nil {
		return nil, fmt.Errorf("pricing: list rules: %w", err)
	}
	defer rows.Close()

	var rules []PriceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("pricing: scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pricing: iterate rules: %w", err)
	}

	return rules, nil
}

func scanRule(row pgx.Row) (PriceRule, error) {
	var (
		rule     PriceRule
		kind     string
		audience string
	)
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&kind,
		&rule.Value,
		&rule.HotelCode,
		&rule.BoardType,
		&audience,
		&rule.AgencyID,
		&rule.StartDate,
		&rule.EndDate,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedAt,
	)
	if err != nil {
		return PriceRule{}, err
	}

	rule.Kind = RuleKind(kind)
	rule.Audience = Audience(audience)
	return rule, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
