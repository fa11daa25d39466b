package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that returns rows only when an invariant is broken.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_live_token",
			SQL: `SELECT COUNT(*) FROM upstream_tokens
                  WHERE expires_at > now()
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_token_not_empty",
			SQL:  `SELECT id FROM upstream_tokens WHERE access_token = ''`,
		},
		{
			Name: "O3_specific_rule_has_agency",
			SQL: `SELECT id FROM price_rules
                  WHERE audience = 'specific_agency' AND agency_id IS NULL`,
		},
		{
			Name: "O4_rule_window_ordered",
			SQL: `SELECT id, start_date, end_date FROM price_rules
                  WHERE start_date IS NOT NULL AND end_date IS NOT NULL AND start_date > end_date`,
		},
		{
			Name: "O5_non_negative_values",
			SQL: `SELECT 'rule' AS kind, id FROM price_rules WHERE value < 0
                  UNION ALL
                  SELECT 'commission', id FROM commissions WHERE value < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
