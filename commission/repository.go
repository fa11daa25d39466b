package commission

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads agency commissions from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed commission repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListCandidates returns the agency's active commissions whose window and
// scope admit q, oldest first.
func (r *PGRepository) ListCandidates(ctx context.Context, q Query) ([]Commission, error) {
	const query = `
		SELECT id::text, agency_id::text, kind, value, hotel_code, board_type,
		       start_date, end_date, is_active, created_at
		FROM commissions
		WHERE agency_id::text = $1
		  AND is_active = true
		  AND (start_date IS NULL OR start_date <= $2)
		  AND (end_date IS NULL OR end_date >= $2)
		  AND (hotel_code IS NULL OR hotel_code = $3)
		  AND (board_type IS NULL OR board_type = $4)
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, q.AgencyID, q.At, nullable(q.HotelCode), nullable(q.BoardType))
	if err != nil {
		return nil, fmt.Errorf("commission: list: %w", err)
	}
	defer rows.Close()

	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, fmt.Errorf("commission: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("commission: iterate: %w", err)
	}

	return out, nil
}

func scanCommission(row pgx.Row) (Commission, error) {
	var (
		c    Commission
		kind string
	)
	err := row.Scan(
		&c.ID,
		&c.AgencyID,
		&kind,
		&c.Value,
		&c.HotelCode,
		&c.BoardType,
		&c.StartDate,
		&c.EndDate,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		return Commission{}, err
	}
	c.Kind = Kind(kind)
	return c, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
