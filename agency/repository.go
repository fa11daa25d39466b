package agency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested agency does not exist.
	ErrNotFound = errors.New("agency: not found")
	// ErrNotApproved signals the agency exists but may not book at agency prices.
	ErrNotApproved = errors.New("agency: not approved")
)

// Repository provides read access to agencies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches an agency by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Agency, error) {
	const query = `
		SELECT id::text, company_name, discount_rate, status, created_at
		FROM agencies
		WHERE id = $1
	`

	agency, err := scanAgency(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agency{}, ErrNotFound
		}
		// A malformed uuid can never name an agency.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return Agency{}, ErrNotFound
		}
		return Agency{}, fmt.Errorf("agency: query by id: %w", err)
	}

	return agency, nil
}

// List fetches up to limit agencies ordered by company name.
func (r *Repository) List(ctx context.Context, limit int) ([]Agency, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id::text, company_name, discount_rate, status, created_at
		FROM agencies
		ORDER BY company_name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("agency: list: %w", err)
	}
	defer rows.Close()

	agencies := make([]Agency, 0, limit)
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			return nil, fmt.Errorf("agency: scan agency: %w", err)
		}
		agencies = append(agencies, agency)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agency: iterate agencies: %w", err)
	}

	return agencies, nil
}

func scanAgency(row pgx.Row) (Agency, error) {
	var (
		agency Agency
		status string
	)
	if err := row.Scan(&agency.ID, &agency.CompanyName, &agency.DiscountRate, &status, &agency.CreatedAt); err != nil {
		return Agency{}, err
	}
	agency.Status = Status(status)
	return agency, nil
}
