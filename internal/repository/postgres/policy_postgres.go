package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"docgov/internal/repository"
)

// PolicyPostgres is the durable policy key/value store.
type PolicyPostgres struct {
	db *sql.DB
}

// NewPolicyPostgres creates a new PolicyPostgres repository.
func NewPolicyPostgres(db *sql.DB) *PolicyPostgres {
	return &PolicyPostgres{db: db}
}

var _ repository.PolicyRepository = (*PolicyPostgres)(nil)

// FetchAll returns every policy row as key_name -> value.
func (r *PolicyPostgres) FetchAll(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key_name, value FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("fetch policies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch policies: %w", err)
	}
	return out, nil
}

// Upsert inserts or replaces a policy value.
func (r *PolicyPostgres) Upsert(ctx context.Context, key, value string) error {
	const q = `
		INSERT INTO policies (key_name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key_name) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("upsert policy %s: %w", key, err)
	}
	return nil
}
