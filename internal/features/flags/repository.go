package flags

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с таблицей feature_flags.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Seed(ctx context.Context, names []string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO feature_flags (name, enabled)
		SELECT unnest($1::text[]), TRUE
		ON CONFLICT (name) DO NOTHING
	`, names)
	if err != nil {
		return fmt.Errorf("ошибка создания флагов: %w", err)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT name, enabled FROM feature_flags`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения флагов: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, fmt.Errorf("ошибка сканирования флага: %w", err)
		}
		out[name] = enabled
	}
	return out, rows.Err()
}

func (r *Repository) Set(ctx context.Context, name string, enabled bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO feature_flags (name, enabled, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()
	`, name, enabled)
	if err != nil {
		return fmt.Errorf("ошибка изменения флага %s: %w", name, err)
	}
	return nil
}
