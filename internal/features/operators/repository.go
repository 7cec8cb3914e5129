// Package operators — repository.go работает с таблицами operator_sessions
// и operator_login_attempts.
package operators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/common"
)

// Repository работает с админ-таблицами.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO operator_sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, last_seen_at
	`, s.UserID, s.TokenHash, s.ExpiresAt).Scan(&s.ID, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// LatestSession возвращает последнюю неотозванную сессию пользователя.
// Если её нет — common.ErrSessionExpired.
func (r *Repository) LatestSession(ctx context.Context, userID int64) (*Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, last_seen_at, revoked_at
		FROM operator_sessions
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	s, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Session])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrSessionExpired
		}
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return s, nil
}

// RevokeSessions отзывает все сессии пользователя.
func (r *Repository) RevokeSessions(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE operator_sessions SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("ошибка отзыва сессий: %w", err)
	}
	return nil
}

// Touch обновляет время последней активности.
func (r *Repository) Touch(ctx context.Context, sessionID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE operator_sessions SET last_seen_at = NOW() WHERE id = $1`, sessionID)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO operator_login_attempts (user_id, success) VALUES ($1, $2)`, userID, success)
	return err
}

// FailedAttemptsSince — число неудачных попыток начиная с since.
func (r *Repository) FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM operator_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempted_at >= $2
	`, userID, since).Scan(&count)
	return count, err
}
