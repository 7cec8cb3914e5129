// Package accounts — repository.go отвечает за операции с таблицей accounts,
// кроме изменения балансов и квот (это делает ledger).
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/common"
)

const accountColumns = `
	user_id, username, credits, referral_credits, invited_by,
	is_premium, premium_expiry, is_banned,
	daily_group_runs, image_broadcasts_left,
	normal_text, normal_url, normal_chat_id, normal_message_id,
	force_join_channel_id, views_received, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет аккаунт. Если он уже есть — обновляет только username.
// Возвращает true, если строка вставлена впервые.
func (r *Repository) Create(ctx context.Context, a *Account) (bool, error) {
	query := `
		INSERT INTO accounts (user_id, username, credits, invited_by, daily_group_runs)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username, updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := r.db.QueryRow(ctx, query,
		a.UserID, a.Username, a.Credits, a.InvitedBy, a.DailyGroupRuns,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("ошибка создания аккаунта (user_id=%d): %w", a.UserID, err)
	}
	return inserted, nil
}

// Get: если не найден — ошибка оборачивает common.ErrAccountNotFound.
func (r *Repository) Get(ctx context.Context, userID int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	a, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user_id=%d: %w", userID, common.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения аккаунта (user_id=%d): %w", userID, err)
	}
	return a, nil
}

func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1)`, userID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки существования: %w", err)
	}
	return exists, nil
}

func (r *Repository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	return r.execOne(ctx, userID,
		`UPDATE accounts SET is_banned = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, banned)
}

func (r *Repository) SaveNormalLink(ctx context.Context, userID int64, tpl NormalLink) error {
	var chatID *int64
	var messageID *int
	if tpl.Source.Valid() {
		chatID, messageID = &tpl.Source.ChatID, &tpl.Source.MessageID
	}
	return r.execOne(ctx, userID, `
		UPDATE accounts
		SET normal_text = $2, normal_url = $3, normal_chat_id = $4, normal_message_id = $5, updated_at = NOW()
		WHERE user_id = $1
	`, userID, tpl.Text, tpl.URL, chatID, messageID)
}

func (r *Repository) SetForceJoinChannel(ctx context.Context, userID, channelID int64) error {
	return r.execOne(ctx, userID,
		`UPDATE accounts SET force_join_channel_id = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, channelID)
}

// ActiveIDs возвращает ID всех незабаненных аккаунтов, кроме excluding.
func (r *Repository) ActiveIDs(ctx context.Context, excluding int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id FROM accounts WHERE is_banned = FALSE AND user_id <> $1`, excluding)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса аккаунтов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения аккаунтов: %w", err)
	}
	return ids, nil
}

// Leaderboard возвращает топ незабаненных аккаунтов по просмотрам за неделю.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]*Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_banned = FALSE AND views_received > 0
		ORDER BY views_received DESC, user_id
		LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса рейтинга: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// execOne выполняет UPDATE одной строки; 0 затронутых строк — аккаунта нет.
func (r *Repository) execOne(ctx context.Context, userID int64, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("ошибка обновления аккаунта (user_id=%d): %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user_id=%d: %w", userID, common.ErrAccountNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.UserID, &a.Username, &a.Credits, &a.ReferralCredits, &a.InvitedBy,
		&a.IsPremium, &a.PremiumExpiry, &a.IsBanned,
		&a.DailyGroupRuns, &a.ImageBroadcastsLeft,
		&a.NormalText, &a.NormalURL, &a.NormalChatID, &a.NormalMessageID,
		&a.ForceJoinChannelID, &a.ViewsReceived, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
