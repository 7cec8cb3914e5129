// Package ledger — repository.go меняет балансы и квоты в таблице accounts.
// Каждое изменение баланса — одно атомарное UPDATE строки плюс запись в журнал
// в той же транзакции. CHECK (credits >= 0) не даёт балансу уйти в минус.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/db/postgres"
)

// Repository предоставляет методы для работы с балансами и журналом.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Adjust прибавляет delta (может быть отрицательной) к балансу и пишет журнал.
func (r *Repository) Adjust(ctx context.Context, userID, delta int64, entryType, description string) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return AdjustTx(ctx, tx, userID, delta, entryType, description)
	})
}

// AdjustTx — то же, что Adjust, внутри чужой транзакции.
// Используется при оплате промо, где списание и создание — одна транзакция.
func AdjustTx(ctx context.Context, tx pgx.Tx, userID, delta int64, entryType, description string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET credits = credits + $2, updated_at = NOW()
		WHERE user_id = $1
	`, userID, delta)
	if err != nil {
		if postgres.IsCheckViolation(err) {
			return fmt.Errorf("user_id=%d delta=%d: %w", userID, delta, common.ErrInsufficientBalance)
		}
		return fmt.Errorf("ошибка изменения баланса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user_id=%d: %w", userID, common.ErrAccountNotFound)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, amount, entry_type, description)
		VALUES ($1, $2, $3, $4)
	`, userID, delta, entryType, description); err != nil {
		return fmt.Errorf("ошибка записи в журнал: %w", err)
	}
	return nil
}

// GrantReferralBonus увеличивает ежедневный реферальный бонус.
func (r *Repository) GrantReferralBonus(ctx context.Context, inviterID, amount int64) error {
	return r.execOne(ctx, inviterID, `
		UPDATE accounts SET referral_credits = referral_credits + $2, updated_at = NOW()
		WHERE user_id = $1
	`, inviterID, amount)
}

// SetPremium включает премиум до expiry и поднимает лимиты.
func (r *Repository) SetPremium(ctx context.Context, userID int64, expiry time.Time, caps Caps) error {
	return r.execOne(ctx, userID, `
		UPDATE accounts
		SET is_premium = TRUE, premium_expiry = $2,
		    daily_group_runs = $3, image_broadcasts_left = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, expiry, caps.PremiumDailyRuns, caps.PremiumImageCap)
}

// ClearPremium выключает премиум и возвращает обычные лимиты.
func (r *Repository) ClearPremium(ctx context.Context, userID int64, caps Caps) error {
	return r.execOne(ctx, userID, `
		UPDATE accounts
		SET is_premium = FALSE, premium_expiry = NULL,
		    daily_group_runs = $2, image_broadcasts_left = 0, updated_at = NOW()
		WHERE user_id = $1
	`, userID, caps.DailyRuns)
}

// ExpirePremiums снимает премиум у всех, у кого срок истёк к now.
func (r *Repository) ExpirePremiums(ctx context.Context, now time.Time, caps Caps) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts
		SET is_premium = FALSE, premium_expiry = NULL,
		    daily_group_runs = LEAST(daily_group_runs, $2), image_broadcasts_left = 0, updated_at = NOW()
		WHERE is_premium = TRUE AND premium_expiry IS NOT NULL AND premium_expiry <= $1
	`, now, caps.DailyRuns)
	if err != nil {
		return 0, fmt.Errorf("ошибка снятия истёкшего премиума: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DailyReset: credits += referral_credits (бонус не обнуляется),
// запуски групповой рассылки — до дневного лимита.
func (r *Repository) DailyReset(ctx context.Context, caps Caps) (int64, error) {
	var affected int64
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (user_id, amount, entry_type, description)
			SELECT user_id, referral_credits, $1, 'ежедневный реферальный бонус'
			FROM accounts WHERE referral_credits > 0
		`, EntryReferralDaily); err != nil {
			return fmt.Errorf("ошибка записи бонусов в журнал: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET credits = credits + referral_credits,
			    daily_group_runs = CASE WHEN is_premium THEN $2 ELSE $1 END,
			    updated_at = NOW()
		`, caps.DailyRuns, caps.PremiumDailyRuns)
		if err != nil {
			return fmt.Errorf("ошибка ежедневного сброса: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// WeeklyReset обнуляет счётчик просмотров у всех.
func (r *Repository) WeeklyReset(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET views_received = 0, updated_at = NOW() WHERE views_received <> 0`)
	if err != nil {
		return 0, fmt.Errorf("ошибка еженедельного сброса: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DailyImageReset восстанавливает лимит рассылки картинок премиум-аккаунтам.
func (r *Repository) DailyImageReset(ctx context.Context, caps Caps) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET image_broadcasts_left = $1, updated_at = NOW()
		WHERE is_premium = TRUE
	`, caps.PremiumImageCap)
	if err != nil {
		return 0, fmt.Errorf("ошибка сброса лимита картинок: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UseGroupRun списывает один запуск, только если он есть.
func (r *Repository) UseGroupRun(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET daily_group_runs = daily_group_runs - 1, updated_at = NOW()
		WHERE user_id = $1 AND daily_group_runs > 0
	`, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка списания запуска: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UseImageAllowance уменьшает лимит картинок на n, не ниже нуля.
func (r *Repository) UseImageAllowance(ctx context.Context, userID int64, n int) error {
	return r.execOne(ctx, userID, `
		UPDATE accounts SET image_broadcasts_left = GREATEST(image_broadcasts_left - $2, 0), updated_at = NOW()
		WHERE user_id = $1
	`, userID, n)
}

// AddView засчитывает промоутеру один просмотр.
func (r *Repository) AddView(ctx context.Context, userID int64) error {
	return r.execOne(ctx, userID, `
		UPDATE accounts SET views_received = views_received + 1, updated_at = NOW()
		WHERE user_id = $1
	`, userID)
}

// History возвращает последние N записей журнала.
func (r *Repository) History(ctx context.Context, userID int64, limit int) ([]*Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, amount, entry_type, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Entry])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования журнала: %w", err)
	}
	return entries, nil
}

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
