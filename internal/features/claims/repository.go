// Package claims учитывает выполненные задания: не больше одной отметки
// на пару (пользователь, промо). Вставка отметки — точка, после которой
// выполнение считается засчитанным.
package claims

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/db/postgres"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/features/promotions"
)

// Outcome — чем закончилась попытка засчитать выполнение.
type Outcome int

const (
	// Duplicate — отметка уже была, ничего не изменилось.
	Duplicate Outcome = iota
	// Paid — отметка вставлена, бюджет списан, награда начислена.
	Paid
	// Exhausted — отметка вставлена, но бюджета уже нет. Награды нет.
	Exhausted
)

// Repository работает с таблицей claims.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// HasClaimed — только для интерфейса. Решение о выплате принимает Settle.
func (r *Repository) HasClaimed(ctx context.Context, userID, promotionID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE user_id = $1 AND promotion_id = $2)`,
		userID, promotionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки выполнения: %w", err)
	}
	return exists, nil
}

// RecordClaimTx вставляет отметку внутри чужой транзакции.
// false — отметка уже была, это не ошибка.
func RecordClaimTx(ctx context.Context, tx pgx.Tx, userID, promotionID int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO claims (user_id, promotion_id) VALUES ($1, $2)
		ON CONFLICT (user_id, promotion_id) DO NOTHING
	`, userID, promotionID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи выполнения (user_id=%d, promotion_id=%d): %w", userID, promotionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Settle в одной транзакции вставляет отметку, списывает единицу бюджета
// и начисляет reward исполнителю. Любая ошибка откатывает всё, и повтор
// снова дойдёт до вставки. Исход решает вставка: нет строки — Duplicate.
func (r *Repository) Settle(ctx context.Context, userID, promotionID, reward int64, description string) (Outcome, error) {
	outcome := Duplicate
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		inserted, err := RecordClaimTx(ctx, tx, userID, promotionID)
		if err != nil {
			return err
		}
		if !inserted {
			outcome = Duplicate
			return nil
		}

		ok, err := promotions.DecrementBudgetTx(ctx, tx, promotionID)
		if err != nil {
			return err
		}
		if !ok {
			// Отметка остаётся: задание больше не выдаётся этому пользователю
			outcome = Exhausted
			return nil
		}

		if err := ledger.AdjustTx(ctx, tx, userID, reward, ledger.EntryTaskReward, description); err != nil {
			return err
		}
		outcome = Paid
		return nil
	})
	if err != nil {
		return Duplicate, err
	}
	return outcome, nil
}
