package promotions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/db/postgres"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Repository работает с таблицей promotions.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func payloadArgs(p Payload) (text, url *string, chatID *int64, messageID *int, channelID *int64) {
	if p.Text != "" {
		text = &p.Text
	}
	if p.URL != "" {
		url = &p.URL
	}
	if p.Source.Valid() {
		chatID, messageID = &p.Source.ChatID, &p.Source.MessageID
	}
	if p.ChannelID != 0 {
		channelID = &p.ChannelID
	}
	return
}

const insertPromotion = `
	INSERT INTO promotions (owner_id, promo_type, budget, text, url, source_chat_id, source_message_id, channel_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id, created_at`

// Create добавляет промо без списания. Оплату сделал вызывающий.
func (r *Repository) Create(ctx context.Context, p *Promotion) error {
	text, url, chatID, messageID, channelID := payloadArgs(p.Payload)
	err := r.db.QueryRow(ctx, insertPromotion,
		p.OwnerID, string(p.Type), p.Budget, text, url, chatID, messageID, channelID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания промо: %w", err)
	}
	return nil
}

// Fund в одной транзакции списывает budget кредитов, пишет журнал и создаёт промо.
// Если кредитов не хватает, ничего не меняется.
func (r *Repository) Fund(ctx context.Context, p *Promotion) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts SET credits = credits - $2, updated_at = NOW()
			WHERE user_id = $1 AND credits >= $2
		`, p.OwnerID, p.Budget)
		if err != nil {
			return fmt.Errorf("ошибка списания за промо: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("user_id=%d budget=%d: %w", p.OwnerID, p.Budget, common.ErrInsufficientBalance)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (user_id, amount, entry_type, description)
			VALUES ($1, $2, $3, $4)
		`, p.OwnerID, -int64(p.Budget), ledger.EntryPromotionFund, "оплата промо"); err != nil {
			return fmt.Errorf("ошибка записи в журнал: %w", err)
		}

		text, url, chatID, messageID, channelID := payloadArgs(p.Payload)
		if err := tx.QueryRow(ctx, insertPromotion,
			p.OwnerID, string(p.Type), p.Budget, text, url, chatID, messageID, channelID,
		).Scan(&p.ID, &p.CreatedAt); err != nil {
			return fmt.Errorf("ошибка создания промо: %w", err)
		}
		return nil
	})
}

// DecrementBudgetTx уменьшает бюджет на 1 внутри чужой транзакции.
// false — бюджет уже 0, это не ошибка.
func DecrementBudgetTx(ctx context.Context, tx pgx.Tx, promotionID int64) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE promotions SET budget = budget - 1 WHERE id = $1 AND budget > 0`, promotionID)
	if err != nil {
		return false, fmt.Errorf("ошибка списания бюджета промо %d: %w", promotionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Get(ctx context.Context, promotionID int64) (*Promotion, error) {
	var (
		p         Promotion
		promoType string
		text, url *string
		chatID    *int64
		messageID *int
		channelID *int64
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, promo_type, budget, text, url, source_chat_id, source_message_id, channel_id, created_at
		FROM promotions WHERE id = $1
	`, promotionID).Scan(
		&p.ID, &p.OwnerID, &promoType, &p.Budget, &text, &url, &chatID, &messageID, &channelID, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("promotion_id=%d: %w", promotionID, common.ErrPromotionNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения промо %d: %w", promotionID, err)
	}

	p.Type = Type(promoType)
	if text != nil {
		p.Payload.Text = *text
	}
	if url != nil {
		p.Payload.URL = *url
	}
	if chatID != nil && messageID != nil {
		p.Payload.Source = &transport.SourceRef{ChatID: *chatID, MessageID: *messageID}
	}
	if channelID != nil {
		p.Payload.ChannelID = *channelID
	}
	return &p, nil
}

// EligibleIDs — промо с бюджетом, чужие и ещё не выполненные userID.
func (r *Repository) EligibleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id FROM promotions p
		WHERE p.budget > 0 AND p.owner_id <> $1
		  AND NOT EXISTS (SELECT 1 FROM claims c WHERE c.promotion_id = p.id AND c.user_id = $1)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска заданий: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заданий: %w", err)
	}
	return ids, nil
}

// CountActive — сколько промо владельца ещё с бюджетом.
func (r *Repository) CountActive(ctx context.Context, ownerID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM promotions WHERE owner_id = $1 AND budget > 0`, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта промо: %w", err)
	}
	return n, nil
}
