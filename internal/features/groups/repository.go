// Package groups — repository.go отвечает за операции с таблицей groups.
package groups

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/promo-bot/internal/common"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create добавляет группу. false — группа уже была, строка не менялась.
func (r *Repository) Create(ctx context.Context, g *Group) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO groups (chat_id, title, is_admin, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO NOTHING
	`, g.ChatID, g.Title, g.IsAdmin, g.AddedBy)
	if err != nil {
		return false, fmt.Errorf("ошибка регистрации группы (chat_id=%d): %w", g.ChatID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get: если не найдена — ошибка оборачивает common.ErrGroupNotFound.
func (r *Repository) Get(ctx context.Context, chatID int64) (*Group, error) {
	rows, err := r.db.Query(ctx, `
		SELECT chat_id, title, is_admin, added_by, created_at, updated_at
		FROM groups WHERE chat_id = $1
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения группы (chat_id=%d): %w", chatID, err)
	}
	g, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Group])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat_id=%d: %w", chatID, common.ErrGroupNotFound)
		}
		return nil, fmt.Errorf("ошибка чтения группы (chat_id=%d): %w", chatID, err)
	}
	return g, nil
}

// SetAdmin обновляет права бота и название группы.
func (r *Repository) SetAdmin(ctx context.Context, chatID int64, title string, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE groups
		SET is_admin = $2, title = CASE WHEN $3 = '' THEN title ELSE $3 END, updated_at = NOW()
		WHERE chat_id = $1
	`, chatID, isAdmin, title)
	if err != nil {
		return fmt.Errorf("ошибка обновления группы (chat_id=%d): %w", chatID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat_id=%d: %w", chatID, common.ErrGroupNotFound)
	}
	return nil
}

// AdminGroupIDs — группы, где бот администратор.
func (r *Repository) AdminGroupIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT chat_id FROM groups WHERE is_admin = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса групп: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения групп: %w", err)
	}
	return ids, nil
}

// Counts — всего групп и сколько из них с правами администратора.
func (r *Repository) Counts(ctx context.Context) (total, admin int, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_admin) FROM groups`,
	).Scan(&total, &admin)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта групп: %w", err)
	}
	return total, admin, nil
}
