// Package groups — service.go: регистрация группы и бонус за добавление бота.
package groups

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Store — хранилище групп. Реализация — *Repository.
type Store interface {
	Create(ctx context.Context, g *Group) (bool, error)
	Get(ctx context.Context, chatID int64) (*Group, error)
	SetAdmin(ctx context.Context, chatID int64, title string, isAdmin bool) error
	AdminGroupIDs(ctx context.Context) ([]int64, error)
	Counts(ctx context.Context) (total, admin int, err error)
}

// Chats — число участников группы.
type Chats interface {
	MemberCount(ctx context.Context, chatID int64) (int, error)
}

// Accounts — аккаунт добавившего.
type Accounts interface {
	Get(ctx context.Context, userID int64) (*accounts.Account, error)
}

// Rewarder начисляет бонус.
type Rewarder interface {
	Reward(ctx context.Context, userID, amount int64, entryType, description string) error
}

// Service управляет реестром групп.
type Service struct {
	store    Store
	chats    Chats
	accounts Accounts
	rewarder Rewarder

	bonus        int64
	bonusPremium int64
	minMembers   int
}

func NewService(store Store, chats Chats, accounts Accounts, rewarder Rewarder, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		chats:        chats,
		accounts:     accounts,
		rewarder:     rewarder,
		bonus:        cfg.GroupBonus,
		bonusPremium: cfg.GroupBonusPremium,
		minMembers:   cfg.GroupBonusMinMembers,
	}
}

// HandleBotStatus обрабатывает изменение статуса бота в группе.
// Изменения, сделанные другими ботами, игнорируются (nil, nil).
// Бонус начисляется один раз: новой группе, где бот сразу администратор
// и участников больше minMembers.
func (s *Service) HandleBotStatus(ctx context.Context, ev BotStatusChange) (*Outcome, error) {
	if ev.ActorIsBot {
		return nil, nil
	}
	isAdmin := transport.IsAdmin(ev.Status)
	present := isAdmin || ev.Status == transport.StatusMember || ev.Status == transport.StatusRestricted

	existing, err := s.store.Get(ctx, ev.ChatID)
	if err != nil && !errors.Is(err, common.ErrGroupNotFound) {
		return nil, err
	}

	if existing != nil {
		if err := s.store.SetAdmin(ctx, ev.ChatID, ev.Title, isAdmin); err != nil {
			return nil, err
		}
		existing.IsAdmin = isAdmin
		log.WithFields(log.Fields{"chat_id": ev.ChatID, "is_admin": isAdmin}).Info("Статус бота в группе обновлён")
		return &Outcome{Group: existing, NeedsAdmin: present && !isAdmin, Removed: !present}, nil
	}

	if !present {
		return nil, nil
	}

	g := &Group{ChatID: ev.ChatID, Title: ev.Title, IsAdmin: isAdmin, AddedBy: ev.ActorID}
	created, err := s.store.Create(ctx, g)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Group: g, Created: created, NeedsAdmin: !isAdmin}
	if !created || !isAdmin {
		return out, nil
	}

	log.WithFields(log.Fields{
		"chat_id":  ev.ChatID,
		"title":    ev.Title,
		"added_by": ev.ActorID,
	}).Info("Бот добавлен в новую группу")

	out.Bonus = s.grantBonus(ctx, ev)
	return out, nil
}

// grantBonus возвращает начисленную сумму. Ошибки только логируются:
// группа уже зарегистрирована, повторно бонус не выдаётся.
func (s *Service) grantBonus(ctx context.Context, ev BotStatusChange) int64 {
	logger := log.WithFields(log.Fields{"chat_id": ev.ChatID, "user_id": ev.ActorID})

	count, err := s.chats.MemberCount(ctx, ev.ChatID)
	if err != nil {
		logger.WithError(err).Warn("Не удалось получить число участников")
		return 0
	}
	if count <= s.minMembers {
		return 0
	}

	acc, err := s.accounts.Get(ctx, ev.ActorID)
	if err != nil {
		logger.WithError(err).Debug("Добавивший не зарегистрирован, бонус не начислен")
		return 0
	}
	bonus := s.bonus
	if acc.IsPremium {
		bonus = s.bonusPremium
	}

	desc := fmt.Sprintf("добавление бота в группу %d", ev.ChatID)
	if err := s.rewarder.Reward(ctx, ev.ActorID, bonus, ledger.EntryGroupBonus, desc); err != nil {
		logger.WithError(err).Error("Не удалось начислить бонус за группу")
		return 0
	}
	logger.WithFields(log.Fields{"members": count, "bonus": bonus}).Info("Бонус за группу начислен")
	return bonus
}

// AdminGroupIDs — группы, доступные для рассылки.
func (s *Service) AdminGroupIDs(ctx context.Context) ([]int64, error) {
	return s.store.AdminGroupIDs(ctx)
}

// Counts — статистика для админ-панели.
func (s *Service) Counts(ctx context.Context) (total, admin int, err error) {
	return s.store.Counts(ctx)
}
