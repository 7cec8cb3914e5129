// Package accounts — service.go: регистрация, проверка бана, шаблоны промо.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/transport"
)

// LeaderboardSize — сколько мест показываем в рейтинге.
const LeaderboardSize = 10

// Store — хранилище аккаунтов.
type Store interface {
	Create(ctx context.Context, a *Account) (bool, error)
	Get(ctx context.Context, userID int64) (*Account, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	SaveNormalLink(ctx context.Context, userID int64, tpl NormalLink) error
	SetForceJoinChannel(ctx context.Context, userID, channelID int64) error
	ActiveIDs(ctx context.Context, excluding int64) ([]int64, error)
	Leaderboard(ctx context.Context, limit int) ([]*Account, error)
}

// ReferralGranter начисляет реферальный бонус пригласившему.
type ReferralGranter interface {
	GrantReferralBonus(ctx context.Context, inviterID, amount int64) error
}

// Service управляет аккаунтами.
type Service struct {
	store     Store
	referrals ReferralGranter

	startingCredits int64
	referralBonus   int64
	dailyRuns       int
}

// NewService создаёт сервис аккаунтов.
func NewService(store Store, referrals ReferralGranter, cfg *config.Config) *Service {
	return &Service{
		store:           store,
		referrals:       referrals,
		startingCredits: cfg.EconomyStartingCredits,
		referralBonus:   cfg.ReferralBonus,
		dailyRuns:       cfg.DailyGroupRuns,
	}
}

// Register создаёт аккаунт при первом обращении.
// inviterID берётся из /start <id>; 0 — без приглашения.
// Бонус получает только существующий пригласивший, и только за новый аккаунт.
func (s *Service) Register(ctx context.Context, userID int64, username string, inviterID int64) (*Registration, error) {
	acc := &Account{
		UserID:         userID,
		Username:       username,
		Credits:        s.startingCredits,
		DailyGroupRuns: s.dailyRuns,
	}
	validInviter := inviterID != 0 && inviterID != userID
	if validInviter {
		exists, err := s.store.Exists(ctx, inviterID)
		if err != nil {
			return nil, err
		}
		validInviter = exists
	}
	if validInviter {
		acc.InvitedBy = &inviterID
	}

	created, err := s.store.Create(ctx, acc)
	if err != nil {
		return nil, err
	}

	reg := &Registration{Created: created}
	if created && validInviter {
		if err := s.referrals.GrantReferralBonus(ctx, inviterID, s.referralBonus); err != nil {
			// Аккаунт уже создан, бонус не критичен
			log.WithError(err).WithField("inviter_id", inviterID).Warn("Не удалось начислить реферальный бонус")
		} else {
			reg.Inviter = inviterID
		}
	}

	reg.Account, err = s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if created {
		log.WithFields(log.Fields{
			"user_id":    userID,
			"username":   username,
			"invited_by": reg.Inviter,
		}).Info("Новый аккаунт зарегистрирован")
	}
	return reg, nil
}

// Get возвращает аккаунт.
func (s *Service) Get(ctx context.Context, userID int64) (*Account, error) {
	return s.store.Get(ctx, userID)
}

// CheckAccess возвращает аккаунт или common.ErrBanned.
func (s *Service) CheckAccess(ctx context.Context, userID int64) (*Account, error) {
	acc, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acc.IsBanned {
		return nil, common.ErrBanned
	}
	return acc, nil
}

// SetBanned банит или разбанивает аккаунт.
func (s *Service) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if err := s.store.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "banned": banned}).Info("Статус бана изменён")
	return nil
}

// SaveNormalLink сохраняет шаблон обычного промо: текст и ссылку.
// src — исходное сообщение, чтобы рассылать его копией с форматированием.
func (s *Service) SaveNormalLink(ctx context.Context, userID int64, text, url string, src *transport.SourceRef) (*NormalLink, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.ErrEmptyText
	}
	url = strings.TrimSpace(url)
	if err := common.ValidateURL(url); err != nil {
		return nil, err
	}

	tpl := NormalLink{Text: text, URL: url}
	if src.Valid() {
		tpl.Source = src
	}
	if err := s.store.SaveNormalLink(ctx, userID, tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// SetForceJoinChannel сохраняет канал для заданий на подписку.
// Права бота в канале проверяет вызывающий.
func (s *Service) SetForceJoinChannel(ctx context.Context, userID, channelID int64) error {
	if channelID == 0 {
		return fmt.Errorf("пустой канал: %w", common.ErrChannelMissing)
	}
	return s.store.SetForceJoinChannel(ctx, userID, channelID)
}

// ActiveIDs — все незабаненные аккаунты, кроме excluding.
func (s *Service) ActiveIDs(ctx context.Context, excluding int64) ([]int64, error) {
	return s.store.ActiveIDs(ctx, excluding)
}

// Leaderboard — топ по просмотрам за неделю.
func (s *Service) Leaderboard(ctx context.Context) ([]*Account, error) {
	return s.store.Leaderboard(ctx, LeaderboardSize)
}

// IsNotFound — удобная проверка для обработчиков.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrAccountNotFound)
}
