// Package filters решает, обслуживать ли апдейт: бот работает в личке,
// каждого пишущего регистрирует и отсекает забаненных.
package filters

import (
	"context"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/accounts"
)

// Registrar регистрирует аккаунт при первом обращении.
type Registrar interface {
	Register(ctx context.Context, userID int64, username string, inviterID int64) (*accounts.Registration, error)
}

// Notifier сообщает пользователю об отказе.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string)
}

// Verdict — итог проверки.
type Verdict struct {
	Account *accounts.Account
	Reg     *accounts.Registration
}

type AccessFilter struct {
	registrar Registrar
	notifier  Notifier
}

func NewAccessFilter(registrar Registrar, notifier Notifier) *AccessFilter {
	return &AccessFilter{registrar: registrar, notifier: notifier}
}

// Request — кто и где пишет.
type Request struct {
	ChatID    int64
	Private   bool
	UserID    int64
	Username  string
	UserIsBot bool
	InviterID int64 // Из /start <id>, 0 — нет
}

// Check регистрирует пользователя и возвращает аккаунт.
// nil — апдейт не обслуживаем (не личка, бот или бан).
func (f *AccessFilter) Check(ctx context.Context, req Request) *Verdict {
	logger := log.WithFields(log.Fields{
		"component": "AccessFilter",
		"chat_id":   req.ChatID,
		"user_id":   req.UserID,
	})

	if req.UserID == 0 || req.UserIsBot {
		logger.Debug("deny: no sender or bot")
		return nil
	}
	if !req.Private {
		logger.Debug("deny: not a private chat")
		return nil
	}

	reg, err := f.registrar.Register(ctx, req.UserID, req.Username, req.InviterID)
	if err != nil {
		logger.WithError(err).Error("register failed (db)")
		f.notifier.Notify(ctx, req.ChatID, common.UserMessage(err))
		return nil
	}
	if reg.Account.IsBanned {
		logger.Info("deny: banned")
		f.notifier.Notify(ctx, req.ChatID, "🚫 "+common.UserMessage(common.ErrBanned))
		return nil
	}
	return &Verdict{Account: reg.Account, Reg: reg}
}
