// Package ledger — service.go: валидация сумм и операции над балансом и квотами.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
)

// historySize — сколько последних операций показываем.
const historySize = 10

// Store — хранилище балансов. Реализация — *Repository.
type Store interface {
	Adjust(ctx context.Context, userID, delta int64, entryType, description string) error
	GrantReferralBonus(ctx context.Context, inviterID, amount int64) error
	SetPremium(ctx context.Context, userID int64, expiry time.Time, caps Caps) error
	ClearPremium(ctx context.Context, userID int64, caps Caps) error
	ExpirePremiums(ctx context.Context, now time.Time, caps Caps) (int64, error)
	DailyReset(ctx context.Context, caps Caps) (int64, error)
	WeeklyReset(ctx context.Context) (int64, error)
	DailyImageReset(ctx context.Context, caps Caps) (int64, error)
	UseGroupRun(ctx context.Context, userID int64) (bool, error)
	UseImageAllowance(ctx context.Context, userID int64, n int) error
	AddView(ctx context.Context, userID int64) error
	History(ctx context.Context, userID int64, limit int) ([]*Entry, error)
}

// Service управляет кредитами и суточными лимитами.
type Service struct {
	store Store
	caps  Caps
	loc   *time.Location
	now   func() time.Time
}

// NewService создаёт сервис учёта.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store: store,
		caps: Caps{
			DailyRuns:        cfg.DailyGroupRuns,
			PremiumDailyRuns: cfg.PremiumDailyGroupRuns,
			PremiumImageCap:  cfg.PremiumImageCap,
		},
		loc: cfg.Location(),
		now: time.Now,
	}
}

// Caps возвращает действующие лимиты.
func (s *Service) Caps() Caps {
	return s.caps
}

// Adjust меняет баланс на delta. Проверку «хватает ли» делает вызывающий,
// отрицательный итог отклонит БД (common.ErrInsufficientBalance).
func (s *Service) Adjust(ctx context.Context, userID, delta int64, entryType, description string) error {
	if delta == 0 {
		return common.ErrInvalidAmount
	}
	return s.store.Adjust(ctx, userID, delta, entryType, description)
}

// Spend списывает amount кредитов.
func (s *Service) Spend(ctx context.Context, userID, amount int64, entryType, description string) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	return s.store.Adjust(ctx, userID, -amount, entryType, description)
}

// Reward начисляет amount кредитов.
func (s *Service) Reward(ctx context.Context, userID, amount int64, entryType, description string) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	return s.store.Adjust(ctx, userID, amount, entryType, description)
}

// GrantReferralBonus увеличивает ежедневный бонус пригласившего.
func (s *Service) GrantReferralBonus(ctx context.Context, inviterID, amount int64) error {
	if amount <= 0 {
		return common.ErrInvalidAmount
	}
	return s.store.GrantReferralBonus(ctx, inviterID, amount)
}

// SetPremium выдаёт премиум на days дней от текущего момента.
// Возвращает дату окончания.
func (s *Service) SetPremium(ctx context.Context, userID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, common.ErrInvalidNumber
	}
	expiry := s.now().Add(time.Duration(days) * 24 * time.Hour)
	if err := s.store.SetPremium(ctx, userID, expiry, s.caps); err != nil {
		return time.Time{}, err
	}
	log.WithFields(log.Fields{
		"user_id": userID,
		"days":    days,
		"expiry":  common.FormatDate(expiry, s.loc),
	}).Info("Премиум выдан")
	return expiry, nil
}

// ClearPremium снимает премиум.
func (s *Service) ClearPremium(ctx context.Context, userID int64) error {
	if err := s.store.ClearPremium(ctx, userID, s.caps); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Премиум снят")
	return nil
}

// ExpirePremiums снимает истёкший премиум со всех аккаунтов.
func (s *Service) ExpirePremiums(ctx context.Context) (int64, error) {
	return s.store.ExpirePremiums(ctx, s.now(), s.caps)
}

// DailyReset начисляет реферальные бонусы и восстанавливает запуски.
func (s *Service) DailyReset(ctx context.Context) (int64, error) {
	return s.store.DailyReset(ctx, s.caps)
}

// WeeklyReset обнуляет недельные просмотры.
func (s *Service) WeeklyReset(ctx context.Context) (int64, error) {
	return s.store.WeeklyReset(ctx)
}

// DailyImageReset восстанавливает лимит картинок премиум-аккаунтам.
func (s *Service) DailyImageReset(ctx context.Context) (int64, error) {
	return s.store.DailyImageReset(ctx, s.caps)
}

// UseGroupRun списывает запуск групповой рассылки.
// Если запусков нет — common.ErrNoRunsLeft.
func (s *Service) UseGroupRun(ctx context.Context, userID int64) error {
	ok, err := s.store.UseGroupRun(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrNoRunsLeft
	}
	return nil
}

// UseImageAllowance уменьшает лимит картинок на n.
func (s *Service) UseImageAllowance(ctx context.Context, userID int64, n int) error {
	if n <= 0 {
		return nil
	}
	return s.store.UseImageAllowance(ctx, userID, n)
}

// AddView засчитывает промоутеру просмотр.
func (s *Service) AddView(ctx context.Context, userID int64) error {
	return s.store.AddView(ctx, userID)
}

// FormatHistory возвращает последние операции текстом.
func (s *Service) FormatHistory(ctx context.Context, userID int64) (string, error) {
	entries, err := s.store.History(ctx, userID, historySize)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "📋 Операций пока нет", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d операций:\n\n", len(entries)))
	for i, e := range entries {
		sign := "+"
		amount := e.Amount
		if amount < 0 {
			sign = "-"
			amount = -amount
		}
		sb.WriteString(fmt.Sprintf("%d. %s | %s%d %s | %s\n",
			i+1,
			common.FormatDateTime(e.CreatedAt, s.loc),
			sign, amount, common.PluralizeCredits(amount),
			e.Description,
		))
	}
	return sb.String(), nil
}
