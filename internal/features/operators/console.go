// Package operators — console.go: админские операции над аккаунтами.
// Права проверяет вызывающий через Service.Authorize.
package operators

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/accounts"
)

// Accounts — чтение и бан аккаунтов.
type Accounts interface {
	Get(ctx context.Context, userID int64) (*accounts.Account, error)
	SetBanned(ctx context.Context, userID int64, banned bool) error
	ActiveIDs(ctx context.Context, excluding int64) ([]int64, error)
}

// Premium — выдача и снятие премиума.
type Premium interface {
	SetPremium(ctx context.Context, userID int64, days int) (time.Time, error)
	ClearPremium(ctx context.Context, userID int64) error
}

// Groups — счётчики зарегистрированных групп.
type Groups interface {
	Counts(ctx context.Context) (total, admin int, err error)
}

// Promotions — число активных промо владельца.
type Promotions interface {
	CountActive(ctx context.Context, ownerID int64) (int, error)
}

// Console — админские операции.
type Console struct {
	accounts   Accounts
	premium    Premium
	groups     Groups
	promotions Promotions
	loc        *time.Location
}

func NewConsole(accounts Accounts, premium Premium, groups Groups, promotions Promotions, loc *time.Location) *Console {
	return &Console{
		accounts:   accounts,
		premium:    premium,
		groups:     groups,
		promotions: promotions,
		loc:        loc,
	}
}

// ParseUserID разбирает ID аккаунта из ввода админа и проверяет, что аккаунт есть.
func (c *Console) ParseUserID(ctx context.Context, input string) (*accounts.Account, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil || id <= 0 {
		return nil, common.ErrInvalidNumber
	}
	return c.accounts.Get(ctx, id)
}

// ParseDays разбирает срок премиума в днях.
func ParseDays(input string) (int, error) {
	days, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, common.ErrInvalidNumber
	}
	if days <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return days, nil
}

// GrantPremium выдаёт премиум на days дней.
func (c *Console) GrantPremium(ctx context.Context, adminID, userID int64, days int) (time.Time, error) {
	expiry, err := c.premium.SetPremium(ctx, userID, days)
	if err != nil {
		return time.Time{}, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"days":     days,
	}).Info("Премиум выдан")
	return expiry, nil
}

// RemovePremium снимает премиум.
func (c *Console) RemovePremium(ctx context.Context, adminID, userID int64) error {
	if err := c.premium.ClearPremium(ctx, userID); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "user_id": userID}).Info("Премиум снят")
	return nil
}

// SetBanned банит или разбанивает. Себя забанить нельзя.
func (c *Console) SetBanned(ctx context.Context, adminID, userID int64, banned bool) error {
	if banned && adminID == userID {
		return common.ErrInvalidAction
	}
	if err := c.accounts.SetBanned(ctx, userID, banned); err != nil {
		return err
	}
	log.WithFields(log.Fields{"admin_id": adminID, "user_id": userID, "banned": banned}).Info("Бан изменён админом")
	return nil
}

// AccountStats — карточка аккаунта для админа.
func (c *Console) AccountStats(ctx context.Context, userID int64) (string, error) {
	acc, err := c.accounts.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	active, err := c.promotions.CountActive(ctx, userID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "👤 %s (id %d)\n\n", acc.DisplayName(), acc.UserID)
	fmt.Fprintf(&sb, "💰 Баланс: %s\n", common.FormatCredits(acc.Credits))
	fmt.Fprintf(&sb, "🎁 Реферальный бонус: %s в день\n", common.FormatCredits(acc.ReferralCredits))
	if acc.IsPremium && acc.PremiumExpiry != nil {
		fmt.Fprintf(&sb, "⭐ Премиум до %s\n", common.FormatDate(*acc.PremiumExpiry, c.loc))
	} else {
		sb.WriteString("⭐ Премиум: нет\n")
	}
	fmt.Fprintf(&sb, "📣 Запусков осталось: %d\n", acc.DailyGroupRuns)
	fmt.Fprintf(&sb, "🖼 Рассылок картинок: %d\n", acc.ImageBroadcastsLeft)
	fmt.Fprintf(&sb, "👁 Просмотров за неделю: %s\n", common.FormatNumber(acc.ViewsReceived))
	fmt.Fprintf(&sb, "📌 Активных промо: %d\n", active)
	if acc.IsBanned {
		sb.WriteString("\n🚫 Заблокирован")
	}
	fmt.Fprintf(&sb, "\nС нами с %s", common.FormatDate(acc.CreatedAt, c.loc))
	return sb.String(), nil
}

// GlobalStats — сводка по боту.
func (c *Console) GlobalStats(ctx context.Context) (string, error) {
	ids, err := c.accounts.ActiveIDs(ctx, 0)
	if err != nil {
		return "", err
	}
	total, admin, err := c.groups.Counts(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"📊 Статистика\n\n👥 Активных аккаунтов: %s\n🏘 Групп: %d (бот админ в %d)",
		common.FormatNumber(int64(len(ids))), total, admin,
	), nil
}
