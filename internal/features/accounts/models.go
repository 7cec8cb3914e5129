// Package accounts управляет аккаунтами пользователей бота: регистрацией
// (с реферальной ссылкой), банами, сохранёнными шаблонами промо и рейтингом.
// models.go описывает структуры данных таблицы accounts.
package accounts

import (
	"strconv"
	"time"

	"serotonyl.ru/promo-bot/internal/transport"
)

// Account — аккаунт пользователя. Балансы и квоты меняет пакет ledger,
// здесь они только читаются.
type Account struct {
	UserID          int64  `db:"user_id"`          // Telegram user ID
	Username        string `db:"username"`         // @username (может быть пустым)
	Credits         int64  `db:"credits"`          // Основной баланс, >= 0
	ReferralCredits int64  `db:"referral_credits"` // Ежедневный реферальный бонус
	InvitedBy       *int64 `db:"invited_by"`       // Кто пригласил

	IsPremium     bool       `db:"is_premium"`
	PremiumExpiry *time.Time `db:"premium_expiry"`
	IsBanned      bool       `db:"is_banned"`

	DailyGroupRuns      int `db:"daily_group_runs"`      // Запуски групповой рассылки на сегодня
	ImageBroadcastsLeft int `db:"image_broadcasts_left"` // Остаток получателей рассылки картинок

	NormalText      *string `db:"normal_text"`
	NormalURL       *string `db:"normal_url"`
	NormalChatID    *int64  `db:"normal_chat_id"`
	NormalMessageID *int    `db:"normal_message_id"`

	ForceJoinChannelID *int64 `db:"force_join_channel_id"`
	ViewsReceived      int64  `db:"views_received"` // Сбрасывается раз в неделю

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NormalLink — сохранённый шаблон обычного промо.
type NormalLink struct {
	Text   string
	URL    string
	Source *transport.SourceRef // Исходное сообщение, если нужно сохранить форматирование
}

// DisplayName возвращает @username или ID.
func (a *Account) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	return "id" + strconv.FormatInt(a.UserID, 10)
}

// NormalTemplate возвращает шаблон обычного промо или nil, если он не настроен.
func (a *Account) NormalTemplate() *NormalLink {
	if a.NormalText == nil || a.NormalURL == nil || *a.NormalText == "" || *a.NormalURL == "" {
		return nil
	}
	tpl := &NormalLink{Text: *a.NormalText, URL: *a.NormalURL}
	if a.NormalChatID != nil && a.NormalMessageID != nil {
		tpl.Source = &transport.SourceRef{ChatID: *a.NormalChatID, MessageID: *a.NormalMessageID}
	}
	return tpl
}

// Registration — результат регистрации при первом обращении.
type Registration struct {
	Account *Account
	Created bool  // Аккаунт создан только что
	Inviter int64 // Кому начислен реферальный бонус (0 — никому)
}
