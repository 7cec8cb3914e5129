// Package promotions — задания, которые пользователи оплачивают кредитами.
// Бюджет промо — сколько ещё выполнений будет оплачено исполнителям.
package promotions

import (
	"time"

	"serotonyl.ru/promo-bot/internal/transport"
)

// Type — вид задания.
type Type string

const (
	// TypeNormalLink — перейти по ссылке
	TypeNormalLink Type = "normal_link"
	// TypeForceJoin — подписаться на канал, подписку проверяет бот
	TypeForceJoin Type = "force_join"
)

// ParseType разбирает тип из токена кнопки.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeNormalLink, TypeForceJoin:
		return Type(s), true
	}
	return "", false
}

// Title — подпись для меню.
func (t Type) Title() string {
	switch t {
	case TypeNormalLink:
		return "🔗 Обычное промо (ссылка)"
	case TypeForceJoin:
		return "📢 Подписка на канал"
	}
	return string(t)
}

// Payload — содержимое задания. Для normal_link заполнены Text и URL
// (и, если есть, Source), для force_join — ChannelID.
type Payload struct {
	Text      string
	URL       string
	Source    *transport.SourceRef
	ChannelID int64
}

// Promotion — строка таблицы promotions.
type Promotion struct {
	ID        int64
	OwnerID   int64
	Type      Type
	Budget    int
	Payload   Payload
	CreatedAt time.Time
}

// Active — промо ещё оплачивает выполнения.
func (p *Promotion) Active() bool {
	return p.Budget > 0
}
