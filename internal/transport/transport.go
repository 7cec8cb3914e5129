// Package transport описывает контракт доставки сообщений: общие типы
// и классификацию ошибок. Реализация поверх Telegram — в подпакете telegram.
package transport

import "errors"

// Ошибки доставки. Адаптер оборачивает ими ошибки API.
var (
	// ErrBlocked — получатель заблокировал бота или удалил аккаунт.
	// Касается только этого получателя.
	ErrBlocked = errors.New("transport: получатель недоступен")
	// ErrFatal — бот не может отправлять вообще (токен отозван и т.п.),
	// продолжать рассылку бессмысленно.
	ErrFatal = errors.New("transport: фатальная ошибка")
)

// Статусы участника чата, как их отдаёт Telegram.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// IsMember — статус засчитывается как подписка на канал.
func IsMember(status string) bool {
	switch status {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	}
	return false
}

// IsAdmin — статус даёт права администратора.
func IsAdmin(status string) bool {
	return status == StatusAdministrator || status == StatusCreator
}

// Button — inline-кнопка под сообщением: со ссылкой (URL)
// или с callback_data (Data).
type Button struct {
	Text string
	URL  string
	Data string
}

// SourceRef указывает на уже отправленное сообщение, которое можно скопировать.
type SourceRef struct {
	ChatID    int64
	MessageID int
}

// Valid — ссылка на сообщение заполнена.
func (r *SourceRef) Valid() bool {
	return r != nil && r.ChatID != 0 && r.MessageID != 0
}

// ChatInfo — то, что нужно знать о канале/группе.
type ChatInfo struct {
	ID    int64
	Title string
}
