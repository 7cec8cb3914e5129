// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// LogUpdate логирует входящий апдейт.
// Записывает: update_id, тип, user_id, chat_id, текст или callback_data (первые 50 символов).
func LogUpdate(update telego.Update) {
	fields := log.Fields{"update_id": update.UpdateID}

	switch {
	case update.Message != nil:
		m := update.Message
		fields["kind"] = "message"
		fields["chat_id"] = m.Chat.ID
		if m.From != nil {
			fields["user_id"] = m.From.ID
			fields["username"] = m.From.Username
		}
		text := m.Text
		if text == "" {
			text = m.Caption
		}
		fields["text"] = truncate(text, 50)
		if len(m.Photo) > 0 {
			fields["photo"] = true
		}

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		fields["kind"] = "callback"
		fields["user_id"] = q.From.ID
		fields["username"] = q.From.Username
		fields["data"] = q.Data

	case update.MyChatMember != nil:
		ev := update.MyChatMember
		fields["kind"] = "my_chat_member"
		fields["chat_id"] = ev.Chat.ID
		fields["user_id"] = ev.From.ID
		fields["status"] = ev.NewChatMember.MemberStatus()

	default:
		fields["kind"] = "other"
	}

	log.WithFields(fields).Debug("Входящий апдейт")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
