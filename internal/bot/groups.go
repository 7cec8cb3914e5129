package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/groups"
)

// handleMyChatMember — бота добавили в группу, удалили или сменили права.
func (b *Bot) handleMyChatMember(ctx context.Context, upd *telego.ChatMemberUpdated) {
	if upd.Chat.Type != telego.ChatTypeGroup && upd.Chat.Type != telego.ChatTypeSupergroup {
		return
	}

	out, err := b.svc.Groups.HandleBotStatus(ctx, groups.BotStatusChange{
		ChatID:     upd.Chat.ID,
		Title:      upd.Chat.Title,
		ActorID:    upd.From.ID,
		ActorIsBot: upd.From.IsBot,
		Status:     upd.NewChatMember.MemberStatus(),
	})
	if err != nil {
		log.WithError(err).WithField("chat_id", upd.Chat.ID).Error("Ошибка обработки статуса в группе")
		return
	}
	if out == nil || out.Removed {
		return
	}

	if out.NeedsAdmin {
		b.Notify(ctx, upd.Chat.ID, "👋 Спасибо за добавление! Сделайте бота администратором, чтобы группа участвовала в рассылках.")
		return
	}
	if out.Bonus > 0 {
		b.Notify(ctx, upd.From.ID, fmt.Sprintf(
			"🎉 Бот добавлен в группу «%s». Бонус: +%s",
			upd.Chat.Title, common.FormatCredits(out.Bonus),
		))
	}
}
