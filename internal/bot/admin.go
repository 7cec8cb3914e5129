package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/dialog"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/broadcast"
	"serotonyl.ru/promo-bot/internal/features/operators"
	"serotonyl.ru/promo-bot/internal/transport"
)

// handleLogin — /login <пароль>.
func (b *Bot) handleLogin(ctx context.Context, in *input, password string) {
	if !b.svc.Operators.IsAdmin(in.userID) {
		b.fail(ctx, in, common.ErrNotAdmin)
		return
	}
	if password == "" {
		b.Notify(ctx, in.chatID, "🔑 Использование: /login <пароль>")
		return
	}
	expires, err := b.svc.Operators.Login(ctx, in.userID, strings.TrimSpace(password))
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.sendMenu(ctx, in.chatID,
		"✅ Вход выполнен. Сессия до "+common.FormatDateTime(expires, b.cfg.Location()),
		adminMenu())
}

func (b *Bot) handleLogout(ctx context.Context, in *input) {
	if err := b.svc.Operators.Logout(ctx, in.userID); err != nil {
		b.fail(ctx, in, err)
		return
	}
	_ = b.svc.Dialogs.End(ctx, in.userID)
	b.Notify(ctx, in.chatID, "👋 Вы вышли из админ-панели")
}

// authorize проверяет сессию администратора и сам отвечает при отказе.
func (b *Bot) authorize(ctx context.Context, in *input) bool {
	if err := b.svc.Operators.Authorize(ctx, in.userID); err != nil {
		b.fail(ctx, in, err)
		return false
	}
	return true
}

func (b *Bot) showAdminMenu(ctx context.Context, in *input) {
	if !b.authorize(ctx, in) {
		return
	}
	b.sendMenu(ctx, in.chatID, "👑 Админ-панель", adminMenu())
}

// routeAdminMenu — разделы админ-панели.
func (b *Bot) routeAdminMenu(ctx context.Context, in *input, name string) {
	var (
		state  dialog.State
		prompt string
	)
	switch name {
	case menuAdmin:
		b.showAdminMenu(ctx, in)
		return
	case menuAdminGlobal:
		if !b.authorize(ctx, in) {
			return
		}
		text, err := b.svc.Console.GlobalStats(ctx)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.sendMenu(ctx, in.chatID, text, [][]transport.Button{{nav("⬅️ Назад", menuAdmin)}})
		return
	case menuAdminFlags:
		if !b.authorize(ctx, in) {
			return
		}
		fs, err := b.flags(ctx, in)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.sendMenu(ctx, in.chatID, "⚙️ Флаги функций", flagsMenu(fs))
		return
	case menuAdminBroadcast:
		state, prompt = dialog.StateAdminBroadcast, "💬 Отправьте сообщение для рассылки всем пользователям."
	case menuAdminPremium:
		state, prompt = dialog.StateAdminPremiumUser, "➕ Отправьте ID пользователя для выдачи премиума."
	case menuAdminUnpremium:
		state, prompt = dialog.StateAdminUnpremiumUser, "🗑 Отправьте ID пользователя, у которого снять премиум."
	case menuAdminBan:
		state, prompt = dialog.StateAdminBanUser, "🚫 Отправьте ID пользователя для блокировки."
	case menuAdminUnban:
		state, prompt = dialog.StateAdminUnbanUser, "✅ Отправьте ID пользователя для разблокировки."
	case menuAdminStats:
		state, prompt = dialog.StateAdminStatsUser, "📊 Отправьте ID пользователя."
	default:
		log.WithFields(log.Fields{"user_id": in.userID, "menu": name}).Debug("Неизвестный раздел меню")
		b.showMainMenu(ctx, in)
		return
	}

	if !b.authorize(ctx, in) {
		return
	}
	b.begin(ctx, in, state, nil, prompt+"\n\n/cancel — отмена")
}

// toggleFlag переключает флаг и перерисовывает меню флагов.
func (b *Bot) toggleFlag(ctx context.Context, in *input, name string) {
	if !b.authorize(ctx, in) {
		return
	}
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	next, err := b.svc.Flags.Toggle(ctx, fs, name)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	in.snapshot = &next
	log.WithFields(log.Fields{
		"admin_id": in.userID,
		"flag":     name,
		"enabled":  next.Enabled(name),
	}).Info("Флаг переключён")
	b.sendMenu(ctx, in.chatID, "⚙️ Флаги функций", flagsMenu(next))
}

// handleAdminInput — шаги диалогов админ-панели. Сессия проверяется на каждом шаге.
func (b *Bot) handleAdminInput(ctx context.Context, in *input, s *dialog.Session) {
	if !b.authorize(ctx, in) {
		return
	}
	m := in.message
	text := strings.TrimSpace(m.Text)
	back := [][]transport.Button{{nav("⬅️ В админ-панель", menuAdmin)}}

	switch s.State {
	case dialog.StateAdminBroadcast:
		if err := b.svc.Dialogs.End(ctx, in.userID); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, in.chatID, "⏳ Рассылка началась...")
		out, err := b.svc.Campaigns.AdminBroadcast(ctx, in.userID, broadcast.Payload{
			Source: &transport.SourceRef{ChatID: m.Chat.ID, MessageID: m.MessageID},
		})
		if out != nil {
			b.sendMenu(ctx, in.chatID, "💬 Рассылка завершена\n\n"+reportText(out.Report, "пользователей"), back)
		}
		if err != nil {
			b.fail(ctx, in, err)
		}

	case dialog.StateAdminPremiumUser:
		acc, ok := b.adminTarget(ctx, in, text)
		if !ok {
			return
		}
		set := map[string]string{keyTarget: strconv.FormatInt(acc.UserID, 10)}
		if _, err := b.svc.Dialogs.Advance(ctx, in.userID, dialog.StateAdminPremiumUser, dialog.StateAdminPremiumDays, set); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, in.chatID, fmt.Sprintf("📅 На сколько дней выдать премиум %s?", acc.DisplayName()))

	case dialog.StateAdminPremiumDays:
		target, err := strconv.ParseInt(s.Get(keyTarget), 10, 64)
		if err != nil {
			b.fail(ctx, in, common.ErrInvalidAction)
			return
		}
		days, err := operators.ParseDays(text)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		until, err := b.svc.Console.GrantPremium(ctx, in.userID, target, days)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, target, "💎 Вам выдан премиум до "+common.FormatDate(until, b.cfg.Location()))
		b.finish(ctx, in, fmt.Sprintf("✅ Премиум выдан на %s (до %s)",
			common.PluralizeDays(days), common.FormatDate(until, b.cfg.Location())), back)

	case dialog.StateAdminUnpremiumUser:
		acc, ok := b.adminTarget(ctx, in, text)
		if !ok {
			return
		}
		if err := b.svc.Console.RemovePremium(ctx, in.userID, acc.UserID); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.finish(ctx, in, "✅ Премиум снят у "+acc.DisplayName(), back)

	case dialog.StateAdminBanUser, dialog.StateAdminUnbanUser:
		acc, ok := b.adminTarget(ctx, in, text)
		if !ok {
			return
		}
		banned := s.State == dialog.StateAdminBanUser
		if err := b.svc.Console.SetBanned(ctx, in.userID, acc.UserID, banned); err != nil {
			b.fail(ctx, in, err)
			return
		}
		verb := "разблокирован"
		if banned {
			verb = "заблокирован"
		}
		b.finish(ctx, in, fmt.Sprintf("✅ %s %s", acc.DisplayName(), verb), back)

	case dialog.StateAdminStatsUser:
		acc, ok := b.adminTarget(ctx, in, text)
		if !ok {
			return
		}
		card, err := b.svc.Console.AccountStats(ctx, acc.UserID)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.finish(ctx, in, card, back)

	default:
		log.WithFields(log.Fields{"user_id": in.userID, "state": s.State}).Warn("Неизвестное состояние диалога")
		b.finish(ctx, in, "❌ Диалог сброшен", adminMenu())
	}
}

// adminTarget разбирает ID пользователя на шаге админского диалога.
func (b *Bot) adminTarget(ctx context.Context, in *input, text string) (*accounts.Account, bool) {
	acc, err := b.svc.Console.ParseUserID(ctx, text)
	if err != nil {
		b.fail(ctx, in, err)
		return nil, false
	}
	return acc, true
}
