package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/dialog"
	"serotonyl.ru/promo-bot/internal/features/broadcast"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/features/reports"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Ключи черновика диалога
const (
	keyText      = "text"
	keyChatID    = "chat_id"
	keyMessageID = "message_id"
	keyType      = "type"
	keyPromoter  = "promoter"
	keyTarget    = "target"
)

func (b *Bot) showMainMenu(ctx context.Context, in *input) {
	text := fmt.Sprintf(
		"👋 Добро пожаловать!\n\n💰 Баланс: %s\n\nВыполняйте задания, чтобы зарабатывать кредиты, и тратьте их на продвижение своих ссылок.",
		common.FormatCredits(in.account.Credits),
	)
	b.sendMenu(ctx, in.chatID, text, mainMenu(b.svc.Operators.IsAdmin(in.userID)))
}

// showTask показывает случайное доступное задание.
func (b *Bot) showTask(ctx context.Context, in *input) {
	p, err := b.svc.Selector.PickTask(ctx, in.userID)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	if p == nil {
		b.sendMenu(ctx, in.chatID, "😴 Новых заданий нет. Загляните позже!", [][]transport.Button{backRow()})
		return
	}

	switch p.Type {
	case promotions.TypeForceJoin:
		url, chat, err := b.ui.InviteLink(ctx, p.Payload.ChannelID)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"promotion_id": p.ID,
				"channel_id":   p.Payload.ChannelID,
			}).Warn("Не удалось получить ссылку на канал")
			b.sendMenu(ctx, in.chatID, "⚠️ С этим заданием что-то не так.",
				[][]transport.Button{{nav("➡️ Следующее", menuTasks)}, backRow()})
			return
		}
		text := fmt.Sprintf("📢 Подпишитесь на канал «%s» и нажмите «Проверить».", chat.Title)
		b.sendMenu(ctx, in.chatID, text, taskButtons(p, url, chat.Title))

	default:
		b.sendMenu(ctx, in.chatID, "🔗 "+p.Payload.Text, taskButtons(p, "", ""))
	}
}

func (b *Bot) showAccount(ctx context.Context, in *input) {
	text := accountText(in.account, b.svc.Ledger.Caps(), b.cfg.Location())
	b.sendMenu(ctx, in.chatID, text, [][]transport.Button{
		{nav("📋 История операций", menuHistory)},
		backRow(),
	})
}

func (b *Bot) showHistory(ctx context.Context, in *input) {
	text, err := b.svc.Ledger.FormatHistory(ctx, in.userID)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.sendMenu(ctx, in.chatID, text, [][]transport.Button{{nav("⬅️ Назад", menuAccount)}})
}

func (b *Bot) showReferral(ctx context.Context, in *input) {
	text := fmt.Sprintf(
		"👥 Приглашайте друзей!\n\nЗа каждого нового пользователя ваш ежедневный бонус растёт на %s.\n\nВаша ссылка:\n%s",
		common.FormatCredits(b.cfg.ReferralBonus), referralLink(b.self.Username, in.userID),
	)
	b.sendMenu(ctx, in.chatID, text, [][]transport.Button{backRow()})
}

func (b *Bot) showLeaderboard(ctx context.Context, in *input) {
	top, err := b.svc.Accounts.Leaderboard(ctx)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.sendMenu(ctx, in.chatID, leaderboardText(top), [][]transport.Button{backRow()})
}

func (b *Bot) showPremium(ctx context.Context, in *input) {
	caps := b.svc.Ledger.Caps()
	text := fmt.Sprintf(
		"💎 Премиум\n\n• %d запусков рассылки по группам в день вместо %d\n• рассылка картинок до %d получателей в день\n• повышенные награды за задания",
		caps.PremiumDailyRuns, caps.DailyRuns, caps.PremiumImageCap,
	)
	rows := [][]transport.Button{backRow()}
	if b.cfg.OwnerUsername != "" {
		rows = append([][]transport.Button{{link("📞 Связаться с админом", "https://t.me/"+b.cfg.OwnerUsername)}}, rows...)
	}
	b.sendMenu(ctx, in.chatID, text, rows)
}

// startCreatePromo — первый шаг создания промо: выбор типа.
func (b *Bot) startCreatePromo(ctx context.Context, in *input) {
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	rows := promoTypeMenu(fs, in.account)
	if len(rows) == 0 {
		b.fail(ctx, in, common.ErrTemplateMissing)
		return
	}
	if _, err := b.svc.Dialogs.Begin(ctx, in.userID, dialog.StatePromoType, nil); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.sendMenu(ctx, in.chatID, "📢 Какое промо запустить?", append(rows, []transport.Button{nav("⬅️ Назад", menuPromote)}))
}

func (b *Bot) previewGroupShare(ctx context.Context, in *input) {
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	tpl, err := b.svc.Campaigns.CheckGroupShare(fs, in.account)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	text := fmt.Sprintf(
		"📢 Ваше промо уйдёт в %d случайных групп:\n\n%s\n%s\n\nОсталось запусков сегодня: %d",
		b.svc.Campaigns.ShareLimit(in.account.IsPremium), tpl.Text, tpl.URL, in.account.DailyGroupRuns,
	)
	b.sendMenu(ctx, in.chatID, text, [][]transport.Button{
		{nav("✅ Отправить", menuGroupShareGo)},
		backRow(),
	})
}

func (b *Bot) runGroupShare(ctx context.Context, in *input) {
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.Notify(ctx, in.chatID, "⏳ Рассылаю по группам...")
	out, err := b.svc.Campaigns.GroupShare(ctx, fs, in.userID)
	if out != nil {
		text := "📢 Рассылка по группам завершена\n\n" + reportText(out.Report, "групп")
		if !out.RunUsed {
			text += "\n\nНи одна группа не получила промо, запуск не списан."
		}
		b.sendMenu(ctx, in.chatID, text, [][]transport.Button{backRow()})
	}
	if err != nil {
		b.fail(ctx, in, err)
	}
}

func (b *Bot) startImageBroadcast(ctx context.Context, in *input) {
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	if err := b.svc.Campaigns.CheckImage(fs, in.account); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.begin(ctx, in, dialog.StateImageSource, nil,
		"📸 Отправьте картинку с подписью, которую нужно разослать.\n\n/cancel — отмена")
}

func (b *Bot) startReport(ctx context.Context, in *input, promoterID int64) {
	b.begin(ctx, in, dialog.StateReportMessage, map[string]string{keyPromoter: strconv.FormatInt(promoterID, 10)},
		"⚠️ Перешлите сообщение, на которое жалуетесь, или опишите проблему.\n\n/cancel — отмена")
}

// handleDialogInput — сообщение вне команды: очередной шаг диалога.
func (b *Bot) handleDialogInput(ctx context.Context, in *input) {
	s, err := b.svc.Dialogs.Current(ctx, in.userID)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}

	m := in.message
	text := strings.TrimSpace(m.Text)
	src := transport.SourceRef{ChatID: m.Chat.ID, MessageID: m.MessageID}

	switch s.State {
	case dialog.StateIdle:
		b.showMainMenu(ctx, in)

	case dialog.StateNormalText:
		if text == "" {
			b.fail(ctx, in, common.ErrEmptyText)
			return
		}
		set := map[string]string{
			keyText:      text,
			keyChatID:    strconv.FormatInt(src.ChatID, 10),
			keyMessageID: strconv.Itoa(src.MessageID),
		}
		if _, err := b.svc.Dialogs.Advance(ctx, in.userID, dialog.StateNormalText, dialog.StateNormalURL, set); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, in.chatID, "🔗 Теперь отправьте ссылку (http:// или https://).\n\n/cancel — отмена")

	case dialog.StateNormalURL:
		if err := common.ValidateURL(text); err != nil {
			b.fail(ctx, in, err)
			return
		}
		tplSrc := scratchSource(s)
		tpl, err := b.svc.Accounts.SaveNormalLink(ctx, in.userID, s.Get(keyText), text, tplSrc)
		if err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.finish(ctx, in, fmt.Sprintf("✅ Обычное промо сохранено:\n\n%s\n%s", tpl.Text, tpl.URL), promoteMenu())

	case dialog.StateForceJoinChannel:
		b.handleChannelInput(ctx, in, text)

	case dialog.StatePromoType:
		b.Notify(ctx, in.chatID, "👆 Выберите тип промо кнопкой выше.\n\n/cancel — отмена")

	case dialog.StatePromoBudget:
		b.handleBudgetInput(ctx, in, s, text)

	case dialog.StateImageSource:
		if len(m.Photo) == 0 {
			b.Notify(ctx, in.chatID, "📸 Нужна картинка. Отправьте изображение или /cancel.")
			return
		}
		set := map[string]string{
			keyChatID:    strconv.FormatInt(src.ChatID, 10),
			keyMessageID: strconv.Itoa(src.MessageID),
		}
		if _, err := b.svc.Dialogs.Advance(ctx, in.userID, dialog.StateImageSource, dialog.StateImageCount, set); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, in.chatID, fmt.Sprintf(
			"👥 Скольким пользователям отправить? Доступно: %d.\nСтоимость: 1 кредит за каждые %d получателей, баланс %s.",
			in.account.ImageBroadcastsLeft, b.cfg.ImageRecipientsPerCredit, common.FormatCredits(in.account.Credits),
		))

	case dialog.StateImageCount:
		b.handleImageCount(ctx, in, s, text)

	case dialog.StateReportMessage:
		b.handleReportInput(ctx, in, s, src)

	default:
		b.handleAdminInput(ctx, in, s)
	}
}

// finish завершает диалог итоговым сообщением.
func (b *Bot) finish(ctx context.Context, in *input, text string, rows [][]transport.Button) {
	if err := b.svc.Dialogs.End(ctx, in.userID); err != nil {
		log.WithError(err).WithField("user_id", in.userID).Warn("Не удалось завершить диалог")
	}
	if rows == nil {
		b.Notify(ctx, in.chatID, text)
		return
	}
	b.sendMenu(ctx, in.chatID, text, rows)
}

// handleChannelInput проверяет, что бот — админ канала, и сохраняет его.
func (b *Bot) handleChannelInput(ctx context.Context, in *input, ref string) {
	if ref == "" {
		b.fail(ctx, in, common.ErrEmptyText)
		return
	}
	chat, err := b.ui.ResolveChat(ctx, ref)
	if err != nil {
		log.WithError(err).WithField("ref", ref).Debug("Канал не найден")
		b.Notify(ctx, in.chatID, "⚠️ Канал не найден. Проверьте ID или @username и что бот добавлен в канал.")
		return
	}
	status, err := b.ui.GetMembership(ctx, chat.ID, b.self.ID)
	if err != nil || !transport.IsAdmin(status) {
		b.fail(ctx, in, common.ErrBotNotAdmin)
		return
	}
	if err := b.svc.Accounts.SetForceJoinChannel(ctx, in.userID, chat.ID); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.finish(ctx, in, fmt.Sprintf("✅ Канал «%s» сохранён.", chat.Title), promoteMenu())
}

func (b *Bot) handleBudgetInput(ctx context.Context, in *input, s *dialog.Session, text string) {
	t, ok := promotions.ParseType(s.Get(keyType))
	if !ok {
		b.fail(ctx, in, common.ErrInvalidAction)
		return
	}
	budget, err := promotions.ParseBudget(text, in.account.Credits)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	payload, err := promotions.PayloadFor(in.account, t)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}

	p, err := b.svc.Promotions.Fund(ctx, fs, in.userID, t, budget, payload)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.finish(ctx, in, fmt.Sprintf(
		"✅ Промо #%d запущено!\nОплачено выполнений: %d\nБаланс: %s",
		p.ID, p.Budget, common.FormatCredits(in.account.Credits-int64(budget)),
	), [][]transport.Button{backRow()})
}

func (b *Bot) handleImageCount(ctx context.Context, in *input, s *dialog.Session, text string) {
	src := scratchSource(s)
	if src == nil {
		b.fail(ctx, in, common.ErrInvalidAction)
		return
	}
	count, err := b.svc.Campaigns.ParseImageCount(text, in.account)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}

	if err := b.svc.Dialogs.End(ctx, in.userID); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.Notify(ctx, in.chatID, "⏳ Рассылка началась...")

	out, err := b.svc.Campaigns.ImageBroadcast(ctx, fs, in.userID, *src, count)
	if out != nil {
		b.sendMenu(ctx, in.chatID, fmt.Sprintf(
			"📸 Рассылка завершена\n\n%s\nСписано: %s",
			reportText(out.Report, "пользователей"), common.FormatCredits(out.Charged),
		), [][]transport.Button{backRow()})
	}
	if err != nil {
		b.fail(ctx, in, err)
	}
}

func (b *Bot) handleReportInput(ctx context.Context, in *input, s *dialog.Session, src transport.SourceRef) {
	promoter, err := strconv.ParseInt(s.Get(keyPromoter), 10, 64)
	if err != nil || promoter <= 0 {
		b.fail(ctx, in, common.ErrInvalidAction)
		return
	}
	delivered, err := b.svc.Reports.Submit(ctx, reports.Report{
		ReporterID:   in.userID,
		ReporterName: in.account.DisplayName(),
		PromoterID:   promoter,
		Message:      src,
	})
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	log.WithFields(log.Fields{"user_id": in.userID, "delivered": delivered}).Debug("Жалоба принята")
	b.finish(ctx, in, "✅ Спасибо! Жалоба отправлена администраторам.", [][]transport.Button{backRow()})
}

// scratchSource достаёт ссылку на исходное сообщение из черновика.
func scratchSource(s *dialog.Session) *transport.SourceRef {
	chatID, err1 := strconv.ParseInt(s.Get(keyChatID), 10, 64)
	msgID, err2 := strconv.Atoi(s.Get(keyMessageID))
	if err1 != nil || err2 != nil {
		return nil
	}
	src := &transport.SourceRef{ChatID: chatID, MessageID: msgID}
	if !src.Valid() {
		return nil
	}
	return src
}

// reportText — итог рассылки для пользователя.
func reportText(r broadcast.Report, noun string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Доставлено: %d из %d %s", r.Succeeded, r.Total, noun)
	if r.Failed > 0 {
		fmt.Fprintf(&sb, "\n❌ Не доставлено: %d", r.Failed)
	}
	if r.Blocked > 0 {
		fmt.Fprintf(&sb, " (заблокировали бота: %d)", r.Blocked)
	}
	if skipped := r.Total - r.Attempted(); skipped > 0 {
		fmt.Fprintf(&sb, "\n⏸ Прервано, не отправлено: %d", skipped)
	}
	return sb.String()
}
