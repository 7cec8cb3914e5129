package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/actions"
	"serotonyl.ru/promo-bot/internal/bot/filters"
	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/dialog"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/transport"
)

// handleCallback — нажатие inline-кнопки. Все кнопки живут в личке,
// поэтому отвечаем в чат пользователя.
func (b *Bot) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	userID := q.From.ID
	if !b.rateLimiter.Allow(userID) {
		b.answer(ctx, q.ID, "⏳ Слишком часто, подождите немного", false)
		return
	}

	action, err := actions.Decode(q.Data)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Некорректный callback")
		b.answer(ctx, q.ID, common.UserMessage(err), true)
		return
	}

	verdict := b.filter.Check(ctx, filters.Request{
		ChatID:    userID,
		Private:   true,
		UserID:    userID,
		Username:  q.From.Username,
		UserIsBot: q.From.IsBot,
	})
	if verdict == nil {
		b.answer(ctx, q.ID, "", false)
		return
	}
	in := &input{chatID: userID, userID: userID, account: verdict.Account}

	switch a := action.(type) {
	case actions.Claim:
		b.handleClaim(ctx, in, q.ID, a.PromotionID)
	case actions.Verify:
		b.handleClaim(ctx, in, q.ID, a.PromotionID)
	case actions.Report:
		b.answer(ctx, q.ID, "", false)
		b.startReport(ctx, in, a.PromoterID)
	case actions.Promo:
		b.answer(ctx, q.ID, "", false)
		b.choosePromoType(ctx, in, a.Type)
	case actions.Flag:
		b.answer(ctx, q.ID, "", false)
		b.toggleFlag(ctx, in, a.Name)
	case actions.Menu:
		b.answer(ctx, q.ID, "", false)
		b.routeMenu(ctx, in, a.Name)
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := b.ui.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		log.WithError(err).Debug("Не удалось ответить на callback")
	}
}

// routeMenu открывает раздел меню.
func (b *Bot) routeMenu(ctx context.Context, in *input, name string) {
	switch name {
	case menuMain:
		_ = b.svc.Dialogs.End(ctx, in.userID)
		b.showMainMenu(ctx, in)
	case menuTasks:
		b.showTask(ctx, in)
	case menuAccount:
		b.showAccount(ctx, in)
	case menuHistory:
		b.showHistory(ctx, in)
	case menuReferral:
		b.showReferral(ctx, in)
	case menuLeaderboard:
		b.showLeaderboard(ctx, in)
	case menuPremium:
		b.showPremium(ctx, in)
	case menuAddGroup:
		b.sendMenu(ctx, in.chatID,
			"➕ Добавьте бота в свою группу и сделайте администратором.\n"+
				"За группу больше "+strconv.Itoa(b.cfg.GroupBonusMinMembers)+" участников — бонус "+
				common.FormatCredits(b.cfg.GroupBonus)+" (премиум — "+common.FormatCredits(b.cfg.GroupBonusPremium)+").",
			[][]transport.Button{{link("➕ Добавить в группу", addToGroupLink(b.self.Username))}, backRow()},
		)
	case menuPromote:
		b.sendMenu(ctx, in.chatID, "🚀 Продвижение", promoteMenu())
	case menuSetNormal:
		b.begin(ctx, in, dialog.StateNormalText, nil,
			"✏️ Отправьте текст для вашего промо.\n\n/cancel — отмена")
	case menuSetChannel:
		b.begin(ctx, in, dialog.StateForceJoinChannel, nil,
			"🔔 Отправьте ID канала или @username. Бот должен быть администратором канала.\n\n/cancel — отмена")
	case menuCreatePromo:
		b.startCreatePromo(ctx, in)
	case menuGroupShare:
		b.previewGroupShare(ctx, in)
	case menuGroupShareGo:
		b.runGroupShare(ctx, in)
	case menuImage:
		b.startImageBroadcast(ctx, in)
	default:
		b.routeAdminMenu(ctx, in, name)
	}
}

// begin начинает пошаговый диалог и показывает подсказку первого шага.
func (b *Bot) begin(ctx context.Context, in *input, state dialog.State, scratch map[string]string, prompt string) {
	if _, err := b.svc.Dialogs.Begin(ctx, in.userID, state, scratch); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.Notify(ctx, in.chatID, prompt)
}

// handleClaim засчитывает выполнение задания и показывает следующее.
func (b *Bot) handleClaim(ctx context.Context, in *input, callbackID string, promotionID int64) {
	res, err := b.svc.Tasks.Complete(ctx, in.userID, promotionID)
	if err != nil {
		kind := common.KindOf(err)
		if kind == common.KindInternal {
			log.WithError(err).WithFields(log.Fields{
				"user_id":      in.userID,
				"promotion_id": promotionID,
			}).Error("Ошибка засчитывания задания")
		}
		b.answer(ctx, callbackID, errorPrefix(kind)+common.UserMessage(err), true)
		if kind == common.KindIdempotent || kind == common.KindIntegrity {
			b.showTask(ctx, in)
		}
		return
	}

	b.answer(ctx, callbackID, fmt.Sprintf("✅ +%s", common.FormatCredits(res.Reward)), true)
	b.showTask(ctx, in)
}

// choosePromoType — второй шаг создания промо: тип выбран, ждём бюджет.
func (b *Bot) choosePromoType(ctx context.Context, in *input, raw string) {
	t, ok := promotions.ParseType(raw)
	if !ok {
		b.fail(ctx, in, common.ErrInvalidAction)
		return
	}
	fs, err := b.flags(ctx, in)
	if err != nil {
		b.fail(ctx, in, err)
		return
	}
	if err := promotions.CheckType(fs, t); err != nil {
		b.fail(ctx, in, err)
		return
	}
	if _, err := promotions.PayloadFor(in.account, t); err != nil {
		b.fail(ctx, in, err)
		return
	}

	set := map[string]string{keyType: string(t)}
	if _, err := b.svc.Dialogs.Advance(ctx, in.userID, dialog.StatePromoType, dialog.StatePromoBudget, set); err != nil {
		b.fail(ctx, in, err)
		return
	}
	b.Notify(ctx, in.chatID, fmt.Sprintf(
		"💰 Сколько выполнений оплатить? Одно выполнение — 1 кредит.\nВаш баланс: %s\n\n/cancel — отмена",
		common.FormatCredits(in.account.Credits),
	))
}
