package bot

import (
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/promo-bot/internal/actions"
	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/flags"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Разделы меню (menu:<name>)
const (
	menuMain         = "main"
	menuTasks        = "tasks"
	menuAccount      = "account"
	menuHistory      = "history"
	menuReferral     = "referral"
	menuLeaderboard  = "leaderboard"
	menuPremium      = "premium"
	menuAddGroup     = "add_group"
	menuPromote      = "promote"
	menuSetNormal    = "set_normal"
	menuSetChannel   = "set_channel"
	menuCreatePromo  = "create_promo"
	menuGroupShare   = "group_share"
	menuGroupShareGo = "group_share_go"
	menuImage        = "image"

	menuAdmin          = "admin"
	menuAdminBroadcast = "admin_broadcast"
	menuAdminPremium   = "admin_premium"
	menuAdminUnpremium = "admin_unpremium"
	menuAdminBan       = "admin_ban"
	menuAdminUnban     = "admin_unban"
	menuAdminStats     = "admin_stats"
	menuAdminGlobal    = "admin_global"
	menuAdminFlags     = "admin_flags"
)

func nav(text, name string) transport.Button {
	return transport.Button{Text: text, Data: actions.Menu{Name: name}.Encode()}
}

func link(text, url string) transport.Button {
	return transport.Button{Text: text, URL: url}
}

func backRow() []transport.Button {
	return []transport.Button{nav("⬅️ Назад", menuMain)}
}

func mainMenu(isAdmin bool) [][]transport.Button {
	rows := [][]transport.Button{
		{nav("🚀 Продвинуть ссылку", menuPromote), nav("📢 В группы", menuGroupShare)},
		{nav("🎁 Заработать", menuTasks), nav("👤 Мой аккаунт", menuAccount)},
		{nav("👥 Рефералы", menuReferral), nav("📊 Рейтинг", menuLeaderboard)},
		{nav("💎 Премиум", menuPremium), nav("📸 Рассылка картинки", menuImage)},
		{nav("➕ Добавить в группу", menuAddGroup)},
	}
	if isAdmin {
		rows = append(rows, []transport.Button{nav("👑 Админ-панель", menuAdmin)})
	}
	return rows
}

func promoteMenu() [][]transport.Button {
	return [][]transport.Button{
		{nav("📢 Создать промо", menuCreatePromo)},
		{nav("✏️ Обычная ссылка", menuSetNormal)},
		{nav("🔔 Канал для подписки", menuSetChannel)},
		backRow(),
	}
}

func adminMenu() [][]transport.Button {
	return [][]transport.Button{
		{nav("💬 Рассылка", menuAdminBroadcast), nav("📊 Аккаунт", menuAdminStats)},
		{nav("➕ Выдать премиум", menuAdminPremium), nav("🗑 Снять премиум", menuAdminUnpremium)},
		{nav("🚫 Бан", menuAdminBan), nav("✅ Разбан", menuAdminUnban)},
		{nav("📈 Сводка", menuAdminGlobal), nav("⚙️ Флаги", menuAdminFlags)},
		backRow(),
	}
}

func flagsMenu(fs flags.Snapshot) [][]transport.Button {
	var rows [][]transport.Button
	for _, name := range flags.Known {
		icon := "✅"
		if !fs.Enabled(name) {
			icon = "❌"
		}
		title := flags.Titles[name]
		if title == "" {
			title = name
		}
		rows = append(rows, []transport.Button{{
			Text: fmt.Sprintf("%s: %s", title, icon),
			Data: actions.Flag{Name: name}.Encode(),
		}})
	}
	return append(rows, []transport.Button{nav("⬅️ Назад", menuAdmin)})
}

// promoTypeMenu — типы промо, которые аккаунт может запустить.
func promoTypeMenu(fs flags.Snapshot, acc *accounts.Account) [][]transport.Button {
	var rows [][]transport.Button
	for _, t := range []promotions.Type{promotions.TypeNormalLink, promotions.TypeForceJoin} {
		if promotions.CheckType(fs, t) != nil {
			continue
		}
		if _, err := promotions.PayloadFor(acc, t); err != nil {
			continue
		}
		rows = append(rows, []transport.Button{{Text: t.Title(), Data: actions.Promo{Type: string(t)}.Encode()}})
	}
	return rows
}

// taskButtons — кнопки под заданием.
func taskButtons(p *promotions.Promotion, joinURL, joinTitle string) [][]transport.Button {
	var rows [][]transport.Button
	switch p.Type {
	case promotions.TypeForceJoin:
		rows = append(rows,
			[]transport.Button{link("➡️ Вступить в "+joinTitle, joinURL)},
			[]transport.Button{{Text: "✅ Проверить и получить", Data: actions.Verify{
				PromotionID: p.ID, ChannelID: p.Payload.ChannelID, PromoterID: p.OwnerID,
			}.Encode()}},
		)
	default:
		rows = append(rows,
			[]transport.Button{link("🔗 Перейти", p.Payload.URL)},
			[]transport.Button{{Text: "✅ Получить кредиты", Data: actions.Claim{
				PromotionID: p.ID, PromoterID: p.OwnerID,
			}.Encode()}},
		)
	}
	return append(rows,
		[]transport.Button{nav("➡️ Следующее", menuTasks), nav("⬅️ Назад", menuMain)},
		[]transport.Button{{Text: "⚠️ Пожаловаться", Data: actions.Report{PromoterID: p.OwnerID}.Encode()}},
	)
}

func accountText(acc *accounts.Account, caps ledger.Caps, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("👤 Мой аккаунт\n\n")
	fmt.Fprintf(&sb, "💰 Баланс: %s\n", common.FormatCredits(acc.Credits))
	fmt.Fprintf(&sb, "🎁 Реферальный бонус: %s в день\n", common.FormatCredits(acc.ReferralCredits))
	if acc.IsPremium && acc.PremiumExpiry != nil {
		fmt.Fprintf(&sb, "💎 Премиум до %s\n", common.FormatDate(*acc.PremiumExpiry, loc))
		fmt.Fprintf(&sb, "📸 Рассылка картинок: осталось %d\n", acc.ImageBroadcastsLeft)
	} else {
		sb.WriteString("💎 Премиум: нет\n")
	}
	fmt.Fprintf(&sb, "📢 Запусков в группы: %d из %d\n", acc.DailyGroupRuns, caps.RunsFor(acc.IsPremium))
	fmt.Fprintf(&sb, "👁 Просмотров за неделю: %s\n", common.FormatNumber(acc.ViewsReceived))

	sb.WriteString("\n🔗 Обычное промо: ")
	if tpl := acc.NormalTemplate(); tpl != nil {
		fmt.Fprintf(&sb, "%s\n%s\n", tpl.Text, tpl.URL)
	} else {
		sb.WriteString("не настроено\n")
	}
	sb.WriteString("🔔 Канал для подписки: ")
	if acc.ForceJoinChannelID != nil {
		fmt.Fprintf(&sb, "%d", *acc.ForceJoinChannelID)
	} else {
		sb.WriteString("не настроен")
	}
	return sb.String()
}

func leaderboardText(top []*accounts.Account) string {
	if len(top) == 0 {
		return "📊 Рейтинг пока пуст"
	}
	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	sb.WriteString("📊 Топ по просмотрам за неделю\n\n")
	for i, acc := range top {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		fmt.Fprintf(&sb, "%s %s — %s\n", place, acc.DisplayName(), common.FormatNumber(acc.ViewsReceived))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func referralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}

func addToGroupLink(botUsername string) string {
	return fmt.Sprintf("https://t.me/%s?startgroup=true", botUsername)
}
