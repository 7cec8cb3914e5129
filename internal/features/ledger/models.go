// Package ledger — учёт кредитов и квот аккаунтов.
// models.go описывает записи журнала операций и суточные лимиты.
package ledger

import "time"

// Типы записей журнала.
const (
	EntryTaskReward     = "task_reward"
	EntryGroupBonus     = "group_bonus"
	EntryPromotionFund  = "promotion_fund"
	EntryImageBroadcast = "image_broadcast"
	EntryReferralDaily  = "referral_daily"
	EntryAdminAdjust    = "admin_adjust"
)

// Entry — одна запись журнала ledger_entries.
type Entry struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"` // Со знаком: + начисление, - списание
	EntryType   string    `db:"entry_type"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Caps — суточные лимиты для обычных и премиум-аккаунтов.
type Caps struct {
	DailyRuns        int
	PremiumDailyRuns int
	PremiumImageCap  int
}

// RunsFor возвращает дневной лимит запусков групповой рассылки.
func (c Caps) RunsFor(premium bool) int {
	if premium {
		return c.PremiumDailyRuns
	}
	return c.DailyRuns
}
