package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
)

// balance — поля аккаунта, которые меняют сбросы. Методы повторяют
// UPDATE из repository.go.
type balance struct {
	Credits             int64
	ReferralCredits     int64
	IsPremium           bool
	DailyGroupRuns      int
	ImageBroadcastsLeft int
	ViewsReceived       int64
}

// DailyReset: credits += referral_credits, запуски до лимита.
func (b balance) afterDailyReset(c Caps) balance {
	b.Credits += b.ReferralCredits
	b.DailyGroupRuns = c.RunsFor(b.IsPremium)
	return b
}

// DailyImageReset: только премиум.
func (b balance) afterImageReset(c Caps) balance {
	if b.IsPremium {
		b.ImageBroadcastsLeft = c.PremiumImageCap
	}
	return b
}

func (b balance) afterWeeklyReset() balance {
	b.ViewsReceived = 0
	return b
}

// SetPremium
func (b balance) withPremium(c Caps) balance {
	b.IsPremium = true
	b.DailyGroupRuns = c.PremiumDailyRuns
	b.ImageBroadcastsLeft = c.PremiumImageCap
	return b
}

// ClearPremium: запуски ставятся в обычный лимит.
func (b balance) cleared(c Caps) balance {
	b.IsPremium = false
	b.DailyGroupRuns = c.DailyRuns
	b.ImageBroadcastsLeft = 0
	return b
}

// ExpirePremiums: LEAST(daily_group_runs, лимит), потраченные запуски не возвращаются.
func (b balance) expired(c Caps) balance {
	b.IsPremium = false
	b.DailyGroupRuns = min(b.DailyGroupRuns, c.DailyRuns)
	b.ImageBroadcastsLeft = 0
	return b
}

// memStore повторяет SQL-поведение Repository.
type memStore struct {
	mu       sync.Mutex
	balances map[int64]*balance
	expiry   map[int64]time.Time
	entries  map[int64][]*Entry
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[int64]*balance),
		expiry:   make(map[int64]time.Time),
		entries:  make(map[int64][]*Entry),
	}
}

func (m *memStore) put(id int64, b balance) {
	m.balances[id] = &b
}

func (m *memStore) get(id int64) balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.balances[id]
}

func (m *memStore) Adjust(_ context.Context, id, delta int64, entryType, desc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[id]
	if !ok {
		return common.ErrAccountNotFound
	}
	if b.Credits+delta < 0 {
		return common.ErrInsufficientBalance
	}
	b.Credits += delta
	m.entries[id] = append([]*Entry{{UserID: id, Amount: delta, EntryType: entryType, Description: desc}}, m.entries[id]...)
	return nil
}

func (m *memStore) GrantReferralBonus(_ context.Context, id, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id].ReferralCredits += amount
	return nil
}

func (m *memStore) SetPremium(_ context.Context, id int64, expiry time.Time, caps Caps) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.balances[id] = m.balances[id].withPremium(caps)
	m.expiry[id] = expiry
	return nil
}

func (m *memStore) ClearPremium(_ context.Context, id int64, caps Caps) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.balances[id] = m.balances[id].cleared(caps)
	delete(m.expiry, id)
	return nil
}

func (m *memStore) ExpirePremiums(_ context.Context, now time.Time, caps Caps) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, exp := range m.expiry {
		if !exp.After(now) {
			*m.balances[id] = m.balances[id].expired(caps)
			delete(m.expiry, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) DailyReset(_ context.Context, caps Caps) (int64, error) {
	return m.each(func(b balance) balance { return b.afterDailyReset(caps) }), nil
}

func (m *memStore) WeeklyReset(context.Context) (int64, error) {
	return m.each(balance.afterWeeklyReset), nil
}

func (m *memStore) DailyImageReset(_ context.Context, caps Caps) (int64, error) {
	return m.each(func(b balance) balance { return b.afterImageReset(caps) }), nil
}

func (m *memStore) each(fn func(balance) balance) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.balances {
		*b = fn(*b)
	}
	return int64(len(m.balances))
}

func (m *memStore) UseGroupRun(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balances[id]
	if b.DailyGroupRuns <= 0 {
		return false, nil
	}
	b.DailyGroupRuns--
	return true, nil
}

func (m *memStore) UseImageAllowance(_ context.Context, id int64, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balances[id]
	b.ImageBroadcastsLeft = max(b.ImageBroadcastsLeft-n, 0)
	return nil
}

func (m *memStore) AddView(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id].ViewsReceived++
	return nil
}

func (m *memStore) History(_ context.Context, id int64, limit int) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.entries[id]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	cfg := &config.Config{
		DailyGroupRuns:        2,
		PremiumDailyGroupRuns: 5,
		PremiumImageCap:       100,
		AppTimezone:           "UTC",
	}
	return NewService(store, cfg), store
}

func TestDailyResetKeepsReferralBonus(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{Credits: 10, ReferralCredits: 2, DailyGroupRuns: 0})
	store.put(2, balance{Credits: 0, IsPremium: true, DailyGroupRuns: 1})

	if _, err := svc.DailyReset(context.Background()); err != nil {
		t.Fatal(err)
	}

	b := store.get(1)
	if b.Credits != 12 || b.ReferralCredits != 2 || b.DailyGroupRuns != 2 {
		t.Fatalf("after reset: %+v", b)
	}
	if p := store.get(2); p.DailyGroupRuns != 5 {
		t.Fatalf("premium runs = %d, want 5", p.DailyGroupRuns)
	}

	// Второй сброс снова начисляет бонус: защиты от повтора нет, её даёт cron
	svc.DailyReset(context.Background())
	if b := store.get(1); b.Credits != 14 {
		t.Fatalf("credits after second reset = %d, want 14", b.Credits)
	}
}

func TestImageAndWeeklyReset(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{IsPremium: true, ImageBroadcastsLeft: 3, ViewsReceived: 40})
	store.put(2, balance{ImageBroadcastsLeft: 0, ViewsReceived: 7})
	ctx := context.Background()

	svc.DailyImageReset(ctx)
	svc.WeeklyReset(ctx)

	if b := store.get(1); b.ImageBroadcastsLeft != 100 || b.ViewsReceived != 0 {
		t.Fatalf("premium: %+v", b)
	}
	if b := store.get(2); b.ImageBroadcastsLeft != 0 || b.ViewsReceived != 0 {
		t.Fatalf("regular: %+v", b)
	}
}

func TestSpendAndReward(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{Credits: 3})
	ctx := context.Background()

	tests := []struct {
		name    string
		op      func() error
		wantErr error
		want    int64
	}{
		{"reward", func() error { return svc.Reward(ctx, 1, 2, EntryTaskReward, "") }, nil, 5},
		{"zero reward", func() error { return svc.Reward(ctx, 1, 0, EntryTaskReward, "") }, common.ErrInvalidAmount, 5},
		{"spend", func() error { return svc.Spend(ctx, 1, 4, EntryPromotionFund, "") }, nil, 1},
		{"overspend", func() error { return svc.Spend(ctx, 1, 2, EntryPromotionFund, "") }, common.ErrInsufficientBalance, 1},
		{"negative spend", func() error { return svc.Spend(ctx, 1, -1, EntryPromotionFund, "") }, common.ErrInvalidAmount, 1},
		{"zero adjust", func() error { return svc.Adjust(ctx, 1, 0, EntryAdminAdjust, "") }, common.ErrInvalidAmount, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := store.get(1).Credits; got != tt.want {
				t.Fatalf("credits = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPremiumLifecycle(t *testing.T) {
	svc, store := newTestService()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	store.put(1, balance{DailyGroupRuns: 1})
	ctx := context.Background()

	if _, err := svc.SetPremium(ctx, 1, 0); !errors.Is(err, common.ErrInvalidNumber) {
		t.Fatalf("err = %v, want ErrInvalidNumber", err)
	}

	expiry, err := svc.SetPremium(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !expiry.Equal(now.Add(72 * time.Hour)) {
		t.Fatalf("expiry = %v", expiry)
	}
	if b := store.get(1); !b.IsPremium || b.DailyGroupRuns != 5 || b.ImageBroadcastsLeft != 100 {
		t.Fatalf("premium balance: %+v", b)
	}

	if n, _ := svc.ExpirePremiums(ctx); n != 0 {
		t.Fatalf("expired %d before deadline", n)
	}
	now = now.Add(73 * time.Hour)
	if n, _ := svc.ExpirePremiums(ctx); n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if b := store.get(1); b.IsPremium || b.DailyGroupRuns != 2 || b.ImageBroadcastsLeft != 0 {
		t.Fatalf("after expiry: %+v", b)
	}
}

func TestExpiryKeepsSpentRuns(t *testing.T) {
	svc, store := newTestService()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()
	store.put(1, balance{})
	store.put(2, balance{})
	svc.SetPremium(ctx, 1, 1)
	svc.SetPremium(ctx, 2, 1)

	// 1 потратил почти все запуски, 2 не трогал
	store.balances[1].DailyGroupRuns = 1
	now = now.Add(25 * time.Hour)
	if n, _ := svc.ExpirePremiums(ctx); n != 2 {
		t.Fatalf("expired %d, want 2", n)
	}
	if b := store.get(1); b.DailyGroupRuns != 1 || b.IsPremium {
		t.Fatalf("spent runs restored on expiry: %+v", b)
	}
	if b := store.get(2); b.DailyGroupRuns != 2 || b.ImageBroadcastsLeft != 0 {
		t.Fatalf("unspent runs not capped: %+v", b)
	}

	// Ручное снятие ставит обычный лимит
	store.put(3, balance{})
	svc.SetPremium(ctx, 3, 5)
	store.balances[3].DailyGroupRuns = 0
	if err := svc.ClearPremium(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if b := store.get(3); b.DailyGroupRuns != 2 {
		t.Fatalf("runs after clear = %d, want 2", b.DailyGroupRuns)
	}
}

func TestUseGroupRun(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{DailyGroupRuns: 1})
	ctx := context.Background()

	if err := svc.UseGroupRun(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.UseGroupRun(ctx, 1); !errors.Is(err, common.ErrNoRunsLeft) {
		t.Fatalf("err = %v, want ErrNoRunsLeft", err)
	}
	if b := store.get(1); b.DailyGroupRuns != 0 {
		t.Fatalf("runs = %d", b.DailyGroupRuns)
	}
}

func TestUseImageAllowanceFloorsAtZero(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{ImageBroadcastsLeft: 5})

	svc.UseImageAllowance(context.Background(), 1, 8)
	if b := store.get(1); b.ImageBroadcastsLeft != 0 {
		t.Fatalf("allowance = %d, want 0", b.ImageBroadcastsLeft)
	}
}

func TestFormatHistory(t *testing.T) {
	svc, store := newTestService()
	store.put(1, balance{Credits: 5})
	ctx := context.Background()

	empty, _ := svc.FormatHistory(ctx, 1)
	if !strings.Contains(empty, "нет") {
		t.Fatalf("empty history = %q", empty)
	}

	svc.Spend(ctx, 1, 3, EntryPromotionFund, "оплата промо")
	svc.Reward(ctx, 1, 1, EntryTaskReward, "задание")
	text, err := svc.FormatHistory(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "+1 кредит") || !strings.Contains(text, "-3 кредита") {
		t.Fatalf("history = %q", text)
	}
}
