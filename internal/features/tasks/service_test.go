package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/claims"
	"serotonyl.ru/promo-bot/internal/features/flags"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/transport"
)

// world — база в памяти с теми же атомарными правилами, что и SQL.
type world struct {
	mu       sync.Mutex
	accounts map[int64]*accounts.Account
	promos   map[int64]*promotions.Promotion
	nextID   int64
	claims   map[[2]int64]bool

	payFailures int // сколько следующих Settle упадут
}

func newWorld() *world {
	return &world{
		accounts: make(map[int64]*accounts.Account),
		promos:   make(map[int64]*promotions.Promotion),
		claims:   make(map[[2]int64]bool),
	}
}

func (w *world) addAccount(id, credits int64, premium bool) {
	w.accounts[id] = &accounts.Account{UserID: id, Credits: credits, IsPremium: premium}
}

func (w *world) credits(id int64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accounts[id].Credits
}

func (w *world) budget(id int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.promos[id].Budget
}

// promotions.Store

func (w *world) Create(_ context.Context, p *promotions.Promotion) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	p.ID = w.nextID
	cp := *p
	w.promos[p.ID] = &cp
	return nil
}

func (w *world) Fund(ctx context.Context, p *promotions.Promotion) error {
	w.mu.Lock()
	acc := w.accounts[p.OwnerID]
	if acc.Credits < int64(p.Budget) {
		w.mu.Unlock()
		return common.ErrInsufficientBalance
	}
	acc.Credits -= int64(p.Budget)
	w.mu.Unlock()
	return w.Create(ctx, p)
}

func (w *world) Get(_ context.Context, id int64) (*promotions.Promotion, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.promos[id]
	if !ok {
		return nil, fmt.Errorf("id=%d: %w", id, common.ErrPromotionNotFound)
	}
	cp := *p
	return &cp, nil
}

func (w *world) EligibleIDs(_ context.Context, userID int64) ([]int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ids []int64
	for id, p := range w.promos {
		if p.Budget > 0 && p.OwnerID != userID && !w.claims[[2]int64{userID, id}] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (w *world) CountActive(context.Context, int64) (int, error) { return 0, nil }

// Claims

func (w *world) HasClaimed(_ context.Context, userID, promotionID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.claims[[2]int64{userID, promotionID}], nil
}

// Settle повторяет транзакцию claims.Repository.Settle: при сбое начисления
// не меняется ничего.
func (w *world) Settle(_ context.Context, userID, promotionID, reward int64, _ string) (claims.Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := [2]int64{userID, promotionID}
	if w.claims[key] {
		return claims.Duplicate, nil
	}
	p := w.promos[promotionID]
	if p.Budget <= 0 {
		w.claims[key] = true
		return claims.Exhausted, nil
	}
	if w.payFailures > 0 {
		w.payFailures--
		return claims.Duplicate, errors.New("db timeout")
	}
	w.claims[key] = true
	p.Budget--
	w.accounts[userID].Credits += reward
	return claims.Paid, nil
}

// Ledger

func (w *world) AddView(_ context.Context, userID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts[userID].ViewsReceived++
	return nil
}

// Accounts

func (w *world) GetAccount(id int64) *accounts.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	cp := *w.accounts[id]
	return &cp
}

type accountsView struct{ w *world }

func (a accountsView) Get(_ context.Context, id int64) (*accounts.Account, error) {
	return a.w.GetAccount(id), nil
}

// Transport

type fakeTelegram struct {
	mu     sync.Mutex
	status map[int64]string
	err    error
	sent   []int64
}

func (f *fakeTelegram) GetMembership(_ context.Context, _, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.status[userID], nil
}

func (f *fakeTelegram) SendMessage(_ context.Context, chatID int64, _ string, _ *transport.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		RewardNormal:           1,
		RewardNormalPremium:    2,
		RewardForceJoin:        2,
		RewardForceJoinPremium: 4,
	}
}

func newTestService(w *world, tg *fakeTelegram) *Service {
	return NewService(w, w, w, accountsView{w}, tg, tg, testConfig())
}

func fundNormal(t *testing.T, w *world, owner int64, budget int) *promotions.Promotion {
	t.Helper()
	p, err := promotions.NewService(w).Fund(context.Background(), flags.Snapshot{}, owner,
		promotions.TypeNormalLink, budget, promotions.Payload{Text: "Заходи", URL: "https://x.io"})
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	return p
}

func TestScenarioFundClaimExhaust(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 5, false)
	for id := int64(2); id <= 5; id++ {
		w.addAccount(id, 0, false)
	}
	tg := &fakeTelegram{}
	svc := newTestService(w, tg)
	sel := NewSelector(w)
	ctx := context.Background()

	p := fundNormal(t, w, 1, 3)
	if w.credits(1) != 2 || w.budget(p.ID) != 3 {
		t.Fatalf("after fund: credits=%d budget=%d", w.credits(1), w.budget(p.ID))
	}

	for worker := int64(2); worker <= 4; worker++ {
		picked, err := sel.PickTask(ctx, worker)
		if err != nil || picked == nil || picked.ID != p.ID {
			t.Fatalf("worker %d: picked %+v, %v", worker, picked, err)
		}
		res, err := svc.Complete(ctx, worker, p.ID)
		if err != nil {
			t.Fatalf("worker %d: %v", worker, err)
		}
		if res.Reward != 1 || w.credits(worker) != 1 {
			t.Fatalf("worker %d: reward=%d credits=%d", worker, res.Reward, w.credits(worker))
		}
	}

	if w.budget(p.ID) != 0 {
		t.Fatalf("budget = %d, want 0", w.budget(p.ID))
	}
	if picked, err := sel.PickTask(ctx, 5); err != nil || picked != nil {
		t.Fatalf("fourth pick = %+v, %v; want none", picked, err)
	}
	if w.GetAccount(1).ViewsReceived != 3 || len(tg.sent) != 3 {
		t.Fatalf("views=%d notified=%d", w.GetAccount(1).ViewsReceived, len(tg.sent))
	}
}

func TestDoubleClaimPaysOnce(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	w.addAccount(2, 0, true)
	svc := newTestService(w, &fakeTelegram{})
	ctx := context.Background()
	p := fundNormal(t, w, 1, 5)

	if _, err := svc.Complete(ctx, 2, p.ID); err != nil {
		t.Fatal(err)
	}
	before := w.credits(2)
	if _, err := svc.Complete(ctx, 2, p.ID); !errors.Is(err, common.ErrAlreadyClaimed) {
		t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
	}
	if w.credits(2) != before || before != 2 {
		t.Fatalf("credits %d -> %d", before, w.credits(2))
	}
	if w.budget(p.ID) != 4 {
		t.Fatalf("budget = %d, want 4", w.budget(p.ID))
	}
}

func TestConcurrentClaimsNeverOverspendBudget(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	const workers = 20
	for id := int64(100); id < 100+workers; id++ {
		w.addAccount(id, 0, false)
	}
	svc := newTestService(w, &fakeTelegram{})
	p := fundNormal(t, w, 1, 7)

	var wg sync.WaitGroup
	for id := int64(100); id < 100+workers; id++ {
		wg.Add(1)
		go func(worker int64) {
			defer wg.Done()
			svc.Complete(context.Background(), worker, p.ID)
			svc.Complete(context.Background(), worker, p.ID)
		}(id)
	}
	wg.Wait()

	var paid int64
	for id := int64(100); id < 100+workers; id++ {
		paid += w.credits(id)
	}
	if paid != 7 || w.budget(p.ID) != 0 {
		t.Fatalf("paid=%d budget=%d", paid, w.budget(p.ID))
	}
}

func TestExhaustedDoesNotPay(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	w.addAccount(2, 0, false)
	svc := newTestService(w, &fakeTelegram{})
	p := fundNormal(t, w, 1, 1)
	w.promos[p.ID].Budget = 0

	_, err := svc.Complete(context.Background(), 2, p.ID)
	if !errors.Is(err, common.ErrTaskExhausted) {
		t.Fatalf("err = %v, want ErrTaskExhausted", err)
	}
	if w.credits(2) != 0 {
		t.Fatal("exhausted task paid")
	}
	if !w.claims[[2]int64{2, p.ID}] {
		t.Fatal("claim row must stay")
	}
}

func TestFailedPayoutCanBeRetried(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	w.addAccount(2, 0, false)
	svc := newTestService(w, &fakeTelegram{})
	ctx := context.Background()
	p := fundNormal(t, w, 1, 3)

	w.payFailures = 1
	if _, err := svc.Complete(ctx, 2, p.ID); err == nil {
		t.Fatal("want error from failed payout")
	}
	if w.credits(2) != 0 || w.budget(p.ID) != 3 || w.claims[[2]int64{2, p.ID}] {
		t.Fatalf("failed payout left changes: credits=%d budget=%d", w.credits(2), w.budget(p.ID))
	}

	res, err := svc.Complete(ctx, 2, p.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Reward != 1 || w.credits(2) != 1 || w.budget(p.ID) != 2 {
		t.Fatalf("retry: reward=%d credits=%d budget=%d", res.Reward, w.credits(2), w.budget(p.ID))
	}
	if _, err := svc.Complete(ctx, 2, p.ID); !errors.Is(err, common.ErrAlreadyClaimed) {
		t.Fatalf("third attempt: %v, want ErrAlreadyClaimed", err)
	}
}

func TestSelfClaimRejected(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	svc := newTestService(w, &fakeTelegram{})
	p := fundNormal(t, w, 1, 2)

	if _, err := svc.Complete(context.Background(), 1, p.ID); !errors.Is(err, common.ErrSelfClaim) {
		t.Fatalf("err = %v, want ErrSelfClaim", err)
	}
	if picked, _ := NewSelector(w).PickTask(context.Background(), 1); picked != nil {
		t.Fatal("selector returned own promotion")
	}
}

func TestForceJoinVerification(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	w.addAccount(2, 0, false)
	w.addAccount(3, 0, true)
	tg := &fakeTelegram{status: map[int64]string{2: transport.StatusLeft, 3: transport.StatusMember}}
	svc := newTestService(w, tg)
	ctx := context.Background()

	p, err := promotions.NewService(w).Fund(ctx, flags.Snapshot{}, 1,
		promotions.TypeForceJoin, 3, promotions.Payload{ChannelID: -100})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Complete(ctx, 2, p.ID); !errors.Is(err, common.ErrNotJoined) {
		t.Fatalf("err = %v, want ErrNotJoined", err)
	}
	if w.claims[[2]int64{2, p.ID}] {
		t.Fatal("not joined must not record a claim")
	}

	// После подписки можно повторить
	tg.status[2] = transport.StatusMember
	res, err := svc.Complete(ctx, 2, p.ID)
	if err != nil || res.Reward != 2 {
		t.Fatalf("retry: %+v, %v", res, err)
	}
	res, err = svc.Complete(ctx, 3, p.ID)
	if err != nil || res.Reward != 4 {
		t.Fatalf("premium: %+v, %v", res, err)
	}

	tg.err = errors.New("timeout")
	w.addAccount(4, 0, false)
	if _, err := svc.Complete(ctx, 4, p.ID); !errors.Is(err, common.ErrVerifyFailed) {
		t.Fatalf("err = %v, want ErrVerifyFailed", err)
	}
	// Уже выполненное задание не ходит в API
	if _, err := svc.Complete(ctx, 2, p.ID); !errors.Is(err, common.ErrAlreadyClaimed) {
		t.Fatalf("err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestPickSkipsRacedPromotion(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 10, false)
	w.addAccount(2, 0, false)
	a := fundNormal(t, w, 1, 1)
	b := fundNormal(t, w, 1, 1)

	// EligibleIDs видит оба, но a успели исчерпать до чтения строки
	stale := &staleEligible{world: w, ids: []int64{a.ID, b.ID}}
	w.promos[a.ID].Budget = 0

	sel := NewSelector(stale)
	sel.intn = func(int) int { return 0 }
	picked, err := sel.PickTask(context.Background(), 2)
	if err != nil || picked == nil || picked.ID != b.ID {
		t.Fatalf("picked %+v, %v; want %d", picked, err, b.ID)
	}
}

type staleEligible struct {
	*world
	ids []int64
}

func (s *staleEligible) EligibleIDs(context.Context, int64) ([]int64, error) {
	return append([]int64(nil), s.ids...), nil
}

func TestPickTaskUniform(t *testing.T) {
	w := newWorld()
	w.addAccount(1, 100, false)
	w.addAccount(2, 0, false)
	for i := 0; i < 4; i++ {
		fundNormal(t, w, 1, 1)
	}

	sel := NewSelector(w)
	sel.intn = rand.New(rand.NewPCG(7, 7)).IntN
	counts := make(map[int64]int)
	const rounds = 8000
	for i := 0; i < rounds; i++ {
		p, err := sel.PickTask(context.Background(), 2)
		if err != nil || p == nil {
			t.Fatalf("round %d: %+v, %v", i, p, err)
		}
		counts[p.ID]++
	}
	if len(counts) != 4 {
		t.Fatalf("picked %d distinct tasks, want 4", len(counts))
	}
	for id, c := range counts {
		if c < rounds/4-300 || c > rounds/4+300 {
			t.Fatalf("task %d picked %d times of %d", id, c, rounds)
		}
	}
}

func TestRewardsFor(t *testing.T) {
	r := Rewards{Normal: 1, NormalPremium: 2, ForceJoin: 2, ForceJoinPremium: 4}
	tests := []struct {
		typ     promotions.Type
		premium bool
		want    int64
	}{
		{promotions.TypeNormalLink, false, 1},
		{promotions.TypeNormalLink, true, 2},
		{promotions.TypeForceJoin, false, 2},
		{promotions.TypeForceJoin, true, 4},
	}
	for _, tt := range tests {
		if got := r.For(tt.typ, tt.premium); got != tt.want {
			t.Errorf("For(%s, %v) = %d, want %d", tt.typ, tt.premium, got, tt.want)
		}
	}
}
