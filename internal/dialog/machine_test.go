package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"serotonyl.ru/promo-bot/internal/common"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMachine() (*Machine, *MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = c.now
	m := NewMachine(store, 10*time.Minute)
	m.now = c.now
	return m, store, c
}

func TestNormalLinkFlow(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()

	s, err := m.Current(ctx, 1)
	if err != nil || !s.Idle() {
		t.Fatalf("initial session = %+v, %v", s, err)
	}
	if _, err := m.Begin(ctx, 1, StateNormalText, nil); err != nil {
		t.Fatal(err)
	}
	s, err = m.Advance(ctx, 1, StateNormalText, StateNormalURL, map[string]string{"text": "Жми"})
	if err != nil {
		t.Fatal(err)
	}
	if s.State != StateNormalURL || s.Get("text") != "Жми" {
		t.Fatalf("session = %+v", s)
	}
	if _, err := m.Expect(ctx, 1, StateNormalURL); err != nil {
		t.Fatal(err)
	}
	if err := m.End(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if s, _ := m.Current(ctx, 1); !s.Idle() || s.Get("text") != "" {
		t.Fatalf("scratch survived End: %+v", s)
	}
}

func TestOutOfOrderStepsRejected(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()

	tests := []struct {
		name  string
		begin State
		from  State
		to    State
	}{
		{"advance without begin", StateIdle, StateNormalText, StateNormalURL},
		{"wrong current step", StatePromoType, StateNormalText, StateNormalURL},
		{"skip to budget from image", StateImageSource, StateImageSource, StatePromoBudget},
		{"terminal step has no next", StateForceJoinChannel, StateForceJoinChannel, StateNormalURL},
		{"backwards", StateNormalText, StateNormalURL, StateNormalText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = m.End(ctx, 1)
			if tt.begin != StateIdle {
				if _, err := m.Begin(ctx, 1, tt.begin, nil); err != nil {
					t.Fatal(err)
				}
			}
			_, err := m.Advance(ctx, 1, tt.from, tt.to, nil)
			if !IsUnexpectedStep(err) {
				t.Fatalf("err = %v, want ErrUnexpectedStep", err)
			}
			if common.KindOf(err) != common.KindIntegrity {
				t.Fatalf("kind = %v, want integrity", common.KindOf(err))
			}
			s, _ := m.Current(ctx, 1)
			if s.State != tt.begin {
				t.Fatalf("rejected step changed state to %q", s.State)
			}
		})
	}
}

func TestBeginRejectsMidFlowState(t *testing.T) {
	m, _, _ := newTestMachine()
	for _, st := range []State{StateIdle, StateNormalURL, StatePromoBudget, StateImageCount, StateAdminPremiumDays} {
		if _, err := m.Begin(context.Background(), 1, st, nil); !errors.Is(err, ErrUnexpectedStep) {
			t.Errorf("Begin(%q) err = %v", st, err)
		}
	}
}

func TestBeginReplacesPreviousFlow(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	if _, err := m.Begin(ctx, 1, StatePromoType, map[string]string{"type": "normal_link"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Begin(ctx, 1, StateReportMessage, map[string]string{"promoter": "7"}); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Current(ctx, 1)
	if s.State != StateReportMessage || s.Get("type") != "" || s.Get("promoter") != "7" {
		t.Fatalf("session = %+v", s)
	}
}

func TestSessionExpires(t *testing.T) {
	m, store, c := newTestMachine()
	ctx := context.Background()
	if _, err := m.Begin(ctx, 1, StateImageSource, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Begin(ctx, 2, StateImageSource, nil); err != nil {
		t.Fatal(err)
	}

	c.t = c.t.Add(11 * time.Minute)
	if s, _ := m.Current(ctx, 1); !s.Idle() {
		t.Fatalf("expired session still active: %+v", s)
	}
	if n := store.Sweep(); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m, _, _ := newTestMachine()
	ctx := context.Background()
	if _, err := m.Begin(ctx, 1, StateNormalText, nil); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Current(ctx, 1)
	s.Scratch = map[string]string{"text": "mutated"}

	if got, _ := m.Current(ctx, 1); got.Get("text") != "" {
		t.Fatal("caller mutation leaked into store")
	}
	if got, _ := m.Current(ctx, 2); !got.Idle() {
		t.Fatal("other account sees a flow")
	}
}
