package middleware

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow(1) {
			t.Fatalf("request %d rejected within limit", i)
		}
	}
	if rl.Allow(1) {
		t.Fatal("fourth request in window allowed")
	}
	if !rl.Allow(2) {
		t.Fatal("other user must not be limited")
	}

	// Один токен восполняется за window/limit
	now = now.Add(20 * time.Second)
	if !rl.Allow(1) {
		t.Fatal("refilled token rejected")
	}
	if rl.Allow(1) {
		t.Fatal("only one token should refill")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow(1)
	now = now.Add(30 * time.Second)
	rl.Allow(2)
	now = now.Add(45 * time.Second)

	if n := rl.sweep(); n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	if _, ok := rl.users[2]; !ok {
		t.Fatal("recent user swept")
	}
}

func TestRecoverFromPanic(t *testing.T) {
	func() {
		defer RecoverFromPanic(42)
		panic("boom")
	}()
}

func TestLogUpdateHandlesAllKinds(t *testing.T) {
	LogUpdate(telego.Update{UpdateID: 1})
	LogUpdate(telego.Update{UpdateID: 2, Message: &telego.Message{Text: "привет", Chat: telego.Chat{ID: 5}}})
	LogUpdate(telego.Update{UpdateID: 3, CallbackQuery: &telego.CallbackQuery{Data: "menu:main"}})
}

func TestTruncate(t *testing.T) {
	if got := truncate("привет мир", 6); got != "привет..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ok", 6); got != "ok" {
		t.Fatalf("truncate = %q", got)
	}
}
