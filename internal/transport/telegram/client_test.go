package telegram

import (
	"errors"
	"fmt"
	"testing"

	ta "github.com/mymmrac/telego/telegoapi"

	"serotonyl.ru/promo-bot/internal/transport"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		blocked bool
		fatal   bool
	}{
		{
			name:    "blocked by user",
			err:     fmt.Errorf("telego: copyMessage: %w", &ta.Error{ErrorCode: 403, Description: "Forbidden: bot was blocked by the user"}),
			blocked: true,
		},
		{
			name:    "deactivated",
			err:     errors.New("Forbidden: user is deactivated"),
			blocked: true,
		},
		{
			name:  "token revoked",
			err:   fmt.Errorf("telego: sendMessage: %w", &ta.Error{ErrorCode: 401, Description: "Unauthorized"}),
			fatal: true,
		},
		{
			name: "chat not found",
			err:  fmt.Errorf("telego: sendMessage: %w", &ta.Error{ErrorCode: 400, Description: "Bad Request: chat not found"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, transport.ErrBlocked) != tt.blocked {
				t.Errorf("blocked = %v, want %v (%v)", !tt.blocked, tt.blocked, got)
			}
			if errors.Is(got, transport.ErrFatal) != tt.fatal {
				t.Errorf("fatal = %v, want %v (%v)", !tt.fatal, tt.fatal, got)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("original error lost: %v", got)
			}
		})
	}

	if classify(nil) != nil {
		t.Fatal("classify(nil) must be nil")
	}
}

func TestKeyboard(t *testing.T) {
	if keyboard(nil) != nil {
		t.Fatal("nil button must give nil keyboard")
	}
	if keyboard(&transport.Button{Text: "x"}) != nil {
		t.Fatal("button without URL must give nil keyboard")
	}
	kb := keyboard(&transport.Button{Text: "Перейти", URL: "https://example.com"})
	if kb == nil || len(kb.InlineKeyboard) != 1 || kb.InlineKeyboard[0][0].URL != "https://example.com" {
		t.Fatalf("unexpected keyboard %+v", kb)
	}
}

func TestMenu(t *testing.T) {
	kb := menu([][]transport.Button{
		{{Text: "Задания", Data: "menu:tasks"}, {Text: "Сайт", URL: "https://example.com"}},
		{{Text: "пустая"}},
		{{Text: "Назад", Data: "menu:main"}},
	})
	if kb == nil || len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %+v", kb)
	}
	if kb.InlineKeyboard[0][0].CallbackData != "menu:tasks" || kb.InlineKeyboard[0][1].URL != "https://example.com" {
		t.Fatalf("first row = %+v", kb.InlineKeyboard[0])
	}
	if menu(nil) != nil {
		t.Fatal("empty menu must be nil")
	}
}
