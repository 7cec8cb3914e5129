package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestPluralizeCredits(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "кредитов"},
		{1, "кредит"},
		{3, "кредита"},
		{5, "кредитов"},
		{11, "кредитов"},
		{12, "кредитов"},
		{21, "кредит"},
		{22, "кредита"},
		{111, "кредитов"},
		{-2, "кредита"},
	}
	for _, tt := range tests {
		if got := PluralizeCredits(tt.n); got != tt.want {
			t.Errorf("PluralizeCredits(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1 000",
		2350:     "2 350",
		1234567:  "1 234 567",
		-45000:   "-45 000",
		10000000: "10 000 000",
	}
	for n, want := range tests {
		if got := FormatNumber(n); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestCeilDiv(t *testing.T) {
	tests := []struct{ a, b, want int }{
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{0, 10, 0},
		{25, 10, 3},
	}
	for _, tt := range tests {
		if got := CeilDiv(tt.a, tt.b); got != tt.want {
			t.Errorf("CeilDiv(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{ErrInvalidURL, KindValidation},
		{fmt.Errorf("списание: %w", ErrInsufficientBalance), KindValidation},
		{ErrAlreadyClaimed, KindIdempotent},
		{fmt.Errorf("get: %w", ErrPromotionNotFound), KindIntegrity},
		{ErrInvalidAction, KindIntegrity},
		{ErrVerifyFailed, KindTransport},
		{ErrBanned, KindAccess},
		{errors.New("boom"), KindInternal},
		{nil, KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(fmt.Errorf("x: %w", ErrNoRunsLeft)); got != "Запуски групповой рассылки на сегодня закончились" {
		t.Errorf("validation message = %q", got)
	}
	if got := UserMessage(ErrAccountNotFound); got != "Операция недоступна" {
		t.Errorf("integrity message = %q", got)
	}
	if got := UserMessage(ErrInvalidAction); got != "Некорректный запрос" {
		t.Errorf("invalid action message = %q", got)
	}
	if got := UserMessage(errors.New("pg: connection reset")); got != "Что-то пошло не так, попробуйте позже" {
		t.Errorf("internal message = %q", got)
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://example.com", "http://t.me/channel", " https://a.b/c?d=1 "}
	for _, u := range valid {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v", u, err)
		}
	}
	invalid := []string{"", "example.com", "ftp://example.com", "https://", "javascript:alert(1)"}
	for _, u := range invalid {
		if err := ValidateURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateURL(%q) = %v, want ErrInvalidURL", u, err)
		}
	}
}
