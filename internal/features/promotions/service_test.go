package promotions

import (
	"context"
	"errors"
	"testing"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/flags"
)

// fundStore считает вызовы Fund; баланс не моделирует.
type fundStore struct {
	Store
	funded []*Promotion
	err    error
}

func (f *fundStore) Fund(_ context.Context, p *Promotion) error {
	if f.err != nil {
		return f.err
	}
	p.ID = int64(len(f.funded) + 1)
	f.funded = append(f.funded, p)
	return nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		budget  int
		payload Payload
		want    error
	}{
		{"ok normal", TypeNormalLink, 3, Payload{Text: "hi", URL: "https://x.io"}, nil},
		{"ok force join", TypeForceJoin, 1, Payload{ChannelID: -100}, nil},
		{"zero budget", TypeNormalLink, 0, Payload{Text: "hi", URL: "https://x.io"}, common.ErrInvalidAmount},
		{"bad url", TypeNormalLink, 1, Payload{Text: "hi", URL: "ftp://x.io"}, common.ErrInvalidURL},
		{"empty text", TypeNormalLink, 1, Payload{Text: " ", URL: "https://x.io"}, common.ErrEmptyText},
		{"no channel", TypeForceJoin, 1, Payload{}, common.ErrChannelMissing},
		{"unknown type", Type("x"), 1, Payload{}, common.ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.typ, tt.budget, tt.payload)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		input   string
		balance int64
		want    int
		wantErr error
	}{
		{"3", 5, 3, nil},
		{" 5 ", 5, 5, nil},
		{"6", 5, 0, common.ErrInsufficientBalance},
		{"0", 5, 0, common.ErrInvalidAmount},
		{"-2", 5, 0, common.ErrInvalidAmount},
		{"abc", 5, 0, common.ErrInvalidNumber},
		{"1.5", 5, 0, common.ErrInvalidNumber},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBudget(tt.input, tt.balance)
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Fatalf("ParseBudget(%q) = %d, %v", tt.input, got, err)
			}
		})
	}
}

func TestPayloadFor(t *testing.T) {
	text, url := "Заходи", "https://x.io"
	channel := int64(-1001)
	acc := &accounts.Account{NormalText: &text, NormalURL: &url, ForceJoinChannelID: &channel}

	p, err := PayloadFor(acc, TypeNormalLink)
	if err != nil || p.URL != url || p.Text != text {
		t.Fatalf("normal payload = %+v, %v", p, err)
	}
	p, err = PayloadFor(acc, TypeForceJoin)
	if err != nil || p.ChannelID != channel {
		t.Fatalf("force join payload = %+v, %v", p, err)
	}

	empty := &accounts.Account{}
	if _, err := PayloadFor(empty, TypeNormalLink); !errors.Is(err, common.ErrTemplateMissing) {
		t.Fatalf("err = %v, want ErrTemplateMissing", err)
	}
	if _, err := PayloadFor(empty, TypeForceJoin); !errors.Is(err, common.ErrChannelMissing) {
		t.Fatalf("err = %v, want ErrChannelMissing", err)
	}
}

func TestFundRespectsFlag(t *testing.T) {
	store := &fundStore{}
	svc := NewService(store)
	ctx := context.Background()
	payload := Payload{ChannelID: -100}

	off := flags.NewSnapshot(map[string]bool{flags.ForceJoinPromotion: false})
	if _, err := svc.Fund(ctx, off, 1, TypeForceJoin, 2, payload); !errors.Is(err, common.ErrFeatureDisabled) {
		t.Fatalf("err = %v, want ErrFeatureDisabled", err)
	}
	if len(store.funded) != 0 {
		t.Fatal("disabled type must not be funded")
	}

	promo, err := svc.Fund(ctx, flags.Snapshot{}, 1, TypeForceJoin, 2, payload)
	if err != nil {
		t.Fatal(err)
	}
	if promo.ID != 1 || promo.Budget != 2 || !promo.Active() {
		t.Fatalf("promo = %+v", promo)
	}
}

func TestFundPassesStoreError(t *testing.T) {
	store := &fundStore{err: common.ErrInsufficientBalance}
	svc := NewService(store)

	_, err := svc.Fund(context.Background(), flags.Snapshot{}, 1, TypeNormalLink, 10,
		Payload{Text: "hi", URL: "https://x.io"})
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("err = %v", err)
	}
}
