package actions

import (
	"errors"
	"strings"
	"testing"

	"serotonyl.ru/promo-bot/internal/common"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		data string
		want Action
	}{
		{"claim:12:7", Claim{PromotionID: 12, PromoterID: 7}},
		{"verify:12:-1001234567890:7", Verify{PromotionID: 12, ChannelID: -1001234567890, PromoterID: 7}},
		{"report:7", Report{PromoterID: 7}},
		{"menu:tasks", Menu{Name: "tasks"}},
		{"promo:force_join", Promo{Type: "force_join"}},
		{"flag:group_promotion", Flag{Name: "group_promotion"}},
	}
	for _, tt := range tests {
		t.Run(tt.data, func(t *testing.T) {
			got, err := Decode(tt.data)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Decode = %#v, want %#v", got, tt.want)
			}
			if got.Encode() != tt.data {
				t.Fatalf("Encode = %q", got.Encode())
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	malformed := []string{
		"",
		"claim",
		"claim:",
		"claim:12",
		"claim:12:7:1",
		"claim:abc:7",
		"claim:-1:7",
		"claim:12:0",
		"claim:99999999999999999999:7",
		"claim:+5:3",
		"claim:05:3",
		"claim:5:+3",
		"verify:12:-0:7",
		"verify:12:-01001:7",
		"report:007",
		"verify:12:7",
		"verify:12:0:7",
		"report:",
		"report:me",
		"menu:",
		"menu:Tasks",
		"menu:a:b",
		"promo:../etc",
		"flag:dröp",
		"buy:1",
		":1",
		"menu:" + strings.Repeat("a", MaxLength),
	}
	for _, data := range malformed {
		t.Run(data, func(t *testing.T) {
			got, err := Decode(data)
			if !errors.Is(err, common.ErrInvalidAction) {
				t.Fatalf("Decode(%q) = %#v, %v; want ErrInvalidAction", data, got, err)
			}
			if got != nil {
				t.Fatalf("Decode(%q) returned %#v with error", data, got)
			}
		})
	}
}

func TestEncodeFitsCallbackData(t *testing.T) {
	a := Verify{PromotionID: 9_999_999_999, ChannelID: -1009999999999, PromoterID: 9_999_999_999}
	if n := len(a.Encode()); n > MaxLength {
		t.Fatalf("encoded length %d > %d", n, MaxLength)
	}
}
