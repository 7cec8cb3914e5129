// Package actions кодирует и разбирает callback_data inline-кнопок.
//
// Форматы:
//
//	claim:<promotionId>:<promoterId>
//	verify:<promotionId>:<channelId>:<promoterId>
//	report:<promoterId>
//	menu:<name>
//	promo:<type>
//	flag:<name>
//
// Любой неразборчивый токен — common.ErrInvalidAction.
package actions

import (
	"fmt"
	"strconv"
	"strings"

	"serotonyl.ru/promo-bot/internal/common"
)

// MaxLength — лимит Telegram на callback_data.
const MaxLength = 64

// Action — разобранный токен кнопки.
type Action interface {
	Encode() string
}

// Claim — «Выполнил» под обычным заданием.
type Claim struct {
	PromotionID int64
	PromoterID  int64
}

// Verify — «Проверить подписку» под заданием на подписку.
type Verify struct {
	PromotionID int64
	ChannelID   int64 // Отрицательный для каналов
	PromoterID  int64
}

// Report — жалоба на промоутера.
type Report struct {
	PromoterID int64
}

// Menu — раздел меню.
type Menu struct {
	Name string
}

// Promo — выбор типа промо при создании.
type Promo struct {
	Type string
}

// Flag — переключение флага админом.
type Flag struct {
	Name string
}

func (a Claim) Encode() string {
	return fmt.Sprintf("claim:%d:%d", a.PromotionID, a.PromoterID)
}

func (a Verify) Encode() string {
	return fmt.Sprintf("verify:%d:%d:%d", a.PromotionID, a.ChannelID, a.PromoterID)
}

func (a Report) Encode() string { return "report:" + strconv.FormatInt(a.PromoterID, 10) }
func (a Menu) Encode() string   { return "menu:" + a.Name }
func (a Promo) Encode() string  { return "promo:" + a.Type }
func (a Flag) Encode() string   { return "flag:" + a.Name }

// Decode разбирает callback_data.
func Decode(data string) (Action, error) {
	if data == "" || len(data) > MaxLength {
		return nil, invalid(data)
	}
	kind, rest, ok := strings.Cut(data, ":")
	if !ok {
		return nil, invalid(data)
	}
	parts := strings.Split(rest, ":")

	switch kind {
	case "claim":
		ids, err := parseIDs(parts, 2)
		if err != nil || ids[0] <= 0 || ids[1] <= 0 {
			return nil, invalid(data)
		}
		return Claim{PromotionID: ids[0], PromoterID: ids[1]}, nil

	case "verify":
		ids, err := parseIDs(parts, 3)
		if err != nil || ids[0] <= 0 || ids[1] == 0 || ids[2] <= 0 {
			return nil, invalid(data)
		}
		return Verify{PromotionID: ids[0], ChannelID: ids[1], PromoterID: ids[2]}, nil

	case "report":
		ids, err := parseIDs(parts, 1)
		if err != nil || ids[0] <= 0 {
			return nil, invalid(data)
		}
		return Report{PromoterID: ids[0]}, nil

	case "menu", "promo", "flag":
		if len(parts) != 1 || !isName(parts[0]) {
			return nil, invalid(data)
		}
		switch kind {
		case "menu":
			return Menu{Name: parts[0]}, nil
		case "promo":
			return Promo{Type: parts[0]}, nil
		default:
			return Flag{Name: parts[0]}, nil
		}
	}
	return nil, invalid(data)
}

func parseIDs(parts []string, n int) ([]int64, error) {
	if len(parts) != n {
		return nil, fmt.Errorf("ожидали %d полей, получили %d", n, len(parts))
	}
	ids := make([]int64, n)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, err
		}
		// Только каноничная запись, как в Encode: без '+' и ведущих нулей
		if strconv.FormatInt(v, 10) != p {
			return nil, fmt.Errorf("неканоничное число %q", p)
		}
		ids[i] = v
	}
	return ids, nil
}

// isName: латиница в нижнем регистре, цифры и '_'.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

func invalid(data string) error {
	return fmt.Errorf("%w: %q", common.ErrInvalidAction, data)
}
