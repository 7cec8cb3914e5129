// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с временем.
package common

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// pluralize выбирает форму слова по правилам русского языка:
// one — 1, 21, 101; few — 2-4, 22-24; many — 0, 5-20, 25-30.
func pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeCredits возвращает форму слова «кредит» для числа n.
//
//	PluralizeCredits(1)  → "кредит"
//	PluralizeCredits(3)  → "кредита"
//	PluralizeCredits(11) → "кредитов"
func PluralizeCredits(n int64) string {
	return pluralize(n, "кредит", "кредита", "кредитов")
}

// PluralizeDays возвращает форму слова «день».
func PluralizeDays(n int) string {
	return pluralize(int64(n), "день", "дня", "дней")
}

// PluralizeUsers возвращает форму слова «пользователь».
func PluralizeUsers(n int) string {
	return pluralize(int64(n), "пользователь", "пользователя", "пользователей")
}

// FormatCredits форматирует сумму: FormatCredits(150) → "150 кредитов".
func FormatCredits(amount int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizeCredits(amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	head := len(s) % 3
	if head > 0 {
		sb.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// CeilDiv — целочисленное деление с округлением вверх для положительных a, b.
func CeilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// FormatDate форматирует дату как "02.01.2006" в указанной зоне.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006")
}

// FormatDateTime форматирует время как "02.01.2006 15:04" в указанной зоне.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// ValidateURL проверяет, что ссылка абсолютная и начинается с http:// или https://.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
