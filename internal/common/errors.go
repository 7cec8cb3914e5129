// Package common — errors.go определяет ошибки, общие для всех модулей бота,
// и их классификацию. По классу обработчик решает, что ответить пользователю
// и оставить ли пошаговый диалог на месте.
package common

import (
	"errors"
	"unicode"
)

// Ошибки валидации: диалог остаётся на текущем шаге, состояние не менялось
var (
	// ErrInvalidAmount — ноль или отрицательная сумма
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInvalidNumber — ввели не число
	ErrInvalidNumber = errors.New("нужно отправить число")
	// ErrInsufficientBalance — недостаточно кредитов на счёте
	ErrInsufficientBalance = errors.New("недостаточно кредитов на счёте")
	// ErrInvalidURL — ссылка не начинается с http:// или https://
	ErrInvalidURL = errors.New("ссылка должна начинаться с http:// или https://")
	// ErrEmptyText — пустой текст промо
	ErrEmptyText = errors.New("текст не может быть пустым")
	// ErrNotPremium — функция только для премиума
	ErrNotPremium = errors.New("функция доступна только с премиумом")
	// ErrAllowanceExceeded — больше получателей, чем осталось на сегодня
	ErrAllowanceExceeded = errors.New("лимит рассылок на сегодня исчерпан")
	// ErrNoRunsLeft — дневные запуски групповой рассылки закончились
	ErrNoRunsLeft = errors.New("запуски групповой рассылки на сегодня закончились")
	// ErrTemplateMissing — не настроено обычное промо
	ErrTemplateMissing = errors.New("сначала настройте обычное промо со ссылкой")
	// ErrChannelMissing — не настроен канал для подписки
	ErrChannelMissing = errors.New("сначала укажите канал для подписки")
	// ErrSelfClaim — попытка выполнить своё же задание
	ErrSelfClaim = errors.New("нельзя выполнять собственное задание")
	// ErrNotJoined — пользователь не подписался на канал
	ErrNotJoined = errors.New("вы ещё не подписались на канал")
	// ErrBotNotAdmin — бот не администратор в канале/группе
	ErrBotNotAdmin = errors.New("бот не является администратором")
	// ErrFeatureDisabled — функция выключена флагом
	ErrFeatureDisabled = errors.New("функция временно отключена")
	// ErrNoTargets — некому отправлять
	ErrNoTargets = errors.New("нет доступных получателей")
)

// Идемпотентные no-op: не ошибки по сути, а исход операции
var (
	// ErrAlreadyClaimed — награда за это задание уже получена
	ErrAlreadyClaimed = errors.New("вы уже выполнили это задание")
	// ErrTaskExhausted — бюджет задания закончился раньше, чем засчитали выполнение
	ErrTaskExhausted = errors.New("бюджет задания закончился")
)

// Ошибки целостности: диалог сбрасывается
var (
	// ErrAccountNotFound — аккаунт не найден
	ErrAccountNotFound = errors.New("аккаунт не найден")
	// ErrPromotionNotFound — промо не найдено
	ErrPromotionNotFound = errors.New("промо не найдено")
	// ErrGroupNotFound — группа не зарегистрирована
	ErrGroupNotFound = errors.New("группа не найдена")
	// ErrInvalidAction — не удалось разобрать токен кнопки
	ErrInvalidAction = errors.New("некорректный запрос")
)

// Ошибки транспорта
var (
	// ErrVerifyFailed — Telegram не ответил на проверку подписки
	ErrVerifyFailed = errors.New("не удалось проверить подписку")
)

// Ошибки доступа
var (
	// ErrBanned — пользователь заблокирован
	ErrBanned = errors.New("вы заблокированы в этом боте")
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// Kind — класс ошибки.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindIdempotent
	KindIntegrity
	KindTransport
	KindAccess
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{
		ErrInvalidAmount, ErrInvalidNumber, ErrInsufficientBalance, ErrInvalidURL,
		ErrEmptyText, ErrNotPremium, ErrAllowanceExceeded, ErrNoRunsLeft,
		ErrTemplateMissing, ErrChannelMissing, ErrSelfClaim, ErrNotJoined,
		ErrBotNotAdmin, ErrFeatureDisabled, ErrNoTargets,
	}},
	{KindIdempotent, []error{ErrAlreadyClaimed, ErrTaskExhausted}},
	{KindIntegrity, []error{ErrAccountNotFound, ErrPromotionNotFound, ErrGroupNotFound, ErrInvalidAction}},
	{KindTransport, []error{ErrVerifyFailed}},
	{KindAccess, []error{ErrBanned, ErrNotAdmin, ErrWrongPassword, ErrTooManyAttempts, ErrSessionExpired}},
}

// KindOf классифицирует ошибку по известным sentinel-ошибкам.
// nil и неизвестные ошибки — KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// UserMessage возвращает текст ошибки, который можно показать пользователю.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindInternal:
		return "Что-то пошло не так, попробуйте позже"
	case KindIntegrity:
		if errors.Is(err, ErrInvalidAction) {
			return "Некорректный запрос"
		}
		return "Операция недоступна"
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return capitalize(target.Error())
			}
		}
	}
	return err.Error()
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
