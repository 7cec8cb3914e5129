// Package dialog — пошаговые диалоги пользователя (конечный автомат).
// На каждый аккаунт не больше одного активного диалога. Черновые данные шага
// лежат в Session.Scratch и выбрасываются при завершении или отмене.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"serotonyl.ru/promo-bot/internal/common"
)

// State — шаг диалога.
type State string

// Возможные состояния диалога
const (
	StateIdle State = "" // Нет активного диалога

	StateNormalText State = "normal_text" // Ждём текст обычного промо
	StateNormalURL  State = "normal_url"  // Ждём ссылку

	StateForceJoinChannel State = "force_join_channel" // Ждём ID или @username канала

	StatePromoType   State = "promo_type"   // Ждём выбор типа промо
	StatePromoBudget State = "promo_budget" // Ждём бюджет

	StateImageSource State = "image_source" // Ждём картинку
	StateImageCount  State = "image_count"  // Ждём число получателей

	StateReportMessage State = "report_message" // Ждём пересланное сообщение

	StateAdminBroadcast     State = "admin_broadcast"      // Ждём текст объявления
	StateAdminPremiumUser   State = "admin_premium_user"   // Ждём ID для премиума
	StateAdminPremiumDays   State = "admin_premium_days"   // Ждём срок в днях
	StateAdminUnpremiumUser State = "admin_unpremium_user" // Ждём ID для снятия премиума
	StateAdminBanUser       State = "admin_ban_user"
	StateAdminUnbanUser     State = "admin_unban_user"
	StateAdminStatsUser     State = "admin_stats_user"
)

// transitions: из какого шага в какие можно перейти.
// Переход в StateIdle (завершение) разрешён всегда, см. End.
var transitions = map[State][]State{
	StateNormalText:  {StateNormalURL},
	StatePromoType:   {StatePromoBudget},
	StateImageSource: {StateImageCount},

	StateAdminPremiumUser: {StateAdminPremiumDays},
}

// entries — шаги, с которых можно начать диалог.
var entries = map[State]bool{
	StateNormalText:         true,
	StateForceJoinChannel:   true,
	StatePromoType:          true,
	StateImageSource:        true,
	StateReportMessage:      true,
	StateAdminBroadcast:     true,
	StateAdminPremiumUser:   true,
	StateAdminUnpremiumUser: true,
	StateAdminBanUser:       true,
	StateAdminUnbanUser:     true,
	StateAdminStatsUser:     true,
}

// ErrUnexpectedStep — шаг пришёл не по порядку. Классифицируется как
// common.ErrInvalidAction: обработчик сбрасывает диалог.
var ErrUnexpectedStep = fmt.Errorf("шаг диалога не по порядку: %w", common.ErrInvalidAction)

// Session — активный диалог аккаунта.
type Session struct {
	State     State             `json:"state"`
	Scratch   map[string]string `json:"scratch,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Get возвращает значение из черновика.
func (s *Session) Get(key string) string {
	if s == nil || s.Scratch == nil {
		return ""
	}
	return s.Scratch[key]
}

// Idle — диалога нет.
func (s *Session) Idle() bool {
	return s == nil || s.State == StateIdle
}

// Store хранит сессии с TTL. Load для отсутствующей сессии возвращает nil, nil.
type Store interface {
	Load(ctx context.Context, userID int64) (*Session, error)
	Save(ctx context.Context, userID int64, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, userID int64) error
}

// Machine проверяет переходы и хранит сессии.
type Machine struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewMachine создаёт автомат. ttl — сколько живёт брошенный диалог.
func NewMachine(store Store, ttl time.Duration) *Machine {
	return &Machine{store: store, ttl: ttl, now: time.Now}
}

// Current возвращает активный диалог или пустую сессию в StateIdle.
func (m *Machine) Current(ctx context.Context, userID int64) (*Session, error) {
	s, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения диалога: %w", err)
	}
	if s == nil {
		return &Session{State: StateIdle}, nil
	}
	return s, nil
}

// Begin начинает диалог с шага state. Предыдущий диалог, если был, выбрасывается.
func (m *Machine) Begin(ctx context.Context, userID int64, state State, scratch map[string]string) (*Session, error) {
	if !entries[state] {
		return nil, fmt.Errorf("%w: %q не начальный шаг", ErrUnexpectedStep, state)
	}
	s := &Session{State: state, Scratch: copyScratch(nil, scratch), UpdatedAt: m.now()}
	if err := m.store.Save(ctx, userID, s, m.ttl); err != nil {
		return nil, fmt.Errorf("ошибка сохранения диалога: %w", err)
	}
	return s, nil
}

// Advance переводит диалог из from в to и дописывает set в черновик.
// Если текущий шаг не from или переход не разрешён — ErrUnexpectedStep.
func (m *Machine) Advance(ctx context.Context, userID int64, from, to State, set map[string]string) (*Session, error) {
	s, err := m.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.State != from {
		return nil, fmt.Errorf("%w: сейчас %q, ожидали %q", ErrUnexpectedStep, s.State, from)
	}
	if !allowed(from, to) {
		return nil, fmt.Errorf("%w: %q -> %q", ErrUnexpectedStep, from, to)
	}

	next := &Session{State: to, Scratch: copyScratch(s.Scratch, set), UpdatedAt: m.now()}
	if err := m.store.Save(ctx, userID, next, m.ttl); err != nil {
		return nil, fmt.Errorf("ошибка сохранения диалога: %w", err)
	}
	return next, nil
}

// Expect возвращает сессию, если диалог сейчас на шаге state.
func (m *Machine) Expect(ctx context.Context, userID int64, state State) (*Session, error) {
	s, err := m.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.State != state {
		return nil, fmt.Errorf("%w: сейчас %q, ожидали %q", ErrUnexpectedStep, s.State, state)
	}
	return s, nil
}

// End завершает диалог и выбрасывает черновик. Используется и для /cancel.
func (m *Machine) End(ctx context.Context, userID int64) error {
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("ошибка завершения диалога: %w", err)
	}
	return nil
}

// IsUnexpectedStep — удобная проверка для обработчиков.
func IsUnexpectedStep(err error) bool {
	return errors.Is(err, ErrUnexpectedStep)
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func copyScratch(base, set map[string]string) map[string]string {
	if len(base) == 0 && len(set) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(set))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range set {
		out[k] = v
	}
	return out
}
