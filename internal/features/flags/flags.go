// Package flags — переключатели функций бота.
// Snapshot — неизменяемый срез флагов, который читается один раз на апдейт
// и передаётся в сервисы по значению.
package flags

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
)

// Известные флаги.
const (
	GroupPromotion      = "group_promotion"
	ForceJoinPromotion  = "force_join_promotion"
	PremiumImageCaption = "premium_image_caption"
)

// Known — все флаги, которые создаются при старте.
var Known = []string{GroupPromotion, ForceJoinPromotion, PremiumImageCaption}

// Titles — подписи для админ-панели.
var Titles = map[string]string{
	GroupPromotion:      "Рассылка по группам",
	ForceJoinPromotion:  "Промо с подпиской на канал",
	PremiumImageCaption: "Рассылка картинок (премиум)",
}

// Snapshot — состояние флагов на момент чтения.
type Snapshot struct {
	values map[string]bool
}

// NewSnapshot копирует values.
func NewSnapshot(values map[string]bool) Snapshot {
	cp := make(map[string]bool, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Snapshot{values: cp}
}

// Enabled: флаг, которого нет в таблице, считается включённым.
func (s Snapshot) Enabled(name string) bool {
	v, ok := s.values[name]
	return !ok || v
}

// Require возвращает common.ErrFeatureDisabled для выключенного флага.
func (s Snapshot) Require(name string) error {
	if !s.Enabled(name) {
		return fmt.Errorf("%s: %w", name, common.ErrFeatureDisabled)
	}
	return nil
}

// With возвращает новый снимок с изменённым флагом.
func (s Snapshot) With(name string, enabled bool) Snapshot {
	next := NewSnapshot(s.values)
	next.values[name] = enabled
	return next
}

// Names — флаги снимка по алфавиту.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Store — хранилище флагов.
type Store interface {
	Seed(ctx context.Context, names []string) error
	Load(ctx context.Context) (map[string]bool, error)
	Set(ctx context.Context, name string, enabled bool) error
}

// Service читает и переключает флаги.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Seed создаёт недостающие флаги включёнными. Существующие не трогает.
func (s *Service) Seed(ctx context.Context) error {
	return s.store.Seed(ctx, Known)
}

// Snapshot читает текущее состояние.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	values, err := s.store.Load(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(values), nil
}

// Toggle инвертирует флаг и возвращает новый снимок.
func (s *Service) Toggle(ctx context.Context, current Snapshot, name string) (Snapshot, error) {
	if _, ok := Titles[name]; !ok {
		return current, fmt.Errorf("флаг %q: %w", name, common.ErrInvalidAction)
	}
	enabled := !current.Enabled(name)
	if err := s.store.Set(ctx, name, enabled); err != nil {
		return current, err
	}
	log.WithFields(log.Fields{"flag": name, "enabled": enabled}).Info("Флаг переключён")
	return current.With(name, enabled), nil
}
