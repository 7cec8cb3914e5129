package promotions

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/flags"
)

// Store — хранилище промо. Реализация — *Repository.
type Store interface {
	Create(ctx context.Context, p *Promotion) error
	Fund(ctx context.Context, p *Promotion) error
	Get(ctx context.Context, promotionID int64) (*Promotion, error)
	EligibleIDs(ctx context.Context, userID int64) ([]int64, error)
	CountActive(ctx context.Context, ownerID int64) (int, error)
}

// Service создаёт и оплачивает промо.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Validate проверяет бюджет и содержимое задания.
func Validate(t Type, budget int, p Payload) error {
	if budget <= 0 {
		return common.ErrInvalidAmount
	}
	switch t {
	case TypeNormalLink:
		if strings.TrimSpace(p.Text) == "" {
			return common.ErrEmptyText
		}
		return common.ValidateURL(p.URL)
	case TypeForceJoin:
		if p.ChannelID == 0 {
			return common.ErrChannelMissing
		}
		return nil
	}
	return fmt.Errorf("тип %q: %w", t, common.ErrInvalidAction)
}

// PayloadFor собирает содержимое задания из сохранённых настроек аккаунта.
func PayloadFor(acc *accounts.Account, t Type) (Payload, error) {
	switch t {
	case TypeNormalLink:
		tpl := acc.NormalTemplate()
		if tpl == nil {
			return Payload{}, common.ErrTemplateMissing
		}
		return Payload{Text: tpl.Text, URL: tpl.URL, Source: tpl.Source}, nil
	case TypeForceJoin:
		if acc.ForceJoinChannelID == nil || *acc.ForceJoinChannelID == 0 {
			return Payload{}, common.ErrChannelMissing
		}
		return Payload{ChannelID: *acc.ForceJoinChannelID}, nil
	}
	return Payload{}, fmt.Errorf("тип %q: %w", t, common.ErrInvalidAction)
}

// CheckType проверяет, что тип разрешён флагами.
func CheckType(fs flags.Snapshot, t Type) error {
	if t == TypeForceJoin {
		return fs.Require(flags.ForceJoinPromotion)
	}
	return nil
}

// ParseBudget разбирает бюджет из сообщения: целое от 1 до balance.
func ParseBudget(input string, balance int64) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, common.ErrInvalidNumber
	}
	if n <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if int64(n) > balance {
		return 0, common.ErrInsufficientBalance
	}
	return n, nil
}

// Fund списывает budget кредитов и создаёт промо одной транзакцией.
func (s *Service) Fund(ctx context.Context, fs flags.Snapshot, ownerID int64, t Type, budget int, p Payload) (*Promotion, error) {
	if err := CheckType(fs, t); err != nil {
		return nil, err
	}
	if err := Validate(t, budget, p); err != nil {
		return nil, err
	}

	promo := &Promotion{OwnerID: ownerID, Type: t, Budget: budget, Payload: p}
	if err := s.store.Fund(ctx, promo); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"promotion_id": promo.ID,
		"owner_id":     ownerID,
		"type":         t,
		"budget":       budget,
	}).Info("Промо создано")
	return promo, nil
}

// Create — промо без списания, для уже оплаченного бюджета.
func (s *Service) Create(ctx context.Context, ownerID int64, t Type, budget int, p Payload) (*Promotion, error) {
	if err := Validate(t, budget, p); err != nil {
		return nil, err
	}
	promo := &Promotion{OwnerID: ownerID, Type: t, Budget: budget, Payload: p}
	if err := s.store.Create(ctx, promo); err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *Service) Get(ctx context.Context, promotionID int64) (*Promotion, error) {
	return s.store.Get(ctx, promotionID)
}

func (s *Service) EligibleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.EligibleIDs(ctx, userID)
}

func (s *Service) CountActive(ctx context.Context, ownerID int64) (int, error) {
	return s.store.CountActive(ctx, ownerID)
}
