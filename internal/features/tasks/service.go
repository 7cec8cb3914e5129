package tasks

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/claims"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Claims — отметки о выполнении. HasClaimed только экономит запрос к API,
// решающая проверка — вставка внутри Settle. Settle атомарен: отметка,
// бюджет и награда либо меняются вместе, либо не меняются вовсе.
type Claims interface {
	HasClaimed(ctx context.Context, userID, promotionID int64) (bool, error)
	Settle(ctx context.Context, userID, promotionID, reward int64, description string) (claims.Outcome, error)
}

// Ledger — учёт просмотров промоутера.
type Ledger interface {
	AddView(ctx context.Context, userID int64) error
}

// Accounts — чтение аккаунта исполнителя.
type Accounts interface {
	Get(ctx context.Context, userID int64) (*accounts.Account, error)
}

// Membership проверяет подписку на канал.
type Membership interface {
	GetMembership(ctx context.Context, chatID, userID int64) (string, error)
}

// Notifier пишет промоутеру.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *transport.Button) error
}

// Rewards — награды исполнителю, обычная и премиальная.
type Rewards struct {
	Normal           int64
	NormalPremium    int64
	ForceJoin        int64
	ForceJoinPremium int64
}

// For возвращает награду за задание типа t.
func (r Rewards) For(t promotions.Type, premium bool) int64 {
	switch {
	case t == promotions.TypeForceJoin && premium:
		return r.ForceJoinPremium
	case t == promotions.TypeForceJoin:
		return r.ForceJoin
	case premium:
		return r.NormalPremium
	}
	return r.Normal
}

// Result — засчитанное выполнение.
type Result struct {
	Promotion *promotions.Promotion
	Reward    int64
}

// Service засчитывает выполнение заданий.
type Service struct {
	promos     Promotions
	claims     Claims
	ledger     Ledger
	accounts   Accounts
	membership Membership
	notifier   Notifier
	rewards    Rewards
}

func NewService(
	promos Promotions,
	claims Claims,
	ledger Ledger,
	accounts Accounts,
	membership Membership,
	notifier Notifier,
	cfg *config.Config,
) *Service {
	return &Service{
		promos:     promos,
		claims:     claims,
		ledger:     ledger,
		accounts:   accounts,
		membership: membership,
		notifier:   notifier,
		rewards: Rewards{
			Normal:           cfg.RewardNormal,
			NormalPremium:    cfg.RewardNormalPremium,
			ForceJoin:        cfg.RewardForceJoin,
			ForceJoinPremium: cfg.RewardForceJoinPremium,
		},
	}
}

// Complete засчитывает выполнение promotionID пользователем workerID.
// Выплата происходит только если вставилась отметка и списался бюджет.
// При ошибке записи ничего не сохраняется, и выполнение можно повторить.
func (s *Service) Complete(ctx context.Context, workerID, promotionID int64) (*Result, error) {
	p, err := s.promos.Get(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == workerID {
		return nil, common.ErrSelfClaim
	}
	if claimed, err := s.claims.HasClaimed(ctx, workerID, promotionID); err != nil {
		return nil, err
	} else if claimed {
		return nil, common.ErrAlreadyClaimed
	}

	if p.Type == promotions.TypeForceJoin {
		status, err := s.membership.GetMembership(ctx, p.Payload.ChannelID, workerID)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"channel_id": p.Payload.ChannelID,
				"user_id":    workerID,
			}).Warn("Не удалось проверить подписку")
			return nil, fmt.Errorf("%w: %v", common.ErrVerifyFailed, err)
		}
		if !transport.IsMember(status) {
			return nil, common.ErrNotJoined
		}
	}

	worker, err := s.accounts.Get(ctx, workerID)
	if err != nil {
		return nil, err
	}

	reward := s.rewards.For(p.Type, worker.IsPremium)
	desc := fmt.Sprintf("выполнение задания #%d", promotionID)
	outcome, err := s.claims.Settle(ctx, workerID, promotionID, reward, desc)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"promotion_id": promotionID,
			"user_id":      workerID,
			"reward":       reward,
		}).Error("Не удалось засчитать выполнение")
		return nil, err
	}
	switch outcome {
	case claims.Duplicate:
		return nil, common.ErrAlreadyClaimed
	case claims.Exhausted:
		log.WithFields(log.Fields{"promotion_id": promotionID, "user_id": workerID}).Debug("Бюджет промо закончился")
		return nil, common.ErrTaskExhausted
	}

	if err := s.ledger.AddView(ctx, p.OwnerID); err != nil {
		log.WithError(err).WithField("owner_id", p.OwnerID).Warn("Не удалось засчитать просмотр")
	}
	s.notifyOwner(ctx, p, worker)

	log.WithFields(log.Fields{
		"promotion_id": promotionID,
		"user_id":      workerID,
		"reward":       reward,
	}).Info("Задание выполнено")
	return &Result{Promotion: p, Reward: reward}, nil
}

func (s *Service) notifyOwner(ctx context.Context, p *promotions.Promotion, worker *accounts.Account) {
	left := max(p.Budget-1, 0)
	text := fmt.Sprintf("👀 %s выполнил ваше задание #%d.\nОсталось выполнений: %d", worker.DisplayName(), p.ID, left)
	if err := s.notifier.SendMessage(ctx, p.OwnerID, text, nil); err != nil {
		log.WithError(err).WithField("owner_id", p.OwnerID).Debug("Не удалось уведомить промоутера")
	}
}
