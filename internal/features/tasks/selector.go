// Package tasks выдаёт пользователю случайное чужое задание и засчитывает
// его выполнение.
package tasks

import (
	"context"
	"errors"
	"math/rand/v2"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/features/promotions"
)

// Promotions — то, что нужно от хранилища промо.
type Promotions interface {
	Get(ctx context.Context, promotionID int64) (*promotions.Promotion, error)
	EligibleIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Selector выбирает задание равновероятно среди доступных.
type Selector struct {
	promos Promotions
	intn   func(n int) int
}

func NewSelector(promos Promotions) *Selector {
	return &Selector{promos: promos, intn: rand.IntN}
}

// PickTask возвращает случайное промо с бюджетом, не принадлежащее userID
// и не выполненное им. Если таких нет — nil без ошибки.
// Промо, у которого бюджет кончился между выборкой и чтением, пропускается.
func (s *Selector) PickTask(ctx context.Context, userID int64) (*promotions.Promotion, error) {
	ids, err := s.promos.EligibleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	for len(ids) > 0 {
		i := s.intn(len(ids))
		id := ids[i]
		ids[i] = ids[len(ids)-1]
		ids = ids[:len(ids)-1]

		p, err := s.promos.Get(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrPromotionNotFound) {
				continue
			}
			return nil, err
		}
		if !p.Active() || p.OwnerID == userID {
			continue
		}
		return p, nil
	}
	return nil, nil
}
