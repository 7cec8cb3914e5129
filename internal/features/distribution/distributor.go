// Package distribution выбирает случайных получателей рассылки:
// группы, где бот администратор, или аккаунты пользователей.
package distribution

import (
	"context"
	"math/rand/v2"
)

// GroupSource отдаёт ID групп, где бот назначен администратором.
type GroupSource interface {
	AdminGroupIDs(ctx context.Context) ([]int64, error)
}

// AccountSource отдаёт ID незабаненных аккаунтов, кроме excluding.
type AccountSource interface {
	ActiveIDs(ctx context.Context, excluding int64) ([]int64, error)
}

// Distributor делает равномерную выборку без повторов.
type Distributor struct {
	groups   GroupSource
	accounts AccountSource
	intn     func(n int) int
}

func New(groups GroupSource, accounts AccountSource) *Distributor {
	return &Distributor{groups: groups, accounts: accounts, intn: rand.IntN}
}

// SampleGroups — не больше limit групп.
func (d *Distributor) SampleGroups(ctx context.Context, limit int) ([]int64, error) {
	ids, err := d.groups.AdminGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	return Sample(ids, limit, d.intn), nil
}

// SampleAccounts — не больше limit аккаунтов, excluding в выборку не попадает.
func (d *Distributor) SampleAccounts(ctx context.Context, excluding int64, limit int) ([]int64, error) {
	ids, err := d.accounts.ActiveIDs(ctx, excluding)
	if err != nil {
		return nil, err
	}
	return Sample(ids, limit, d.intn), nil
}

// Sample — частичная перетасовка Фишера-Йетса: первые k элементов копии ids.
// ids не меняется. intn(n) должен возвращать число из [0, n).
func Sample(ids []int64, limit int, intn func(n int) int) []int64 {
	if limit <= 0 || len(ids) == 0 {
		return nil
	}
	pool := make([]int64, len(ids))
	copy(pool, ids)

	k := min(limit, len(pool))
	for i := 0; i < k; i++ {
		j := i + intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
