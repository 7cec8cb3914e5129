package distribution

import (
	"context"
	"math/rand/v2"
	"testing"
)

type fixedGroups []int64

func (g fixedGroups) AdminGroupIDs(context.Context) ([]int64, error) { return g, nil }

type fixedAccounts []int64

func (a fixedAccounts) ActiveIDs(_ context.Context, excluding int64) ([]int64, error) {
	var out []int64
	for _, id := range a {
		if id != excluding {
			out = append(out, id)
		}
	}
	return out, nil
}

func seq(n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids
}

func TestSampleNoDuplicatesAndLimit(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	ids := seq(50)

	for _, limit := range []int{0, 1, 5, 10, 50, 80} {
		got := Sample(ids, limit, r.IntN)
		want := min(limit, len(ids))
		if len(got) != want {
			t.Fatalf("limit %d: len = %d, want %d", limit, len(got), want)
		}
		seen := make(map[int64]bool)
		for _, id := range got {
			if seen[id] {
				t.Fatalf("limit %d: duplicate %d", limit, id)
			}
			seen[id] = true
		}
	}
}

func TestSampleDoesNotMutateInput(t *testing.T) {
	ids := seq(5)
	Sample(ids, 3, func(n int) int { return n - 1 })
	for i, id := range ids {
		if id != int64(i+1) {
			t.Fatalf("input changed: %v", ids)
		}
	}
}

func TestSampleGroupsFewerThanLimit(t *testing.T) {
	d := New(fixedGroups{10, 20}, nil)
	got, err := d.SampleGroups(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v, want both groups", got)
	}
}

func TestSampleAccountsExcludesSender(t *testing.T) {
	d := New(nil, fixedAccounts(seq(20)))
	for i := 0; i < 20; i++ {
		got, _ := d.SampleAccounts(context.Background(), 7, 19)
		for _, id := range got {
			if id == 7 {
				t.Fatal("sender sampled")
			}
		}
	}
}

func TestSampleUniform(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 42))
	ids := seq(4)
	counts := make(map[int64]int)
	const rounds = 8000
	for i := 0; i < rounds; i++ {
		counts[Sample(ids, 1, r.IntN)[0]]++
	}
	for id, c := range counts {
		if c < rounds/4-300 || c > rounds/4+300 {
			t.Fatalf("id %d picked %d times of %d", id, c, rounds)
		}
	}
}
