package jobs

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

type resetLog struct {
	calls []string
	fail  string
}

func (r *resetLog) run(name string) (int64, error) {
	r.calls = append(r.calls, name)
	if name == r.fail {
		return 0, errors.New("db down")
	}
	return 1, nil
}

func (r *resetLog) ExpirePremiums(context.Context) (int64, error)  { return r.run("expire") }
func (r *resetLog) DailyReset(context.Context) (int64, error)      { return r.run("daily") }
func (r *resetLog) DailyImageReset(context.Context) (int64, error) { return r.run("image") }
func (r *resetLog) WeeklyReset(context.Context) (int64, error)     { return r.run("weekly") }

type sweepCounter int

func (s *sweepCounter) Sweep() int {
	*s++
	return 0
}

func TestDailyOrder(t *testing.T) {
	r := &resetLog{}
	s := NewScheduler(r, nil, time.UTC)
	s.Daily(context.Background())

	want := []string{"expire", "daily", "image"}
	if !reflect.DeepEqual(r.calls, want) {
		t.Fatalf("calls = %v, want %v", r.calls, want)
	}
}

func TestDailyContinuesAfterError(t *testing.T) {
	r := &resetLog{fail: "expire"}
	s := NewScheduler(r, nil, time.UTC)
	s.Daily(context.Background())

	if len(r.calls) != 3 {
		t.Fatalf("calls = %v", r.calls)
	}
}

func TestWeekly(t *testing.T) {
	r := &resetLog{}
	NewScheduler(r, nil, time.UTC).Weekly(context.Background())
	if !reflect.DeepEqual(r.calls, []string{"weekly"}) {
		t.Fatalf("calls = %v", r.calls)
	}
}

func TestStartRegistersJobs(t *testing.T) {
	var sw sweepCounter
	s := NewScheduler(&resetLog{}, &sw, time.UTC)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if got := len(s.cron.Entries()); got != 3 {
		t.Fatalf("entries = %d, want 3", got)
	}

	s2 := NewScheduler(&resetLog{}, nil, time.UTC)
	if err := s2.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s2.Stop()
	if got := len(s2.cron.Entries()); got != 2 {
		t.Fatalf("entries without sweeper = %d, want 2", got)
	}
}

func TestCronSchedules(t *testing.T) {
	moscow := time.FixedZone("MSK", 3*60*60)
	from := time.Date(2024, 3, 13, 15, 0, 0, 0, moscow) // среда

	tests := []struct {
		spec string
		want time.Time
	}{
		{SpecDaily, time.Date(2024, 3, 14, 0, 0, 0, 0, moscow)},
		{SpecWeekly, time.Date(2024, 3, 17, 0, 0, 0, 0, moscow)},
	}
	for _, tt := range tests {
		sched, err := cron.ParseStandard(tt.spec)
		if err != nil {
			t.Fatalf("ParseStandard(%q): %v", tt.spec, err)
		}
		if got := sched.Next(from); !got.Equal(tt.want) {
			t.Errorf("%q next = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
