// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: ежедневный сброс квот и премиума
// в полночь и еженедельный сброс просмотров.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Resets — периодические сбросы счётчиков. Реализация — *ledger.Service.
type Resets interface {
	ExpirePremiums(ctx context.Context) (int64, error)
	DailyReset(ctx context.Context) (int64, error)
	DailyImageReset(ctx context.Context) (int64, error)
	WeeklyReset(ctx context.Context) (int64, error)
}

// Sweeper чистит просроченные записи в памяти (диалоги без Redis).
type Sweeper interface {
	Sweep() int
}

// Расписание
const (
	SpecDaily  = "0 0 * * *"
	SpecWeekly = "0 0 * * 0"
	SpecSweep  = "@every 10m"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	resets  Resets
	sweeper Sweeper
}

// NewScheduler создаёт планировщик в часовом поясе loc.
// sweeper может быть nil.
func NewScheduler(resets Resets, sweeper Sweeper, loc *time.Location) *Scheduler {
	logger := cron.PrintfLogger(log.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:    c,
		resets:  resets,
		sweeper: sweeper,
	}
}

// Start регистрирует задачи и запускает cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(SpecDaily, func() { s.Daily(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(SpecWeekly, func() { s.Weekly(ctx) }); err != nil {
		return err
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(SpecSweep, s.sweep); err != nil {
			return err
		}
	}

	s.cron.Start()
	log.WithField("jobs", len(s.cron.Entries())).Info("Планировщик задач запущен")
	return nil
}

// Daily — полночь. Сначала снимаем истёкший премиум, чтобы сброс квот
// выдал лимиты уже по новому статусу.
func (s *Scheduler) Daily(ctx context.Context) {
	log.Info("[CRON] Ежедневный сброс")

	steps := []struct {
		name string
		fn   func(context.Context) (int64, error)
	}{
		{"expire_premiums", s.resets.ExpirePremiums},
		{"daily_reset", s.resets.DailyReset},
		{"daily_image_reset", s.resets.DailyImageReset},
	}
	for _, step := range steps {
		n, err := step.fn(ctx)
		if err != nil {
			log.WithError(err).WithField("step", step.name).Error("[CRON] Ошибка сброса")
			continue
		}
		log.WithFields(log.Fields{"step": step.name, "rows": n}).Info("[CRON] Сброс выполнен")
	}
}

// Weekly — сброс недельных просмотров (воскресенье, полночь).
func (s *Scheduler) Weekly(ctx context.Context) {
	n, err := s.resets.WeeklyReset(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка недельного сброса")
		return
	}
	log.WithField("rows", n).Info("[CRON] Недельный сброс просмотров")
}

func (s *Scheduler) sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		log.WithField("removed", n).Debug("[CRON] Очищены просроченные диалоги")
	}
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
