// Package broadcast последовательно доставляет одно сообщение списку получателей
// с фиксированной паузой между отправками. Ошибка одного получателя не
// останавливает рассылку, фатальная ошибка транспорта или отмена контекста —
// останавливают.
package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"serotonyl.ru/promo-bot/internal/transport"
)

// Sender — часть транспорта, нужная рассылке.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *transport.Button) error
	CopyMessage(ctx context.Context, chatID int64, src transport.SourceRef, button *transport.Button) error
}

// Payload — текст или копия исходного сообщения, плюс кнопка.
// Если задан Source, отправляется копия, Text игнорируется.
type Payload struct {
	Text   string
	Source *transport.SourceRef
	Button *transport.Button
}

// Report — итог рассылки. Blocked входит в Failed.
type Report struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Blocked   int
}

// Attempted — сколько отправок было сделано до остановки.
func (r Report) Attempted() int {
	return r.Succeeded + r.Failed
}

// Engine выполняет рассылки.
type Engine struct {
	sender Sender
}

func NewEngine(sender Sender) *Engine {
	return &Engine{sender: sender}
}

// Deliver отправляет payload каждому из targets по очереди, не чаще одного раза за pause.
// При остановке возвращает частичный отчёт вместе с ошибкой.
// Повторов нет, балансы и квоты не меняются.
func (e *Engine) Deliver(ctx context.Context, targets []int64, p Payload, pause time.Duration) (Report, error) {
	report := Report{RunID: uuid.NewString(), Total: len(targets)}
	logger := log.WithFields(log.Fields{"run_id": report.RunID, "total": report.Total})

	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	logger.Debug("Рассылка начата")
	for _, target := range targets {
		if err := limiter.Wait(ctx); err != nil {
			logger.WithError(err).Warn("Рассылка прервана")
			return report, ctxErr(ctx, err)
		}

		err := e.send(ctx, target, p)
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, transport.ErrFatal):
			report.Failed++
			logger.WithError(err).WithField("target", target).Error("Фатальная ошибка транспорта, рассылка остановлена")
			return report, err
		case ctx.Err() != nil:
			report.Failed++
			return report, ctx.Err()
		default:
			report.Failed++
			if errors.Is(err, transport.ErrBlocked) {
				report.Blocked++
			}
			logger.WithError(err).WithField("target", target).Debug("Не доставлено")
		}
	}

	logger.WithFields(log.Fields{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"blocked":   report.Blocked,
	}).Info("Рассылка завершена")
	return report, nil
}

func (e *Engine) send(ctx context.Context, target int64, p Payload) error {
	if p.Source.Valid() {
		return e.sender.CopyMessage(ctx, target, *p.Source, p.Button)
	}
	return e.sender.SendMessage(ctx, target, p.Text, p.Button)
}

// ctxErr: лимитер отвечает своей ошибкой, если пауза не влезает в дедлайн.
// Если контекст уже отменён, наружу отдаём его ошибку.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
