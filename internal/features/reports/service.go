// Package reports пересылает жалобы на промо администраторам.
package reports

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/transport"
)

// Sender — отправка текста и пересылка сообщения.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *transport.Button) error
	Forward(ctx context.Context, chatID int64, src transport.SourceRef) error
}

// Report — жалоба пользователя.
type Report struct {
	ReporterID   int64
	ReporterName string
	PromoterID   int64
	Message      transport.SourceRef // Пересланное пользователем сообщение
}

// Service доставляет жалобы.
type Service struct {
	sender Sender
	admins []int64
}

func NewService(sender Sender, admins []int64) *Service {
	return &Service{sender: sender, admins: admins}
}

// Submit отправляет каждому админу описание жалобы и само сообщение.
// Возвращает, скольким админам жалоба дошла.
func (s *Service) Submit(ctx context.Context, r Report) (int, error) {
	text := fmt.Sprintf(
		"🚩 Жалоба на промо\n\nОт: %s (id %d)\nПромоутер: id %d\n\nСообщение ниже ⬇️",
		r.ReporterName, r.ReporterID, r.PromoterID,
	)

	delivered := 0
	var lastErr error
	for _, adminID := range s.admins {
		logger := log.WithFields(log.Fields{"admin_id": adminID, "promoter_id": r.PromoterID})
		if err := s.sender.SendMessage(ctx, adminID, text, nil); err != nil {
			logger.WithError(err).Warn("Не удалось отправить жалобу админу")
			lastErr = err
			continue
		}
		if r.Message.Valid() {
			if err := s.sender.Forward(ctx, adminID, r.Message); err != nil {
				logger.WithError(err).Warn("Не удалось переслать сообщение жалобы")
			}
		}
		delivered++
	}

	log.WithFields(log.Fields{
		"reporter_id": r.ReporterID,
		"promoter_id": r.PromoterID,
		"delivered":   delivered,
	}).Info("Жалоба отправлена")

	if delivered == 0 && lastErr != nil {
		return 0, lastErr
	}
	return delivered, nil
}
