// Package campaigns запускает платные и админские рассылки: обычное промо
// по группам, картинку по пользователям (премиум) и объявление от админа.
// Выборку делает distribution, доставку — broadcast, здесь только проверки
// и списание квот по итогам доставки.
package campaigns

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/broadcast"
	"serotonyl.ru/promo-bot/internal/features/flags"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Accounts — чтение аккаунтов.
type Accounts interface {
	Get(ctx context.Context, userID int64) (*accounts.Account, error)
	ActiveIDs(ctx context.Context, excluding int64) ([]int64, error)
}

// Quotas — списания по итогам рассылки.
type Quotas interface {
	UseGroupRun(ctx context.Context, userID int64) error
	UseImageAllowance(ctx context.Context, userID int64, n int) error
	Spend(ctx context.Context, userID, amount int64, entryType, description string) error
}

// Sampler выбирает получателей.
type Sampler interface {
	SampleGroups(ctx context.Context, limit int) ([]int64, error)
	SampleAccounts(ctx context.Context, excluding int64, limit int) ([]int64, error)
}

// Deliverer доставляет сообщение.
type Deliverer interface {
	Deliver(ctx context.Context, targets []int64, p broadcast.Payload, pause time.Duration) (broadcast.Report, error)
}

// Outcome — итог рассылки и что за неё списано.
type Outcome struct {
	Report  broadcast.Report
	RunUsed bool  // Списан запуск групповой рассылки
	Charged int64 // Списано кредитов
}

// Service запускает рассылки.
type Service struct {
	accounts Accounts
	quotas   Quotas
	sampler  Sampler
	delivery Deliverer

	shareLimit        int
	premiumShareLimit int
	perCredit         int

	sharePause time.Duration
	imagePause time.Duration
	adminPause time.Duration
}

func NewService(accounts Accounts, quotas Quotas, sampler Sampler, delivery Deliverer, cfg *config.Config) *Service {
	return &Service{
		accounts:          accounts,
		quotas:            quotas,
		sampler:           sampler,
		delivery:          delivery,
		shareLimit:        cfg.GroupShareLimit,
		premiumShareLimit: cfg.PremiumGroupShareLimit,
		perCredit:         cfg.ImageRecipientsPerCredit,
		sharePause:        cfg.GroupSharePause,
		imagePause:        cfg.ImageBroadcastPause,
		adminPause:        cfg.AdminBroadcastPause,
	}
}

// LinkButton — кнопка под промо.
func LinkButton(url string) *transport.Button {
	return &transport.Button{Text: "🔗 Перейти", URL: url}
}

// CheckGroupShare проверяет, можно ли запустить рассылку по группам.
func (s *Service) CheckGroupShare(fs flags.Snapshot, acc *accounts.Account) (*accounts.NormalLink, error) {
	if err := fs.Require(flags.GroupPromotion); err != nil {
		return nil, err
	}
	tpl := acc.NormalTemplate()
	if tpl == nil {
		return nil, common.ErrTemplateMissing
	}
	if acc.DailyGroupRuns <= 0 {
		return nil, common.ErrNoRunsLeft
	}
	return tpl, nil
}

// ShareLimit — сколько групп получит промо.
func (s *Service) ShareLimit(premium bool) int {
	if premium {
		return s.premiumShareLimit
	}
	return s.shareLimit
}

// GroupShare рассылает обычное промо по случайным группам.
// Запуск списывается, только если хотя бы одна доставка прошла.
func (s *Service) GroupShare(ctx context.Context, fs flags.Snapshot, userID int64) (*Outcome, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	tpl, err := s.CheckGroupShare(fs, acc)
	if err != nil {
		return nil, err
	}

	targets, err := s.sampler.SampleGroups(ctx, s.ShareLimit(acc.IsPremium))
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, common.ErrNoTargets
	}

	payload := broadcast.Payload{Text: tpl.Text, Source: tpl.Source, Button: LinkButton(tpl.URL)}
	report, deliverErr := s.delivery.Deliver(ctx, targets, payload, s.sharePause)
	out := &Outcome{Report: report}

	if report.Succeeded > 0 {
		// Списываем и при прерванной рассылке, если что-то доставлено
		if err := s.quotas.UseGroupRun(context.WithoutCancel(ctx), userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("Не удалось списать запуск групповой рассылки")
		} else {
			out.RunUsed = true
		}
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"run_id":    report.RunID,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
	}).Info("Рассылка по группам")
	return out, deliverErr
}

// CheckImage проверяет доступ к рассылке картинок.
func (s *Service) CheckImage(fs flags.Snapshot, acc *accounts.Account) error {
	if err := fs.Require(flags.PremiumImageCaption); err != nil {
		return err
	}
	if !acc.IsPremium {
		return common.ErrNotPremium
	}
	if acc.ImageBroadcastsLeft <= 0 {
		return common.ErrAllowanceExceeded
	}
	return nil
}

// ImageCost — сколько кредитов стоит рассылка на count получателей.
func (s *Service) ImageCost(count int) int64 {
	return int64(common.CeilDiv(count, s.perCredit))
}

// ParseImageCount разбирает число получателей:
// от 1 до остатка лимита, и стоимость не больше баланса.
func (s *Service) ParseImageCount(input string, acc *accounts.Account) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, common.ErrInvalidNumber
	}
	if n <= 0 {
		return 0, common.ErrInvalidAmount
	}
	if n > acc.ImageBroadcastsLeft {
		return 0, common.ErrAllowanceExceeded
	}
	if s.ImageCost(n) > acc.Credits {
		return 0, common.ErrInsufficientBalance
	}
	return n, nil
}

// ImageBroadcast рассылает копию src count случайным пользователям, кроме отправителя.
// Лимит уменьшается на число доставленных, списывается ceil(доставлено/perCredit).
func (s *Service) ImageBroadcast(ctx context.Context, fs flags.Snapshot, userID int64, src transport.SourceRef, count int) (*Outcome, error) {
	acc, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.CheckImage(fs, acc); err != nil {
		return nil, err
	}
	if _, err := s.ParseImageCount(strconv.Itoa(count), acc); err != nil {
		return nil, err
	}

	targets, err := s.sampler.SampleAccounts(ctx, userID, count)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, common.ErrNoTargets
	}

	report, deliverErr := s.delivery.Deliver(ctx, targets, broadcast.Payload{Source: &src}, s.imagePause)
	out := &Outcome{Report: report}

	if report.Succeeded > 0 {
		bg := context.WithoutCancel(ctx)
		logger := log.WithFields(log.Fields{"user_id": userID, "run_id": report.RunID})
		if err := s.quotas.UseImageAllowance(bg, userID, report.Succeeded); err != nil {
			logger.WithError(err).Warn("Не удалось уменьшить лимит картинок")
		}
		cost := s.ImageCost(report.Succeeded)
		desc := fmt.Sprintf("рассылка картинки: %d %s", report.Succeeded, common.PluralizeUsers(report.Succeeded))
		if err := s.quotas.Spend(bg, userID, cost, ledger.EntryImageBroadcast, desc); err != nil {
			logger.WithError(err).Warn("Не удалось списать оплату рассылки картинки")
		} else {
			out.Charged = cost
		}
	}

	log.WithFields(log.Fields{
		"user_id":   userID,
		"run_id":    report.RunID,
		"requested": count,
		"succeeded": report.Succeeded,
		"charged":   out.Charged,
	}).Info("Рассылка картинки")
	return out, deliverErr
}

// AdminBroadcast отправляет объявление всем незабаненным аккаунтам.
func (s *Service) AdminBroadcast(ctx context.Context, adminID int64, p broadcast.Payload) (*Outcome, error) {
	targets, err := s.accounts.ActiveIDs(ctx, 0)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, common.ErrNoTargets
	}

	report, deliverErr := s.delivery.Deliver(ctx, targets, p, s.adminPause)
	log.WithFields(log.Fields{
		"admin_id":  adminID,
		"run_id":    report.RunID,
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"blocked":   report.Blocked,
	}).Info("Админская рассылка")
	return &Outcome{Report: report}, deliverErr
}
