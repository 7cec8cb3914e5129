// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, хранилище диалогов, репозитории,
// сервисы и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/bot"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/db/postgres"
	"serotonyl.ru/promo-bot/internal/dialog"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/broadcast"
	"serotonyl.ru/promo-bot/internal/features/campaigns"
	"serotonyl.ru/promo-bot/internal/features/claims"
	"serotonyl.ru/promo-bot/internal/features/distribution"
	"serotonyl.ru/promo-bot/internal/features/flags"
	"serotonyl.ru/promo-bot/internal/features/groups"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/features/operators"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/features/reports"
	"serotonyl.ru/promo-bot/internal/features/tasks"
	"serotonyl.ru/promo-bot/internal/jobs"
	"serotonyl.ru/promo-bot/internal/transport/telegram"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool

	closeDialogs func() error
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Состояния диалогов ===
	var (
		dialogStore  dialog.Store
		sweeper      jobs.Sweeper
		closeDialogs = func() error { return nil }
	)
	if cfg.RedisURL != "" {
		rs, err := dialog.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		dialogStore, closeDialogs = rs, rs.Close
		log.Info("Диалоги хранятся в Redis")
	} else {
		ms := dialog.NewMemoryStore()
		dialogStore, sweeper = ms, ms
		log.Warn("REDIS_URL не задан, диалоги хранятся в памяти процесса")
	}

	// === 3. Telegram Bot API ===
	api, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	self, err := api.GetMe(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	log.Infof("Авторизован как @%s", self.Username)
	client := telegram.New(api)

	// === 4. Репозитории ===
	accountRepo := accounts.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	promoRepo := promotions.NewRepository(pool)
	claimRepo := claims.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)
	flagRepo := flags.NewRepository(pool)
	operatorRepo := operators.NewRepository(pool)

	// === 5. Сервисы ===
	ledgerService := ledger.NewService(ledgerRepo, cfg)
	accountService := accounts.NewService(accountRepo, ledgerService, cfg)
	promoService := promotions.NewService(promoRepo)
	flagService := flags.NewService(flagRepo)
	if err := flagService.Seed(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка инициализации флагов: %w", err)
	}
	groupService := groups.NewService(groupRepo, client, accountService, ledgerService, cfg)
	sampler := distribution.New(groupService, accountService)
	campaignService := campaigns.NewService(accountService, ledgerService, sampler, broadcast.NewEngine(client), cfg)
	taskService := tasks.NewService(promoService, claimRepo, ledgerService, accountService, client, client, cfg)
	operatorService := operators.NewService(operatorRepo, cfg)
	console := operators.NewConsole(accountService, ledgerService, groupService, promoService, cfg.Location())

	// === 6. Собираем бота ===
	b := bot.New(api, cfg, client, bot.Services{
		Accounts:   accountService,
		Ledger:     ledgerService,
		Promotions: promoService,
		Selector:   tasks.NewSelector(promoService),
		Tasks:      taskService,
		Campaigns:  campaignService,
		Groups:     groupService,
		Reports:    reports.NewService(client, cfg.AdminIDs),
		Flags:      flagService,
		Operators:  operatorService,
		Console:    console,
		Dialogs:    dialog.NewMachine(dialogStore, cfg.DialogTTL),
	}, *self)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(ledgerService, sweeper, cfg.Location())

	return &App{
		Bot:          b,
		Scheduler:    scheduler,
		DB:           pool,
		closeDialogs: closeDialogs,
	}, nil
}

// Close освобождает соединения.
func (a *App) Close() {
	if err := a.closeDialogs(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия хранилища диалогов")
	}
	a.DB.Close()
}
