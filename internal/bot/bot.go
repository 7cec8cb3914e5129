// Package bot содержит главный модуль бота — приём апдейтов и маршрутизацию.
// bot.go запускает long polling и раскладывает апдейты по обработчикам.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/promo-bot/internal/bot/filters"
	"serotonyl.ru/promo-bot/internal/bot/middleware"
	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
	"serotonyl.ru/promo-bot/internal/dialog"
	"serotonyl.ru/promo-bot/internal/features/accounts"
	"serotonyl.ru/promo-bot/internal/features/campaigns"
	"serotonyl.ru/promo-bot/internal/features/flags"
	"serotonyl.ru/promo-bot/internal/features/groups"
	"serotonyl.ru/promo-bot/internal/features/ledger"
	"serotonyl.ru/promo-bot/internal/features/operators"
	"serotonyl.ru/promo-bot/internal/features/promotions"
	"serotonyl.ru/promo-bot/internal/features/reports"
	"serotonyl.ru/promo-bot/internal/features/tasks"
	"serotonyl.ru/promo-bot/internal/transport"
)

// Messenger — всё, что обработчики отправляют в Telegram.
// Реализация — *telegram.Client.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, button *transport.Button) error
	SendMenu(ctx context.Context, chatID int64, text string, rows [][]transport.Button) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	GetMembership(ctx context.Context, chatID, userID int64) (string, error)
	ResolveChat(ctx context.Context, ref string) (transport.ChatInfo, error)
	InviteLink(ctx context.Context, chatID int64) (string, transport.ChatInfo, error)
}

// Services — сервисы, которыми пользуются обработчики.
type Services struct {
	Accounts   *accounts.Service
	Ledger     *ledger.Service
	Promotions *promotions.Service
	Selector   *tasks.Selector
	Tasks      *tasks.Service
	Campaigns  *campaigns.Service
	Groups     *groups.Service
	Reports    *reports.Service
	Flags      *flags.Service
	Operators  *operators.Service
	Console    *operators.Console
	Dialogs    *dialog.Machine
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api  *telego.Bot
	cfg  *config.Config
	ui   Messenger
	svc  Services
	self telego.User

	filter      *filters.AccessFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота. self — результат GetMe (нужны ID и username).
func New(api *telego.Bot, cfg *config.Config, ui Messenger, svc Services, self telego.User) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	b := &Bot{
		api:         api,
		cfg:         cfg,
		ui:          ui,
		svc:         svc,
		self:        self,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:      NewCommandParser(self.Username),
		inflight:    make(chan struct{}, maxInFlight),
	}
	b.filter = filters.NewAccessFilter(svc.Accounts, b)
	return b
}

// Start запускает long polling и блокируется до отмены ctx.
// После отмены дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message", "callback_query", "my_chat_member"},
	})
	if err != nil {
		return fmt.Errorf("не удалось запустить long polling: %w", err)
	}
	defer b.rateLimiter.Close()

	log.WithFields(log.Fields{
		"bot":          b.self.Username,
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.wg.Wait()
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				b.wg.Wait()
				return nil
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			b.wg.Add(1)
			go func(upd telego.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)
	middleware.LogUpdate(update)

	switch {
	case update.MyChatMember != nil:
		b.handleMyChatMember(ctx, update.MyChatMember)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// handleMessage — текст, картинка или пересланное сообщение в личке.
func (b *Bot) handleMessage(ctx context.Context, m *telego.Message) {
	if m.From == nil {
		return
	}
	userID := m.From.ID
	if m.Chat.Type == telego.ChatTypePrivate && !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(m.Text)
	var inviter int64
	if isCommand && cmd == "start" && len(args) > 0 {
		inviter = parseInviter(args[0])
	}

	verdict := b.filter.Check(ctx, filters.Request{
		ChatID:    m.Chat.ID,
		Private:   m.Chat.Type == telego.ChatTypePrivate,
		UserID:    userID,
		Username:  m.From.Username,
		UserIsBot: m.From.IsBot,
		InviterID: inviter,
	})
	if verdict == nil {
		return
	}
	if verdict.Reg.Created && verdict.Reg.Inviter != 0 {
		b.Notify(ctx, verdict.Reg.Inviter, fmt.Sprintf(
			"🎉 По вашей ссылке пришёл %s! Реферальный бонус: +%s в день.",
			verdict.Account.DisplayName(), common.FormatCredits(b.cfg.ReferralBonus),
		))
	}

	in := &input{
		chatID:  m.Chat.ID,
		userID:  userID,
		account: verdict.Account,
		message: m,
	}
	if isCommand {
		b.routeCommand(ctx, in, cmd, args)
		return
	}
	b.handleDialogInput(ctx, in)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, in *input, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":     cmd,
		"user_id": in.userID,
	}).Debug("routing command")

	switch cmd {
	case "start", "menu", "help":
		_ = b.svc.Dialogs.End(ctx, in.userID)
		b.showMainMenu(ctx, in)

	case "cancel":
		if err := b.svc.Dialogs.End(ctx, in.userID); err != nil {
			b.fail(ctx, in, err)
			return
		}
		b.Notify(ctx, in.chatID, "❌ Отменено")
		b.showMainMenu(ctx, in)

	case "tasks":
		b.showTask(ctx, in)

	case "account":
		b.showAccount(ctx, in)

	case "login":
		b.handleLogin(ctx, in, strings.Join(args, " "))

	case "logout":
		b.handleLogout(ctx, in)

	case "admin":
		b.showAdminMenu(ctx, in)

	default:
		b.showMainMenu(ctx, in)
	}
}

// input — один запрос пользователя: сообщение или нажатие кнопки.
type input struct {
	chatID   int64
	userID   int64
	account  *accounts.Account
	message  *telego.Message // nil для callback
	snapshot *flags.Snapshot // Флаги читаются лениво, один раз на запрос
}

// flags возвращает снимок флагов на этот запрос.
func (b *Bot) flags(ctx context.Context, in *input) (flags.Snapshot, error) {
	if in.snapshot != nil {
		return *in.snapshot, nil
	}
	fs, err := b.svc.Flags.Snapshot(ctx)
	if err != nil {
		return flags.Snapshot{}, err
	}
	in.snapshot = &fs
	return fs, nil
}

// Notify отправляет текст без кнопок, ошибки только логирует.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) {
	if err := b.ui.SendMessage(ctx, chatID, text, nil); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Ошибка отправки сообщения")
	}
}

func (b *Bot) sendMenu(ctx context.Context, chatID int64, text string, rows [][]transport.Button) {
	if err := b.ui.SendMenu(ctx, chatID, text, rows); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Ошибка отправки меню")
	}
}

// fail отвечает на ошибку по её классу.
// Validation и Idempotent оставляют диалог на месте, прочие его сбрасывают.
func (b *Bot) fail(ctx context.Context, in *input, err error) {
	kind := common.KindOf(err)
	logger := log.WithError(err).WithField("user_id", in.userID)

	switch kind {
	case common.KindInternal:
		logger.Error("Ошибка обработки запроса")
	case common.KindIdempotent:
		logger.Debug("Повторная операция")
	default:
		logger.Info("Запрос отклонён")
	}

	if kind != common.KindValidation && kind != common.KindIdempotent {
		if endErr := b.svc.Dialogs.End(ctx, in.userID); endErr != nil {
			log.WithError(endErr).WithField("user_id", in.userID).Warn("Не удалось сбросить диалог")
		}
	}
	b.Notify(ctx, in.chatID, errorPrefix(kind)+common.UserMessage(err))
}

func errorPrefix(kind common.Kind) string {
	switch kind {
	case common.KindValidation:
		return "⚠️ "
	case common.KindIdempotent:
		return "ℹ️ "
	case common.KindAccess:
		return "🔒 "
	}
	return "❌ "
}

// parseInviter разбирает payload из /start <id>.
func parseInviter(payload string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// CommandParser разбирает команды вида /cmd@bot arg1 arg2.
type CommandParser struct {
	botUsername string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser(botUsername string) *CommandParser {
	return &CommandParser{botUsername: strings.ToLower(botUsername)}
}

// ParseCommand разбирает текст на команду и аргументы.
// Команда, адресованная другому боту (/cmd@other), не считается командой.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if name, target, ok := strings.Cut(command, "@"); ok {
		if p.botUsername != "" && target != p.botUsername {
			return "", nil, false
		}
		command = name
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
