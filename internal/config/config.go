// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// godotenv подхватывает локальный .env, если он есть.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs         []int64 `envconfig:"-"` // заполняется в Load
	// Username владельца для кнопки «Связаться с админом»
	OwnerUsername string `envconfig:"OWNER_USERNAME" default:""`

	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"promo_bot"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis ---
	// Пусто — состояния диалогов держим в памяти процесса.
	RedisURL string `envconfig:"REDIS_URL" default:""`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`
	AdminSessionTTL   time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`
	// Сколько живёт незавершённый пошаговый диалог
	DialogTTL time.Duration `envconfig:"DIALOG_TTL" default:"10m"`

	// --- Economy ---
	EconomyStartingCredits int64 `envconfig:"ECONOMY_STARTING_CREDITS" default:"5"`
	ReferralBonus          int64 `envconfig:"REFERRAL_BONUS" default:"2"`
	RewardNormal           int64 `envconfig:"REWARD_NORMAL" default:"1"`
	RewardNormalPremium    int64 `envconfig:"REWARD_NORMAL_PREMIUM" default:"2"`
	RewardForceJoin        int64 `envconfig:"REWARD_FORCE_JOIN" default:"2"`
	RewardForceJoinPremium int64 `envconfig:"REWARD_FORCE_JOIN_PREMIUM" default:"4"`
	GroupBonus             int64 `envconfig:"GROUP_BONUS" default:"5"`
	GroupBonusPremium      int64 `envconfig:"GROUP_BONUS_PREMIUM" default:"10"`
	GroupBonusMinMembers   int   `envconfig:"GROUP_BONUS_MIN_MEMBERS" default:"600"`
	// Получателей рассылки картинки на один кредит
	ImageRecipientsPerCredit int `envconfig:"IMAGE_RECIPIENTS_PER_CREDIT" default:"10"`

	// --- Quotas ---
	DailyGroupRuns         int `envconfig:"DAILY_GROUP_RUNS" default:"2"`
	PremiumDailyGroupRuns  int `envconfig:"PREMIUM_DAILY_GROUP_RUNS" default:"5"`
	PremiumImageCap        int `envconfig:"PREMIUM_IMAGE_CAP" default:"100"`
	GroupShareLimit        int `envconfig:"GROUP_SHARE_LIMIT" default:"5"`
	PremiumGroupShareLimit int `envconfig:"PREMIUM_GROUP_SHARE_LIMIT" default:"10"`

	// --- Broadcast ---
	GroupSharePause     time.Duration `envconfig:"GROUP_SHARE_PAUSE" default:"500ms"`
	ImageBroadcastPause time.Duration `envconfig:"IMAGE_BROADCAST_PAUSE" default:"200ms"`
	AdminBroadcastPause time.Duration `envconfig:"ADMIN_BROADCAST_PAUSE" default:"100ms"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdmin сообщает, входит ли пользователь в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("ADMIN_IDS пуст")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.ImageRecipientsPerCredit <= 0 {
		return fmt.Errorf("IMAGE_RECIPIENTS_PER_CREDIT должен быть > 0")
	}
	if c.DailyGroupRuns < 0 || c.PremiumDailyGroupRuns < 0 || c.PremiumImageCap < 0 {
		return fmt.Errorf("квоты не могут быть отрицательными")
	}
	if c.GroupShareLimit <= 0 || c.PremiumGroupShareLimit <= 0 {
		return fmt.Errorf("GROUP_SHARE_LIMIT/PREMIUM_GROUP_SHARE_LIMIT должны быть > 0")
	}
	if c.DialogTTL <= 0 || c.AdminSessionTTL <= 0 {
		return fmt.Errorf("DIALOG_TTL/ADMIN_SESSION_TTL должны быть > 0")
	}
	return nil
}

// Location возвращает часовой пояс из APP_TIMEZONE.
// Если зона не загрузилась — UTC+3, как в проде.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
