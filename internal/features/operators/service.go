// Package operators — service.go: вход по паролю Argon2id и проверка сессии.
package operators

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"serotonyl.ru/promo-bot/internal/common"
	"serotonyl.ru/promo-bot/internal/config"
)

// Store — хранилище сессий. Реализация — *Repository.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	LatestSession(ctx context.Context, userID int64) (*Session, error)
	RevokeSessions(ctx context.Context, userID int64) error
	Touch(ctx context.Context, sessionID int64) error
	LogAttempt(ctx context.Context, userID int64, success bool) error
	FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Service проверяет права администраторов.
type Service struct {
	store        Store
	isAdmin      func(userID int64) bool
	passwordHash string
	sessionTTL   time.Duration
	now          func() time.Time
}

// NewService создаёт сервис. Админы — из ADMIN_IDS.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store:        store,
		isAdmin:      cfg.IsAdmin,
		passwordHash: cfg.AdminPasswordHash,
		sessionTTL:   cfg.AdminSessionTTL,
		now:          time.Now,
	}
}

// IsAdmin — пользователь есть в ADMIN_IDS (без проверки сессии).
func (s *Service) IsAdmin(userID int64) bool {
	return s.isAdmin(userID)
}

// Login проверяет пароль и открывает сессию.
// 3 неудачные попытки за час — блокировка до конца окна.
func (s *Service) Login(ctx context.Context, userID int64, password string) (time.Time, error) {
	if !s.isAdmin(userID) {
		return time.Time{}, common.ErrNotAdmin
	}

	failed, err := s.store.FailedAttemptsSince(ctx, userID, s.now().Add(-AttemptWindow))
	if err != nil {
		return time.Time{}, fmt.Errorf("ошибка проверки попыток входа: %w", err)
	}
	if failed >= MaxFailedAttempts {
		return time.Time{}, common.ErrTooManyAttempts
	}

	match := VerifyPassword(password, s.passwordHash)
	if err := s.store.LogAttempt(ctx, userID, match); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}
	if !match {
		log.WithFields(log.Fields{"user_id": userID, "failed": failed + 1}).Warn("Неверный пароль администратора")
		return time.Time{}, common.ErrWrongPassword
	}

	token := generateSecureToken()
	session := &Session{
		UserID:    userID,
		TokenHash: hashToken(token),
		ExpiresAt: s.now().Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return time.Time{}, err
	}
	log.WithField("user_id", userID).Info("Администратор вошёл")
	return session.ExpiresAt, nil
}

// Logout отзывает сессии.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.store.RevokeSessions(ctx, userID); err != nil {
		return err
	}
	log.WithField("user_id", userID).Info("Администратор вышел")
	return nil
}

// Authorize: nil — админ с живой сессией.
// Иначе common.ErrNotAdmin или common.ErrSessionExpired.
func (s *Service) Authorize(ctx context.Context, userID int64) error {
	if !s.isAdmin(userID) {
		return common.ErrNotAdmin
	}
	session, err := s.store.LatestSession(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			return err
		}
		return fmt.Errorf("ошибка проверки сессии: %w", err)
	}
	if !session.Active(s.now()) {
		return common.ErrSessionExpired
	}
	if err := s.store.Touch(ctx, session.ID); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось обновить активность сессии")
	}
	return nil
}

// --- Криптографические утилиты ---

// Параметры Argon2id для новых хешей.
const (
	argonMemory      uint32 = 64 * 1024
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
	argonSaltLength         = 16
)

// HashPassword возвращает хеш в формате
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword проверяет пароль по хешу Argon2id.
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	// Сравнение в постоянном времени
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// generateSecureToken генерирует криптографически безопасный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
