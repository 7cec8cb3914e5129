// Package operators — вход администраторов по паролю и админские операции.
// models.go описывает сессии и попытки входа.
package operators

import "time"

// Защита от перебора: не больше MaxFailedAttempts неудачных попыток за AttemptWindow.
const (
	MaxFailedAttempts = 3
	AttemptWindow     = time.Hour
)

// Session — сессия администратора. В базе хранится только хеш токена.
type Session struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	TokenHash  string     `db:"token_hash"`
	CreatedAt  time.Time  `db:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	LastSeenAt time.Time  `db:"last_seen_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

// Active — сессия не отозвана и не истекла к now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
