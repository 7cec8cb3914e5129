// Package dialog — store.go: хранилища сессий в памяти и в Redis.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore держит сессии в памяти процесса. Истёкшие удаляются при чтении
// и в Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]memEntry
	now      func() time.Time
}

type memEntry struct {
	session   Session
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]memEntry), now: time.Now}
}

func (m *MemoryStore) Load(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.sessions, userID)
		return nil, nil
	}
	s := e.session
	s.Scratch = copyScratch(nil, e.session.Scratch)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, userID int64, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Scratch = copyScratch(nil, s.Scratch)
	m.sessions[userID] = memEntry{session: cp, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Sweep удаляет истёкшие сессии и возвращает, сколько удалено.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RedisStore хранит сессии в Redis как JSON с TTL ключа.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore подключается по REDIS_URL и проверяет соединение.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("некорректный REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis недоступен: %w", err)
	}
	return &RedisStore{client: client, prefix: "dialog:"}, nil
}

func (r *RedisStore) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisStore) Load(ctx context.Context, userID int64) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("битая сессия диалога %d: %w", userID, err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, userID int64, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(userID), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

// Close закрывает соединение с Redis.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
