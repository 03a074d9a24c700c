package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"moviewatch/internal/models"
)

// MemoryBackend keeps sessions in process memory. Sessions do not survive a
// restart and are not shared between instances.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	now      func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sessions: make(map[string]models.Session), now: time.Now}
}

func (b *MemoryBackend) Save(_ context.Context, session *models.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[session.ID] = *session
	return nil
}

func (b *MemoryBackend) Load(_ context.Context, id string) (*models.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	session, ok := b.sessions[id]
	if !ok {
		return nil, nil
	}
	if session.IsExpired(b.now()) {
		delete(b.sessions, id)
		return nil, nil
	}
	return &session, nil
}

func (b *MemoryBackend) Destroy(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}

func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// RedisBackend stores each session as a JSON value whose key expires with
// the session.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "session"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// NewRedisClient connects and pings with a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) key(id string) string {
	return b.prefix + ":" + id
}

func (b *RedisBackend) Save(ctx context.Context, session *models.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("security: session already expired")
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.key(session.ID), data, ttl).Err()
}

func (b *RedisBackend) Load(ctx context.Context, id string) (*models.Session, error) {
	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (b *RedisBackend) Destroy(ctx context.Context, id string) error {
	return b.client.Del(ctx, b.key(id)).Err()
}
