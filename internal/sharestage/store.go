package sharestage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FJFJ0400/capture-ai/internal/dto"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"

	redisKeyPrefix = "share-stage:"
)

var ErrNotFound = errors.New("staged share not found")

// Payload - файлы, принятые через шаринг и ещё не сохранённые как снимки.
type Payload struct {
	CreatedAt time.Time        `json:"createdAt"`
	Files     []dto.StagedFile `json:"files"`
}

// Store хранит подготовленные файлы с ограниченным временем жизни.
type Store interface {
	Put(ctx context.Context, id string, payload Payload, ttl time.Duration) error
	Get(ctx context.Context, id string) (Payload, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	payload   Payload
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore - хранилище в памяти процесса; устаревшие записи чистятся при каждом обращении.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *memoryStore) Put(_ context.Context, id string, payload Payload, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.entries[id] = memoryEntry{payload: payload, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	entry, ok := s.entries[id]
	if !ok {
		return Payload{}, ErrNotFound
	}
	return entry.payload, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) prune() {
	now := s.now()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}

type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore - хранилище в Redis, TTL выставляется на ключ.
func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func (s *redisStore) key(id string) string {
	return redisKeyPrefix + id
}

func (s *redisStore) Put(ctx context.Context, id string, payload Payload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode staged share: %w", err)
	}
	return s.client.Set(ctx, s.key(id), data, ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, id string) (Payload, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Payload{}, ErrNotFound
	}
	if err != nil {
		return Payload{}, err
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode staged share: %w", err)
	}
	return payload, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// NewStore выбирает драйвер по конфигурации.
func NewStore(driver string, client redis.UniversalClient) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverRedis:
		if client == nil {
			return nil, errors.New("redis share stage requires a redis client")
		}
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown share stage driver %q", driver)
	}
}
