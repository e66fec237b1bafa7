package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces session keys
const DefaultPrefix = "accounts:session:"

// RedisStore keeps session records in redis and lets the key TTL expire
// them
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ accounts.SessionStore = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return NewRedisStoreWithPrefix(client, DefaultPrefix)
}

func NewRedisStoreWithPrefix(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) Save(ctx context.Context, record accounts.SessionRecord, ttl time.Duration) error {
	if record.ID == "" {
		return goerrors.New("session id cannot be empty", goerrors.CategoryBadInput)
	}
	if ttl <= 0 {
		ttl = time.Until(record.ExpiresAt)
	}
	if ttl <= 0 {
		return goerrors.New("session is expired", goerrors.CategoryBadInput)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal session")
	}

	return s.client.Set(ctx, s.prefix+record.ID, data, ttl).Err()
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}

	n, err := s.client.Exists(ctx, s.prefix+id).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "redis exists failed")
	}
	return n > 0, nil
}

// Get returns the stored record, ErrNotFound when missing
func (s *RedisStore) Get(ctx context.Context, id string) (accounts.SessionRecord, error) {
	if id == "" {
		return accounts.SessionRecord{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return accounts.SessionRecord{}, ErrNotFound
		}
		return accounts.SessionRecord{}, goerrors.Wrap(err, goerrors.CategoryInternal, "redis get failed")
	}

	var record accounts.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return accounts.SessionRecord{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unmarshal session")
	}
	return record, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}

// ErrNotFound is returned by Get for unknown or expired sessions
var ErrNotFound = goerrors.New("session not found", goerrors.CategoryNotFound).
	WithTextCode("SESSION_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)
