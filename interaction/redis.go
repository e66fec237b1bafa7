package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces interaction keys
	DefaultPrefix = "accounts:interaction:"
	// DefaultTTL bounds how long an interaction id can be resolved
	DefaultTTL = 10 * time.Minute
)

const (
	kindLogout = "logout:"
	kindError  = "error:"
)

// RedisStore shares interaction contexts with the identity service. The
// identity service writes them, this package resolves them. Logout
// contexts are consumed on read.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ accounts.InteractionProvider = (*RedisStore)(nil)

type Option func(*RedisStore)

func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SaveLogoutContext stores lc under a new id when lc.ID is empty and
// returns the id
func (s *RedisStore) SaveLogoutContext(ctx context.Context, lc accounts.LogoutContext) (string, error) {
	if lc.ID == "" {
		lc.ID = uuid.NewString()
	}
	return lc.ID, s.save(ctx, kindLogout+lc.ID, lc)
}

// SaveErrorContext stores ec under a new id when ec.ID is empty and
// returns the id
func (s *RedisStore) SaveErrorContext(ctx context.Context, ec accounts.ErrorContext) (string, error) {
	if ec.ID == "" {
		ec.ID = uuid.NewString()
	}
	return ec.ID, s.save(ctx, kindError+ec.ID, ec)
}

func (s *RedisStore) ResolveLogoutContext(ctx context.Context, id string) (*accounts.LogoutContext, error) {
	if id == "" {
		return nil, accounts.ErrInvalidInteractionID
	}

	data, err := s.client.GetDel(ctx, s.prefix+kindLogout+id).Bytes()
	if err != nil {
		return nil, s.readError(err)
	}

	lc := new(accounts.LogoutContext)
	if err := json.Unmarshal(data, lc); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unmarshal logout context")
	}
	return lc, nil
}

func (s *RedisStore) ResolveErrorContext(ctx context.Context, id string) (*accounts.ErrorContext, error) {
	if id == "" {
		return nil, accounts.ErrInvalidInteractionID
	}

	data, err := s.client.Get(ctx, s.prefix+kindError+id).Bytes()
	if err != nil {
		return nil, s.readError(err)
	}

	ec := new(accounts.ErrorContext)
	if err := json.Unmarshal(data, ec); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unmarshal error context")
	}
	return ec, nil
}

func (s *RedisStore) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal interaction context")
	}
	return s.client.Set(ctx, s.prefix+key, data, s.ttl).Err()
}

func (s *RedisStore) readError(err error) error {
	if errors.Is(err, redis.Nil) {
		return accounts.ErrInteractionNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "redis read interaction failed")
}
