// Package store is the adapter to the shared key-value store that every
// server process coordinates through.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gtin-api/internal/config"
	apperrors "gtin-api/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Store is the subset of Redis the quota subsystem relies on. Every error
// returned wraps apperrors.ErrStoreUnavailable.
type Store interface {
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	PTTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
}

// RedisStore connects lazily on first use. Concurrent first callers share a
// single dial; after a failed dial, callers get ErrStoreUnavailable without
// dialing again until the reconnect backoff has elapsed.
type RedisStore struct {
	cfg    config.RedisConfig
	logger logrus.FieldLogger
	now    func() time.Time

	group       singleflight.Group
	mu          sync.RWMutex
	client      *redis.Client
	lastFailure time.Time
	dials       atomic.Int64
}

func NewRedisStore(cfg config.RedisConfig, logger logrus.FieldLogger) *RedisStore {
	return &RedisStore{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStoreUnavailable, op, err)
}

func (s *RedisStore) conn() (*redis.Client, error) {
	if !s.cfg.Enabled {
		return nil, fmt.Errorf("%w: disabled by configuration", apperrors.ErrStoreUnavailable)
	}

	s.mu.RLock()
	client, lastFailure := s.client, s.lastFailure
	s.mu.RUnlock()
	if client != nil {
		return client, nil
	}
	if !lastFailure.IsZero() && s.now().Sub(lastFailure) < s.cfg.ReconnectBackoff {
		return nil, fmt.Errorf("%w: reconnect backoff", apperrors.ErrStoreUnavailable)
	}

	v, err, _ := s.group.Do("connect", func() (interface{}, error) {
		s.mu.RLock()
		existing := s.client
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		return s.dial()
	})
	if err != nil {
		return nil, unavailable("connect", err)
	}
	return v.(*redis.Client), nil
}

func (s *RedisStore) dial() (*redis.Client, error) {
	s.dials.Add(1)

	opts, err := s.cfg.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	// The dial is shared by every waiting request, so it must not inherit
	// any single request's cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		s.mu.Lock()
		s.lastFailure = s.now()
		s.mu.Unlock()
		s.logger.WithError(err).WithField("addr", s.cfg.Redacted()).
			Warn("Redis unreachable, admission control fails open")
		return nil, err
	}

	s.mu.Lock()
	s.client = client
	s.lastFailure = time.Time{}
	s.mu.Unlock()

	s.logger.WithField("addr", s.cfg.Redacted()).Info("Redis connection established")
	return client, nil
}

func (s *RedisStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func (s *RedisStore) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := script.Run(ctx, client, keys, args...).Result()
	if err != nil {
		return nil, unavailable("script", err)
	}
	return res, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	client, err := s.conn()
	if err != nil {
		return false, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ok, err := client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

// PTTL returns the remaining lifetime of key; a negative duration means the
// key is missing or has no expiry.
func (s *RedisStore) PTTL(ctx context.Context, key string) (time.Duration, error) {
	client, err := s.conn()
	if err != nil {
		return 0, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ttl, err := client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", err)
	}
	return ttl, nil
}

// Ping reports whether the store is reachable; used by the health check.
func (s *RedisStore) Ping(ctx context.Context) error {
	client, err := s.conn()
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
