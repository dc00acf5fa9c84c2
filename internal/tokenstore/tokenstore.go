package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/maniack/authrelay/internal/logging"
	redis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when no token exists for the user.
var ErrNotFound = errors.New("token not found")

// ErrUnavailable wraps store connectivity failures. CompleteAuth treats it
// as fatal for the flow, so a token is never silently dropped.
var ErrUnavailable = errors.New("token store unavailable")

// Store persists one token record per user. Put is an upsert with
// last-write-wins semantics; records carry no expiry.
type Store interface {
	Put(ctx context.Context, userID string, token []byte) error
	Get(ctx context.Context, userID string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

func tokenKey(userID string) string { return "token:" + userID }

// ---- In-memory implementation ----

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns a process-local store for tests and store-less dev runs.
func NewMemoryStore() Store {
	logging.L().WithField("impl", "memory").Info("tokenstore: initialized")
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, userID string, token []byte) error {
	m.mu.Lock()
	m.data[tokenKey(userID)] = append([]byte(nil), token...)
	m.mu.Unlock()
	logging.L().WithFields(map[string]any{
		"impl":    "memory",
		"op":      "put",
		"key":     redactKey(tokenKey(userID)),
		"val_len": len(token),
	}).Debug("tokenstore")
	return nil
}

func (m *memoryStore) Get(_ context.Context, userID string) ([]byte, error) {
	m.mu.Lock()
	v, ok := m.data[tokenKey(userID)]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Close() error { return nil }

// ---- Redis implementation ----

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store from a STORE_URL style DSN
// (redis://[:password@]host:port/db) using go-redis.
func NewRedisStore(storeURL, prefix string) (Store, error) {
	if prefix == "" {
		prefix = "authrelay:"
	} else if !strings.HasSuffix(prefix, ":") {
		prefix = prefix + ":"
	}
	opts, err := redis.ParseURL(storeURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 50 * time.Millisecond
	opts.MaxRetryBackoff = 250 * time.Millisecond
	opts.DialTimeout = 1 * time.Second
	opts.ReadTimeout = 1 * time.Second
	opts.WriteTimeout = 1 * time.Second
	opts.OnConnect = func(ctx context.Context, cn *redis.Conn) error {
		logging.L().WithFields(map[string]any{"impl": "redis", "addr": opts.Addr}).Debug("tokenstore: redis connected")
		return nil
	}
	logging.L().WithFields(map[string]any{"impl": "redis", "addr": opts.Addr, "prefix": prefix}).Info("tokenstore: initializing redis store")
	cl := redis.NewClient(opts)
	// Best-effort ping
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cl.Ping(ctx).Err(); err != nil {
		logging.L().WithFields(map[string]any{"impl": "redis", "addr": opts.Addr}).WithError(err).Info("tokenstore: redis ping failed (will retry on demand)")
	}
	return &redisStore{client: cl, prefix: prefix}, nil
}

func (r *redisStore) Put(ctx context.Context, userID string, token []byte) error {
	start := time.Now()
	key := r.prefix + tokenKey(userID)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		// No expiry: the record lives until the next successful exchange overwrites it.
		err := r.client.Set(opCtx, key, token, 0).Err()
		cancel()
		if err == nil {
			logging.L().WithFields(map[string]any{
				"impl":    "redis",
				"op":      "put",
				"key":     redactKey(key),
				"val_len": len(token),
				"took":    time.Since(start).String(),
				"attempt": attempt + 1,
			}).Debug("tokenstore")
			return nil
		}
		lastErr = err
		if attempt < 2 {
			r.recover(attempt)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (r *redisStore) Get(ctx context.Context, userID string) ([]byte, error) {
	start := time.Now()
	key := r.prefix + tokenKey(userID)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		b, err := r.client.Get(opCtx, key).Bytes()
		cancel()
		if err == nil {
			logging.L().WithFields(map[string]any{
				"impl":    "redis",
				"op":      "get",
				"key":     redactKey(key),
				"state":   "hit",
				"val_len": len(b),
				"took":    time.Since(start).String(),
				"attempt": attempt + 1,
			}).Debug("tokenstore")
			return b, nil
		}
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		lastErr = err
		if attempt < 2 {
			r.recover(attempt)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// recover pings the server and backs off before the next attempt.
func (r *redisStore) recover(attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	_ = r.client.Ping(ctx).Err()
	cancel()
	time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
}

func (r *redisStore) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *redisStore) Close() error { return r.client.Close() }

func redactKey(key string) string {
	if key == "" {
		return ""
	}
	const keep = 4
	n := len(key)
	if idx := strings.IndexByte(key, ':'); idx >= 0 && n > idx+keep {
		return key[:idx+1] + "***" + key[n-keep:]
	}
	if n > keep {
		return "***" + key[n-keep:]
	}
	return "***"
}
