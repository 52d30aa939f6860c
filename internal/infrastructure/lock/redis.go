package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"SentimentPipeline/internal/ports"
)

const (
	defaultKey = "sentiment-pipeline:cycle"
	defaultTTL = 10 * time.Minute
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock spreads the cycle lock across replicas sharing one Redis.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.RunLock = (*RedisLock)(nil)

// RedisLockDeps configures RedisLock.
type RedisLockDeps struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
	Logger *slog.Logger
}

// NewRedisLock builds a lock over an existing client.
func NewRedisLock(deps RedisLockDeps) *RedisLock {
	key := deps.Key
	if key == "" {
		key = defaultKey
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisLock{client: deps.Client, key: key, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// TryAcquire sets the key with NX and a TTL so a crashed holder cannot
// block cycles forever. While held, the TTL is refreshed every third of its
// length, so a cycle outliving one TTL keeps its lock.
func (l *RedisLock) TryAcquire(ctx context.Context) (func(), bool, error) {
	if l.client == nil {
		return nil, false, errors.New("redis lock: client is not configured")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	refreshCtx, stopRefresh := context.WithCancel(context.WithoutCancel(ctx))
	refreshed := make(chan struct{})
	go l.keepAlive(refreshCtx, token, refreshed)

	var once sync.Once
	release := func() {
		once.Do(func() {
			stopRefresh()
			<-refreshed
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
				l.logger.Warn("release cycle lock", "key", l.key, "error", err)
			}
		})
	}
	return release, true, nil
}

func (l *RedisLock) keepAlive(ctx context.Context, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(max(l.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil || errors.Is(err, redis.ErrClosed):
			return
		case err != nil:
			l.logger.Warn("refresh cycle lock", "key", l.key, "error", err)
		case held == 0:
			l.logger.Warn("cycle lock lost before release", "key", l.key)
			return
		}
	}
}
