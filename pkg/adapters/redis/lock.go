package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/preflight/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockLost is returned by an UnlockFunc when the key expired or was taken over
// before release.
var ErrLockLost = errors.New("distributed lock lost before release")

// DefaultPollInterval is how often a waiting Lock retries SET NX.
const DefaultPollInterval = 100 * time.Millisecond

// releaseScript deletes the key only if it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.Locker using Redis, for several processes sharing one
// artifact directory or pack config.
type Locker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
}

// NewLocker creates a new Redis locker. Keys are stored as prefix+"lock:"+key.
func NewLocker(client backend.UniversalClient, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		poll:   DefaultPollInterval,
	}
}

// NewClient parses a redis:// URL into a client.
func NewClient(url string) (*backend.Client, error) {
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return backend.NewClient(opts), nil
}

// Lock acquires the lock with SET NX PX, polling until it succeeds or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis error acquiring lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Int()
				if err != nil {
					return fmt.Errorf("redis error releasing lock %s: %w", key, err)
				}
				if n == 0 {
					return ErrLockLost
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
