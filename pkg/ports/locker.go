package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a lock.
type UnlockFunc func(ctx context.Context) error

// Locker serializes access to a shared resource (the artifact directory or the pack config).
type Locker interface {
	// Lock blocks until the lock for key is acquired or the context is canceled.
	// The TTL bounds how long a crashed holder can keep a distributed lock.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
