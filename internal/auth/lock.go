package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a process waits for another process
// to finish authenticating.
const DefaultLockTimeout = 30 * time.Second

const lockPollInterval = 100 * time.Millisecond

// AcquireAuthLock takes the cross-process authentication lock for a school,
// polling until it is acquired or the timeout elapses. The returned release
// function is safe to call exactly once and never fails.
//
// The lock serializes browser-profile access; two concurrent logins against
// the same persistent profile corrupt it.
func AcquireAuthLock(ctx context.Context, lockPath string, timeout time.Duration) (release func(), err error) {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockPollInterval)
	if err != nil {
		if lockCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w (waited %s)", ErrLockTimeout, timeout)
		}
		return nil, fmt.Errorf("failed to acquire auth lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (waited %s)", ErrLockTimeout, timeout)
	}
	return func() { _ = lock.Unlock() }, nil
}
