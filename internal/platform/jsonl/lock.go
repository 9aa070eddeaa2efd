package jsonl

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/phrazzld/llmbatch/internal/store"
)

// LockSuffix is appended to the log path to name its lock file.
const LockSuffix = ".lock"

const lockRetryDelay = 10 * time.Millisecond

// pathMutexes holds one mutex per absolute log path, shared by every store
// instance in the process.
var pathMutexes sync.Map

func pathMutex(abs string) *sync.Mutex {
	mu, _ := pathMutexes.LoadOrStore(abs, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// acquire takes the exclusive lock for path and returns the function that
// releases it. The in-process mutex is taken first so goroutines in the same
// process never contend on the OS lock.
func acquire(ctx context.Context, path string) (func() error, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, store.NewStoreError(path, "lock", "cannot resolve path", err)
	}

	mu := pathMutex(abs)
	mu.Lock()

	fl := flock.New(abs + LockSuffix)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		mu.Unlock()
		if err == nil {
			err = fmt.Errorf("lock %s not acquired", fl.Path())
		}
		return nil, store.NewStoreError(path, "lock", "cannot acquire lock",
			fmt.Errorf("%w: %w", store.ErrLockFailed, err))
	}

	return func() error {
		defer mu.Unlock()
		if err := fl.Unlock(); err != nil {
			return store.NewStoreError(path, "unlock", "cannot release lock",
				fmt.Errorf("%w: %w", store.ErrLockFailed, err))
		}
		return nil
	}, nil
}
