package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockPollInterval = 100 * time.Millisecond

// acquireLock serialises mutations of one slot (a tool's install path, or a
// host's plugin registry) across goroutines and processes sharing dir.
// The lock is advisory and held on an open descriptor, so the kernel drops
// it when the holder exits. Lock files stay on disk between runs.
func acquireLock(ctx context.Context, dir, slot string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare lock dir: %w", err)
	}

	fl := flock.New(filepath.Join(dir, slot+".lock"))
	ok, err := fl.TryLockContext(ctx, lockPollInterval)
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", slot, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock %s: %w", slot, context.Cause(ctx))
	}
	return func() { _ = fl.Unlock() }, nil
}
