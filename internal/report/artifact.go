package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/boyarskiy/runledger/internal/errors"
)

const (
	// LockFileName is created in the output directory while artifacts are written.
	LockFileName = ".runledger.lock"

	dirPerm  = 0o750
	filePerm = 0o644

	lockRetryDelay = 100 * time.Millisecond
)

// WriteArtifacts writes every artifact into dir and returns the written paths.
// The directory is locked for the duration so concurrent invocations cannot
// interleave files; a lock that cannot be taken within lockTimeout wraps
// errors.ErrArtifactLocked. Each file is replaced atomically: it is either
// absent, the previous version, or complete.
func WriteArtifacts(ctx context.Context, dir string, artifacts []Artifact, lockTimeout time.Duration) ([]string, error) {
	if dir == "" {
		return nil, errors.Wrap(errors.ErrEmptyValue, "output directory")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	unlock, err := lockDir(ctx, dir, lockTimeout)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := zerolog.Ctx(ctx)
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		path := filepath.Join(dir, a.Name)
		if err := atomicWrite(path, a.Data); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Debug().Str("path", path).Int("bytes", len(a.Data)).Msg("artifact written")
		paths = append(paths, path)
	}

	return paths, nil
}

func lockDir(ctx context.Context, dir string, timeout time.Duration) (func(), error) {
	lock := flock.New(filepath.Join(dir, LockFileName))

	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil || !locked {
		return nil, errors.Wrapf(errors.ErrArtifactLocked, "%s", dir)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("dir", dir).Msg("failed to release output lock")
		}
	}, nil
}

// atomicWrite writes data to a temporary file in the same directory, syncs
// it, and renames it over path.
func atomicWrite(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync to disk (ensure data is persisted before rename)
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
