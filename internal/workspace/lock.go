// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/spf13/afero"
)

// LockFile is created in the output root while a batch writes to it.
const LockFile = ".nipipe.lock"

// ErrOutputRootLocked is returned when another batch holds the output root.
var ErrOutputRootLocked = errors.New("output root is in use by another batch")

// PrepareOutputRoot creates the output root and takes an exclusive lock on it.
// The returned func releases the lock. Locking only applies when fsys is the
// OS filesystem.
func PrepareOutputRoot(ctx context.Context, fsys afero.Fs, root string) (func(), error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output root %s: %w", root, err)
	}

	if _, ok := fsys.(*afero.OsFs); !ok {
		return nil, nil
	}

	path := filepath.Join(root, LockFile)
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking output root: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputRootLocked, root)
	}

	ctxlog.Debug(ctx, "output root locked", "lock", path)

	return func() {
		if err := lock.Unlock(); err != nil {
			ctxlog.Warn(ctx, "failed to release output root lock", "lock", path, "error", err)
		}
	}, nil
}
