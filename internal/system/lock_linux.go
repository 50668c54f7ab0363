// SPDX-License-Identifier: Apache-2.0
/*
 * recstrap: install a root filesystem image onto a prepared target
 * Copyright (C) 2026 The recstrap Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:build linux

package system

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by LockDir if another open file already holds the
// lock.
var ErrLocked = errors.New("locked by another process")

// flock is a wrapper around flock(2), retrying on EINTR.
func flock(fd uintptr, how int) error {
	for {
		err := unix.Flock(int(fd), how) //nolint:gosec // fds fit in an int
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// LockDir takes an exclusive flock(2) on the directory at path, failing with
// ErrLocked instead of blocking. The lock is tied to the open file, so a
// second LockDir on the same directory fails even from the same process. It
// is held until unlock is called.
func LockDir(path string) (unlock func() error, _ error) {
	dir, err := os.OpenFile(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open directory to lock: %w", err)
	}
	if err := flock(dir.Fd(), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = dir.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, &os.PathError{Op: "flock", Path: path, Err: err}
	}
	return func() error {
		err := flock(dir.Fd(), unix.LOCK_UN)
		if closeErr := dir.Close(); err == nil {
			err = closeErr
		}
		return err
	}, nil
}
