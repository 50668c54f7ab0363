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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/moby/sys/userns"
	"golang.org/x/sys/unix"
)

// ProcFilesystems is the kernel's list of registered filesystem types.
const ProcFilesystems = "/proc/filesystems"

// IsRoot returns whether the effective user is root.
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// InUserNamespace returns whether we are running inside a user namespace.
// Root in a user namespace cannot set up loop devices, so callers use this to
// explain why a privileged operation might fail anyway.
func InUserNamespace() bool {
	return userns.RunningInUserNS()
}

// Access is a wrapper around access(2), retrying on EINTR.
func Access(path string, mode uint32) error {
	for {
		err := unix.Access(path, mode)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return &os.PathError{Op: "access", Path: path, Err: err}
		}
		return nil
	}
}

// FreeBytes is a wrapper around statfs(2) returning the number of bytes
// available to unprivileged users on the filesystem containing path.
func FreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	for {
		err := unix.Statfs(path, &st)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, &os.PathError{Op: "statfs", Path: path, Err: err}
		}
		break
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil //nolint:gosec // Bsize is never negative
}

// FilesystemSupported returns whether the running kernel has the given
// filesystem type registered (as listed in /proc/filesystems).
func FilesystemSupported(fstype string) bool {
	fh, err := os.Open(ProcFilesystems)
	if err != nil {
		return false
	}
	defer fh.Close() //nolint:errcheck // read-only
	ok, err := parseFilesystems(fh, fstype)
	return err == nil && ok
}

// parseFilesystems scans the /proc/filesystems format ("[nodev]\t<type>")
// for an exact match of fstype.
func parseFilesystems(rdr io.Reader, fstype string) (bool, error) {
	scanner := bufio.NewScanner(rdr)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[len(fields)-1] == fstype {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("scan %s: %w", ProcFilesystems, err)
	}
	return false, nil
}
