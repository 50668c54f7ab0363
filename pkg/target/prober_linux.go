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

package target

import (
	"fmt"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"github.com/levitateos/recstrap/internal/system"
)

// HostProber answers target questions by asking the running kernel.
type HostProber struct{}

var _ Prober = HostProber{}

// Mounted returns whether path is a mount point. The fast path compares the
// device of path with the device of its parent; mountinfo falls back to the
// mount table for bind mounts of the same device.
func (HostProber) Mounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false, fmt.Errorf("check mount point %s: %w", path, err)
	}
	return mounted, nil
}

// Writable uses access(2) rather than creating a probe file, so that
// checking never mutates the target. access(2) reports EROFS for read-only
// mounts even for root.
func (HostProber) Writable(path string) error {
	return system.Access(path, unix.W_OK)
}

// FreeBytes returns the space available on the filesystem of path.
func (HostProber) FreeBytes(path string) (uint64, error) {
	return system.FreeBytes(path)
}
