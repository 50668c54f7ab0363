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

package recstrap

import (
	"slices"

	"github.com/levitateos/recstrap/pkg/protect"
	"github.com/levitateos/recstrap/pkg/rootfs"
	"github.com/levitateos/recstrap/pkg/target"
	"github.com/levitateos/recstrap/pkg/verify"
)

// Config is the read-only configuration of an Engine. It is built once at
// startup and shared by reference; nothing modifies it afterwards.
type Config struct {
	// Registry is the set of paths that can never be a target.
	Registry *protect.Registry
	// SearchPaths are tried in order when no rootfs image was given.
	SearchPaths []string
	// EssentialDirs must all exist in the target after extraction.
	EssentialDirs []string
	// MinFreeBytes is the free space the target filesystem needs.
	MinFreeBytes uint64
}

// DefaultConfig returns the configuration used by the recstrap binary.
func DefaultConfig() *Config {
	return &Config{
		Registry:      protect.Default(),
		SearchPaths:   slices.Clone(rootfs.DefaultSearchPaths),
		EssentialDirs: slices.Clone(verify.EssentialDirs),
		MinFreeBytes:  target.MinFreeBytes,
	}
}
