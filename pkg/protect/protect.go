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

// Package protect contains the registry of system paths that recstrap will
// never extract into, and the path canonicalisation that every identity
// comparison in recstrap relies on.
package protect

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultPaths is the list of top-level system directories that can never be
// used as an extraction target. This list is shared with sibling tools that
// make the same decision, and must not drift.
var DefaultPaths = []string{
	"/",
	"/bin",
	"/boot",
	"/dev",
	"/etc",
	"/home",
	"/lib",
	"/lib64",
	"/opt",
	"/proc",
	"/root",
	"/run",
	"/sbin",
	"/srv",
	"/sys",
	"/tmp",
	"/usr",
	"/var",
}

// Registry is a read-only set of protected paths. Membership is exact-match
// only: subdirectories of a protected path are not protected themselves, the
// registry only covers the well-known top-level mount targets.
//
// A Registry is never mutated after construction, so it is safe to share.
type Registry struct {
	root *trieNode
}

// New creates a registry containing the given absolute paths.
func New(paths ...string) (*Registry, error) {
	r := &Registry{root: newNode()}
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			return nil, fmt.Errorf("protected path %q is not absolute", path)
		}
		r.root.insert(path)
	}
	return r, nil
}

// Default returns a registry containing DefaultPaths.
func Default() *Registry {
	r, err := New(DefaultPaths...)
	if err != nil {
		// Should _never_ be reached.
		panic(fmt.Sprintf("[internal error] invalid default protected path list: %v", err))
	}
	return r
}

// IsProtected returns whether path is exactly one of the protected paths.
// The caller is responsible for canonicalising path first; a path that was
// not canonicalised could alias a protected path through a symlink.
func (r *Registry) IsProtected(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	return r.root.contains(path)
}

// Paths returns every protected path in lexical order.
func (r *Registry) Paths() []string {
	return r.root.walk(string(filepath.Separator), nil)
}

// Canonicalize resolves raw into an absolute path with all symlinks and
// relative components resolved. If any component of raw does not exist, the
// returned error wraps os.ErrNotExist.
func Canonicalize(raw string) (string, error) {
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("make %q absolute: %w", raw, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", raw, err)
	}
	return resolved, nil
}

// IsWithin returns whether path is parent or is lexically contained inside
// parent. Both paths must be canonical. The comparison is done per path
// component, so "/mnt2" is not within "/mnt".
func IsWithin(path, parent string) bool {
	path, parent = filepath.Clean(path), filepath.Clean(parent)
	if path == parent {
		return true
	}
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
