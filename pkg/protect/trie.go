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

package protect

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// trieNode is a node in a path-component trie. Only nodes that were
// explicitly inserted are marked, intermediate nodes are not members.
type trieNode struct {
	member   bool
	children map[string]*trieNode
}

func newNode() *trieNode {
	return &trieNode{children: map[string]*trieNode{}}
}

// pathKey converts path to the slash-separated, cleaned, root-relative form
// used to index the trie. The root directory itself is the empty key.
func pathKey(path string) string {
	path = filepath.Clean(string(filepath.Separator) + path)
	path = strings.TrimPrefix(path, string(filepath.Separator))
	return filepath.ToSlash(path)
}

// lookup returns the node at key. If alloc is set then any missing nodes are
// created.
func (n *trieNode) lookup(key string, alloc bool) *trieNode {
	if key == "" {
		return n
	}
	top, remaining, _ := strings.Cut(key, "/")

	next, exists := n.children[top]
	if !exists {
		if !alloc {
			return nil
		}
		next = newNode()
		n.children[top] = next
	}
	return next.lookup(remaining, alloc)
}

func (n *trieNode) insert(path string) {
	n.lookup(pathKey(path), true).member = true
}

func (n *trieNode) contains(path string) bool {
	node := n.lookup(pathKey(path), false)
	return node != nil && node.member
}

// walk appends every member path below (and including) n to paths.
func (n *trieNode) walk(prefix string, paths []string) []string {
	if n.member {
		paths = append(paths, prefix)
	}
	for _, name := range slices.Sorted(maps.Keys(n.children)) {
		paths = n.children[name].walk(filepath.Join(prefix, name), paths)
	}
	return paths
}
