//go:build gofuzz

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

package rootfs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"

	"github.com/levitateos/recstrap/pkg/guard"
)

// fuzzNames are the names each fuzzed image is written under. Only the
// extension hint differs between them.
var fuzzNames = []string{"image", "image.squashfs", "image.erofs", "image.img"}

// FuzzDetect implements a fuzzer that targets Detect() and Sniff(). Whatever
// the image is named, detection must only accept a format whose signature is
// present, and must agree with Sniff when no extension hint is given.
func FuzzDetect(data []byte) int {
	f := fuzzheaders.NewConsumer(data)
	content, err := f.GetBytes()
	if err != nil {
		return -1
	}

	sniffed, err := Sniff(bytes.NewReader(content))
	if err != nil {
		return -1
	}

	baseDir, err := os.MkdirTemp("", "recstrap-fuzz-")
	if err != nil {
		return -1
	}
	defer os.RemoveAll(baseDir) //nolint:errcheck // best-effort

	for _, name := range fuzzNames {
		path := filepath.Join(baseDir, name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return -1
		}

		format, err := Detect(path)
		again, againErr := Detect(path)
		if format != again || (err == nil) != (againErr == nil) {
			panic(fmt.Sprintf("Detect(%s) is not deterministic: %v/%v then %v/%v", name, format, err, again, againErr))
		}
		if err != nil {
			if code := guard.CodeOf(err); code != guard.InvalidRootfsFormat {
				panic(fmt.Sprintf("Detect(%s) failed with %s: %v", name, code, err))
			}
			continue
		}

		ok, err := format.matches(bytes.NewReader(content))
		if err != nil || !ok {
			panic(fmt.Sprintf("Detect(%s) accepted %s without its signature", name, format))
		}
		if FormatFromExtension(path) == FormatUnknown && format != sniffed {
			panic(fmt.Sprintf("Detect(%s) = %s but Sniff = %s", name, format, sniffed))
		}
	}
	if sniffed == FormatUnknown {
		return 0
	}
	return 1
}
