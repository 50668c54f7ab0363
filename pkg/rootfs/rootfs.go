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

// Package rootfs locates and classifies the root filesystem image that is
// going to be extracted.
package rootfs

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/apex/log"

	"github.com/levitateos/recstrap/internal/funchelpers"
	"github.com/levitateos/recstrap/pkg/guard"
	"github.com/levitateos/recstrap/pkg/protect"
)

// DefaultSearchPaths are the conventional live-media locations of the rootfs
// image, in order of preference. EROFS images are preferred over squashfs.
var DefaultSearchPaths = []string{
	"/media/cdrom/live/filesystem.erofs",
	"/run/initramfs/live/filesystem.erofs",
	"/run/archiso/bootmnt/live/filesystem.erofs",
	"/mnt/cdrom/live/filesystem.erofs",
	"/media/cdrom/live/filesystem.squashfs",
	"/run/initramfs/live/filesystem.squashfs",
	"/run/archiso/bootmnt/live/filesystem.squashfs",
	"/mnt/cdrom/live/filesystem.squashfs",
}

// Spec is the resolved source image.
type Spec struct {
	// Raw is the path that was given (or found by searching).
	Raw string `json:"raw"`
	// Path is the canonical absolute path of the image.
	Path string `json:"path"`
	// AutoDetected is set if Raw came from the search paths.
	AutoDetected bool `json:"auto_detected"`
	// Size of the image in bytes.
	Size int64 `json:"size"`
	// Format is filled in once the signature has been verified.
	Format Format `json:"format"`
}

// Locate resolves the rootfs image. If explicit is non-empty it is used
// as-is, otherwise the first existing entry of searchPaths is used. The image
// must be a readable regular file.
func Locate(explicit string, searchPaths []string) (*Spec, error) {
	spec := &Spec{Raw: explicit}
	if explicit == "" {
		found, ok := find(searchPaths)
		if err := guard.Ensure(ok,
			guard.New(guard.RootfsNotFound, "rootfs not found (tried: %s). Make sure you're running from the live ISO or specify --rootfs", strings.Join(searchPaths, ", ")),
			guard.Guard{
				Protects: "Live ISO rootfs is found automatically",
				Severity: guard.Critical,
				Cheats: []string{
					"Return first path without checking existence",
					"Hardcode a path",
					"Create empty file at expected location",
				},
				Consequence: "User must manually specify --rootfs, poor UX",
			}); err != nil {
			return spec, err
		}
		spec.Raw = found
		spec.AutoDetected = true
		log.WithField("rootfs", found).Infof("auto-detected rootfs image")
	}

	fi, err := os.Stat(spec.Raw)
	if err := guard.Ensure(err == nil,
		guard.Wrap(guard.RootfsNotFound, err, "rootfs '%s' not found", spec.Raw),
		guard.Guard{
			Protects: "Specified rootfs file actually exists",
			Severity: guard.Critical,
			Cheats: []string{
				"Create empty file",
				"Use default path instead",
				"Skip existence check",
			},
			Consequence: "Extraction fails with 'file not found'",
		}); err != nil {
		return spec, err
	}
	if err := guard.Ensure(fi.Mode().IsRegular(),
		guard.New(guard.RootfsNotFile, "'%s' is not a regular file", spec.Raw),
		guard.Guard{
			Protects: "Rootfs path points to a file, not directory",
			Severity: guard.Critical,
			Cheats: []string{
				"Accept directories",
				"Skip type check",
			},
			Consequence: "Extraction fails with confusing error about invalid format",
		}); err != nil {
		return spec, err
	}
	spec.Size = fi.Size()

	path, err := protect.Canonicalize(spec.Raw)
	if err != nil {
		return spec, guard.Wrap(guard.RootfsNotFound, err, "resolve rootfs '%s'", spec.Raw)
	}
	spec.Path = path

	if err := guard.Ensure(canRead(spec.Path),
		guard.New(guard.RootfsNotReadable, "cannot read rootfs '%s' (permission denied?)", spec.Path),
		guard.Guard{
			Protects: "Rootfs file is readable before starting extraction",
			Severity: guard.Critical,
			Cheats: []string{
				"Skip readability check",
				"Only check file permissions metadata",
				"Assume root can read anything",
			},
			Consequence: "Extraction fails immediately with permission denied",
		}); err != nil {
		return spec, err
	}
	return spec, nil
}

// find returns the first entry of paths that exists.
func find(paths []string) (string, bool) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		log.WithField("path", path).Debugf("rootfs search path does not exist")
	}
	return "", false
}

// canRead returns whether the first bytes of the image can actually be read,
// which is stronger than looking at permission bits.
func canRead(path string) bool {
	ok, err := readHeader(path)
	if err != nil {
		log.WithError(err).WithField("rootfs", path).Debugf("rootfs read probe failed")
	}
	return ok
}

func readHeader(path string) (_ bool, Err error) {
	fh, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer funchelpers.VerifyClose(&Err, fh)

	var buf [4]byte
	if _, err := io.ReadFull(fh, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Readable, just tiny. Format detection will reject it.
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// CheckContainment ensures that the image and the target are not
// path-prefix related: the image must not live inside the target (or be the
// target), otherwise extraction would overwrite its own source. Both paths
// must be canonical.
func CheckContainment(image, target string) error {
	return guard.Ensure(!protect.IsWithin(image, target) && !protect.IsWithin(target, image),
		guard.New(guard.RootfsInsideTarget, "rootfs '%s' is inside target '%s' - this would cause recursive extraction", image, target),
		guard.Guard{
			Protects: "Rootfs is not inside the extraction target",
			Severity: guard.Critical,
			Cheats: []string{
				"Skip this check",
				"Only check exact path match",
				"Check before canonicalization",
			},
			Consequence: "Recursive extraction disaster - extracting overwrites source mid-extraction",
		})
}
