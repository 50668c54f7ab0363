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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"

	"github.com/levitateos/recstrap/internal/funchelpers"
	"github.com/levitateos/recstrap/pkg/guard"
)

// Format is the on-disk format of a rootfs image. The set of formats is
// closed: every switch over Format must handle every variant.
type Format int

const (
	// FormatUnknown is an image whose signature matched no known format. It
	// always fails the run.
	FormatUnknown Format = iota
	// FormatSquashfs is a compressed read-only archive, extracted directly
	// into the target with unsquashfs.
	FormatSquashfs
	// FormatErofs is a read-only block image. It has to be mounted and its
	// contents copied into the target.
	FormatErofs
)

// Magic is a format signature: a fixed byte sequence at a fixed offset.
type Magic struct {
	Offset int64
	Bytes  []byte
}

var (
	// squashfsMagic is "hsqs" at the start of the superblock.
	squashfsMagic = Magic{Offset: 0, Bytes: []byte("hsqs")}
	// erofsMagic is 0xe0f5e1e2 (little-endian) at the start of the
	// superblock, which lives at offset 1024.
	erofsMagic = Magic{Offset: 1024, Bytes: []byte{0xe2, 0xe1, 0xf5, 0xe0}}
)

// detectOrder is the fixed priority in which signatures are tried when the
// extension gives no hint. EROFS is the modern default.
var detectOrder = []Format{FormatErofs, FormatSquashfs}

func (f Format) String() string {
	switch f {
	case FormatSquashfs:
		return "squashfs"
	case FormatErofs:
		return "erofs"
	case FormatUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Magic returns the signature of the format. FormatUnknown has none.
func (f Format) Magic() (Magic, bool) {
	switch f {
	case FormatSquashfs:
		return squashfsMagic, true
	case FormatErofs:
		return erofsMagic, true
	case FormatUnknown:
	}
	return Magic{}, false
}

// Extension returns the conventional file extension of the format, including
// the leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatSquashfs, FormatErofs:
		return "." + f.String()
	case FormatUnknown:
	}
	return ""
}

// FormatFromExtension returns the format suggested by the extension of path,
// or FormatUnknown. The extension is only ever a hint.
func FormatFromExtension(path string) Format {
	ext := filepath.Ext(path)
	for _, f := range detectOrder {
		if ext == f.Extension() {
			return f
		}
	}
	return FormatUnknown
}

// matches returns whether the signature of f is present in rdr.
func (f Format) matches(rdr io.ReaderAt) (bool, error) {
	magic, ok := f.Magic()
	if !ok {
		return false, nil
	}
	buf := make([]byte, len(magic.Bytes))
	if _, err := rdr.ReadAt(buf, magic.Offset); err != nil {
		if errors.Is(err, io.EOF) {
			// Too short to contain the signature.
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(buf, magic.Bytes), nil
}

// sniff tries the signatures in order, returning the first format that
// matches.
func sniff(rdr io.ReaderAt, order []Format) (Format, error) {
	for _, f := range order {
		ok, err := f.matches(rdr)
		if err != nil {
			return FormatUnknown, fmt.Errorf("read %s signature: %w", f, err)
		}
		if ok {
			return f, nil
		}
	}
	return FormatUnknown, nil
}

// Sniff classifies the image purely by its signature. The result only
// depends on the bytes of the image, never on its name.
func Sniff(rdr io.ReaderAt) (Format, error) {
	return sniff(rdr, detectOrder)
}

// Detect classifies the image at path. The extension selects which signature
// is tried first, but the signature is authoritative: an image whose
// signature disagrees with its extension, or matches no format at all, is
// rejected with InvalidRootfsFormat.
func Detect(path string) (_ Format, Err error) {
	hint := FormatFromExtension(path)
	order := detectOrder
	if hint != FormatUnknown {
		order = append([]Format{hint}, without(detectOrder, hint)...)
	}

	fh, err := os.Open(path)
	if err != nil {
		return FormatUnknown, guard.Wrap(guard.RootfsNotReadable, err, "cannot read rootfs '%s' (permission denied?)", path)
	}
	defer funchelpers.VerifyClose(&Err, fh)

	format, err := sniff(fh, order)
	if err != nil {
		return FormatUnknown, guard.Wrap(guard.RootfsNotReadable, err, "cannot read rootfs '%s'", path)
	}

	log.WithFields(log.Fields{
		"rootfs":    path,
		"extension": hint,
		"signature": format,
	}).Debugf("detected rootfs format")

	if err := guard.Ensure(format != FormatUnknown,
		guard.New(guard.InvalidRootfsFormat, "'%s' is not a valid rootfs image: signature matches no known format (%s)", path, describeExpected(order)),
		guard.Guard{
			Protects: "Only images with a verified signature are extracted",
			Severity: guard.Critical,
			Cheats: []string{
				"Trust the file extension",
				"Skip signature verification",
				"Fall back to a default format",
			},
			Consequence: "Corrupt or foreign image fed to the extractor, partially-populated target that looks successful",
		}); err != nil {
		return FormatUnknown, err
	}
	if err := guard.Ensure(hint == FormatUnknown || hint == format,
		guard.New(guard.InvalidRootfsFormat, "'%s' is not a valid rootfs image: extension suggests %s but signature is %s", path, hint, format),
		guard.Guard{
			Protects: "Extension and signature agree before choosing an extraction procedure",
			Severity: guard.Critical,
			Cheats: []string{
				"Prefer the extension over the signature",
				"Silently use the sniffed format",
				"Only check the signature of the hinted format",
			},
			Consequence: "Renamed or mislabelled image extracted with the wrong procedure",
		}); err != nil {
		return FormatUnknown, err
	}
	return format, nil
}

func without(formats []Format, skip Format) []Format {
	var out []Format
	for _, f := range formats {
		if f != skip {
			out = append(out, f)
		}
	}
	return out
}

func describeExpected(order []Format) string {
	var buf bytes.Buffer
	for idx, f := range order {
		magic, _ := f.Magic()
		if idx > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s: %#x at offset %d", f, magic.Bytes, magic.Offset)
	}
	return buf.String()
}
