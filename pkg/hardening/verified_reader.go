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

// Package hardening verifies that a rootfs image is exactly the image the
// operator expects, before anything is extracted from it.
package hardening

import (
	"errors"
	"fmt"
	"io"
	"os"

	// Register the digest algorithms go-digest knows about.
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/apex/log"
	"github.com/docker/go-units"
	"github.com/opencontainers/go-digest"

	"github.com/levitateos/recstrap/internal/funchelpers"
)

var (
	// ErrDigestMismatch indicates that VerifiedReadCloser encountered a
	// digest error on EOF.
	ErrDigestMismatch = errors.New("verified reader digest mismatch")

	// ErrSizeMismatch indicates that VerifiedReadCloser encountered a size
	// error on EOF.
	ErrSizeMismatch = errors.New("verified reader size mismatch")
)

// VerifiedReadCloser is an io.ReadCloser which verifies that a stream matches
// an expected digest and size. The whole stream is hashed as it passes
// through, and on EOF the digest is compared. This means the stream has to be
// read to EOF for a verification error to be reported.
type VerifiedReadCloser struct {
	// Reader is the underlying reader.
	Reader io.ReadCloser

	// ExpectedDigest is the digest the stream must have.
	ExpectedDigest digest.Digest

	// ExpectedSize is the size the stream must have. A negative value
	// disables the size check.
	ExpectedSize int64

	digester digest.Digester
	read     int64
}

func (v *VerifiedReadCloser) init() error {
	if v.digester != nil {
		return nil
	}
	alg := v.ExpectedDigest.Algorithm()
	if !alg.Available() {
		return fmt.Errorf("verified reader: unsupported hash algorithm %s", alg)
	}
	v.digester = alg.Digester()
	return nil
}

func (v *VerifiedReadCloser) verify() error {
	if v.ExpectedSize >= 0 && v.read != v.ExpectedSize {
		return fmt.Errorf("%w: expected %d bytes not %d", ErrSizeMismatch, v.ExpectedSize, v.read)
	}
	if actual := v.digester.Digest(); actual != v.ExpectedDigest {
		return fmt.Errorf("%w: expected %s not %s", ErrDigestMismatch, v.ExpectedDigest, actual)
	}
	return nil
}

// Read is a wrapper around VerifiedReadCloser.Reader, with a digest check on
// EOF.
func (v *VerifiedReadCloser) Read(p []byte) (int, error) {
	if err := v.init(); err != nil {
		return 0, err
	}
	n, err := v.Reader.Read(p)
	if n > 0 {
		// hash.Hash guarantees Write() never fails and is never short.
		_, _ = v.digester.Hash().Write(p[:n])
		v.read += int64(n)
		if v.ExpectedSize >= 0 && v.read > v.ExpectedSize {
			return n, fmt.Errorf("%w: read past expected %d bytes", ErrSizeMismatch, v.ExpectedSize)
		}
	}
	if errors.Is(err, io.EOF) {
		if verr := v.verify(); verr != nil {
			err = verr
		}
	}
	return n, err
}

// Close is a wrapper around VerifiedReadCloser.Reader, but also verifies the
// digest of everything read so far if the underlying Close succeeded.
func (v *VerifiedReadCloser) Close() error {
	if err := v.Reader.Close(); err != nil {
		return err
	}
	if err := v.init(); err != nil {
		return err
	}
	return v.verify()
}

// VerifyFile hashes the whole file at path and checks it against expected.
// If size is non-negative the file must also be exactly that long.
func VerifyFile(path string, expected digest.Digest, size int64) (Err error) {
	if err := expected.Validate(); err != nil {
		return fmt.Errorf("invalid expected digest %q: %w", expected, err)
	}

	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	rdr := &VerifiedReadCloser{
		Reader:         fh,
		ExpectedDigest: expected,
		ExpectedSize:   size,
	}
	defer funchelpers.VerifyClose(&Err, rdr)

	log.WithFields(log.Fields{
		"image":  path,
		"digest": expected,
		"size":   units.HumanSize(float64(size)),
	}).Info("verifying rootfs image digest ...")

	if _, err := io.Copy(io.Discard, rdr); err != nil {
		return fmt.Errorf("verify image: %w", err)
	}
	log.Info("... done")
	return nil
}
