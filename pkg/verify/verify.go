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

// Package verify checks that an extraction produced something that looks like
// a usable root filesystem, and optionally records a manifest of it.
package verify

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/vbatts/go-mtree"

	"github.com/levitateos/recstrap/internal/funchelpers"
	"github.com/levitateos/recstrap/pkg/guard"
)

// EssentialDirs are the top-level entries any valid root filesystem contains.
var EssentialDirs = []string{"bin", "etc", "lib", "sbin", "usr", "var"}

// ManifestKeywords is the set of keywords recorded in a manifest of the
// extracted tree. It is hardcoded rather than taken from mtree.DefaultKeywords
// so that manifests stay comparable across library updates.
var ManifestKeywords = []mtree.Keyword{
	"size",
	"type",
	"uid",
	"gid",
	"mode",
	"link",
	"nlink",
	"tar_time",
	"sha256digest",
	"xattr",
}

// Missing returns the entries of essential that do not resolve to a directory
// inside target. Symlinks (such as a merged-usr "bin -> usr/bin") are
// resolved as though target were the root, so they can never point at the
// host's directories.
func Missing(target string, essential []string) ([]string, error) {
	var missing []string
	for _, name := range essential {
		path, err := securejoin.SecureJoin(target, name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s in %s: %w", name, target, err)
		}
		fi, err := os.Stat(path)
		switch {
		case err == nil && fi.IsDir():
			continue
		case err == nil, errors.Is(err, os.ErrNotExist):
			log.WithFields(log.Fields{"entry": name, "path": path}).Debugf("essential entry missing")
			missing = append(missing, name)
		default:
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return missing, nil
}

// Verify checks that every entry of essential is a directory inside target.
func Verify(target string, essential []string) error {
	missing, err := Missing(target, essential)
	if err != nil {
		return guard.Wrap(guard.VerificationFailed, err, "cannot verify extracted system")
	}
	return guard.Ensure(len(missing) == 0,
		guard.New(guard.VerificationFailed, "extraction verification failed, missing: %s", strings.Join(missing, ", ")),
		guard.Guard{
			Protects: "Extracted system has all essential directories",
			Severity: guard.Critical,
			Cheats: []string{
				"Reduce the essential directory list",
				"Move missing dirs to 'optional' list",
				"Check existence instead of directory type",
				"Skip verification entirely",
				"Only check one directory",
			},
			Consequence: "System extracts 'successfully' but is incomplete - /bin, /usr, or /etc missing, unbootable",
		})
}

// WriteManifest walks target and writes an mtree manifest of it to path. The
// manifest file must not already exist.
func WriteManifest(target, path string) (Err error) {
	log.WithFields(log.Fields{
		"keywords": ManifestKeywords,
		"mtree":    path,
	}).Debugf("generating mtree manifest")

	log.Info("computing filesystem manifest ...")
	dh, err := mtree.Walk(target, nil, ManifestKeywords, mtree.DefaultFsEval{})
	if err != nil {
		return fmt.Errorf("generate mtree spec: %w", err)
	}
	log.Info("... done")

	flags := os.O_CREATE | os.O_WRONLY | os.O_EXCL
	fh, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open mtree: %w", err)
	}
	defer funchelpers.VerifyClose(&Err, fh)

	if _, err := dh.WriteTo(fh); err != nil {
		return fmt.Errorf("write mtree: %w", err)
	}
	return nil
}
