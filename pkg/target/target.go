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

// Package target validates the directory a root filesystem is going to be
// extracted into. Validation is a fixed, ordered sequence of checks that
// stops at the first failure: later checks assume that earlier ones passed.
package target

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/docker/go-units"

	"github.com/levitateos/recstrap/internal/funchelpers"
	"github.com/levitateos/recstrap/pkg/guard"
	"github.com/levitateos/recstrap/pkg/protect"
)

// MinFreeBytes is the minimum amount of free space the target filesystem
// needs. A typical compressed rootfs expands to about this much.
const MinFreeBytes uint64 = 2 * 1024 * 1024 * 1024

// RecoveryDir is the name of the recovery directory mkfs creates at the root
// of a fresh filesystem. Its presence does not make a target non-empty.
const RecoveryDir = "lost+found"

// Spec is the resolved extraction destination. Its fields are filled in by
// Validate in check order, so after a failed validation only the fields of
// the checks that ran are meaningful.
type Spec struct {
	// Raw is the path as given by the user.
	Raw string `json:"raw"`
	// Path is the canonical absolute path.
	Path string `json:"path"`
	// Info is the metadata of Path.
	Info os.FileInfo `json:"-"`
	// Mounted is whether Path is a mount point.
	Mounted bool `json:"mounted"`
	// Empty is whether Path has no entries other than RecoveryDir.
	Empty bool `json:"empty"`
	// FreeBytes is the space available on the filesystem containing Path.
	FreeBytes uint64 `json:"free_bytes"`
	// Forced is set if the mount point and emptiness checks were skipped,
	// in which case Mounted and Empty were never measured.
	Forced bool `json:"forced"`
}

// Prober answers the questions about the target that need to ask the host.
// It exists so that validation can be exercised without root privileges or
// real mount points.
type Prober interface {
	// Mounted returns whether path is a mount point.
	Mounted(path string) (bool, error)
	// Writable returns nil if the current process can write to path.
	Writable(path string) error
	// FreeBytes returns the bytes available on the filesystem of path.
	FreeBytes(path string) (uint64, error)
}

// Validator runs the target checks. The zero value is not usable, use
// NewValidator.
type Validator struct {
	registry     *protect.Registry
	prober       Prober
	minFreeBytes uint64
}

// NewValidator creates a Validator. If prober is nil, the host is probed.
func NewValidator(registry *protect.Registry, prober Prober, minFreeBytes uint64) *Validator {
	if prober == nil {
		prober = HostProber{}
	}
	return &Validator{
		registry:     registry,
		prober:       prober,
		minFreeBytes: minFreeBytes,
	}
}

// check is a single step of target validation.
type check struct {
	name string
	// forceable checks are skipped with --force.
	forceable bool
	run       func(v *Validator, spec *Spec) error
}

// checks is the fixed validation order. The order is significant: existence
// before type, type before protection, protection before writability,
// writability before mount and emptiness, and those before free space.
var checks = []check{
	{name: "exists", run: (*Validator).checkExists},
	{name: "directory", run: (*Validator).checkDirectory},
	{name: "protected", run: (*Validator).checkProtected},
	{name: "writable", run: (*Validator).checkWritable},
	{name: "mountpoint", forceable: true, run: (*Validator).checkMountPoint},
	{name: "empty", forceable: true, run: (*Validator).checkEmpty},
	{name: "space", run: (*Validator).checkSpace},
}

// Validate resolves raw and runs every check against it, returning the first
// failure as a *guard.Error. If force is set, the mount point and emptiness
// checks are skipped. Nothing can skip the protected path check.
func (v *Validator) Validate(raw string, force bool) (*Spec, error) {
	spec := &Spec{Raw: raw, Forced: force}
	for _, c := range checks {
		if c.forceable && force {
			log.WithField("check", c.name).Warnf("--force: skipping target check")
			continue
		}
		if err := c.run(v, spec); err != nil {
			return spec, err
		}
		log.WithFields(log.Fields{
			"check":  c.name,
			"target": spec.Path,
		}).Debugf("target check passed")
	}
	return spec, nil
}

func (v *Validator) checkExists(spec *Spec) error {
	path, err := protect.Canonicalize(spec.Raw)
	if err != nil {
		return guard.Ensure(false,
			guard.Wrap(guard.TargetNotFound, err, "target directory '%s' does not exist", spec.Raw),
			guard.Guard{
				Protects: "Target directory exists before we try to use it",
				Severity: guard.Critical,
				Cheats: []string{
					"Create the directory automatically",
					"Skip existence check",
					"Accept parent directory instead",
				},
				Consequence: "Confusing 'No such file or directory' errors during extraction",
			})
	}
	spec.Path = path
	return nil
}

func (v *Validator) checkDirectory(spec *Spec) error {
	fi, err := os.Stat(spec.Path)
	if err != nil {
		return guard.Wrap(guard.TargetNotFound, err, "stat target '%s'", spec.Path)
	}
	spec.Info = fi
	return guard.Ensure(fi.IsDir(),
		guard.New(guard.NotADirectory, "'%s' is not a directory", spec.Raw),
		guard.Guard{
			Protects: "Target is a directory, not a file or device",
			Severity: guard.Critical,
			Cheats: []string{
				"Accept any path type",
				"Truncate file and use as directory",
				"Skip the check",
			},
			Consequence: "Catastrophic data loss if target is a file, or extraction to device node",
		})
}

func (v *Validator) checkProtected(spec *Spec) error {
	// The canonical path is the authoritative one, but the lexical form of
	// the input is checked too: on merged-usr systems "/bin" canonicalises to
	// "/usr/bin", which is not itself in the registry.
	lexical, err := filepath.Abs(spec.Raw)
	if err != nil {
		lexical = spec.Path
	}
	protected := v.registry.IsProtected(spec.Path) || v.registry.IsProtected(lexical)
	return guard.Ensure(!protected,
		guard.New(guard.ProtectedPath, "refusing to extract to protected system path '%s' - use a mount point like /mnt", spec.Path),
		guard.Guard{
			Protects: "Critical system directories are never overwritten",
			Severity: guard.Critical,
			Cheats: []string{
				"Remove paths from protected list",
				"Add --force override for protected paths",
				"Skip check when running as root",
				"Check before canonicalization (symlink bypass)",
			},
			Consequence: "Complete system destruction - / or /usr overwritten, unbootable system",
		})
}

func (v *Validator) checkWritable(spec *Spec) error {
	err := v.prober.Writable(spec.Path)
	if err != nil {
		log.WithError(err).WithField("target", spec.Path).Debugf("target write probe failed")
	}
	return guard.Ensure(err == nil,
		guard.Wrap(guard.NotWritable, err, "target directory '%s' is not writable (are you root?)", spec.Path),
		guard.Guard{
			Protects: "We can actually write to the target before starting extraction",
			Severity: guard.Critical,
			Cheats: []string{
				"Skip write test",
				"Assume root can write anywhere",
				"Check parent directory instead",
			},
			Consequence: "Extraction starts, partially completes, then fails - corrupted state",
		})
}

func (v *Validator) checkMountPoint(spec *Spec) error {
	mounted, err := v.prober.Mounted(spec.Path)
	if err != nil {
		// An unknown mount state is treated as "not mounted".
		log.WithError(err).WithField("target", spec.Path).Warnf("could not determine mount state")
		mounted = false
	}
	spec.Mounted = mounted
	return guard.Ensure(mounted,
		guard.New(guard.NotMountPoint, "'%s' is not a mount point - did you forget to mount? (use --force to override)", spec.Path),
		guard.Guard{
			Protects: "User has actually mounted a filesystem for installation",
			Severity: guard.High,
			Cheats: []string{
				"Always allow with --force",
				"Skip check entirely",
				"Accept any directory",
			},
			Consequence: "User installs to wrong filesystem, fills up wrong disk, loses work",
		})
}

func (v *Validator) checkEmpty(spec *Spec) error {
	empty, err := IsEmpty(spec.Path)
	if err != nil {
		// An unreadable directory is treated as "not empty".
		log.WithError(err).WithField("target", spec.Path).Warnf("could not list target directory")
		empty = false
	}
	spec.Empty = empty
	return guard.Ensure(empty,
		guard.New(guard.TargetNotEmpty, "target directory '%s' is not empty (use --force to override)", spec.Path),
		guard.Guard{
			Protects: "User doesn't accidentally overwrite existing data",
			Severity: guard.High,
			Cheats: []string{
				"Always allow with --force",
				"Ignore hidden files",
				"Only check for specific files",
			},
			Consequence: "User's existing data silently overwritten, possibly unrecoverable",
		})
}

func (v *Validator) checkSpace(spec *Spec) error {
	free, err := v.prober.FreeBytes(spec.Path)
	if err != nil {
		return guard.Wrap(guard.InsufficientSpace, err, "cannot determine free space on '%s'", spec.Path)
	}
	spec.FreeBytes = free
	return guard.Ensure(free >= v.minFreeBytes,
		guard.New(guard.InsufficientSpace, "insufficient disk space: need ~%s, have %s",
			units.BytesSize(float64(v.minFreeBytes)), units.BytesSize(float64(free))),
		guard.Guard{
			Protects: "Sufficient disk space exists for the full extraction",
			Severity: guard.High,
			Cheats: []string{
				"Reduce MinFreeBytes",
				"Skip space check",
				"Only warn instead of fail",
			},
			Consequence: "Extraction runs out of space mid-way, leaving corrupted partial system",
		})
}

// IsEmpty returns whether the directory has no entries, not counting
// RecoveryDir.
func IsEmpty(path string) (_ bool, Err error) {
	dir, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open directory: %w", err)
	}
	defer funchelpers.VerifyClose(&Err, dir)

	for {
		names, err := dir.Readdirnames(16)
		for _, name := range names {
			if name != RecoveryDir {
				return false, nil
			}
		}
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("read directory: %w", err)
		}
	}
}
