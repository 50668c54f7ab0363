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

// Package extract runs the format-specific procedure that copies a validated
// rootfs image into a validated target directory.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/moby/sys/mountinfo"

	"github.com/levitateos/recstrap/internal/funchelpers"
	"github.com/levitateos/recstrap/internal/system"
	"github.com/levitateos/recstrap/pkg/guard"
	"github.com/levitateos/recstrap/pkg/rootfs"
)

// DefaultMountDir is where EROFS images are temporarily mounted. The name is
// fixed so that a mount left behind by an interrupted run can be found and
// cleaned up by the next one.
var DefaultMountDir = filepath.Join(os.TempDir(), "recstrap-erofs-mount")

// Extractor extracts images. The zero value is not usable, use New.
type Extractor struct {
	// Runner executes the external tools.
	Runner Runner
	// KernelSupport reports whether the running kernel can mount the given
	// filesystem type.
	KernelSupport func(fstype string) bool
	// Mounted reports whether path is a mount point.
	Mounted func(path string) (bool, error)
	// MountDir is the temporary mount point for block images.
	MountDir string
}

// New returns an Extractor that runs the host's tools, writing their output to
// stderr.
func New() *Extractor {
	return &Extractor{
		Runner:        ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr},
		KernelSupport: system.FilesystemSupported,
		Mounted:       mountinfo.Mounted,
		MountDir:      DefaultMountDir,
	}
}

// RequiredTools returns the external tools needed to extract format.
func RequiredTools(format rootfs.Format) []string {
	switch format {
	case rootfs.FormatSquashfs:
		return []string{"unsquashfs"}
	case rootfs.FormatErofs:
		return []string{"mount", "umount", "cp"}
	case rootfs.FormatUnknown:
	}
	return nil
}

// Preflight checks that everything needed to extract format is present on the
// host, without touching the target. It is run before the check-only exit so
// that a successful check means the extraction can actually start.
func (e *Extractor) Preflight(ctx context.Context, format rootfs.Format) error {
	if format == rootfs.FormatUnknown {
		return guard.New(guard.InvalidRootfsFormat, "cannot extract an image of unknown format")
	}

	for _, tool := range RequiredTools(format) {
		path, err := e.Runner.LookPath(tool)
		if err := guard.Ensure(err == nil,
			guard.Wrap(guard.ToolNotInstalled, err, "%s not found (required to extract %s images)", tool, format),
			guard.Guard{
				Protects: "Extraction tools are present before anything is written",
				Severity: guard.Critical,
				Cheats: []string{
					"Assume the tool is installed",
					"Only check when extraction starts",
					"Fall back to a different tool silently",
				},
				Consequence: "Extraction fails after the target was already validated, with a cryptic 'command not found'",
			}); err != nil {
			return err
		}
		log.WithFields(log.Fields{"tool": tool, "path": path}).Debugf("found extraction tool")
	}

	if format == rootfs.FormatErofs {
		return e.ensureKernelSupport(ctx, format.String())
	}
	return nil
}

// ensureKernelSupport checks that fstype is registered in the kernel, trying
// to load its module once if it is not.
func (e *Extractor) ensureKernelSupport(ctx context.Context, fstype string) error {
	supported := e.KernelSupport(fstype)
	if !supported {
		log.WithField("fstype", fstype).Info("kernel support missing, trying to load module")
		if err := e.Runner.Run(ctx, "modprobe", fstype); err != nil {
			log.WithError(err).Debugf("modprobe %s failed", fstype)
		}
		supported = e.KernelSupport(fstype)
	}
	return guard.Ensure(supported,
		guard.New(guard.KernelUnsupported, "%s filesystem not supported by kernel (try: modprobe %s)", fstype, fstype),
		guard.Guard{
			Protects: "Kernel can mount EROFS filesystems",
			Severity: guard.Critical,
			Cheats: []string{
				"Skip kernel check",
				"Assume module is loaded",
				"Silently fall back to unsupported formats",
			},
			Consequence: "Mount fails with cryptic 'unknown filesystem type' error",
		})
}

// Extract extracts image (of the given format) into target. Both paths must
// already be validated and canonical. A partially extracted target is left as
// is on failure.
func (e *Extractor) Extract(ctx context.Context, format rootfs.Format, image, target string) error {
	log.WithFields(log.Fields{
		"rootfs": image,
		"format": format,
		"target": target,
	}).Info("extracting rootfs")

	switch format {
	case rootfs.FormatSquashfs:
		return e.extractSquashfs(ctx, image, target)
	case rootfs.FormatErofs:
		return e.withMount(ctx, image, func(mnt string) error {
			return e.copyTree(ctx, mnt, target)
		})
	case rootfs.FormatUnknown:
	}
	return guard.New(guard.InvalidRootfsFormat, "cannot extract %s: unknown format %s", image, format)
}

func (e *Extractor) extractSquashfs(ctx context.Context, image, target string) error {
	// -f overwrites existing files, which is safe since the target was
	// either checked to be empty or the operator forced it.
	err := e.Runner.Run(ctx, "unsquashfs", "-f", "-d", target, image)
	return guard.Ensure(err == nil,
		guard.Wrap(guard.ExtractionFailed, err, "unsquashfs failed"),
		guard.Guard{
			Protects: "Extraction actually completed successfully",
			Severity: guard.Critical,
			Cheats: []string{
				"Ignore exit code",
				"Only check if process ran",
				"Accept partial extraction",
				"Retry without reporting failure",
			},
			Consequence: "Partially extracted system, missing files, unbootable result",
		})
}

func (e *Extractor) copyTree(ctx context.Context, src, target string) error {
	log.Info("copying files from image to target (this may take a while) ...")
	// -a preserves ownership, modes, links and xattrs. -T copies the
	// contents of src rather than src itself.
	err := e.Runner.Run(ctx, "cp", "-aT", src, target)
	return guard.Ensure(err == nil,
		guard.Wrap(guard.ExtractionFailed, err, "cp failed"),
		guard.Guard{
			Protects: "Every file of the image was copied into the target",
			Severity: guard.Critical,
			Cheats: []string{
				"Ignore exit code",
				"Copy without preserving attributes",
				"Accept partial copy",
			},
			Consequence: "Partially copied system with wrong ownership or missing files, unbootable result",
		})
}

// withMount mounts image read-only at the temporary mount point for the
// duration of fn. The image is unmounted and the mount point removed on every
// return path. A cleanup failure is only returned if fn itself succeeded.
func (e *Extractor) withMount(ctx context.Context, image string, fn func(mnt string) error) (Err error) {
	mnt := e.MountDir
	if err := e.cleanStaleMount(ctx); err != nil {
		return err
	}
	if err := os.Mkdir(mnt, 0o700); err != nil {
		return guard.Wrap(guard.ExtractionFailed, err, "failed to create mount point")
	}

	mounted := false
	defer funchelpers.VerifyError(&Err, func() error {
		// Cleanup has to happen even if the run was cancelled.
		ctx := context.WithoutCancel(ctx)
		if mounted {
			if err := e.Runner.Run(ctx, "umount", mnt); err != nil {
				return guard.Wrap(guard.ExtractionFailed, err, "failed to unmount %s", mnt)
			}
		}
		if err := os.Remove(mnt); err != nil {
			return guard.Wrap(guard.ExtractionFailed, err, "failed to remove mount point")
		}
		return nil
	})

	log.WithFields(log.Fields{"rootfs": image, "mountpoint": mnt}).Info("mounting image read-only")
	if err := e.Runner.Run(ctx, "mount", "-t", "erofs", "-o", "ro,loop", image, mnt); err != nil {
		return guard.Wrap(guard.ExtractionFailed, err, "mount failed (is the kernel EROFS module loaded?)")
	}
	mounted = true

	return fn(mnt)
}

// cleanStaleMount removes the mount point left behind by an interrupted
// run. It refuses to remove anything that is still mounted.
func (e *Extractor) cleanStaleMount(ctx context.Context) error {
	mnt := e.MountDir
	if _, err := os.Lstat(mnt); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	log.WithField("mountpoint", mnt).Warn("cleaning up mount point left over from a previous run")
	if mounted, err := e.Mounted(mnt); err == nil && mounted {
		if err := e.Runner.Run(ctx, "umount", mnt); err != nil {
			log.WithError(err).Debugf("unmount stale mount point")
		}
	}
	if mounted, err := e.Mounted(mnt); err != nil || mounted {
		if err == nil {
			err = fmt.Errorf("%s is still mounted", mnt)
		}
		return guard.Wrap(guard.ExtractionFailed, err, "cannot clean up stale mount point")
	}
	if err := os.RemoveAll(mnt); err != nil {
		return guard.Wrap(guard.ExtractionFailed, err, "cannot clean up stale mount point")
	}
	return nil
}
