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

// Package recstrap installs an operating system root filesystem image onto a
// prepared target directory. Every step before extraction is a safety check,
// and the first failing check halts the run with a distinct guard.Code.
package recstrap

import (
	"context"
	"errors"

	"github.com/apex/log"
	"github.com/opencontainers/go-digest"

	"github.com/levitateos/recstrap/internal/assert"
	"github.com/levitateos/recstrap/internal/system"
	"github.com/levitateos/recstrap/pkg/extract"
	"github.com/levitateos/recstrap/pkg/guard"
	"github.com/levitateos/recstrap/pkg/hardening"
	"github.com/levitateos/recstrap/pkg/rootfs"
	"github.com/levitateos/recstrap/pkg/target"
	"github.com/levitateos/recstrap/pkg/verify"
)

// Extractor performs the format-specific extraction. It is implemented by
// *extract.Extractor.
type Extractor interface {
	// Preflight checks the host can extract format, without side effects
	// on the target.
	Preflight(ctx context.Context, format rootfs.Format) error
	// Extract extracts image into target.
	Extract(ctx context.Context, format rootfs.Format, image, target string) error
}

var _ Extractor = (*extract.Extractor)(nil)

// Options are the per-run parameters.
type Options struct {
	// Target is the directory to extract into, as given by the user.
	Target string
	// Rootfs is the image to extract. If empty, Config.SearchPaths are
	// searched.
	Rootfs string
	// Force skips the mount point and emptiness checks of the target.
	Force bool
	// Check stops the run once every check has passed, without touching
	// the target.
	Check bool
	// Digest, if set, is the digest the image must have.
	Digest digest.Digest
	// Manifest, if set, is where an mtree manifest of the extracted tree
	// is written.
	Manifest string
}

// Outcome is the result of a run. On failure it holds everything that was
// resolved before the failing check.
type Outcome struct {
	Phase Phase `json:"phase"`
	// LastPhase is the last phase reached before the run ended. It is the
	// same as Phase unless the run failed.
	LastPhase Phase        `json:"last_phase"`
	CheckOnly bool         `json:"check_only"`
	Target    *target.Spec `json:"target,omitempty"`
	Rootfs    *rootfs.Spec `json:"rootfs,omitempty"`
	Err       error        `json:"-"`
}

// Code is the failure code of the run, or guard.OK.
func (o *Outcome) Code() guard.Code {
	return guard.CodeOf(o.Err)
}

// advance moves the outcome to the next phase. Going backwards is a
// programming error.
func (o *Outcome) advance(next Phase) {
	assert.Assertf(o.Phase.canAdvance(next), "invalid phase transition %s -> %s", o.Phase, next)
	log.WithFields(log.Fields{"from": o.Phase, "to": next}).Debugf("phase transition")
	o.Phase = next
	if next != PhaseFailed {
		o.LastPhase = next
	}
}

// Engine runs the pipeline. Use NewEngine for an Engine that acts on the
// host; tests replace the host-facing fields.
type Engine struct {
	Config *Config
	// Prober answers target questions that need the host.
	Prober target.Prober
	// Extractor runs the extraction tools.
	Extractor Extractor
	// IsPrivileged reports whether the process may extract at all.
	IsPrivileged func() bool
}

// NewEngine returns an Engine acting on the host with the given config. If
// config is nil, DefaultConfig is used.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		Config:       config,
		Prober:       target.HostProber{},
		Extractor:    extract.New(),
		IsPrivileged: system.IsRoot,
	}
}

// Run executes the pipeline. Checks run in a fixed order and the first
// failure halts the run. The returned error is always a *guard.Error, and is
// also stored in the Outcome. In check-only mode the run ends at
// PhaseCheckOnlyExit and never writes to the target.
func (e *Engine) Run(ctx context.Context, opts Options) (*Outcome, error) {
	out := &Outcome{Phase: PhaseStart, CheckOnly: opts.Check}
	if err := e.run(ctx, opts, out); err != nil {
		var gerr *guard.Error
		if !errors.As(err, &gerr) {
			err = guard.Wrap(guard.CodeOf(err), err, "%s failed", out.Phase)
		}
		log.WithFields(log.Fields{
			"phase": out.Phase,
			"code":  guard.CodeOf(err),
		}).Debugf("run failed")
		out.Err = err
		out.advance(PhaseFailed)
		return out, err
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, opts Options, out *Outcome) error {
	// Environment preconditions come before anything looks at the paths.
	if err := e.checkPrivilege(); err != nil {
		return err
	}
	out.advance(PhaseEnvironmentChecked)

	validator := target.NewValidator(e.Config.Registry, e.Prober, e.Config.MinFreeBytes)
	tgt, err := validator.Validate(opts.Target, opts.Force)
	out.Target = tgt
	if err != nil {
		return err
	}
	out.advance(PhaseTargetValidated)

	image, err := rootfs.Locate(opts.Rootfs, e.Config.SearchPaths)
	out.Rootfs = image
	if err != nil {
		return err
	}
	out.advance(PhaseRootfsLocated)

	if err := rootfs.CheckContainment(image.Path, tgt.Path); err != nil {
		return err
	}
	format, err := rootfs.Detect(image.Path)
	if err != nil {
		return err
	}
	image.Format = format
	if opts.Digest != "" {
		if err := checkDigest(image, opts.Digest); err != nil {
			return err
		}
	}
	if err := e.Extractor.Preflight(ctx, format); err != nil {
		return err
	}
	out.advance(PhaseFormatValidated)

	if opts.Check {
		log.WithFields(log.Fields{
			"target": tgt.Path,
			"rootfs": image.Path,
			"format": format,
		}).Info("pre-flight check passed")
		out.advance(PhaseCheckOnlyExit)
		return nil
	}

	out.advance(PhaseExtracting)
	unlock, err := lockTarget(tgt.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.WithError(err).Warnf("failed to unlock target %s", tgt.Path)
		}
	}()
	if err := e.Extractor.Extract(ctx, format, image.Path, tgt.Path); err != nil {
		return err
	}
	out.advance(PhaseExtracted)

	if err := verify.Verify(tgt.Path, e.Config.EssentialDirs); err != nil {
		return err
	}
	out.advance(PhaseVerified)

	if opts.Manifest != "" {
		if err := verify.WriteManifest(tgt.Path, opts.Manifest); err != nil {
			return guard.Wrap(guard.VerificationFailed, err, "cannot record manifest of extracted system")
		}
	}
	out.advance(PhaseDone)
	return nil
}

func (e *Engine) checkPrivilege() error {
	privileged := e.IsPrivileged()
	if privileged && system.InUserNamespace() {
		log.Warn("running as root inside a user namespace: loop-mounting images may not be permitted")
	}
	return guard.Ensure(privileged,
		guard.New(guard.NotRoot, "must run as root"),
		guard.Guard{
			Protects: "Installation runs with sufficient privileges",
			Severity: guard.Critical,
			Cheats: []string{
				"Skip root check entirely",
				"Use capabilities instead of full root",
				"Assume sudo will handle it",
			},
			Consequence: "Extraction fails with permission denied on first file",
		})
}

// lockTarget keeps two installs from extracting into the same target at
// once. The lock is released when the run ends.
func lockTarget(path string) (func() error, error) {
	unlock, err := system.LockDir(path)
	return unlock, guard.Ensure(err == nil,
		guard.Wrap(guard.ExtractionFailed, err, "cannot lock target '%s'", path),
		guard.Guard{
			Protects: "Only one installation writes to a target at a time",
			Severity: guard.High,
			Cheats: []string{
				"Assume the operator never runs two installs",
				"Take the lock after extraction has started",
			},
			Consequence: "Two images interleave in one target and neither install is complete",
		})
}

func checkDigest(image *rootfs.Spec, expected digest.Digest) error {
	err := hardening.VerifyFile(image.Path, expected, image.Size)
	return guard.Ensure(err == nil,
		guard.Wrap(guard.InvalidRootfsFormat, err, "rootfs '%s' does not match expected digest", image.Path),
		guard.Guard{
			Protects: "The image being installed is exactly the one the operator asked for",
			Severity: guard.Critical,
			Cheats: []string{
				"Only compare the image size",
				"Hash only the first blocks of the image",
				"Warn on mismatch and continue",
			},
			Consequence: "A corrupted or substituted image is installed and looks like a successful install",
		})
}
