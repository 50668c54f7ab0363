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

// Package guard implements recstrap's error codes and the "cheat-guarded"
// check convention. Every safety check that can halt a run is paired with a
// description of what it protects, the ways it could be weakened so that it
// wrongly passes, and what an operator would experience if it were. The
// documentation lives next to the check so that weakening a check is visible
// in code review, and it is surfaced to the operator when the check fails.
package guard

import (
	"errors"
	"fmt"
)

// Code is a stable failure code. The numeric value is the process exit
// status, and must never be renumbered.
type Code uint8

const (
	// OK is the code of a successful run. It is never attached to an Error.
	OK Code = iota
	TargetNotFound
	NotADirectory
	NotWritable
	RootfsNotFound
	ExtractionFailed
	VerificationFailed
	ToolNotInstalled
	NotRoot
	TargetNotEmpty
	ProtectedPath
	NotMountPoint
	InsufficientSpace
	RootfsNotFile
	RootfsNotReadable
	RootfsInsideTarget
	InvalidRootfsFormat
	KernelUnsupported
)

var codeDescriptions = map[Code]string{
	OK:                  "success",
	TargetNotFound:      "target directory does not exist",
	NotADirectory:       "target is not a directory",
	NotWritable:         "target directory not writable",
	RootfsNotFound:      "rootfs image not found",
	ExtractionFailed:    "rootfs extraction command failed",
	VerificationFailed:  "extracted system verification failed",
	ToolNotInstalled:    "required extraction tool not installed",
	NotRoot:             "must run as root",
	TargetNotEmpty:      "target directory not empty",
	ProtectedPath:       "target is a protected system path",
	NotMountPoint:       "target is not a mount point",
	InsufficientSpace:   "insufficient disk space",
	RootfsNotFile:       "rootfs is not a regular file",
	RootfsNotReadable:   "rootfs is not readable",
	RootfsInsideTarget:  "rootfs is inside target directory",
	InvalidRootfsFormat: "rootfs format is invalid",
	KernelUnsupported:   "kernel support for the rootfs format is missing",
}

// String returns the code in its "E0xx" form.
func (c Code) String() string {
	return fmt.Sprintf("E%03d", uint8(c))
}

// ExitStatus is the process exit status for the code.
func (c Code) ExitStatus() int {
	return int(c)
}

// Description returns a short human-readable summary of the failure kind.
func (c Code) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// Codes returns every failure code in numeric order.
func Codes() []Code {
	codes := make([]Code, 0, len(codeDescriptions)-1)
	for c := TargetNotFound; c <= KernelUnsupported; c++ {
		codes = append(codes, c)
	}
	return codes
}

// Severity ranks how much damage a weakened check could cause.
type Severity string

const (
	Critical Severity = "CRITICAL"
	High     Severity = "HIGH"
)

// Guard documents a single safety check.
type Guard struct {
	// Protects is the operator scenario the check exists for.
	Protects string
	// Severity of the damage if the check were weakened.
	Severity Severity
	// Cheats lists the ways the check could be weakened to falsely pass.
	Cheats []string
	// Consequence is what the operator experiences if it were.
	Consequence string
}

// Error is the failure of a single check. It is the only error type that the
// pipeline returns to its caller, so callers can branch on Code without
// parsing text.
type Error struct {
	Code    Code
	Message string
	// Guard is the documentation of the check that failed. It is nil for
	// failures that are not tied to a documented check (such as an internal
	// I/O error while probing).
	Guard *Guard
	// Err is the underlying cause, if any.
	Err error
}

// New returns an *Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error with the given code whose cause is err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code, so that
// errors.Is(err, &guard.Error{Code: guard.ProtectedPath}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Ensure returns nil if cond holds. Otherwise the guard documentation is
// attached to err and err is returned.
func Ensure(cond bool, err *Error, g Guard) error {
	if cond {
		return nil
	}
	err.Guard = &g
	return err
}

// CodeOf extracts the failure code from err. A nil error is OK. Errors that
// did not come from a check are reported as ExtractionFailed, because the
// only unclassified failures the pipeline can produce happen while it is
// mutating the target.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return ExtractionFailed
}
