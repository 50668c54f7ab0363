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

package recstrap

import (
	"fmt"
)

// Phase is a state of a run. A run only ever moves forward through the
// phases, and any failure moves it to PhaseFailed.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseEnvironmentChecked
	PhaseTargetValidated
	PhaseRootfsLocated
	PhaseFormatValidated
	// PhaseCheckOnlyExit is the terminal phase of a --check run.
	PhaseCheckOnlyExit
	PhaseExtracting
	PhaseExtracted
	PhaseVerified
	PhaseDone
	// PhaseFailed is reachable from every non-terminal phase.
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseStart:              "start",
	PhaseEnvironmentChecked: "environment-checked",
	PhaseTargetValidated:    "target-validated",
	PhaseRootfsLocated:      "rootfs-located",
	PhaseFormatValidated:    "format-validated",
	PhaseCheckOnlyExit:      "check-only-exit",
	PhaseExtracting:         "extracting",
	PhaseExtracted:          "extracted",
	PhaseVerified:           "verified",
	PhaseDone:               "done",
	PhaseFailed:             "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal returns whether no further transition can happen from p.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCheckOnlyExit, PhaseDone, PhaseFailed:
		return true
	}
	return false
}

// canAdvance returns whether a run in phase p may move to next.
func (p Phase) canAdvance(next Phase) bool {
	switch {
	case p.Terminal():
		return false
	case next == PhaseFailed:
		return true
	case p == PhaseFormatValidated:
		return next == PhaseCheckOnlyExit || next == PhaseExtracting
	}
	return next == p+1
}
