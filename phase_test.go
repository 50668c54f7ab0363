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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "start", PhaseStart.String())
	assert.Equal(t, "format-validated", PhaseFormatValidated.String())
	assert.Equal(t, "check-only-exit", PhaseCheckOnlyExit.String())
	assert.Equal(t, "failed", PhaseFailed.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())

	for p := PhaseStart; p <= PhaseFailed; p++ {
		assert.NotContains(t, p.String(), "Phase(", "every phase should have a name")
	}
}

func TestPhaseTerminal(t *testing.T) {
	for p := PhaseStart; p <= PhaseFailed; p++ {
		expected := p == PhaseCheckOnlyExit || p == PhaseDone || p == PhaseFailed
		assert.Equalf(t, expected, p.Terminal(), "%s", p)
	}
}

func TestPhaseTransitions(t *testing.T) {
	happy := []Phase{
		PhaseStart,
		PhaseEnvironmentChecked,
		PhaseTargetValidated,
		PhaseRootfsLocated,
		PhaseFormatValidated,
		PhaseExtracting,
		PhaseExtracted,
		PhaseVerified,
		PhaseDone,
	}
	for idx := 0; idx+1 < len(happy); idx++ {
		assert.Truef(t, happy[idx].canAdvance(happy[idx+1]), "%s -> %s", happy[idx], happy[idx+1])
	}
	assert.True(t, PhaseFormatValidated.canAdvance(PhaseCheckOnlyExit))

	for p := PhaseStart; p <= PhaseFailed; p++ {
		assert.Equalf(t, !p.Terminal(), p.canAdvance(PhaseFailed), "%s -> failed", p)
	}

	for _, bad := range [][2]Phase{
		{PhaseStart, PhaseTargetValidated},
		{PhaseTargetValidated, PhaseEnvironmentChecked},
		{PhaseRootfsLocated, PhaseCheckOnlyExit},
		{PhaseRootfsLocated, PhaseExtracting},
		{PhaseCheckOnlyExit, PhaseExtracting},
		{PhaseExtracted, PhaseDone},
		{PhaseDone, PhaseStart},
		{PhaseFailed, PhaseDone},
	} {
		assert.Falsef(t, bad[0].canAdvance(bad[1]), "%s -> %s", bad[0], bad[1])
	}
}

func TestOutcomeAdvancePanics(t *testing.T) {
	out := &Outcome{Phase: PhaseTargetValidated}
	assert.Panics(t, func() { out.advance(PhaseStart) })

	out = &Outcome{Phase: PhaseStart}
	out.advance(PhaseEnvironmentChecked)
	out.advance(PhaseFailed)
	assert.Equal(t, PhaseFailed, out.Phase)
	assert.Equal(t, PhaseEnvironmentChecked, out.LastPhase)
}
