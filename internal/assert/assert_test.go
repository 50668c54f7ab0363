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

package assert_test

import (
	"testing"

	testassert "github.com/stretchr/testify/assert"

	"github.com/levitateos/recstrap/internal/assert"
)

func TestAssert(t *testing.T) {
	testassert.NotPanics(t, func() { assert.Assert(true, "unused") })
	testassert.PanicsWithValue(t, "phase went backwards", func() {
		assert.Assert(false, "phase went backwards")
	})
}

func TestAssertf(t *testing.T) {
	testassert.NotPanics(t, func() { assert.Assertf(true, "unused %d", 1) })
	testassert.PanicsWithValue(t, "phase 3 after 5", func() {
		assert.Assertf(false, "phase %d after %d", 3, 5)
	})
}
