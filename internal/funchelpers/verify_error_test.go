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

package funchelpers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyError(t *testing.T) {
	t.Run("NoError", func(t *testing.T) {
		testFn := func() (Err error) {
			defer VerifyError(&Err, func() error { return nil })
			return nil
		}
		assert.NoError(t, testFn(), "no error returned")
	})

	t.Run("CleanupError", func(t *testing.T) {
		cleanupErr := errors.New("umount failed")
		testFn := func() (Err error) {
			defer VerifyError(&Err, func() error { return cleanupErr })
			return nil
		}
		assert.ErrorIs(t, testFn(), cleanupErr, "cleanup error should be returned")
	})

	t.Run("MainErrorKept", func(t *testing.T) {
		mainErr := errors.New("cp failed")
		cleanupErr := errors.New("umount failed")
		called := false
		testFn := func() (Err error) {
			defer VerifyError(&Err, func() error {
				called = true
				return cleanupErr
			})
			return mainErr
		}
		err := testFn()
		assert.True(t, called, "cleanup must run on the error path")
		assert.ErrorIs(t, err, mainErr, "main error should be kept")
		assert.NotErrorIs(t, err, cleanupErr, "cleanup error should not replace main error")
	})

	t.Run("NilSlot", func(t *testing.T) {
		assert.Panics(t, func() {
			VerifyError(nil, func() error { return nil })
		})
	})
}
