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
	"io"

	"github.com/apex/log"

	"github.com/levitateos/recstrap/internal/assert"
)

// VerifyError is a helper for deferred cleanup functions that return errors
// (most notably Close and unmounting). It must be used with a named return
// value:
//
//	func foo() (Err error) {
//		f, err := os.Open("foobar")
//		if err != nil {
//			return err
//		}
//		defer funchelpers.VerifyError(&Err, f.Close)
//		return nil
//	}
//
// The cleanup error only replaces *Err if no error was returned already.
// Otherwise it is logged, so that a failed cleanup is never lost behind the
// primary failure.
func VerifyError(Err *error, cleanupFn func() error) {
	assert.Assert(Err != nil, "VerifyError must be called with non-nil Err slot")
	err := cleanupFn()
	if err == nil {
		return
	}
	if *Err == nil {
		*Err = err
		return
	}
	log.WithError(err).Warnf("cleanup failed after earlier error: %v", *Err)
}

// VerifyClose is shorthand for `VerifyError(Err, closer.Close)`.
func VerifyClose(Err *error, closer io.Closer) {
	VerifyError(Err, closer.Close)
}
