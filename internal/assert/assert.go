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

// Package assert holds panicking helpers for conditions that can only fail
// because of a programming error, never because of the host or the input.
package assert

import (
	"fmt"
)

// Assert panics with msg if predicate is false.
func Assert(predicate bool, msg any) {
	if !predicate {
		panic(msg)
	}
}

// Assertf panics if predicate is false, formatting the message like
// [fmt.Sprintf].
func Assertf(predicate bool, fmtMsg string, args ...any) {
	if !predicate {
		panic(fmt.Sprintf(fmtMsg, args...))
	}
}
