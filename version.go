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

// version is the release of recstrap, set at build time with
//
//	-ldflags "-X github.com/levitateos/recstrap.version=..."
var version = "0.1.0+dev"

// gitCommit is the commit recstrap was built from, set at build time.
var gitCommit = ""

// FullVersion returns the version string of this build, including the commit
// if it is known.
func FullVersion() string {
	v := version
	if gitCommit != "" {
		v += "~git" + gitCommit
	}
	return v
}
