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

package main

import (
	"fmt"
	"io"
	"strings"
)

// printNextSteps tells the operator what is left to do, since recstrap only
// extracts files.
func printNextSteps(w io.Writer, target string) {
	steps := []struct {
		comment  string
		commands []string
	}{
		{"Generate fstab", []string{fmt.Sprintf("recfstab %s >> %s/etc/fstab", target, strings.TrimSuffix(target, "/"))}},
		{"Chroot into new system", []string{"recchroot " + target}},
		{"Set root password (account is locked by default)", []string{"passwd root"}},
		{"Install bootloader", []string{"bootctl install"}},
		{"Exit chroot and reboot", []string{"exit", "reboot"}},
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Done! Now complete the installation manually:")
	for _, step := range steps {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  # %s\n", step.comment)
		for _, cmd := range step.commands {
			fmt.Fprintf(w, "  %s\n", cmd)
		}
	}
}
