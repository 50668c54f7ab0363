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
	"slices"
	"strings"
)

// permuteArgs moves every flag in front of the positional arguments, so that
// "recstrap /mnt --force" works the same as "recstrap --force /mnt". The cli
// package stops parsing flags at the first positional argument otherwise.
// valueFlags are the flags that take a separate value argument. Everything
// after a "--" terminator stays positional. A value flag without a value is
// a usage error, since moving it would make it swallow the terminator.
func permuteArgs(args, valueFlags []string) ([]string, error) {
	if len(args) == 0 {
		return args, nil
	}
	var (
		flags      []string
		positional []string
		rest       = args[1:]
	)
	for idx := 0; idx < len(rest); idx++ {
		arg := rest[idx]
		switch {
		case arg == "--":
			positional = append(positional, rest[idx+1:]...)
			idx = len(rest)
		case arg == "-" || !strings.HasPrefix(arg, "-"):
			positional = append(positional, arg)
		default:
			flags = append(flags, arg)
			name := strings.TrimLeft(arg, "-")
			if !strings.Contains(name, "=") && slices.Contains(valueFlags, name) {
				if idx+1 == len(rest) {
					return nil, fmt.Errorf("%w: flag needs an argument: %s", errUsage, arg)
				}
				idx++
				flags = append(flags, rest[idx])
			}
		}
	}

	permuted := append([]string{args[0]}, flags...)
	if len(positional) > 0 {
		permuted = append(permuted, "--")
		permuted = append(permuted, positional...)
	}
	return permuted, nil
}
