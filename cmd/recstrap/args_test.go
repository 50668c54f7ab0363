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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermuteArgs(t *testing.T) {
	for _, test := range []struct {
		args     string
		expected string
	}{
		{"recstrap", "recstrap"},
		{"recstrap /mnt", "recstrap -- /mnt"},
		{"recstrap --force /mnt", "recstrap --force -- /mnt"},
		{"recstrap /mnt --force", "recstrap --force -- /mnt"},
		{"recstrap /mnt --rootfs /img.erofs -q", "recstrap --rootfs /img.erofs -q -- /mnt"},
		{"recstrap /mnt --rootfs=/img.erofs", "recstrap --rootfs=/img.erofs -- /mnt"},
		{"recstrap --log debug /mnt -c", "recstrap --log debug -c -- /mnt"},
		{"recstrap /mnt -- --weird", "recstrap -- /mnt --weird"},
		{"recstrap /mnt --rootfs=", "recstrap --rootfs= -- /mnt"},
	} {
		t.Run(test.args, func(t *testing.T) {
			got, err := permuteArgs(strings.Fields(test.args), valueFlags)
			require.NoError(t, err)
			assert.Equal(t, strings.Fields(test.expected), got)
		})
	}

	got, err := permuteArgs(nil, valueFlags)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPermuteArgsMissingValue(t *testing.T) {
	for _, args := range []string{
		"recstrap /mnt --rootfs",
		"recstrap --log",
		"recstrap /mnt -c --digest",
		"recstrap --manifest",
	} {
		t.Run(args, func(t *testing.T) {
			_, err := permuteArgs(strings.Fields(args), valueFlags)
			assert.ErrorIs(t, err, errUsage)
		})
	}
}
