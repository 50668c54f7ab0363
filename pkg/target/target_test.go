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

package target

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levitateos/recstrap/pkg/guard"
	"github.com/levitateos/recstrap/pkg/protect"
)

// fakeProber is a Prober with canned answers.
type fakeProber struct {
	mounted     bool
	mountedErr  error
	writableErr error
	free        uint64
	freeErr     error
}

func (p fakeProber) Mounted(string) (bool, error)     { return p.mounted, p.mountedErr }
func (p fakeProber) Writable(string) error            { return p.writableErr }
func (p fakeProber) FreeBytes(string) (uint64, error) { return p.free, p.freeErr }

// goodProber reports a mounted, writable target with plenty of space.
var goodProber = fakeProber{mounted: true, free: 10 * MinFreeBytes}

func testValidator(t *testing.T, prober Prober) *Validator {
	t.Helper()
	return NewValidator(protect.Default(), prober, MinFreeBytes)
}

func requireCode(t *testing.T, err error, code guard.Code) {
	t.Helper()
	require.Errorf(t, err, "expected %s", code)
	var gerr *guard.Error
	require.ErrorAsf(t, err, &gerr, "expected *guard.Error, got %T: %v", err, err)
	assert.Equalf(t, code, gerr.Code, "unexpected failure: %v", err)
}

func TestValidateSuccess(t *testing.T) {
	dir := t.TempDir()

	spec, err := testValidator(t, goodProber).Validate(dir, false)
	require.NoError(t, err)

	realDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, spec.Raw)
	assert.Equal(t, realDir, spec.Path)
	require.NotNil(t, spec.Info)
	assert.True(t, spec.Info.IsDir())
	assert.True(t, spec.Mounted)
	assert.True(t, spec.Empty)
	assert.Equal(t, 10*MinFreeBytes, spec.FreeBytes)
}

func TestValidateMissing(t *testing.T) {
	_, err := testValidator(t, goodProber).Validate(filepath.Join(t.TempDir(), "nonexistent", "path"), false)
	requireCode(t, err, guard.TargetNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateDanglingSymlink(t *testing.T) {
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink("does-not-exist", link))

	_, err := testValidator(t, goodProber).Validate(link, false)
	requireCode(t, err, guard.TargetNotFound)
}

func TestValidateNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0o644))

	_, err := testValidator(t, goodProber).Validate(file, true)
	requireCode(t, err, guard.NotADirectory)
}

func TestValidateProtected(t *testing.T) {
	for _, path := range protect.DefaultPaths {
		if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
			// Not every host has every protected directory (/lib64, /srv).
			continue
		}
		for _, force := range []bool{false, true} {
			name := path
			if force {
				name += "-force"
			}
			t.Run(name, func(t *testing.T) {
				_, err := testValidator(t, goodProber).Validate(path, force)
				requireCode(t, err, guard.ProtectedPath)
			})
		}
	}
}

func TestValidateProtectedViaSymlink(t *testing.T) {
	protected := t.TempDir()
	realProtected, err := filepath.EvalSymlinks(protected)
	require.NoError(t, err)
	reg, err := protect.New(realProtected)
	require.NoError(t, err)

	link := filepath.Join(t.TempDir(), "innocent-looking")
	require.NoError(t, os.Symlink(realProtected, link))

	for _, force := range []bool{false, true} {
		_, err := NewValidator(reg, goodProber, MinFreeBytes).Validate(link, force)
		requireCode(t, err, guard.ProtectedPath)
	}
}

func TestValidateProtectedLexical(t *testing.T) {
	// A protected path that is itself a symlink (like /bin on merged-usr
	// systems) must not be laundered by canonicalisation.
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "real"), 0o755))
	alias := filepath.Join(dir, "alias")
	require.NoError(t, os.Symlink("real", alias))

	reg, err := protect.New(alias)
	require.NoError(t, err)

	_, err = NewValidator(reg, goodProber, MinFreeBytes).Validate(alias, true)
	requireCode(t, err, guard.ProtectedPath)

	// The resolved path is not protected itself, and is accepted.
	resolved, err := filepath.EvalSymlinks(alias)
	require.NoError(t, err)
	spec, err := NewValidator(reg, goodProber, MinFreeBytes).Validate(resolved, false)
	require.NoError(t, err)
	assert.Equal(t, resolved, spec.Path)
}

func TestValidateNotWritable(t *testing.T) {
	prober := goodProber
	prober.writableErr = os.ErrPermission
	// Also not mounted: writability is checked first.
	prober.mounted = false

	_, err := testValidator(t, prober).Validate(t.TempDir(), false)
	requireCode(t, err, guard.NotWritable)
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestValidateMountPoint(t *testing.T) {
	for _, test := range []struct {
		name   string
		prober fakeProber
	}{
		{"NotMounted", fakeProber{mounted: false, free: MinFreeBytes}},
		{"ProbeError", fakeProber{mountedErr: errors.New("no mountinfo"), free: MinFreeBytes}},
	} {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()

			_, err := testValidator(t, test.prober).Validate(dir, false)
			requireCode(t, err, guard.NotMountPoint)

			spec, err := testValidator(t, test.prober).Validate(dir, true)
			require.NoError(t, err, "--force should skip the mount point check")
			assert.False(t, spec.Mounted, "skipped check should leave Mounted unset")
		})
	}
}

func TestValidateEmpty(t *testing.T) {
	t.Run("RecoveryDirOnly", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, RecoveryDir), 0o700))

		spec, err := testValidator(t, goodProber).Validate(dir, false)
		require.NoError(t, err, "lost+found alone should count as empty")
		assert.True(t, spec.Empty)
	})

	for _, name := range []string{"file", ".hidden", "lost+found.old", "etc"} {
		t.Run("Entry-"+name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.Mkdir(filepath.Join(dir, RecoveryDir), 0o700))
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))

			_, err := testValidator(t, goodProber).Validate(dir, false)
			requireCode(t, err, guard.TargetNotEmpty)

			_, err = testValidator(t, goodProber).Validate(dir, true)
			assert.NoError(t, err, "--force should skip the emptiness check")
		})
	}
}

func TestIsEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty, "fresh directory should be empty")

	for i := 0; i < 40; i++ {
		require.NoError(t, os.Mkdir(filepath.Join(dir, fmt.Sprintf("entry%02d", i)), 0o755))
	}
	empty, err = IsEmpty(dir)
	require.NoError(t, err)
	assert.False(t, empty, "directory with many entries should not be empty")

	_, err = IsEmpty(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateSpace(t *testing.T) {
	t.Run("Insufficient", func(t *testing.T) {
		prober := goodProber
		prober.free = MinFreeBytes - 1

		for _, force := range []bool{false, true} {
			_, err := testValidator(t, prober).Validate(t.TempDir(), force)
			requireCode(t, err, guard.InsufficientSpace)
		}
	})

	t.Run("Exact", func(t *testing.T) {
		prober := goodProber
		prober.free = MinFreeBytes

		_, err := testValidator(t, prober).Validate(t.TempDir(), false)
		assert.NoError(t, err)
	})

	t.Run("ProbeError", func(t *testing.T) {
		prober := goodProber
		prober.freeErr = errors.New("statfs exploded")

		_, err := testValidator(t, prober).Validate(t.TempDir(), false)
		requireCode(t, err, guard.InsufficientSpace)
	})
}

func TestValidateGuardDocumentation(t *testing.T) {
	_, err := testValidator(t, fakeProber{free: MinFreeBytes}).Validate(t.TempDir(), false)
	var gerr *guard.Error
	require.ErrorAs(t, err, &gerr)
	require.NotNil(t, gerr.Guard, "check failures should carry guard documentation")
	assert.NotEmpty(t, gerr.Guard.Protects)
	assert.NotEmpty(t, gerr.Guard.Cheats)
	assert.NotEmpty(t, gerr.Guard.Consequence)
}

func TestValidateForcedMarker(t *testing.T) {
	dir := t.TempDir()

	spec, err := testValidator(t, goodProber).Validate(dir, false)
	require.NoError(t, err)
	assert.False(t, spec.Forced)
	assert.True(t, spec.Mounted)
	assert.True(t, spec.Empty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "leftover"), nil, 0o644))
	spec, err = testValidator(t, fakeProber{mounted: false, free: MinFreeBytes}).Validate(dir, true)
	require.NoError(t, err)
	assert.True(t, spec.Forced, "forced validation must be marked")
	assert.False(t, spec.Mounted, "mount point was never measured")
	assert.False(t, spec.Empty, "emptiness was never measured")
}
