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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apex/log"
	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/levitateos/recstrap/pkg/extract"
)

// hostKeyPattern matches the host keys sshd generates, and their public
// halves.
const hostKeyPattern = "ssh_host_*_key*"

// regenerateHostKeys replaces the SSH host keys shipped in the image, which
// every installation from the same image would otherwise share. A target
// without an /etc/ssh directory has no sshd, and is left alone.
func regenerateHostKeys(ctx context.Context, runner extract.Runner, root string) error {
	sshDir, err := securejoin.SecureJoin(root, "etc/ssh")
	if err != nil {
		return fmt.Errorf("resolve ssh config directory: %w", err)
	}
	entries, err := os.ReadDir(sshDir)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("dir", sshDir).Debugf("no ssh config directory in target, skipping host key regeneration")
		return nil
	} else if err != nil {
		return fmt.Errorf("read ssh config directory: %w", err)
	}
	if _, err := runner.LookPath("ssh-keygen"); err != nil {
		return fmt.Errorf("ssh-keygen not available: %w", err)
	}

	for _, entry := range entries {
		if ok, _ := filepath.Match(hostKeyPattern, entry.Name()); !ok || entry.IsDir() {
			continue
		}
		path := filepath.Join(sshDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove shipped host key: %w", err)
		}
		log.WithField("key", path).Debugf("removed shipped host key")
	}

	log.Info("regenerating SSH host keys ...")
	// -A generates every missing key type, -f makes it relative to root.
	if err := runner.Run(ctx, "ssh-keygen", "-A", "-f", root); err != nil {
		return err
	}
	log.Info("... done")
	return nil
}
