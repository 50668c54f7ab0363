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

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/apex/log"
)

// Runner runs the external tools that do the actual extraction.
type Runner interface {
	// LookPath returns the full path of the named tool, or an error if it
	// is not installed.
	LookPath(name string) (string, error)
	// Run executes the named tool and waits for it. A non-zero exit status
	// is an error.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the Runner used on a real host. Tools never get a stdin, so
// none of them can block waiting for an answer from the operator.
type ExecRunner struct {
	// Stdout and Stderr receive the output of the tools. If nil, the
	// output is discarded.
	Stdout io.Writer
	Stderr io.Writer
}

var _ Runner = ExecRunner{}

// LookPath implements Runner.
func (r ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil // /dev/null
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	log.WithField("cmd", name+" "+strings.Join(args, " ")).Debugf("running external tool")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s %s", name, describeExit(exitErr.ProcessState))
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func describeExit(ps *os.ProcessState) string {
	if code := ps.ExitCode(); code >= 0 {
		return fmt.Sprintf("exited with status %d", code)
	}
	return fmt.Sprintf("was terminated (%s)", ps)
}
