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

// Package main is the cli implementation of recstrap.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/opencontainers/go-digest"
	"github.com/urfave/cli"

	"github.com/levitateos/recstrap"
	"github.com/levitateos/recstrap/pkg/extract"
	"github.com/levitateos/recstrap/pkg/guard"
)

const usage = `install a root filesystem image onto a prepared target (like pacstrap)`

// exitUsage is the exit status for command-line errors. It is outside the
// range of guard codes so scripts can tell the two apart.
const exitUsage = 64

// errUsage marks command-line errors.
var errUsage = errors.New("usage error")

// Overridden in tests, so that nothing ever acts on the host.
var (
	newEngine = func() *recstrap.Engine { return recstrap.NewEngine(nil) }
	newRunner = func() extract.Runner { return extract.ExecRunner{Stdout: os.Stderr, Stderr: os.Stderr} }
	stdout    io.Writer = os.Stdout
	stderr    io.Writer = os.Stderr
)

// valueFlags are the flags that consume the following argument. They are
// needed to move flags given after the target in front of it.
var valueFlags = []string{"log", "rootfs", "squashfs", "digest", "manifest"}

// Main is the underlying main() implementation. You can call this directly as
// though it were the command-line arguments of the recstrap binary (this is
// needed for the coverage hack you can find in main_test.go).
func Main(args []string) error {
	app := cli.NewApp()
	app.Name = "recstrap"
	app.Usage = usage
	app.Version = recstrap.FullVersion()
	app.ArgsUsage = `<target> [--rootfs <path>]

Where "<target>" is the directory (normally the mount point of a freshly
formatted partition) that the root filesystem is extracted into. If --rootfs is
not given, the image is searched for in the usual live-media locations.

recstrap only extracts files. Partitioning, formatting, fstab, bootloader and
passwords are all left to the operator.`
	app.Writer = stdout
	app.ErrWriter = stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "alias for --log=info",
		},
		cli.StringFlag{
			Name:  "log",
			Usage: "set the log level (debug, info, [warn], error, fatal)",
			Value: "warn",
		},
		cli.StringFlag{
			Name:  "rootfs",
			Usage: "path to the rootfs image (.erofs or .squashfs), auto-detected if not given",
		},
		cli.StringFlag{
			Name:   "squashfs",
			Usage:  "deprecated alias for --rootfs",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:  "force, f",
			Usage: "skip the mount point and emptiness checks (never the protected path check)",
		},
		cli.BoolFlag{
			Name:  "check, c",
			Usage: "only run the pre-flight checks, do not extract",
		},
		cli.BoolFlag{
			Name:  "quiet, q",
			Usage: "only print errors (implies --log=error)",
		},
		cli.StringFlag{
			Name:  "digest",
			Usage: "require the image to have this digest (algorithm:hex)",
		},
		cli.StringFlag{
			Name:  "manifest",
			Usage: "write an mtree manifest of the extracted system to this (new) file",
		},
		cli.BoolFlag{
			Name:  "json",
			Usage: "print the outcome as JSON on stdout",
		},
		cli.BoolFlag{
			Name:  "no-ssh-keygen",
			Usage: "do not regenerate the SSH host keys of the extracted system",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetHandler(logcli.New(stderr))

		if ctx.GlobalBool("verbose") {
			if ctx.GlobalIsSet("log") {
				return fmt.Errorf("%w: --log=* and --verbose are mutually exclusive", errUsage)
			}
			if err := ctx.GlobalSet("log", "info"); err != nil {
				// Should _never_ be reached.
				return fmt.Errorf("[internal error] failure auto-setting --log=info: %w", err)
			}
		}
		if ctx.GlobalBool("quiet") {
			if err := ctx.GlobalSet("log", "error"); err != nil {
				return fmt.Errorf("[internal error] failure auto-setting --log=error: %w", err)
			}
		}
		level, err := log.ParseLevel(ctx.GlobalString("log"))
		if err != nil {
			return fmt.Errorf("%w: parsing log level: %w", errUsage, err)
		}
		log.SetLevel(level)

		if ctx.NArg() != 1 {
			return fmt.Errorf("%w: invalid number of positional arguments: expected <target>", errUsage)
		}
		if ctx.Args().First() == "" {
			return fmt.Errorf("%w: target path cannot be empty", errUsage)
		}
		ctx.App.Metadata["target"] = ctx.Args().First()

		rootfs := ctx.String("rootfs")
		if legacy := ctx.String("squashfs"); legacy != "" {
			if rootfs != "" {
				return fmt.Errorf("%w: --rootfs and --squashfs may not be specified together", errUsage)
			}
			log.Warn("--squashfs is deprecated, use --rootfs")
			rootfs = legacy
		}
		ctx.App.Metadata["rootfs"] = rootfs

		var dgst digest.Digest
		if raw := ctx.String("digest"); raw != "" {
			dgst, err = digest.Parse(raw)
			if err != nil {
				return fmt.Errorf("%w: invalid --digest: %w", errUsage, err)
			}
		}
		ctx.App.Metadata["digest"] = dgst
		return nil
	}

	app.Action = install
	app.Metadata = map[string]any{}

	permuted, err := permuteArgs(args, valueFlags)
	if err == nil {
		err = app.Run(permuted)
	}
	if err != nil {
		log.Debugf("%+v", err)
	}
	return err
}

func install(ctx *cli.Context) error {
	opts := recstrap.Options{
		Target:   ctx.App.Metadata["target"].(string),
		Rootfs:   ctx.App.Metadata["rootfs"].(string),
		Digest:   ctx.App.Metadata["digest"].(digest.Digest),
		Force:    ctx.Bool("force"),
		Check:    ctx.Bool("check"),
		Manifest: ctx.String("manifest"),
	}
	quiet := ctx.Bool("quiet")

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := newEngine().Run(sigctx, opts)
	switch {
	case ctx.Bool("json"):
		if jerr := outcome.WriteJSON(stdout); jerr != nil {
			log.WithError(jerr).Warn("failed to write outcome")
		}
	case err != nil && quiet:
		log.Errorf("%v", err)
	case err != nil:
		if ferr := recstrap.FormatError(stderr, err); ferr != nil {
			log.WithError(ferr).Warn("failed to write error report")
		}
	case opts.Check && !quiet:
		if ferr := outcome.Format(stderr); ferr != nil {
			log.WithError(ferr).Warn("failed to write check report")
		}
	}
	if err != nil || opts.Check {
		return err
	}

	// The system is installed. Nothing below may fail the run.
	if !ctx.Bool("no-ssh-keygen") {
		if err := regenerateHostKeys(sigctx, newRunner(), outcome.Target.Path); err != nil {
			log.WithError(err).Warn("SSH host key regeneration failed, run 'ssh-keygen -A' in the chroot to generate keys manually")
		}
	}
	if !quiet && !ctx.Bool("json") {
		printNextSteps(stderr, outcome.Target.Path)
	}
	return nil
}

// exitStatus maps an error returned by Main to the process exit status.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	var gerr *guard.Error
	if errors.As(err, &gerr) {
		return gerr.Code.ExitStatus()
	}
	// Anything else comes from the cli framework itself.
	return exitUsage
}

func main() {
	err := Main(os.Args)
	if err != nil && exitStatus(err) == exitUsage {
		log.Errorf("%v", err)
	}
	os.Exit(exitStatus(err))
}
