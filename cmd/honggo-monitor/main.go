/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/containerd/honggo/cmd/honggo-monitor/command"
	"github.com/containerd/honggo/internal/logging"
	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/dispatch"
	"github.com/containerd/honggo/pkg/metrics"
	"github.com/containerd/honggo/pkg/slot"
	"github.com/containerd/honggo/pkg/tracee"
	"github.com/containerd/honggo/pkg/unwind"
	"github.com/containerd/honggo/version"
)

func main() {
	flags := command.NewFlags()
	app := &cli.App{
		Name:        "honggo-monitor",
		Usage:       "Attach-and-analyze crash monitor for a coverage-guided fuzzing target",
		Version:     version.Version,
		Flags:       flags.F,
		HideVersion: true,
		Action: func(c *cli.Context) error {
			if flags.Args.PrintVersion {
				fmt.Print(version.String())
				return nil
			}
			return run(flags.Args)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("honggo-monitor exited with an error")
	}
}

func run(args *command.Args) error {
	rotateArgs := &logging.RotateLogArgs{
		RotateLogMaxSize:    args.RotateLogMaxSize,
		RotateLogMaxBackups: args.RotateLogMaxBackups,
		RotateLogMaxAge:     args.RotateLogMaxAge,
		RotateLogCompress:   args.RotateLogCompress,
		RotateLogLocalTime:  args.RotateLogLocalTime,
	}
	if err := logging.SetUp(args.LogLevel, args.LogToStdout, args.LogDir, args.RootDir, rotateArgs); err != nil {
		return errors.Wrap(err, "failed to set up logger")
	}
	ctx := logging.WithContext()
	log := logging.FromContext(ctx)
	log.Infof("starting honggo-monitor. PID %d Version %s", os.Getpid(), version.Version)

	if args.WorkDir == "" {
		return errors.New("--work-dir is required")
	}
	if args.TargetPID <= 0 {
		return errors.New("--pid is required")
	}

	hashBlacklist, err := loadHashBlacklist(args.StackHashBlacklist)
	if err != nil {
		return errors.Wrap(err, "failed to load stack hash blacklist")
	}

	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		WorkDir:              args.WorkDir,
		FileExt:              args.FileExtension,
		IgnoreBelowAddr:      args.IgnoreBelowAddr,
		SaveUnique:           args.SaveUnique,
		DisableRandomization: args.DisableRandomization,
		FlipRate:             args.FlipRate,
		UseVerifier:          args.UseVerifier,
		SaveMaps:             args.SaveMaps,
		NumMajorFrames:       args.NumMajorFrames,
		SymbolWhitelist:      args.SymbolWhitelist.Value(),
		SymbolBlacklist:      args.SymbolBlacklist.Value(),
		StackHashBlacklist:   hashBlacklist,
		LogPrefix:            args.LogPrefix,
	})
	counters := crash.NewSharedCounters()

	if args.MetricsAddress != "" {
		srv, err := metrics.NewServer(args.MetricsAddress)
		if err != nil {
			return errors.Wrap(err, "failed to start metrics server")
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	deps := dispatch.Deps{
		Config:   cfg,
		Counters: counters,
		Unwinder: unwind.Noop{},
		Resolver: unwind.Noop{},
		SanitizerExit: dispatch.SanitizerExitCodes{
			MSAN:  args.MSanExitCode,
			ASAN:  args.ASanExitCode,
			UBSAN: args.UBSanExitCode,
		},
		DisableSigabrt: args.DisableSigabrt,
	}

	return monitor(ctx, deps, args.TargetPID)
}

// monitor implements the C10/C11 worker loop: attach to the whole thread
// group, then service wait4 events until the leader exits, per spec.md
// §4.10/§4.11/§5 ("each worker task services one tracee process and
// observes its thread group").
func monitor(ctx context.Context, deps dispatch.Deps, pid int) error {
	log := logging.FromContext(ctx)

	if err := attachGroup(pid); err != nil {
		return errors.Wrapf(err, "failed to attach to pid %d", pid)
	}
	log.WithField("pid", pid).Info("attached to thread group")
	defer func() {
		if err := detachGroup(pid); err != nil {
			log.WithError(err).WithField("pid", pid).Warn("failed to detach thread group")
		}
	}()

	s := slot.New("", fmt.Sprintf("pid-%d", pid), true)

	for {
		gotPID, status, err := tracee.WaitForStop(-1)
		if err != nil {
			if errors.Is(err, unix.ECHILD) {
				return nil
			}
			return errors.Wrap(err, "wait4")
		}

		dispatch.Dispatch(deps, gotPID, status, s)

		if gotPID == pid && (status.Exited() || status.Signaled()) {
			return nil
		}
	}
}

func attachGroup(pid int) error {
	if err := tracee.Attach(pid); err != nil {
		return err
	}
	tasks, err := tracee.Tasks(pid)
	if err != nil {
		return nil // best-effort: leader is attached even if /proc/<pid>/task can't be read yet
	}
	for _, tid := range tasks {
		if tid == pid {
			continue
		}
		_ = tracee.Attach(tid)
	}
	return nil
}

// detachGroup implements the other half of C10, spec.md §4.10's
// detach(pid): if the tracee is already gone there is nothing to detach;
// otherwise re-enumerate its thread group (threads may have come and
// gone since attachGroup ran) and release each task individually —
// interrupting it into a ptrace-stop first, since PTRACE_DETACH only
// succeeds on a stopped tracee.
func detachGroup(pid int) error {
	if !tracee.Alive(pid) {
		return nil
	}

	tasks, err := tracee.Tasks(pid)
	if err != nil {
		// leader may have just exited between the liveness check and
		// the /proc read; nothing left to detach.
		return nil
	}

	var firstErr error
	for _, tid := range tasks {
		if err := detachTask(tid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// detachTask interrupts, waits for, and detaches a single task,
// best-effort: a task that exited between enumeration and interrupt is
// not an error.
func detachTask(tid int) error {
	if err := tracee.Interrupt(tid); err != nil {
		return nil
	}
	if err := tracee.WaitUntilStopped(tid); err != nil {
		return err
	}
	if err := tracee.Detach(tid); err != nil {
		return err
	}
	return nil
}

func loadHashBlacklist(path string) ([]uint64, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []uint64
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(line, "0x"), 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse hash %q", line)
		}
		out = append(out, v)
	}
	return out, nil
}
