/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package tracee

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Attach implements C10: seize the thread with PTRACE_SEIZE (not
// PTRACE_ATTACH, which sends a spurious SIGSTOP the dispatcher would
// otherwise have to swallow) and arm trace-clone/fork/vfork/exit options
// so every new thread and child process in the group is picked up
// automatically, per spec.md §4.10.
func Attach(pid int) error {
	if err := unix.PtraceSeize(pid); err != nil {
		return errors.Wrapf(err, "ptrace(PTRACE_SEIZE, %d)", pid)
	}
	if err := unix.PtraceSetOptions(pid, seizeOptions); err != nil {
		return errors.Wrapf(err, "ptrace(PTRACE_SETOPTIONS, %d)", pid)
	}
	return nil
}

// Detach implements the other half of C10: release the thread so it
// resumes unmonitored execution.
func Detach(pid int) error {
	if err := unix.PtraceDetach(pid); err != nil {
		return errors.Wrapf(err, "ptrace(PTRACE_DETACH, %d)", pid)
	}
	return nil
}

// Interrupt sends PTRACE_INTERRUPT, the seize-mode counterpart of the
// SIGSTOP a plain PTRACE_ATTACH would send: it brings a running seized
// tracee to a ptrace-stop without delivering a signal the tracee would
// otherwise observe, so detach(pid) (spec.md §4.10) can safely call
// PTRACE_DETACH afterward.
func Interrupt(pid int) error {
	if err := unix.PtraceInterrupt(pid); err != nil {
		return errors.Wrapf(err, "ptrace(PTRACE_INTERRUPT, %d)", pid)
	}
	return nil
}

// Alive reports whether pid still names a process, per spec.md §4.10's
// "if kill(pid, 0) shows ESRCH, return" liveness check ahead of detach.
func Alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || !errors.Is(err, unix.ESRCH)
}

// Resume continues a stopped tracee, optionally re-delivering signo
// (honggfuzz's PT_CONTINUE wrapper).
func Resume(pid int, signo int) error {
	if err := unix.PtraceCont(pid, signo); err != nil {
		return errors.Wrapf(err, "ptrace(PTRACE_CONT, %d)", pid)
	}
	return nil
}

// WaitForStop waits for pid (or any thread in its group, if pid < 0) to
// change state, mirroring honggfuzz's wait4(-1, &status, __WALL, NULL)
// loop driving the dispatcher (C11).
func WaitForStop(pid int) (stoppedPID int, status unix.WaitStatus, err error) {
	got, werr := unix.Wait4(pid, &status, unix.WALL, nil)
	if werr != nil {
		return 0, status, errors.Wrap(werr, "wait4")
	}
	return got, status, nil
}

// WaitUntilStopped implements spec.md §4.10's wait_for_stop(pid): block
// on wait4 for pid, restarting on EINTR, returning once the status
// indicates a ptrace-stop. Used by detach's interrupt-then-detach
// sequence, where (unlike the dispatcher's main loop) only one specific
// task's stop matters.
func WaitUntilStopped(pid int) error {
	for {
		var status unix.WaitStatus
		_, err := unix.Wait4(pid, &status, unix.WALL, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return errors.Wrapf(err, "wait4(%d)", pid)
		}
		if status.Stopped() {
			return nil
		}
		if status.Exited() || status.Signaled() {
			return nil
		}
	}
}
