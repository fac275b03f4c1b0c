/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package dispatch implements the stop-event dispatcher (C11), grounded
// on honggfuzz's waitpid loop in original_source/linux/ptrace_utils.c
// (arch_ptraceWaitForPidStop and its caller) and on the wait4 dispatch
// loop of other_examples' DataDog-datadog-agent ptracer.go.
package dispatch

import (
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/containerd/honggo/pkg/classifier"
	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/disasm"
	"github.com/containerd/honggo/pkg/errdefs"
	"github.com/containerd/honggo/pkg/fingerprint"
	"github.com/containerd/honggo/pkg/persist"
	"github.com/containerd/honggo/pkg/saniparse"
	"github.com/containerd/honggo/pkg/signals"
	"github.com/containerd/honggo/pkg/slot"
	"github.com/containerd/honggo/pkg/tracee"
	"github.com/containerd/honggo/pkg/unwind"
)

// sanitizer exit codes, matching honggfuzz's HF_{M,A,UB}SAN_EXIT_CODE
// (original_source/libhfcommon/ defines these as 103/104/105 by
// convention; the exact values are a deployment config, not a protocol
// invariant — spec.md §6 exposes them as SanitizerExitCodes).
type SanitizerExitCodes struct {
	MSAN  int
	ASAN  int
	UBSAN int
}

// Deps bundles the collaborators the dispatcher drives: the disassembler
// backend (may be nil, spec.md §6), the unwinder/symbol resolver, and the
// sanitizer exit codes. The sanitizer log path comes from Config.
type Deps struct {
	Config         *crash.SharedConfig
	Counters       *crash.SharedCounters
	Disassembler   disasm.Disassembler
	Unwinder       unwind.Unwinder
	Resolver       unwind.SymbolResolver
	SanitizerExit  SanitizerExitCodes
	DisableSigabrt bool
}

// Dispatch implements spec.md §4.11's decision tree for a single wait4
// result. s is the worker's slot for this pid's thread group; it is
// mutated in place (Backtrace, CrashPath) exactly as the classifier's
// result dictates — the one place outside pkg/slot that touches it:
// pkg/crash cannot import pkg/slot without a cycle, and pkg/classifier
// takes the slot's fields as plain values in SignalInput.
func Dispatch(d Deps, pid int, status unix.WaitStatus, s *slot.Slot) {
	switch {
	// TrapCause is only meaningful when the stop signal is SIGTRAP (it
	// returns -1 otherwise); gate on both or every ordinary signal stop
	// would be misrouted here.
	case status.Stopped() && status.StopSignal() == unix.SIGTRAP && status.TrapCause() != 0:
		dispatchTraceEvent(d, pid, status, s)

	case status.Stopped():
		dispatchSignalStop(d, pid, status, s)

	case status.Continued():
		// SIGCONT notice: ignore.

	case status.Exited():
		code := status.ExitStatus()
		if isSanitizerExit(d.SanitizerExit, code) {
			dispatchSanitizerExit(d, pid, s)
		}
		// Otherwise ignore: ordinary exit.

	case status.Signaled():
		// Killed by an uncaught signal: ignore (spec.md §4.11).

	default:
		logrus.WithFields(logrus.Fields{"pid": pid, "status": int(status)}).
			Error("unreachable wait status")
	}
}

func dispatchTraceEvent(d Deps, pid int, status unix.WaitStatus, s *slot.Slot) {
	if status.TrapCause() != unix.PTRACE_EVENT_EXIT {
		_ = tracee.Resume(pid, 0)
		return
	}

	msg, err := unix.PtraceGetEventMsg(pid)
	if err != nil {
		_ = tracee.Resume(pid, 0)
		return
	}

	code := int(msg)
	if isSanitizerExit(d.SanitizerExit, code) {
		dispatchSanitizerExit(d, pid, s)
	}
	_ = tracee.Resume(pid, 0)
}

func dispatchSignalStop(d Deps, pid int, status unix.WaitStatus, s *slot.Slot) {
	signo := int(status.StopSignal())
	_, important := signals.Classify(signo, d.DisableSigabrt)

	if important {
		if s.IsMainWorker {
			fullSignalSave(d, pid, signo, s)
		} else {
			analyzeOnly(d, pid, signo, s)
		}
	}

	_ = tracee.Resume(pid, signo)
}

func fullSignalSave(d Deps, pid int, signo int, s *slot.Slot) {
	h := tracee.New(pid)
	regs, err := h.GetRegs()
	if err != nil {
		return
	}

	si, err := h.GetSigInfo()
	if err != nil {
		return
	}

	var instrBytes [crash.InstrMax]byte
	n := h.ReadMem(regs.PC, instrBytes[:])
	// cpsrThumbBit is bit 5 of the ARM CPSR/PSTATE status register
	// (armThumbBit), meaningless on non-ARM architectures where
	// disasm.DeriveMode ignores it.
	const cpsrThumbBit = 1 << 5
	thumb := regs.Status&cpsrThumbBit != 0
	instrStr := disasm.Format(d.Disassembler, instrBytes[:n], regs.PC,
		disasm.DeriveMode(runtime.GOARCH, regs.Bits32, thumb))

	frames, _ := d.Unwinder.Unwind(pid)
	if d.Resolver != nil {
		frames = d.Resolver.ResolveSymbols(pid, frames)
	}

	lr, hasLR := h.GetLinkRegister()
	width := fingerprint.Bits64
	if regs.Bits32 {
		width = fingerprint.Bits32
	}

	res := classifier.OnSignalStop(d.Config, d.Counters, classifier.SignalInput{
		Signal:       signo,
		SiCode:       si.Code,
		FaultAddr:    si.FaultAddr,
		FromUser:     si.FromUser(),
		PC:           regs.PC,
		InstrStr:     instrStr,
		RawFrames:    frames,
		OldHash:      s.Backtrace,
		HasCrashPath: s.HasCrashed(),
		IsMainWorker: true,
		LinkReg:      lr,
		HasLinkReg:   hasLR,
		Width:        width,
	})

	s.Backtrace = res.NewHash

	switch res.Outcome {
	case classifier.OutcomeSave:
		crashPath := persist.ComposeFilename(d.Config, res.Filename, s.OrigName, res.SaveUnique, wallClockNow(), pid)
		status := persist.Save(d.Config, d.Counters, pid, s.InputPath, crashPath, res.Record, s.OrigName)
		switch status {
		case persist.StatusSaved:
			s.CrashPath = crashPath
		case persist.StatusDuplicate:
			s.ClearCrashPath()
		case persist.StatusIOError:
		}
	case classifier.OutcomeDrop:
	}
}

func analyzeOnly(d Deps, pid int, signo int, s *slot.Slot) {
	h := tracee.New(pid)
	regs, err := h.GetRegs()
	if err != nil {
		return
	}

	frames, _ := d.Unwinder.Unwind(pid)
	lr, hasLR := h.GetLinkRegister()
	width := fingerprint.Bits64
	if regs.Bits32 {
		width = fingerprint.Bits32
	}

	res := classifier.OnSignalStop(d.Config, d.Counters, classifier.SignalInput{
		Signal:       signo,
		PC:           regs.PC,
		RawFrames:    frames,
		OldHash:      s.Backtrace,
		HasCrashPath: s.HasCrashed(),
		IsMainWorker: false,
		LinkReg:      lr,
		HasLinkReg:   hasLR,
		Width:        width,
	})
	s.Backtrace = res.NewHash
}

func dispatchSanitizerExit(d Deps, pid int, s *slot.Slot) {
	res, err := saniparse.Parse(saniparse.LogPath(d.Config.WorkDir, d.Config.LogPrefix, pid), pid)
	if errdefs.IsSanitizerLogMissing(err) {
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("pid", pid).Warn("failed to parse sanitizer report")
		return
	}

	cres := classifier.OnSanitizerExit(d.Config, d.Counters, crash.SanASAN, res.Op, res.CrashAddr, res.Frames)
	s.Backtrace = cres.NewHash

	if cres.Outcome != classifier.OutcomeSave {
		return
	}

	crashPath := persist.ComposeSanitizerFilename(d.Config, crash.SanASAN, res.Op, cres.Filename, s.OrigName, cres.SaveUnique, wallClockNow(), pid)
	status := persist.Save(d.Config, d.Counters, pid, s.InputPath, crashPath, cres.Record, s.OrigName)
	switch status {
	case persist.StatusSaved:
		s.CrashPath = crashPath
	case persist.StatusDuplicate:
		s.ClearCrashPath()
	}
}

func isSanitizerExit(codes SanitizerExitCodes, code int) bool {
	return code == codes.MSAN || code == codes.ASAN || code == codes.UBSAN
}

// signalName formats a signal for logging the way the teacher's logrus
// fields do elsewhere (internal/logging).
func signalName(signo int) string {
	return syscall.Signal(signo).String()
}

// wallClockNow is the single call to time.Now() in the persist path,
// isolated here so tests can substitute a fixed clock by calling
// persist.ComposeFilename directly instead of through Dispatch.
func wallClockNow() time.Time {
	return time.Now()
}
