/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package tracee

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/containerd/honggo/pkg/errdefs"
)

// regReadFailLog throttles the "ptrace register read failed" warning to
// once per second: a tracee stuck bouncing through ErrRegReadFailed
// (e.g. a zombie thread lingering between PTRACE_EVENT_EXIT and its
// final wait4 reap) would otherwise flood logs once per dispatch loop
// iteration.
var regReadFailLog = rate.NewLimiter(rate.Every(time.Second), 1)

// RegView is the architecture-neutral result of C2: the program counter,
// a status/flags register (eflags on x86, cpsr/pstate on ARM), the link
// register (0 on architectures without one), and whether the underlying
// struct was the 32-bit or 64-bit variant — the counterpart of arch_getPC's
// "32/64-bit multiplexing trick". Bits32 is set when the 64-bit register
// read fails and the 32-bit one succeeds, not from the build's own GOARCH.
type RegView struct {
	PC       uint64
	Status   uint64
	LinkReg  uint64
	Bits32   bool
	GSBase   uint64
}

// GetRegs implements C2 by probing per architecture: the 64-bit register
// read first (PTRACE_GETREGSET then PTRACE_GETREGS on arm64,
// PTRACE_GETREGS on amd64), then the 32-bit variant; the first read that
// succeeds decides the view.
func (h *Handle) GetRegs() (RegView, error) {
	rv, ok := getRegsArch(h.PID)
	if !ok {
		if regReadFailLog.Allow() {
			logrus.WithField("pid", h.PID).Warn("ptrace(PTRACE_GETREGSET/GETREGS) failed to extract target registers")
		}
		return RegView{}, errdefs.ErrRegReadFailed
	}
	return rv, nil
}

// GetLinkRegister implements the ARM/ARM64 half of C2 used by the stack
// fingerprint's single-frame LR fold (spec.md §4.5). It returns ok=false
// on architectures without a link register (x86) or on read failure.
func (h *Handle) GetLinkRegister() (uint64, bool) {
	return getLinkRegisterArch(h.PID)
}

// GetCustomCounter implements arch_ptraceGetCustomPerf: the gs_base (or
// 32-bit gs selector) register, used as a cheap per-thread counter source
// for coverage feedback on x86 (spec.md §4 supplemented feature, §9). It
// is 0 on architectures without this register.
func (h *Handle) GetCustomCounter() uint64 {
	rv, ok := getRegsArch(h.PID)
	if !ok {
		return 0
	}
	return rv.GSBase
}

// seizeOptions mirrors honggfuzz's PTRACE_O_TRACE{CLONE,FORK,VFORK,EXIT}
// (spec.md §4.10), attached via PTRACE_SEIZE rather than PTRACE_ATTACH so
// the tracee is not sent a spurious SIGSTOP.
const seizeOptions = unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXIT
