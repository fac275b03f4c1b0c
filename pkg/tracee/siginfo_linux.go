/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package tracee

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// SigInfo is the subset of siginfo_t the classifier needs (spec.md §4.8
// step 1): the signal number, si_code, the faulting address for the
// sigfault union member, and whether the signal was user-induced
// (SI_FROMUSER, i.e. raised via kill()/tgkill() rather than a hardware
// fault).
type SigInfo struct {
	Signo     int32
	Code      int32
	FaultAddr uint64
}

// FromUser is glibc's SI_FROMUSER(sip) test: si_code <= 0 means the
// signal was generated by a process (kill/raise/tgkill), not the kernel.
func (s SigInfo) FromUser() bool {
	return s.Code <= 0
}

// sigfaultLayout mirrors the kernel's _sifields._sigfault member as laid
// out in siginfo_t on the generic 64-bit ABI: si_signo/si_errno/si_code
// (3x int32), padding, then si_addr (void*) at byte offset 16. This is
// the same offset honggfuzz reads via si->si_addr after the kernel's
// struct siginfo typedef (original_source/linux/ptrace_utils.c uses
// si.si_addr directly; Go has no cgo siginfo_t, so this package reads the
// equivalent bytes PTRACE_GETSIGINFO fills in).
type sigfaultLayout struct {
	Signo     int32
	Errno     int32
	Code      int32
	_         int32
	FaultAddr uint64
}

// GetSigInfo implements C1/C2's siginfo read (spec.md §4.8 step 1) via
// PTRACE_GETSIGINFO, which golang.org/x/sys/unix does not wrap directly.
func (h *Handle) GetSigInfo() (SigInfo, error) {
	var raw unix.Siginfo
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(unix.PTRACE_GETSIGINFO),
		uintptr(h.PID), 0, uintptr(unsafe.Pointer(&raw)), 0, 0)
	if errno != 0 {
		return SigInfo{}, errors.Wrapf(errno, "ptrace(PTRACE_GETSIGINFO, %d)", h.PID)
	}

	sf := (*sigfaultLayout)(unsafe.Pointer(&raw))
	return SigInfo{
		Signo:     sf.Signo,
		Code:      sf.Code,
		FaultAddr: sf.FaultAddr,
	}, nil
}
