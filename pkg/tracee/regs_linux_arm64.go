/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux && arm64

package tracee

import (
	"debug/elf"

	"golang.org/x/sys/unix"
)

// getRegsArch implements arch_getPC's __aarch64__ branch. A genuine
// 32-bit ARM tracee under an arm64 tracer reports PtraceGetRegsArm's
// smaller struct; honggfuzz forces the 32-bit struct size explicitly on
// this path since the GETREGSET multiplexing trick is unreliable on some
// Android kernels (original_source/linux/ptrace_utils.c, arch_getPC).
func getRegsArch(pid int) (RegView, bool) {
	var regs64 unix.PtraceRegsArm64
	if err := unix.PtraceGetRegSetArm64(pid, int(elf.NT_PRSTATUS), &regs64); err == nil {
		return RegView{
			PC:      regs64.Pc,
			Status:  regs64.Pstate,
			LinkReg: regs64.Regs[30],
			Bits32:  false,
		}, true
	}
	if err := unix.PtraceGetRegsArm64(pid, &regs64); err == nil {
		return RegView{
			PC:      regs64.Pc,
			Status:  regs64.Pstate,
			LinkReg: regs64.Regs[30],
			Bits32:  false,
		}, true
	}

	var regs32 unix.PtraceRegsArm
	if err := unix.PtraceGetRegsArm(pid, &regs32); err == nil {
		return RegView{
			PC:      uint64(regs32.Uregs[15]),
			Status:  uint64(regs32.Uregs[16]),
			LinkReg: uint64(regs32.Uregs[14]),
			Bits32:  true,
		}, true
	}

	return RegView{}, false
}

// getLinkRegisterArch returns x30 (or r14 on the 32-bit compat path),
// matching arch_getLR.
func getLinkRegisterArch(pid int) (uint64, bool) {
	rv, ok := getRegsArch(pid)
	if !ok {
		return 0, false
	}
	return rv.LinkReg, true
}
