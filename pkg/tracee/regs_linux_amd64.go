/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux && amd64

package tracee

import "golang.org/x/sys/unix"

// getRegsArch implements arch_getPC/arch_getProcMem's x86 branch: the
// 64-bit struct yields rip/eflags directly; a 32-bit tracee (ia32 compat)
// reports a smaller struct and the fields live at different offsets
// (eip/eflags), which unix.PtraceRegs386 models.
func getRegsArch(pid int) (RegView, bool) {
	var regs64 unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs64); err == nil {
		return RegView{
			PC:     regs64.Rip,
			Status: regs64.Eflags,
			GSBase: uint64(regs64.Gs_base),
			Bits32: false,
		}, true
	}

	var regs32 unix.PtraceRegs386
	if err := unix.PtraceGetRegs386(pid, &regs32); err == nil {
		return RegView{
			PC:     uint64(uint32(regs32.Eip)),
			Status: uint64(uint32(regs32.Eflags)),
			GSBase: uint64(uint32(regs32.Xgs)),
			Bits32: true,
		}, true
	}

	return RegView{}, false
}

// getLinkRegisterArch is a no-op on x86: there is no architectural link
// register, matching honggfuzz's arch_getLR being compiled only for
// __arm__/__aarch64__.
func getLinkRegisterArch(int) (uint64, bool) {
	return 0, false
}
