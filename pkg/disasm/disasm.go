/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package disasm is the disassembler facade (C3): bytes + PC + mode in,
// one sanitized mnemonic string out. Grounded on honggfuzz's
// arch_getInstrStr / arch_bfdDisasm split in
// original_source/linux/ptrace_utils.c — the BFD/Capstone backend itself
// is an external collaborator (spec.md §1 "Out of scope"), so Disassembler
// here is an interface a real backend implements.
package disasm

import "github.com/containerd/honggo/pkg/crash"

// Mode selects how the backend should interpret the instruction bytes.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeX86_32
	ModeX86_64
	ModeARM
	ModeThumb
	ModeARM64
)

// Disassembler decodes a single instruction at pc from the given bytes.
// Implementations may be absent (spec.md §6: "optional; if absent, the
// instruction string is [UNKNOWN]").
type Disassembler interface {
	Disassemble(bytes []byte, pc uint64, mode Mode) (mnemonic string, ok bool)
}

const (
	notMmapedInstr = "[NOT_MMAPED]"
	unknownInstr   = "[UNKNOWN]"
)

// Format implements spec.md §4.3: given the bytes read from the tracee
// (possibly 0, meaning the memory read failed), the PC, and the mode, it
// returns a sanitized string of length <= crash.InstrMax.
//
// backend may be nil, matching the "optional" external collaborator.
func Format(backend Disassembler, bytes []byte, pc uint64, mode Mode) string {
	if len(bytes) == 0 {
		return notMmapedInstr
	}
	if mode == ModeUnknown || backend == nil {
		return unknownInstr
	}

	mnemonic, ok := backend.Disassemble(bytes, pc, mode)
	if !ok || mnemonic == "" {
		return unknownInstr
	}

	return sanitize(mnemonic)
}

// sanitize replaces every character outside [printable, not '/', not
// '\\', not whitespace] with '_', and truncates to crash.InstrMax, per
// spec.md §4.3's output-sanitization rule.
func sanitize(s string) string {
	b := []byte(s)
	if len(b) > crash.InstrMax {
		b = b[:crash.InstrMax]
	}
	for i, c := range b {
		if c == '/' || c == '\\' || isSpace(c) || !isPrintable(c) {
			b[i] = '_'
		}
	}
	return string(b)
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

func isPrintable(c byte) bool {
	return c >= 0x20 && c < 0x7f
}

// DeriveMode derives the disassembly mode per spec.md §4.3: on ARM, the
// Thumb bit of the 32-bit status register selects Thumb mode; on x86,
// the register-view variant (32 vs 64 bit) selects the mode directly.
// armThumbBit is the CPSR/PSTATE Thumb flag (bit 5 on 32-bit ARM).
func DeriveMode(arch string, bits32 bool, armThumbBit bool) Mode {
	switch arch {
	case "arm":
		if bits32 && armThumbBit {
			return ModeThumb
		}
		return ModeARM
	case "arm64":
		return ModeARM64
	case "amd64", "386":
		if bits32 {
			return ModeX86_32
		}
		return ModeX86_64
	default:
		return ModeUnknown
	}
}
