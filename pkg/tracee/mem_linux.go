/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package tracee

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// ReadMem implements C1: it reads len(buf) bytes from the tracee's address
// space starting at addr, preferring process_vm_readv and falling back to
// word-granular PTRACE_PEEKDATA, per honggfuzz's arch_getProcMem. It
// returns the number of bytes actually read, which may be less than
// len(buf) on partial failure — callers (disasm, unwind) must tolerate a
// short read exactly as spec.md §4.1 describes ("a short or zero-length
// read must not crash the caller").
func (h *Handle) ReadMem(addr uint64, buf []byte) int {
	if len(buf) == 0 {
		return 0
	}

	if n := readProcessVM(h.PID, addr, buf); n == len(buf) {
		return n
	}

	return readPeekData(h.PID, addr, buf)
}

// readProcessVM is the fast path: a single vectored read.
func readProcessVM(pid int, addr uint64, buf []byte) int {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// readPeekData is the slow path, one machine word (8 bytes on amd64/
// arm64) at a time, matching arch_getProcMem's "len must be aligned to
// sizeof(long)" loop which stops at the first failing word.
func readPeekData(pid int, addr uint64, buf []byte) int {
	const wordSize = 8

	read := 0
	for read < len(buf) {
		remaining := len(buf) - read
		n := wordSize
		if remaining < wordSize {
			n = remaining
		}

		word := make([]byte, wordSize)
		got, err := unix.PtracePeekData(pid, uintptr(addr)+uintptr(read), word)
		if err != nil || got < wordSize {
			break
		}

		copy(buf[read:read+n], word[:n])
		read += n
	}
	return read
}

// ReadUint64 reads a single little-endian uint64 at addr. It returns
// ok=false unless all eight bytes were read.
func (h *Handle) ReadUint64(addr uint64) (uint64, bool) {
	var buf [8]byte
	if h.ReadMem(addr, buf[:]) != len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[:]), true
}
