/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package fingerprint computes the stack-deduplication hash (C5),
// grounded on honggfuzz's arch_hashCallstack in
// original_source/linux/ptrace_utils.c.
package fingerprint

import (
	"fmt"
	"hash/fnv"

	"github.com/containerd/honggo/pkg/crash"
)

// WordWidth selects the fixed hex width used when formatting a PC, so the
// "last three characters" step (spec.md §4.5) lands on digits rather than
// on a variable-length prefix.
type WordWidth int

const (
	Bits32 WordWidth = 32
	Bits64 WordWidth = 64
)

// domainHash is the "small non-cryptographic hash" spec.md §4.5 requires
// to be deterministic across runs. FNV-1a is the stdlib's deterministic,
// dependency-free 64-bit hash and is what honggfuzz's own hand-rolled
// util_hash is standing in for; no retained third-party library in this
// module packages a non-cryptographic short-string hash (see DESIGN.md).
func domainHash(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// lastThreeHexChars formats pc as a fixed-width "0x"-prefixed lowercase
// hex string at the given word width and returns its last three
// characters (spec.md §4.5 steps 1-2).
func lastThreeHexChars(pc uint64, width WordWidth) []byte {
	var s string
	if width == Bits64 {
		s = fmt.Sprintf("0x%016x", pc)
	} else {
		s = fmt.Sprintf("0x%08x", uint32(pc))
	}
	return []byte(s[len(s)-3:])
}

// HashCallstack implements spec.md §4.5: XOR together the domain hash of
// the last three hex characters of each of the first min(len(frames),
// kMajor) frame PCs. If exactly one frame contributed and maskSingle is
// true, the high bit (crash.SingleFrameMask) is set.
//
// Re-ordering frames beyond the first kMajor does not change the result,
// since frames past that index are never read (fingerprint determinism,
// spec.md §8).
func HashCallstack(frames crash.CallStack, kMajor int, width WordWidth, maskSingle bool) crash.StackHash {
	if kMajor <= 0 {
		kMajor = crash.KMajorDefault
	}
	n := len(frames)
	if n > kMajor {
		n = kMajor
	}

	var h uint64
	for i := 0; i < n; i++ {
		h ^= domainHash(lastThreeHexChars(frames[i].PC, width))
	}

	if maskSingle && n == 1 {
		h |= crash.SingleFrameMask
	}
	return crash.StackHash(h)
}

// FoldLinkRegister XORs in the domain hash of the link register's last
// three hex characters, matching spec.md §4.5's ARM/ARM64 single-frame
// rule. It is applied to the hash HashCallstack already returned, not to
// the frame list. If hash carries crash.SingleFrameMask, the result
// carries it too, so the result equals folding first and masking second.
func FoldLinkRegister(hash crash.StackHash, lr uint64, width WordWidth) crash.StackHash {
	folded := uint64(hash) ^ domainHash(lastThreeHexChars(lr, width))
	return crash.StackHash(folded | (uint64(hash) & crash.SingleFrameMask))
}
