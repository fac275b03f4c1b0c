/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package unwind is the unwinder facade (C4). The real unwinder and
// symbol-table reader are external collaborators (spec.md §1, §6); this
// package defines the interface the core consumes and a no-op stub
// backend for hosts lacking a BFD-class reader.
package unwind

import "github.com/containerd/honggo/pkg/crash"

// Unwinder produces an ordered frame list for a stopped thread. It may
// return zero frames (spec.md §4.4: "the caller treats 0 as 'use PC
// alone if available'"); callers must not treat an empty result as an error.
type Unwinder interface {
	Unwind(pid int) (crash.CallStack, error)
}

// SymbolResolver fills in Frame.Symbol/Frame.Offset for frames an
// Unwinder produced with only a PC. Symbol resolution may be a no-op
// (spec.md §4.4).
type SymbolResolver interface {
	ResolveSymbols(pid int, frames crash.CallStack) crash.CallStack
}

// Noop is the stub backend: it always returns zero frames and resolves
// no symbols, matching "platforms lacking a BFD-class reader" (spec.md
// §4.4). It lets the rest of the core run (and be tested) without a real
// unwinder wired in.
type Noop struct{}

func (Noop) Unwind(int) (crash.CallStack, error) {
	return nil, nil
}

func (Noop) ResolveSymbols(_ int, frames crash.CallStack) crash.CallStack {
	return frames
}

// WithPCFallback implements the "if unwinder failed (zero frames), use PC
// alone if available" half of spec.md §4.4/§4.8 step 4 and §4.7
// ErrUnwindEmpty: it is the single place that policy lives, so both the
// full-save and analyze-only classifier paths apply it identically.
func WithPCFallback(frames crash.CallStack, pc uint64) (stack crash.CallStack, reliable bool) {
	if len(frames) > 0 {
		if len(frames) > crash.MaxFrames {
			frames = frames[:crash.MaxFrames]
		}
		return frames, true
	}
	if pc != 0 {
		return crash.CallStack{{PC: pc}}, true
	}
	return nil, false
}
