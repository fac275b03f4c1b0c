/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package slot holds FuzzerSlot, the per-worker mutable state the crash
// analysis core observes but does not own (spec.md §3).
package slot

import "github.com/containerd/honggo/pkg/crash"

// Slot is owned by exactly one worker goroutine; the core reads and
// mutates it only while that worker is calling into the core, so no
// internal locking is required (spec.md §5: "no cross-worker access").
type Slot struct {
	InputPath    string
	OrigName     string
	CrashPath    string // empty until first save
	Backtrace    crash.StackHash
	IsMainWorker bool

	// SancovCounters is opaque to this core; it is observed by the
	// surrounding dynamic-coverage feedback loop, not mutated here.
	SancovCounters uint64
}

// New returns a Slot for a freshly selected fuzzing input.
func New(inputPath, origName string, isMainWorker bool) *Slot {
	return &Slot{
		InputPath:    inputPath,
		OrigName:     origName,
		IsMainWorker: isMainWorker,
	}
}

// HasCrashed reports whether this worker has already saved a crash for
// its current target process (spec.md §4.8 step 7/4.9: "crashFileName
// member is set").
func (s *Slot) HasCrashed() bool {
	return s.CrashPath != ""
}

// ClearCrashPath clears CrashPath so another tid in the same thread group
// may retry a save (spec.md §4.9 PersistDuplicate / §7 ErrSanitizerLogMissing).
func (s *Slot) ClearCrashPath() {
	s.CrashPath = ""
}
