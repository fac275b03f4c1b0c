/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/fingerprint"
)

func frames(pcs ...uint64) crash.CallStack {
	fr := make(crash.CallStack, len(pcs))
	for i, pc := range pcs {
		fr[i] = crash.Frame{PC: pc}
	}
	return fr
}

// Scenario 1: SIGSEGV, unique save.
func TestOnSignalStopUniqueSave(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		SaveUnique:           true,
		DisableRandomization: true,
		IgnoreBelowAddr:      0,
	})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11, // SIGSEGV
		SiCode:       1,
		FaultAddr:    0x400123,
		PC:           0xdeadbeef,
		RawFrames:    frames(0xdeadbeef, 0x400100, 0x7f00abcd),
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeSave, res.Outcome)
	assert.EqualValues(t, 1, counters.CrashesTotal())
	assert.Equal(t, uint64(0xdeadbeef), res.Filename.PC)
	assert.Equal(t, uint64(0x400123), res.Filename.FaultAddr)
	assert.True(t, res.SaveUnique)
}

// Scenario 2: single-frame SIGILL on ARM, LR fold.
func TestOnSignalStopSingleFrameLRFold(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       4, // SIGILL
		PC:           0x1000,
		IsMainWorker: true,
		LinkReg:      0x2000,
		HasLinkReg:   true,
		Width:        fingerprint.Bits32,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeSave, res.Outcome)
	assert.True(t, res.NewHash.HasSingleFrameMask())

	want := fingerprint.HashCallstack(frames(0x1000), cfg.NumMajorFrames, fingerprint.Bits32, true)
	want = fingerprint.FoldLinkRegister(want, 0x2000, fingerprint.Bits32)
	assert.Equal(t, want, res.NewHash)
}

// Scenario 3: blacklisted stack hash.
func TestOnSignalStopBlacklistedHash(t *testing.T) {
	in := SignalInput{
		Signal:       11,
		SiCode:       1,
		FaultAddr:    0x400123,
		PC:           0xdeadbeef,
		RawFrames:    frames(0xdeadbeef, 0x400100, 0x7f00abcd),
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	// First compute the hash that scenario 1 would produce, then blacklist it.
	probe := OnSignalStop(crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true}), &crash.SharedCounters{}, in)
	wantHash := probe.NewHash

	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		SaveUnique:         true,
		StackHashBlacklist: []uint64{uint64(wantHash)},
	})
	counters := &crash.SharedCounters{}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeDrop, res.Outcome)
	assert.Equal(t, DropReasonBlacklistedHash, res.DropReason)
	assert.EqualValues(t, 1, counters.BlacklistedCrashes())
	assert.EqualValues(t, 0, counters.UniqueCrashes())
}

// Scenario 4: duplicate crash in the same worker.
func TestOnSignalStopDuplicateInSameSlot(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11,
		FaultAddr:    0x400123,
		PC:           0xdeadbeef,
		RawFrames:    frames(0xdeadbeef, 0x400100, 0x7f00abcd),
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	first := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeSave, first.Outcome)
	assert.EqualValues(t, 1, counters.CrashesTotal())

	in.OldHash = first.NewHash
	in.HasCrashPath = true
	second := OnSignalStop(cfg, counters, in)

	assert.Equal(t, OutcomeDrop, second.Outcome)
	assert.Equal(t, DropReasonDuplicateHash, second.DropReason)
	assert.EqualValues(t, 1, counters.CrashesTotal()) // not incremented twice
}

// Scenario 6: ignore-below-addr suppression.
func TestOnSignalStopIgnoreBelowAddr(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{IgnoreBelowAddr: 0x10000})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11,
		FaultAddr:    0x200,
		FromUser:     false,
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeDrop, res.Outcome)
	assert.Equal(t, DropReasonUninteresting, res.DropReason)
	assert.EqualValues(t, 0, counters.CrashesTotal())
}

func TestOnSignalStopIgnoreBelowAddrSkippedForUserRaised(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{IgnoreBelowAddr: 0x10000, SaveUnique: true})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       6, // SIGABRT via raise()
		FaultAddr:    0x200,
		FromUser:     true,
		PC:           0x1234,
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeSave, res.Outcome)
	// User-raised signals always zero the fault addr in the filename.
	assert.EqualValues(t, 0, res.Filename.FaultAddr)
}

func TestOnSignalStopAnalyzeOnlyForNonMainWorker(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11,
		PC:           0xdeadbeef,
		RawFrames:    frames(0xdeadbeef),
		IsMainWorker: false,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeAnalyzeOnly, res.Outcome)
	assert.EqualValues(t, 0, counters.CrashesTotal())
}

func TestOnSignalStopWhitelistOverridesBlacklist(t *testing.T) {
	stack := crash.CallStack{{PC: 0x1000, Symbol: "trusted_fn"}}
	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		SaveUnique:      true,
		SymbolWhitelist: []string{"trusted_fn"},
		SymbolBlacklist: []string{"trusted_fn"},
	})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11,
		PC:           0x1000,
		RawFrames:    stack,
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeSave, res.Outcome)
	assert.False(t, res.SaveUnique)
	assert.EqualValues(t, 0, counters.BlacklistedCrashes())
}

func TestOnSignalStopBlacklistedSymbol(t *testing.T) {
	stack := crash.CallStack{{PC: 0x1000, Symbol: "evil_fn"}}
	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		SaveUnique:      true,
		SymbolBlacklist: []string{"evil_fn"},
	})
	counters := &crash.SharedCounters{}

	in := SignalInput{
		Signal:       11,
		PC:           0x1000,
		RawFrames:    stack,
		IsMainWorker: true,
		Width:        fingerprint.Bits64,
	}

	res := OnSignalStop(cfg, counters, in)
	assert.Equal(t, OutcomeDrop, res.Outcome)
	assert.Equal(t, DropReasonBlacklistedSymbol, res.DropReason)
	assert.EqualValues(t, 1, counters.BlacklistedCrashes())
}

// Scenario 5 (sanitizer exit) exercises OnSanitizerExit directly; the log
// parsing half is covered in pkg/saniparse.
func TestOnSanitizerExitSave(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true, DisableRandomization: true})
	counters := &crash.SharedCounters{}

	res := OnSanitizerExit(cfg, counters, crash.SanASAN, crash.OpRead, 0xdeadc0de,
		frames(0x1, 0x2, 0x3, 0x4))

	assert.Equal(t, OutcomeSave, res.Outcome)
	assert.Equal(t, crash.SanASAN, res.Record.SanitizerTag)
	assert.Equal(t, crash.OpRead, res.Record.Op)
	assert.Equal(t, uint64(0xdeadc0de), res.Filename.FaultAddr)
	assert.EqualValues(t, 1, counters.CrashesTotal())
}

func TestOnSanitizerExitBlacklistedHash(t *testing.T) {
	probe := OnSanitizerExit(crash.NewSharedConfig(crash.ConfigOptions{SaveUnique: true}),
		&crash.SharedCounters{}, crash.SanASAN, crash.OpWrite, 0xabc, frames(0x1))

	cfg := crash.NewSharedConfig(crash.ConfigOptions{
		SaveUnique:         true,
		StackHashBlacklist: []uint64{uint64(probe.NewHash)},
	})
	counters := &crash.SharedCounters{}

	res := OnSanitizerExit(cfg, counters, crash.SanASAN, crash.OpWrite, 0xabc, frames(0x1))
	assert.Equal(t, OutcomeDrop, res.Outcome)
	assert.Equal(t, DropReasonBlacklistedHash, res.DropReason)
}
