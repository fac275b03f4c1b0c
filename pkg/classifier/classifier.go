/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package classifier implements the crash classifier and filter (C8),
// grounded on honggfuzz's arch_ptraceAnalyze/arch_ptraceExitAnalyze in
// original_source/linux/ptrace_utils.c. It sits above pkg/crash (the data
// model and config), pkg/fingerprint (C5) and pkg/unwind (C4), so it
// cannot live inside pkg/crash without an import cycle.
package classifier

import (
	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/fingerprint"
	"github.com/containerd/honggo/pkg/unwind"
)

// Outcome is the terminal decision C8 reaches for one signal stop.
type Outcome int

const (
	// OutcomeDrop means no further action: uninteresting, a duplicate
	// within the same target process, or filtered by a blacklist.
	OutcomeDrop Outcome = iota
	// OutcomeSave means the full classify-and-persist path ran (main
	// worker only) and produced a CrashRecord ready for C9.
	OutcomeSave
	// OutcomeAnalyzeOnly means only steps 1,2,4,6 ran (non-main worker):
	// the slot's backtrace is updated but nothing is persisted.
	OutcomeAnalyzeOnly
)

// DropReason documents why OutcomeDrop was reached, for logging only —
// it changes no downstream behavior.
type DropReason int

const (
	DropReasonNone DropReason = iota
	DropReasonUninteresting
	DropReasonDuplicateHash
	DropReasonBlacklistedHash
	DropReasonBlacklistedSymbol
)

// SignalInput is everything C8 needs that it does not itself compute:
// the parts gathered via C1/C2/C3/C4 (tracee memory, registers, the
// disassembler facade, the unwinder facade), which are all I/O-bound
// collaborators the dispatcher (C11) owns.
type SignalInput struct {
	Signal       int
	SiCode       int32
	FaultAddr    uint64
	FromUser     bool // SI_FROMUSER(siginfo): raised via kill()/raise(), not a fault
	PC           uint64
	InstrStr     string
	RawFrames    crash.CallStack // unwinder output; may be empty
	OldHash      crash.StackHash // slot.Backtrace before this stop
	HasCrashPath bool            // slot.HasCrashed()
	IsMainWorker bool

	// LinkReg/HasLinkReg carry the ARM/ARM64 link register (spec.md §4.5's
	// single-frame LR fold); HasLinkReg is false on architectures without one.
	LinkReg    uint64
	HasLinkReg bool
	Width      fingerprint.WordWidth
}

// FilenameParts is the subset of a CrashRecord the persistor (C9) needs to
// compose a path, with the ASLR-reproducibility zeroing of step 12/13
// already applied.
type FilenameParts struct {
	Signal    int
	SiCode    int32
	PC        uint64
	FaultAddr uint64
	StackHash crash.StackHash
	InstrStr  string
}

// Result is what OnSignalStop produces.
type Result struct {
	Outcome    Outcome
	DropReason DropReason
	Record     crash.CrashRecord
	NewHash    crash.StackHash
	Filename   FilenameParts
	SaveUnique bool
}

// OnSignalStop implements spec.md §4.8's on_signal_stop(pid, slot,
// is_main_worker), steps 1-14 for the main worker and steps 1,2,4,6 only
// (analyze_only) otherwise. Steps 1 (read siginfo) and 2 (PC + disasm)
// are the caller's job (C11 gathers them via C1/C2/C3); everything from
// unwinding onward lives here.
func OnSignalStop(cfg *crash.SharedConfig, counters *crash.SharedCounters, in SignalInput) Result {
	// Step 3: drop uninteresting faults below the configured floor.
	if in.IsMainWorker && !in.FromUser && in.FaultAddr < cfg.IgnoreBelowAddr {
		return Result{Outcome: OutcomeDrop, DropReason: DropReasonUninteresting}
	}

	// Step 4: unwind with PC fallback. saveUnique starts from the config
	// toggle and degrades to false when the stack can't be trusted for
	// dedup (both unwind and PC fallback came up empty).
	stack, reliable := unwind.WithPCFallback(in.RawFrames, in.PC)
	saveUnique := cfg.SaveUnique && reliable

	// Step 6: hash, folding in the link register for the single-frame
	// ARM/ARM64 case (spec.md §4.5).
	kMajor := cfg.NumMajorFrames
	newHash := fingerprint.HashCallstack(stack, kMajor, in.Width, saveUnique)
	framesContributed := len(stack)
	if framesContributed > kMajor {
		framesContributed = kMajor
	}
	if framesContributed == 1 && in.HasLinkReg {
		newHash = fingerprint.FoldLinkRegister(newHash, in.LinkReg, in.Width)
	}

	if !in.IsMainWorker {
		return Result{Outcome: OutcomeAnalyzeOnly, NewHash: newHash, SaveUnique: saveUnique}
	}

	// Step 7: duplicate within the same target process.
	if in.HasCrashPath && in.OldHash == newHash {
		return Result{Outcome: OutcomeDrop, DropReason: DropReasonDuplicateHash, NewHash: newHash}
	}

	// Step 8.
	counters.IncCrashesTotal()

	// Step 9: whitelist short-circuits the blacklist checks entirely.
	whitelisted := cfg.WhitelistedSymbol(stack) != ""
	if whitelisted {
		saveUnique = false
	} else {
		// Step 10: blacklists.
		if cfg.BlacklistedHash(newHash) {
			counters.IncBlacklistedCrashes()
			return Result{Outcome: OutcomeDrop, DropReason: DropReasonBlacklistedHash, NewHash: newHash}
		}
		if sym := cfg.BlacklistedSymbol(stack); sym != "" {
			counters.IncBlacklistedCrashes()
			return Result{Outcome: OutcomeDrop, DropReason: DropReasonBlacklistedSymbol, NewHash: newHash}
		}
	}

	// Step 11.
	counters.ClearDynIterExpireHighBits()

	// Steps 12-13: zero pc and fault_addr in the filename when ASLR is
	// still in effect (randomization not disabled), so repeated runs
	// produce the same filename; zero fault_addr alone when the signal was
	// user-induced.
	filePC, fileFaultAddr := in.PC, in.FaultAddr
	if !cfg.DisableRandomization {
		filePC, fileFaultAddr = 0, 0
	}
	if in.FromUser {
		fileFaultAddr = 0
	}

	record := crash.CrashRecord{
		Signal:    in.Signal,
		SiCode:    in.SiCode,
		FaultAddr: in.FaultAddr,
		PC:        in.PC,
		InstrStr:  in.InstrStr,
		Stack:     stack,
		StackHash: newHash,
		FromUser:  in.FromUser,
	}

	return Result{
		Outcome:    OutcomeSave,
		Record:     record,
		NewHash:    newHash,
		SaveUnique: saveUnique,
		Filename: FilenameParts{
			Signal:    in.Signal,
			SiCode:    in.SiCode,
			PC:        filePC,
			FaultAddr: fileFaultAddr,
			StackHash: newHash,
			InstrStr:  in.InstrStr,
		},
	}
}

// OnSanitizerExit implements the sanitizer-exit counterpart referenced by
// spec.md §4.11: no signal, no disassembly, no PC — only the parsed ASan
// report's crash address, operation, and frames feed the same
// unwind/hash/whitelist/blacklist pipeline (steps 4, 6, 9-13).
func OnSanitizerExit(cfg *crash.SharedConfig, counters *crash.SharedCounters, tag crash.SanitizerTag, op crash.Operation, crashAddr uint64, frames crash.CallStack) Result {
	stack, reliable := unwind.WithPCFallback(frames, 0)
	saveUnique := cfg.SaveUnique && reliable

	kMajor := cfg.NumMajorFrames
	newHash := fingerprint.HashCallstack(stack, kMajor, fingerprint.Bits64, saveUnique)

	counters.IncCrashesTotal()

	whitelisted := cfg.WhitelistedSymbol(stack) != ""
	if whitelisted {
		saveUnique = false
	} else {
		if cfg.BlacklistedHash(newHash) {
			counters.IncBlacklistedCrashes()
			return Result{Outcome: OutcomeDrop, DropReason: DropReasonBlacklistedHash, NewHash: newHash}
		}
		if sym := cfg.BlacklistedSymbol(stack); sym != "" {
			counters.IncBlacklistedCrashes()
			return Result{Outcome: OutcomeDrop, DropReason: DropReasonBlacklistedSymbol, NewHash: newHash}
		}
	}

	counters.ClearDynIterExpireHighBits()

	fileAddr := crashAddr
	if !cfg.DisableRandomization {
		fileAddr = 0
	}

	record := crash.CrashRecord{
		FaultAddr:    crashAddr,
		Stack:        stack,
		StackHash:    newHash,
		Op:           op,
		SanitizerTag: tag,
	}

	return Result{
		Outcome:    OutcomeSave,
		Record:     record,
		NewHash:    newHash,
		SaveUnique: saveUnique,
		Filename: FilenameParts{
			FaultAddr: fileAddr,
			StackHash: newHash,
		},
	}
}
