/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package saniparse implements the sanitizer report parser (C7), grounded
// on honggfuzz's arch_parseAsanReport in
// original_source/linux/ptrace_utils.c.
package saniparse

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/errdefs"
)

// Result is what a completed parse yields.
type Result struct {
	CrashAddr uint64
	Op        crash.Operation
	Frames    crash.CallStack
}

// LogPath composes the ephemeral sanitizer log path this parser reads and
// deletes, per spec.md §4.7: "<work_dir>/<log_prefix>.<pid>".
func LogPath(workDir, logPrefix string, pid int) string {
	return filepath.Join(workDir, fmt.Sprintf("%s.%d", logPrefix, pid))
}

// state is the two-state machine of spec.md §4.7.
type state int

const (
	seekingHeader state = iota
	collectingFrames
)

// Parse reads the sanitizer log at path and unlinks it on completion
// (whether or not a header was found), per spec.md §4.7 "On completion:
// unlink the log file". It returns errdefs.ErrSanitizerLogMissing if the
// file does not exist yet — "not my TID, try again later" — without
// touching the filesystem.
func Parse(path string, pid int) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.ErrSanitizerLogMissing
		}
		return nil, err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	header := fmt.Sprintf("==%d==ERROR: AddressSanitizer:", pid)

	res := &Result{Op: crash.OpUnknown}
	var crashAddrStr string
	st := seekingHeader
	frameIdx := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if st == seekingHeader {
			if strings.HasPrefix(line, header) {
				st = collectingFrames
				if addr, ok := extractCrashAddr(line); ok {
					crashAddrStr = addr
					res.CrashAddr = parseHexAddr(addr)
				}
			}
			continue
		}

		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			if frameIdx != 0 {
				break
			}
			continue
		}
		if len(trimmed) < 10 {
			continue
		}

		// Intended semantics (spec.md §9 open question: the original's
		// strncmp(line,"READ",4) check is inverted and never fires; this
		// implementation fixes the *test-visible* behavior to the
		// documented intent without otherwise changing parse structure):
		// a line containing the crash address and starting with READ/WRITE
		// sets Op accordingly.
		if crashAddrStr != "" && strings.Contains(trimmed, crashAddrStr) {
			switch {
			case strings.HasPrefix(trimmed, "READ"):
				res.Op = crash.OpRead
			case strings.HasPrefix(trimmed, "WRITE"):
				res.Op = crash.OpWrite
			}
		}

		framePrefix := fmt.Sprintf("#%d", frameIdx)
		if strings.HasPrefix(trimmed, framePrefix) {
			if frameIdx >= crash.MaxFrames {
				break
			}
			frame, ok := parseFrameLine(trimmed, framePrefix)
			if ok {
				res.Frames = append(res.Frames, frame)
			}
			frameIdx++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return res, nil
}

// extractCrashAddr finds "address 0x..." in line and returns the hex
// token up to the next space, per spec.md §4.7.
func extractCrashAddr(line string) (string, bool) {
	idx := strings.Index(line, "address 0x")
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len("address "):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	return rest, true
}

func parseHexAddr(s string) uint64 {
	s = strings.TrimPrefix(s, "0x")
	v, _ := parseUintHex(s)
	return v
}

func parseUintHex(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}

// parseFrameLine parses a frame of the form:
//
//	#0 0xaa860177  (/system/lib/libc.so+0x196177)
//
// into a crash.Frame, per spec.md §4.7. A line with only the PC, or whose
// second token is not "(module+0xOFFSET)", yields a frame with the PC and
// no symbol.
func parseFrameLine(line, framePrefix string) (crash.Frame, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != framePrefix {
		return crash.Frame{}, false
	}

	pcStr := strings.TrimPrefix(fields[1], "0x")
	pc, err := parseUintHex(pcStr)
	if err != nil {
		return crash.Frame{}, false
	}
	if len(fields) < 3 {
		return crash.Frame{PC: pc}, true
	}

	target := fields[2]
	start := strings.IndexByte(target, '(')
	end := strings.LastIndexByte(target, ')')
	plus := strings.IndexByte(target, '+')
	if start < 0 || end < 0 || plus < 0 || plus < start {
		return crash.Frame{PC: pc}, true
	}

	module := target[start+1 : plus]
	if len(module) > crash.MaxSymbolLen {
		module = module[:crash.MaxSymbolLen]
	}
	offsetStr := target[plus+1 : end]
	offsetStr = strings.TrimPrefix(offsetStr, "0x")
	offset, _ := parseUintHex(offsetStr)

	return crash.Frame{PC: pc, Symbol: module, Offset: uint32(offset)}, true
}
