/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package signals is the pure signal-classification lookup table (C6),
// grounded on honggfuzz's arch_sigs[] table in
// original_source/linux/ptrace_utils.c.
package signals

import "golang.org/x/sys/unix"

// Policy describes how the dispatcher should treat a stop signal.
type Policy struct {
	Descr     string
	Important bool
}

// table is immutable for the process lifetime (spec.md §5 "Signal table:
// read-only, process-lifetime"). SIGABRT is important by default; some
// ABIs (historically mobile/Android) turn it off via DisableSigabrt.
var table = map[int]Policy{
	int(unix.SIGTRAP): {Descr: "SIGTRAP", Important: false},
	int(unix.SIGILL):  {Descr: "SIGILL", Important: true},
	int(unix.SIGFPE):  {Descr: "SIGFPE", Important: true},
	int(unix.SIGSEGV): {Descr: "SIGSEGV", Important: true},
	int(unix.SIGBUS):  {Descr: "SIGBUS", Important: true},
	int(unix.SIGABRT): {Descr: "SIGABRT", Important: true},
}

// Classify returns the policy for signo. Unknown signals classify as
// ("UNKNOWN", false) per spec.md §4.6.
func Classify(signo int, disableSigabrt bool) (descr string, important bool) {
	p, ok := table[signo]
	if !ok {
		return "UNKNOWN", false
	}
	if signo == int(unix.SIGABRT) && disableSigabrt {
		return p.Descr, false
	}
	return p.Descr, p.Important
}
