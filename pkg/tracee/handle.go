/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package tracee wraps ptrace access to a single stopped thread: memory
// reads (C1), register views (C2), and thread-group attach/detach (C10).
// Grounded on honggfuzz's arch_ptrace* functions in
// original_source/linux/ptrace_utils.c and on the ptrace wrapper style of
// other_examples' DataDog-datadog-agent ptracer.go.
package tracee

// Handle is a lightweight reference to a ptrace-stopped thread. Every
// method assumes the tracee is group-stop or signal-stop per spec.md §5
// "Process/thread state: the tracee must be in a ptrace-stop"; callers
// (the dispatcher, C11) own that invariant.
type Handle struct {
	PID int
}

// New wraps pid. It does not itself attach; see Attach.
func New(pid int) *Handle {
	return &Handle{PID: pid}
}
