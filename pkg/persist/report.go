/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package persist

import (
	"fmt"
	"strings"

	"github.com/containerd/honggo/pkg/crash"
)

// FormatReport implements spec.md §4.9's line-oriented text report,
// grounded on arch_ptraceGenerateReport in
// original_source/linux/ptrace_utils.c.
func FormatReport(origName, crashPath string, pid int, record crash.CrashRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ORIG_FNAME: %s\n", origName)
	fmt.Fprintf(&b, "FUZZ_FNAME: %s\n", crashPath)
	fmt.Fprintf(&b, "PID: %d\n", pid)

	if record.SanitizerTag != crash.SanNone {
		fmt.Fprintf(&b, "EXIT CODE: %s\n", record.SanitizerTag)
		fmt.Fprintf(&b, "OPERATION: %s\n", record.Op)
	} else {
		fmt.Fprintf(&b, "SIGNAL: %d\n", record.Signal)
		addr := record.FaultAddr
		if record.FromUser {
			addr = 0
		}
		fmt.Fprintf(&b, "FAULT ADDRESS: 0x%x\n", addr)
		fmt.Fprintf(&b, "INSTRUCTION: %s\n", record.InstrStr)
	}

	fmt.Fprintf(&b, "STACK HASH: %016x\n", uint64(record.StackHash))
	b.WriteString("STACK:\n")
	for _, f := range record.Stack {
		if f.Symbol != "" {
			fmt.Fprintf(&b, " <0x%x> [%s + 0x%x]\n", f.PC, f.Symbol, f.Offset)
		} else {
			fmt.Fprintf(&b, " <0x%x> []\n", f.PC)
		}
	}

	return b.String()
}
