/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package persist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/containerd/honggo/pkg/crash"
)

func TestFormatReportSignalCrash(t *testing.T) {
	record := crash.CrashRecord{
		Signal:    11,
		FaultAddr: 0x400123,
		InstrStr:  "mov eax, ebx",
		StackHash: 0xabc,
		Stack: crash.CallStack{
			{PC: 0xdeadbeef, Symbol: "main", Offset: 0x10},
			{PC: 0x400100},
		},
	}

	report := FormatReport("input.bin", "/work/out.fuzz", 1234, record)
	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")

	assert.Equal(t, "ORIG_FNAME: input.bin", lines[0])
	assert.Equal(t, "FUZZ_FNAME: /work/out.fuzz", lines[1])
	assert.Equal(t, "PID: 1234", lines[2])
	assert.Equal(t, "SIGNAL: 11", lines[3])
	assert.Equal(t, "FAULT ADDRESS: 0x400123", lines[4])
	assert.Equal(t, "INSTRUCTION: mov eax, ebx", lines[5])
	assert.Equal(t, "STACK HASH: 0000000000000abc", lines[6])
	assert.Equal(t, "STACK:", lines[7])
	assert.Equal(t, " <0xdeadbeef> [main + 0x10]", lines[8])
	assert.Equal(t, " <0x400100> []", lines[9])
}

func TestFormatReportZeroesFaultAddrForUserRaised(t *testing.T) {
	record := crash.CrashRecord{Signal: 6, FaultAddr: 0x1234, FromUser: true}
	report := FormatReport("input.bin", "/work/out.fuzz", 1, record)
	assert.Contains(t, report, "FAULT ADDRESS: 0x0\n")
}

func TestFormatReportSanitizerCrashOmitsSignalFields(t *testing.T) {
	record := crash.CrashRecord{
		SanitizerTag: crash.SanASAN,
		Op:           crash.OpRead,
		StackHash:    1,
	}
	report := FormatReport("input.bin", "/work/out.fuzz", 5, record)
	assert.Contains(t, report, "EXIT CODE: ASAN\n")
	assert.Contains(t, report, "OPERATION: READ\n")
	assert.NotContains(t, report, "SIGNAL:")
	assert.NotContains(t, report, "FAULT ADDRESS:")
}
