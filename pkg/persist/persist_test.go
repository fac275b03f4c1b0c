/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/containerd/honggo/pkg/classifier"
	"github.com/containerd/honggo/pkg/crash"
)

func TestComposeFilenameUnique(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{WorkDir: "/work", FileExt: "fuzz"})
	parts := classifier.FilenameParts{Signal: 11, SiCode: 1, PC: 0xdeadbeef, FaultAddr: 0x400123, StackHash: 0xabc, InstrStr: "mov eax, ebx"}

	got := ComposeFilename(cfg, parts, "orig", true, time.Time{}, 4242)
	want := filepath.Join("/work", "SIGSEGV.PC.deadbeef.STACK.0000000000000abc.CODE.1.ADDR.400123.INSTR.mov_eax,_ebx.fuzz")
	assert.Equal(t, want, got)
}

func TestComposeFilenameNonUniqueIncludesTimeAndTraceePid(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{WorkDir: "/work", FileExt: "fuzz"})
	parts := classifier.FilenameParts{Signal: 4, StackHash: 1}
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	const traceePID = 54321

	got := ComposeFilename(cfg, parts, "orig", false, now, traceePID)
	want := filepath.Join("/work", "SIGILL.PC.0.STACK.0000000000000001.CODE.0.ADDR.0.INSTR.UNKNOWN.2026.07.31.10:00:00.54321.fuzz")
	assert.Equal(t, want, got, "the non-unique branch must embed the tracee's pid, not the monitor's own")
	assert.NotContains(t, got, fmt.Sprintf(".%d.fuzz", os.Getpid()),
		"must not fall back to the monitor's own pid when a distinct tracee pid is supplied")
}

func TestComposeFilenameDryRunReturnsOrigName(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{WorkDir: "/work", FlipRate: 0.0, UseVerifier: true})
	got := ComposeFilename(cfg, classifier.FilenameParts{}, "orig-input", true, time.Time{}, 1)
	assert.Equal(t, filepath.Join("/work", "orig-input"), got)
}

func TestComposeSanitizerFilename(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{WorkDir: "/work", FileExt: "fuzz"})
	parts := classifier.FilenameParts{PC: 0x1, FaultAddr: 0xbeef, StackHash: 0x42}

	got := ComposeSanitizerFilename(cfg, crash.SanASAN, crash.OpRead, parts, "orig", true, time.Time{}, 99)
	want := filepath.Join("/work", "ASAN.PC.1.STACK.0000000000000042.CODE.READ.ADDR.beef.INSTR.UNKNOWN.fuzz")
	assert.Equal(t, want, got)
}

func TestComposeSanitizerFilenameNonUniqueUsesTraceePid(t *testing.T) {
	cfg := crash.NewSharedConfig(crash.ConfigOptions{WorkDir: "/work", FileExt: "fuzz"})
	parts := classifier.FilenameParts{PC: 0x1, FaultAddr: 0xbeef, StackHash: 0x42}
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	const traceePID = 777

	got := ComposeSanitizerFilename(cfg, crash.SanASAN, crash.OpRead, parts, "orig", false, now, traceePID)
	assert.Contains(t, got, fmt.Sprintf(".%d.fuzz", traceePID))
	assert.NotContains(t, got, fmt.Sprintf(".%d.fuzz", os.Getpid()))
}

func TestSignalTagKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "SIGSEGV", signalTag(11))
	assert.Equal(t, "SIG999", signalTag(999))
}

func TestSanitizeInstrReplacesSpacesAndHandlesEmpty(t *testing.T) {
	assert.Equal(t, "UNKNOWN", sanitizeInstr(""))
	assert.Equal(t, "mov_eax,_ebx", sanitizeInstr("mov eax, ebx"))
}

func TestSaveSuccessWritesFileAndReport(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("crashy bytes"), 0o644))

	crashPath := filepath.Join(dir, "out.fuzz")
	cfg := crash.NewSharedConfig(crash.ConfigOptions{})
	counters := &crash.SharedCounters{}

	status := Save(cfg, counters, 1234, input, crashPath, crash.CrashRecord{Signal: 11, StackHash: 1}, "input.bin")
	assert.Equal(t, StatusSaved, status)
	assert.EqualValues(t, 1, counters.UniqueCrashes())

	got, err := os.ReadFile(crashPath)
	require.NoError(t, err)
	assert.Equal(t, "crashy bytes", string(got))

	report, err := os.ReadFile(reportPathFor(crashPath))
	require.NoError(t, err)
	assert.Contains(t, string(report), "ORIG_FNAME: input.bin")
}

func TestSaveDuplicateWhenCrashPathExists(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(input, []byte("a"), 0o644))
	crashPath := filepath.Join(dir, "out.fuzz")
	require.NoError(t, os.WriteFile(crashPath, []byte("existing"), 0o644))

	cfg := crash.NewSharedConfig(crash.ConfigOptions{})
	counters := &crash.SharedCounters{}

	status := Save(cfg, counters, 1, input, crashPath, crash.CrashRecord{}, "input.bin")
	assert.Equal(t, StatusDuplicate, status)
	assert.EqualValues(t, 0, counters.UniqueCrashes())

	got, err := os.ReadFile(crashPath)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(got), "duplicate save must not overwrite the existing file")
}

func TestSaveIOErrorWhenInputMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := crash.NewSharedConfig(crash.ConfigOptions{})
	counters := &crash.SharedCounters{}

	status := Save(cfg, counters, 1, filepath.Join(dir, "nope"), filepath.Join(dir, "out"), crash.CrashRecord{}, "input.bin")
	assert.Equal(t, StatusIOError, status)
}

func TestCopyFileRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("y"), 0o644))

	existed, err := copyFile(src, dst)
	assert.True(t, existed)
	assert.Error(t, err)
}

func TestReportAndMapsPathFor(t *testing.T) {
	assert.Equal(t, "/tmp/x.report.txt", reportPathFor("/tmp/x.fuzz"))
	assert.Equal(t, "/tmp/x.maps", mapsPathFor("/tmp/x.fuzz"))
}
