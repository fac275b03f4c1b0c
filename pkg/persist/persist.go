/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package persist implements the crash persistor (C9), grounded on
// honggfuzz's arch_ptraceAnalyze save path and arch_ptraceExitAnalyze in
// original_source/linux/ptrace_utils.c, with file copying done the
// teacher's way (io.Copy over os.OpenFile, pkg/backend/localfs.go).
package persist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/containerd/honggo/pkg/classifier"
	"github.com/containerd/honggo/pkg/crash"
	"github.com/containerd/honggo/pkg/signals"
)

// Status is the outcome of Save, spec.md §4.9: "{saved | duplicate | io_error}".
type Status int

const (
	StatusSaved Status = iota
	StatusDuplicate
	StatusIOError
)

// ComposeFilename implements spec.md §4.9's filename composition. now is
// the wall-clock instant used for the non-unique "insert local_time.pid
// before the extension" branch; callers pass time.Now() but the
// parameter keeps this function deterministic for tests.
func ComposeFilename(cfg *crash.SharedConfig, parts classifier.FilenameParts, origName string, saveUnique bool, now time.Time, pid int) string {
	if cfg.DryRun {
		return filepath.Join(cfg.WorkDir, origName)
	}

	sigTag := signalTag(parts.Signal)
	base := fmt.Sprintf("%s.PC.%x.STACK.%016x.CODE.%d.ADDR.%x.INSTR.%s",
		sigTag, parts.PC, uint64(parts.StackHash), parts.SiCode, parts.FaultAddr, sanitizeInstr(parts.InstrStr))

	if saveUnique {
		return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s.%s", base, cfg.FileExt))
	}

	localTime := now.Format("2006.01.02.15:04:05")
	return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s.%s.%d.%s", base, localTime, pid, cfg.FileExt))
}

// ComposeSanitizerFilename is the sanitizer-exit counterpart of spec.md
// §4.9: "<SIG> replaced by sanitizer tag, CODE holding READ|WRITE|UNKNOWN".
func ComposeSanitizerFilename(cfg *crash.SharedConfig, tag crash.SanitizerTag, op crash.Operation, parts classifier.FilenameParts, origName string, saveUnique bool, now time.Time, pid int) string {
	if cfg.DryRun {
		return filepath.Join(cfg.WorkDir, origName)
	}

	base := fmt.Sprintf("%s.PC.%x.STACK.%016x.CODE.%s.ADDR.%x.INSTR.%s",
		tag.String(), parts.PC, uint64(parts.StackHash), op.String(), parts.FaultAddr, sanitizeInstr(parts.InstrStr))

	if saveUnique {
		return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s.%s", base, cfg.FileExt))
	}

	localTime := now.Format("2006.01.02.15:04:05")
	return filepath.Join(cfg.WorkDir, fmt.Sprintf("%s.%s.%d.%s", base, localTime, pid, cfg.FileExt))
}

// signalTag renders the <SIG> filename component using the descriptor
// from the pkg/signals table, falling back to "SIG<n>" for a signal the
// table doesn't know.
func signalTag(signo int) string {
	descr, _ := signals.Classify(signo, false)
	if descr == "UNKNOWN" {
		return fmt.Sprintf("SIG%d", signo)
	}
	return descr
}

func sanitizeInstr(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ReplaceAll(s, " ", "_")
}

// Save implements spec.md §4.9's save(input_path, crash_path): copy the
// file; if the target exists, report a duplicate so another thread in
// the same group may retry. On success, it increments unique_crashes,
// resets dyn_iter_expire, writes the text report, and — if SaveMaps is
// set — snapshots /proc/<pid>/maps next to the crash file.
func Save(cfg *crash.SharedConfig, counters *crash.SharedCounters, pid int, inputPath, crashPath string, record crash.CrashRecord, origName string) Status {
	existed, err := copyFile(inputPath, crashPath)
	if existed {
		logrus.WithField("path", crashPath).Info("crash file already exists, treating as duplicate")
		return StatusDuplicate
	}
	if err != nil {
		logrus.WithError(err).WithField("path", crashPath).Error("failed to save crash file")
		return StatusIOError
	}

	logrus.WithFields(logrus.Fields{"input": inputPath, "crash": crashPath}).Info("saved new crash")
	counters.IncUniqueCrashes()
	counters.ResetDynIterExpire()

	reportPath := reportPathFor(crashPath)
	report := FormatReport(origName, crashPath, pid, record)
	if werr := os.WriteFile(reportPath, []byte(report), 0o644); werr != nil {
		logrus.WithError(werr).Error("failed to write crash report")
	}

	if cfg.SaveMaps {
		mapsPath := mapsPathFor(crashPath)
		if merr := snapshotMaps(pid, mapsPath); merr != nil {
			logrus.WithError(merr).Error("failed to snapshot /proc/pid/maps")
		}
	}

	return StatusSaved
}

// copyFile copies src to dst, refusing to overwrite an existing dst
// (existed=true in that case), matching files_copyFile's O_EXCL
// semantics (original_source/libhfcommon/files.c).
func copyFile(src, dst string) (existed bool, err error) {
	in, err := os.Open(src)
	if err != nil {
		return false, errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return true, err
		}
		return false, errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return false, errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return false, nil
}

func reportPathFor(crashPath string) string {
	ext := filepath.Ext(crashPath)
	return strings.TrimSuffix(crashPath, ext) + ".report.txt"
}

func mapsPathFor(crashPath string) string {
	ext := filepath.Ext(crashPath)
	return strings.TrimSuffix(crashPath, ext) + ".maps"
}

func snapshotMaps(pid int, dst string) error {
	src := fmt.Sprintf("/proc/%d/maps", pid)
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
