/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package command binds the CLI surface to an Args struct, the same
// split the teacher uses in cmd/containerd-nydus-grpc/pkg/command/flags.go.
package command

import (
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	defaultLogLevel      = logrus.InfoLevel
	defaultRootDir       = "/var/lib/honggo-monitor"
	defaultFileExtension = "fuzz"
	defaultNumMajor      = 7
	defaultMetricsAddr   = ""
	defaultLogPrefix     = "ASAN"

	defaultRotateLogMaxSize    = 200 // megabytes
	defaultRotateLogMaxBackups = 10
	defaultRotateLogMaxAge     = 30 // days
)

// Args is the fully-parsed startup configuration, handed to
// crash.NewSharedConfig after parsing (spec.md §4.12, §6).
type Args struct {
	WorkDir              string
	InputDir             string
	FileExtension        string
	LogLevel             string
	LogDir               string
	LogToStdout          bool
	RotateLogMaxSize     int
	RotateLogMaxBackups  int
	RotateLogMaxAge      int
	RotateLogCompress    bool
	RotateLogLocalTime   bool
	RootDir              string
	MetricsAddress       string
	IgnoreBelowAddr      uint64
	SaveUnique           bool
	DisableRandomization bool
	UseVerifier          bool
	FlipRate             float64
	SaveMaps             bool
	NumMajorFrames       int
	SymbolWhitelist      cli.StringSlice
	SymbolBlacklist      cli.StringSlice
	StackHashBlacklist   string // path to a newline-delimited hex hash file
	LogPrefix            string
	DisableSigabrt       bool
	MSanExitCode         int
	ASanExitCode         int
	UBSanExitCode        int
	TargetPID            int
	PrintVersion         bool
}

type Flags struct {
	Args *Args
	F    []cli.Flag
}

func buildFlags(args *Args) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "version",
			Usage:       "print version and build information",
			Destination: &args.PrintVersion,
		},
		&cli.StringFlag{
			Name:        "work-dir",
			Aliases:     []string{"W"},
			Usage:       "set `DIRECTORY` to write crash files, reports and sanitizer logs",
			Destination: &args.WorkDir,
		},
		&cli.StringFlag{
			Name:        "input-dir",
			Aliases:     []string{"i"},
			Usage:       "set `DIRECTORY` holding the fuzzing corpus inputs being replayed",
			Destination: &args.InputDir,
		},
		&cli.StringFlag{
			Name:        "file-extension",
			Value:       defaultFileExtension,
			Usage:       "file `EXTENSION` appended to saved crash files",
			Destination: &args.FileExtension,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Value:       defaultLogLevel.String(),
			Aliases:     []string{"l"},
			Usage:       "set the logging `LEVEL` [trace, debug, info, warn, error, fatal, panic]",
			Destination: &args.LogLevel,
		},
		&cli.StringFlag{
			Name:        "log-dir",
			Aliases:     []string{"L"},
			Usage:       "set `DIRECTORY` to store log files",
			Destination: &args.LogDir,
		},
		&cli.BoolFlag{
			Name:        "log-to-stdout",
			Usage:       "log messages to standard out rather than files",
			Destination: &args.LogToStdout,
		},
		&cli.IntFlag{
			Name:        "log-rotate-max-size",
			Value:       defaultRotateLogMaxSize,
			Usage:       "rotate the monitor's own log file once it reaches this size in `MEGABYTES`",
			Destination: &args.RotateLogMaxSize,
		},
		&cli.IntFlag{
			Name:        "log-rotate-max-backups",
			Value:       defaultRotateLogMaxBackups,
			Usage:       "maximum `COUNT` of rotated log files to retain",
			Destination: &args.RotateLogMaxBackups,
		},
		&cli.IntFlag{
			Name:        "log-rotate-max-age",
			Value:       defaultRotateLogMaxAge,
			Usage:       "maximum age in `DAYS` of a rotated log file before deletion",
			Destination: &args.RotateLogMaxAge,
		},
		&cli.BoolFlag{
			Name:        "log-rotate-compress",
			Usage:       "gzip rotated log files",
			Destination: &args.RotateLogCompress,
		},
		&cli.BoolFlag{
			Name:        "log-rotate-local-time",
			Usage:       "use the local timezone instead of UTC for rotated log file timestamps",
			Destination: &args.RotateLogLocalTime,
		},
		&cli.StringFlag{
			Name:        "root",
			Value:       defaultRootDir,
			Aliases:     []string{"R"},
			Usage:       "set `DIRECTORY` to store monitor working state",
			Destination: &args.RootDir,
		},
		&cli.StringFlag{
			Name:        "metrics-address",
			Value:       defaultMetricsAddr,
			Usage:       "enable the Prometheus metrics server by setting to an `ADDRESS`, e.g. \":9090\"",
			Destination: &args.MetricsAddress,
		},
		&cli.Uint64Flag{
			Name:        "ignore-below-addr",
			Usage:       "drop non-user-induced faults below this `ADDRESS` as uninteresting",
			Destination: &args.IgnoreBelowAddr,
		},
		&cli.BoolFlag{
			Name:        "save-unique",
			Value:       true,
			Usage:       "deduplicate crash files by stack hash",
			Destination: &args.SaveUnique,
		},
		&cli.BoolFlag{
			Name:        "disable-randomization",
			Usage:       "keep the real PC/fault address in crash filenames instead of zeroing them for ASLR reproducibility",
			Destination: &args.DisableRandomization,
		},
		&cli.BoolFlag{
			Name:        "use-verifier",
			Usage:       "together with --flip-rate 0, enables dry-run mode (crash files are named after the original input); crashes are not re-run",
			Destination: &args.UseVerifier,
		},
		&cli.Float64Flag{
			Name:        "flip-rate",
			Usage:       "bit-flip rate driving the fuzzing mutator; 0 with --use-verifier enables dry-run mode",
			Destination: &args.FlipRate,
		},
		&cli.BoolFlag{
			Name:        "save-maps",
			Usage:       "snapshot /proc/<pid>/maps alongside every persisted crash",
			Destination: &args.SaveMaps,
		},
		&cli.IntFlag{
			Name:        "num-major-frames",
			Value:       defaultNumMajor,
			Usage:       "number of innermost stack frames folded into the dedup hash",
			Destination: &args.NumMajorFrames,
		},
		&cli.StringSliceFlag{
			Name:        "whitelist-symbol",
			Usage:       "symbol that, if present in a crash stack, overrides all blacklist checks",
			Destination: &args.SymbolWhitelist,
		},
		&cli.StringSliceFlag{
			Name:        "blacklist-symbol",
			Usage:       "symbol that, if present in a crash stack, drops the crash",
			Destination: &args.SymbolBlacklist,
		},
		&cli.StringFlag{
			Name:        "stack-hash-blacklist",
			Usage:       "`FILE` of newline-delimited hex stack hashes to drop",
			Destination: &args.StackHashBlacklist,
		},
		&cli.StringFlag{
			Name:        "sanitizer-log-prefix",
			Value:       defaultLogPrefix,
			Usage:       "filename `PREFIX` for sanitizer log files, read as <work-dir>/<prefix>.<pid>",
			Destination: &args.LogPrefix,
		},
		&cli.BoolFlag{
			Name:        "disable-sigabrt",
			Usage:       "treat SIGABRT as unimportant (some ABIs use it for non-fatal aborts)",
			Destination: &args.DisableSigabrt,
		},
		&cli.IntFlag{
			Name:        "msan-exit-code",
			Usage:       "process exit code MemorySanitizer uses to signal a detected error",
			Destination: &args.MSanExitCode,
		},
		&cli.IntFlag{
			Name:        "asan-exit-code",
			Usage:       "process exit code AddressSanitizer uses to signal a detected error",
			Destination: &args.ASanExitCode,
		},
		&cli.IntFlag{
			Name:        "ubsan-exit-code",
			Usage:       "process exit code UndefinedBehaviorSanitizer uses to signal a detected error",
			Destination: &args.UBSanExitCode,
		},
		&cli.IntFlag{
			Name:        "pid",
			Aliases:     []string{"p"},
			Usage:       "`PID` of the already-running process to attach to and monitor",
			Destination: &args.TargetPID,
		},
	}
}

func NewFlags() *Flags {
	var args Args
	return &Flags{
		Args: &args,
		F:    buildFlags(&args),
	}
}
