/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 * Copyright (c) 2023. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package logging wires the process-wide logrus configuration used by
// every package in the crash analysis core.
package logging

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultLogDirName is the log subdirectory created under rootDir
	// when logging to a file rather than stdout and no logDir is given.
	DefaultLogDirName  = "logs"
	defaultLogFileName = "honggo-monitor.log"

	// RFC3339NanoFixed keeps the timestamp width constant across entries,
	// unlike time.RFC3339Nano which trims trailing zero fractional digits.
	RFC3339NanoFixed = "2006-01-02T15:04:05.000000000Z07:00"
)

// RotateLogArgs configures lumberjack's rotation of the monitor's own log
// file (not to be confused with the tracee's sanitizer/crash output,
// which persist writes separately). A nil RotateLogArgs is only valid
// when logToStdout is true.
type RotateLogArgs struct {
	RotateLogMaxSize    int
	RotateLogMaxBackups int
	RotateLogMaxAge     int
	RotateLogLocalTime  bool
	RotateLogCompress   bool
}

// SetUp configures the global logrus logger. logDir/rotateArgs are only
// consulted when logToStdout is false; an empty logDir falls back to
// rootDir/logs.
func SetUp(logLevel string, logToStdout bool, logDir string, rootDir string, rotateArgs *RotateLogArgs) error {
	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	if logToStdout {
		logrus.SetOutput(os.Stdout)
	} else {
		if rotateArgs == nil {
			return errors.New("rotateArgs is needed when logToStdout is false")
		}
		if len(logDir) == 0 {
			logDir = filepath.Join(rootDir, DefaultLogDirName)
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return errors.Wrapf(err, "create log dir %s", logDir)
		}
		logFile := filepath.Join(logDir, defaultLogFileName)
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    rotateArgs.RotateLogMaxSize,
			MaxBackups: rotateArgs.RotateLogMaxBackups,
			MaxAge:     rotateArgs.RotateLogMaxAge,
			Compress:   rotateArgs.RotateLogCompress,
			LocalTime:  rotateArgs.RotateLogLocalTime,
		})
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: RFC3339NanoFixed,
		FullTimestamp:   true,
	})
	return nil
}

type loggerKey struct{}

// WithContext attaches the process-wide logger to a background context,
// the same shape as the entry point every worker goroutine derives its
// per-tracee logger from.
func WithContext() context.Context {
	return context.WithValue(context.Background(), loggerKey{}, logrus.NewEntry(logrus.StandardLogger()))
}

// FromContext returns the logger attached by WithContext, falling back to
// the standard logger if none was attached (e.g. in tests).
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok {
		return entry
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Elapsed logs how long an operation took at debug level; grounded on the
// teacher's collector tick-timing style (pkg/metrics/serve.go's ticker use).
func Elapsed(entry *logrus.Entry, what string, since time.Time) {
	entry.WithField("elapsed", time.Since(since)).Debugf("%s done", what)
}
