/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package errdefs holds the sentinel errors shared across the crash
// analysis core. Each per-tracee error kind is recoverable locally by
// its caller; see the component that returns it for the recovery rule.
package errdefs

import (
	"github.com/pkg/errors"
)

var (
	// ErrTraceeGone indicates the tracee died mid-operation. Callers treat
	// this as a successful completion of the event; nothing is saved.
	ErrTraceeGone = errors.New("tracee no longer exists")

	// ErrRegReadFailed indicates both register-acquisition paths failed.
	// The stop is unanalyzable; the tracee is continued without a save.
	ErrRegReadFailed = errors.New("register read failed")

	// ErrUnwindEmpty indicates the unwinder returned zero frames.
	ErrUnwindEmpty = errors.New("unwind produced no frames")

	// ErrSanitizerLogMissing indicates the sanitizer log file for this pid
	// does not exist yet. The caller should leave crash_path empty so
	// another tid can retry.
	ErrSanitizerLogMissing = errors.New("sanitizer log missing")

	// ErrPersistDuplicate indicates the crash file already exists.
	ErrPersistDuplicate = errors.New("crash file already exists")

	// ErrPersistIOError indicates the copy failed for a reason other than
	// the destination already existing.
	ErrPersistIOError = errors.New("crash persist io error")
)

// IsTraceeGone returns true if the error is due to the tracee disappearing.
func IsTraceeGone(err error) bool {
	return errors.Is(err, ErrTraceeGone)
}

// IsRegReadFailed returns true if the error is a register read failure.
func IsRegReadFailed(err error) bool {
	return errors.Is(err, ErrRegReadFailed)
}

// IsUnwindEmpty returns true if the error is an empty unwind result.
func IsUnwindEmpty(err error) bool {
	return errors.Is(err, ErrUnwindEmpty)
}

// IsSanitizerLogMissing returns true if the sanitizer log wasn't found yet.
func IsSanitizerLogMissing(err error) bool {
	return errors.Is(err, ErrSanitizerLogMissing)
}

// IsPersistDuplicate returns true if the error is a duplicate crash file.
func IsPersistDuplicate(err error) bool {
	return errors.Is(err, ErrPersistDuplicate)
}

// IsPersistIOError returns true if the error is a non-duplicate persist failure.
func IsPersistIOError(err error) bool {
	return errors.Is(err, ErrPersistIOError)
}
