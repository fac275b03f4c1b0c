/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package version

import (
	"fmt"
	"runtime"
)

var (
	// Version holds the complete version number. Filled in at linking time.
	Version = "unknown"

	// Revision is filled with the VCS (e.g. git) revision being used to build
	// the program at linking time.
	Revision = "unknown"

	// GoVersion is Go tree's version.
	GoVersion = runtime.Version()

	// BuildTimestamp is timestamp of building.
	BuildTimestamp = "unknown"
)

// String renders the four version fields as the multi-line block
// honggo-monitor prints for --version, so the CLI doesn't have to know
// the field layout itself.
func String() string {
	return fmt.Sprintf("Version:     %s\nRevision:    %s\nGo version:  %s\nBuild time:  %s\n",
		Version, Revision, GoVersion, BuildTimestamp)
}
