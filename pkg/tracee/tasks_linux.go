/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

//go:build linux

package tracee

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Tasks lists the thread IDs currently in pid's thread group by reading
// /proc/<pid>/task, the portable equivalent of iterating NT_PRSTATUS
// threads honggfuzz discovers via its own /proc/<pid>/task scan in the
// Linux ptrace backend (spec.md §4.10: "enumerate all threads in the
// tracee's thread group").
func Tasks(pid int) ([]int, error) {
	dir := fmt.Sprintf("/proc/%d/task", pid)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}

	tids := make([]int, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	return tids, nil
}
