// Copyright 2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cgroups

import (
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// killPid signals pid unconditionally; used when cgroup.kill is not
// available on the running kernel.
func killPid(pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}

// waitForEmpty polls cgroup.procs until the group has no attached
// processes left, bounded by a short grace period — a best-effort wait,
// never a source of truth; Destroy removes the node regardless afterwards
// and treats a non-empty directory removal failure as the terminal state.
func waitForEmpty(groupPath string) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lines, err := readCgroupFileLines(filepath.Join(groupPath, "cgroup.procs"))
		if err != nil || len(lines) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
