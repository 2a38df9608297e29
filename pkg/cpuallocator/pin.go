// Copyright 2019 Intel Corporation. All Rights Reserved.
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

package cpuallocator

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"k8s.io/utils/cpuset"
)

// PinProcess sets pid's CPU affinity mask to cpus directly via the OS
// scheduler, used as the uncontained-mode fallback when no cgroup v2
// resource group is available to pin CPUs through cpuset.cpus instead
// (§4.1, allow_uncontained).
func PinProcess(pid int, cpus cpuset.CPUSet) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus.ToSlice() {
		set.Set(cpu)
	}

	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return errors.Wrapf(err, "failed to pin pid %d to cpus %s", pid, cpus.String())
	}

	return nil
}

// NumCPU returns the number of logical CPUs available to this process,
// used by the CLI to size the default allocator pool.
func NumCPU() int {
	return runtime.NumCPU()
}
