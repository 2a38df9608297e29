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

package cgroups

import (
	"fmt"
	"io/ioutil"
	"path"
	"strconv"
	"strings"
)

// MemoryUsage has the parsed contents of a cgroup v2 memory.current/memory.peak pair.
type MemoryUsage struct {
	Bytes     int64 // memory.current
	PeakBytes int64 // memory.peak, or memory.current on kernels without memory.peak
}

// CPUStat has the parsed contents of a cgroup v2 cpu.stat file.
type CPUStat struct {
	UsageUsec     int64
	UserUsec      int64
	SystemUsec    int64
	NumThrottled  int64
	ThrottledUsec int64
}

func readCgroupFileLines(filePath string) ([]string, error) {
	f, err := ioutil.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	rawLines := strings.Split(string(f), "\n")
	lines := make([]string, 0, len(rawLines))
	for _, rawLine := range rawLines {
		if len(strings.TrimSpace(rawLine)) > 0 {
			lines = append(lines, rawLine)
		}
	}

	return lines, nil
}

func readCgroupSingleNumber(filePath string) (int64, error) {
	// File looks like this:
	//
	// 4
	lines, err := readCgroupFileLines(filePath)
	if err != nil {
		return 0, err
	}

	if len(lines) != 1 {
		return 0, fmt.Errorf("cgroups: error parsing %q: expected a single line", filePath)
	}

	number, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		return 0, err
	}

	return number, nil
}

// readCgroupKeyedNumbers parses a "key value\n..." file, e.g. memory.events or cpu.stat.
func readCgroupKeyedNumbers(filePath string) (map[string]int64, error) {
	lines, err := readCgroupFileLines(filePath)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cgroups: error parsing %q: %v", filePath, err)
		}
		result[fields[0]] = n
	}

	return result, nil
}

// GetMemoryUsage retrieves cgroup v2 memory usage for the group at groupPath.
func GetMemoryUsage(groupPath string) (MemoryUsage, error) {
	current, err := readCgroupSingleNumber(path.Join(groupPath, "memory.current"))
	if err != nil {
		return MemoryUsage{}, err
	}

	// memory.peak was only added in Linux 5.19; fall back to current usage
	// when it is missing so that Snapshot() still returns something useful.
	peak, err := readCgroupSingleNumber(path.Join(groupPath, "memory.peak"))
	if err != nil {
		peak = current
	}

	return MemoryUsage{Bytes: current, PeakBytes: peak}, nil
}

// GetOOMKillCount returns the oom_kill counter from a cgroup v2 memory.events file.
func GetOOMKillCount(groupPath string) (int64, error) {
	events, err := readCgroupKeyedNumbers(path.Join(groupPath, "memory.events"))
	if err != nil {
		return 0, err
	}

	return events["oom_kill"], nil
}

// GetCPUStat retrieves cgroup v2 CPU accounting for the group at groupPath.
func GetCPUStat(groupPath string) (CPUStat, error) {
	stat, err := readCgroupKeyedNumbers(path.Join(groupPath, "cpu.stat"))
	if err != nil {
		return CPUStat{}, err
	}

	return CPUStat{
		UsageUsec:     stat["usage_usec"],
		UserUsec:      stat["user_usec"],
		SystemUsec:    stat["system_usec"],
		NumThrottled:  stat["nr_throttled"],
		ThrottledUsec: stat["throttled_usec"],
	}, nil
}
