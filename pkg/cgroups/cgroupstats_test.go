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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0644))
}

func TestGetMemoryUsage(t *testing.T) {
	tcases := []struct {
		name     string
		current  string
		peak     string
		skipPeak bool
		expect   MemoryUsage
	}{
		{
			name:    "current and peak present",
			current: "1048576\n",
			peak:    "2097152\n",
			expect:  MemoryUsage{Bytes: 1048576, PeakBytes: 2097152},
		},
		{
			name:     "peak absent falls back to current",
			current:  "4096\n",
			skipPeak: true,
			expect:   MemoryUsage{Bytes: 4096, PeakBytes: 4096},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFixture(t, dir, "memory.current", tc.current)
			if !tc.skipPeak {
				writeFixture(t, dir, "memory.peak", tc.peak)
			}

			got, err := GetMemoryUsage(dir)
			require.NoError(t, err)
			require.Equal(t, tc.expect, got)
		})
	}
}

func TestGetOOMKillCount(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "memory.events", "low 0\nhigh 0\nmax 2\noom 1\noom_kill 1\n")

	got, err := GetOOMKillCount(dir)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)
}

func TestGetCPUStat(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "cpu.stat",
		"usage_usec 500000\nuser_usec 400000\nsystem_usec 100000\nnr_periods 5\nnr_throttled 2\nthrottled_usec 9000\n")

	got, err := GetCPUStat(dir)
	require.NoError(t, err)
	require.Equal(t, CPUStat{
		UsageUsec:     500000,
		UserUsec:      400000,
		SystemUsec:    100000,
		NumThrottled:  2,
		ThrottledUsec: 9000,
	}, got)
}
