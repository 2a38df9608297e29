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
	"k8s.io/utils/cpuset"
)

// fakeManager returns a Manager rooted at a plain temp directory, standing
// in for a mounted cgroup v2 hierarchy so Create/Attach/Snapshot/Destroy can
// be exercised without root privileges or a real kernel cgroup tree.
func fakeManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{root: t.TempDir()}
}

func TestManagerCreate(t *testing.T) {
	m := fakeManager(t)

	g, err := m.Create("match-1", 512*1024*1024, 200000, cpuset.New(0, 1))
	require.NoError(t, err)
	require.Equal(t, "match-1", g.Name())

	mem, err := os.ReadFile(filepath.Join(g.Path(), "memory.max"))
	require.NoError(t, err)
	require.Equal(t, "536870912", string(mem))

	quota, err := os.ReadFile(filepath.Join(g.Path(), "cpu.max"))
	require.NoError(t, err)
	require.Equal(t, "200000 100000", string(quota))

	cpus, err := os.ReadFile(filepath.Join(g.Path(), "cpuset.cpus"))
	require.NoError(t, err)
	require.Equal(t, "0-1", string(cpus))
}

func TestManagerCreateNameCollision(t *testing.T) {
	m := fakeManager(t)

	_, err := m.Create("dup", 0, 0, cpuset.CPUSet{})
	require.NoError(t, err)

	_, err = m.Create("dup", 0, 0, cpuset.CPUSet{})
	require.ErrorIs(t, err, ErrExists)
}

func TestGroupAttach(t *testing.T) {
	m := fakeManager(t)
	g, err := m.Create("attach", 0, 0, cpuset.CPUSet{})
	require.NoError(t, err)

	require.NoError(t, g.Attach(4242))

	procs, err := os.ReadFile(filepath.Join(g.Path(), "cgroup.procs"))
	require.NoError(t, err)
	require.Equal(t, "4242", string(procs))
}

func TestGroupSnapshot(t *testing.T) {
	m := fakeManager(t)
	g, err := m.Create("snap", 0, 0, cpuset.CPUSet{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(g.Path(), "memory.current"), []byte("100\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(g.Path(), "memory.peak"), []byte("200\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(g.Path(), "memory.events"), []byte("oom_kill 1\n"), 0644))

	stats, err := g.Snapshot()
	require.NoError(t, err)
	require.Equal(t, int64(100), stats.Bytes)
	require.Equal(t, int64(200), stats.PeakBytes)
	require.Equal(t, int64(1), stats.OOMKills)
}

func TestGroupDestroyIsIdempotent(t *testing.T) {
	m := fakeManager(t)
	g, err := m.Create("gone", 0, 0, cpuset.CPUSet{})
	require.NoError(t, err)

	require.NoError(t, g.Destroy())
	_, err = os.Stat(g.Path())
	require.True(t, os.IsNotExist(err))

	// A second Destroy on an already-torn-down group must not error.
	require.NoError(t, g.Destroy())

	// Destroy before any process ever attached must also succeed.
	g2, err := m.Create("never-attached", 0, 0, cpuset.CPUSet{})
	require.NoError(t, err)
	require.NoError(t, g2.Destroy())
}
