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

// Package cgroups implements the resource-group manager: scoped creation,
// attachment, accounting, and teardown of cgroup v2 nodes used to cap the
// memory and CPU available to a single match's agent processes.
package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/utils/cpuset"

	logger "github.com/Atsuyo64/ai-tournament/pkg/log"
)

var log logger.Logger = logger.NewLogger("cgroups")

// Sentinel errors returned by Manager.Create, tested with errors.Is.
var (
	// ErrUnsupported is returned when cgroup v2 is not mounted.
	ErrUnsupported = errors.New("cgroups: v2 unified hierarchy not mounted")
	// ErrPermission is returned when the caller cannot write to the hierarchy.
	ErrPermission = errors.New("cgroups: permission denied")
	// ErrExists is returned when a group with the requested name already exists.
	ErrExists = errors.New("cgroups: group already exists")
)

// Stats is a post-mortem snapshot of a group's resource usage, used to
// classify an agent's termination reason once its match has ended.
type Stats struct {
	MemoryUsage
	OOMKills int64
}

// Group is an opaque handle to a single cgroup v2 node: the resource group
// handle from the data model (owns its memory limit, CPU controller
// parameters, and the set of attached processes).
type Group struct {
	name string
	path string

	mu       sync.Mutex
	attached []int
	destroyed bool
}

// Name returns the group's name, unique within its Manager.
func (g *Group) Name() string { return g.name }

// Path returns the group's absolute cgroupfs path.
func (g *Group) Path() string { return g.path }

// Manager owns the arena's root cgroup v2 node and creates per-match
// sub-groups beneath it. It is process-wide shared state, held by the
// Evaluator and passed by reference — not a package global (§9).
type Manager struct {
	root string
}

// ManagerOption configures a Manager constructed by NewManager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	rootName string
}

// WithRootName overrides the default "arena-eval" root group name.
func WithRootName(name string) ManagerOption {
	return func(o *managerOptions) { o.rootName = name }
}

// NewManager probes for a mounted cgroup v2 hierarchy and creates the
// arena's root node beneath it. It returns ErrUnsupported if cgroup v2 is
// not mounted at cgroups.V2Path, and ErrPermission if the root node cannot
// be created.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	o := managerOptions{rootName: "arena-eval"}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := os.Stat(filepath.Join(V2Path, "cgroup.controllers")); err != nil {
		return nil, errors.Wrap(ErrUnsupported, err.Error())
	}

	root := filepath.Join(V2Path, o.rootName)
	if err := os.MkdirAll(root, 0755); err != nil {
		if os.IsPermission(err) {
			return nil, errors.Wrap(ErrPermission, err.Error())
		}
		return nil, err
	}

	if err := enableControllers(V2Path, "+memory +cpu +cpuset"); err != nil {
		log.Warn("failed to enable subtree controllers at %s: %v", V2Path, err)
	}

	// cgroup v2 only grants a node's children access to a controller once
	// that node's own subtree_control lists it — enabling controllers on
	// V2Path alone only reaches the root node, not the per-match Groups
	// Create makes beneath it.
	if err := enableControllers(root, "+memory +cpu +cpuset"); err != nil {
		log.Warn("failed to enable subtree controllers at %s: %v", root, err)
	}

	return &Manager{root: root}, nil
}

// Create creates a fresh cgroup v2 node under the manager's root, applying
// the given memory cap (bytes, 0 for unlimited), CPU quota (microseconds
// per 100ms period, 0 for unlimited) and pinned CPU set.
func (m *Manager) Create(name string, memBytes int64, cpuQuotaUs int64, cpus cpuset.CPUSet) (*Group, error) {
	path := filepath.Join(m.root, sanitize(name))

	if _, err := os.Stat(path); err == nil {
		return nil, errors.Wrapf(ErrExists, "group %q", name)
	}

	if err := os.Mkdir(path, 0755); err != nil {
		if os.IsPermission(err) {
			return nil, errors.Wrap(ErrPermission, err.Error())
		}
		return nil, err
	}

	g := &Group{name: name, path: path}

	if memBytes > 0 {
		if err := writeFile(path, "memory.max", strconv.FormatInt(memBytes, 10)); err != nil {
			return nil, errors.Wrapf(err, "failed to set memory.max for %q", name)
		}
	}

	if cpuQuotaUs > 0 {
		quota := fmt.Sprintf("%d 100000", cpuQuotaUs)
		if err := writeFile(path, "cpu.max", quota); err != nil {
			return nil, errors.Wrapf(err, "failed to set cpu.max for %q", name)
		}
	}

	if !cpus.IsEmpty() {
		if err := writeFile(path, "cpuset.cpus", cpus.String()); err != nil {
			return nil, errors.Wrapf(err, "failed to set cpuset.cpus for %q", name)
		}
	}

	log.Debug("created group %q at %s (mem=%d cpu.max=%d cpus=%s)", name, path, memBytes, cpuQuotaUs, cpus.String())

	return g, nil
}

// Attach moves pid into the group. It must be called before the child does
// any meaningful work — typically right after a suspended fork, or by
// writing our own pid into the group before calling exec.
func (g *Group) Attach(pid int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return errors.Errorf("cgroups: group %q already destroyed", g.name)
	}

	if err := writeFile(g.path, "cgroup.procs", strconv.Itoa(pid)); err != nil {
		return errors.Wrapf(err, "failed to attach pid %d to group %q", pid, g.name)
	}

	g.attached = append(g.attached, pid)
	return nil
}

// Snapshot reads the group's current memory peak and OOM-kill counter, used
// by the match runtime to classify a terminated agent as memory_exceeded.
func (g *Group) Snapshot() (Stats, error) {
	mem, err := GetMemoryUsage(g.path)
	if err != nil {
		return Stats{}, err
	}

	kills, err := GetOOMKillCount(g.path)
	if err != nil {
		// memory.events is always present once the memory controller is
		// enabled; treat a read failure as zero OOM kills rather than fail
		// snapshotting outright.
		kills = 0
	}

	return Stats{MemoryUsage: mem, OOMKills: kills}, nil
}

// Destroy group-kills any residual attached processes, waits for the group
// to empty, and removes its cgroupfs node. It is idempotent: calling
// Destroy twice, or on a group whose processes already exited, is not an
// error. Destroy errors are logged by the caller (the match runtime),
// never escalated — per §4.1 a resource group is considered released once
// Destroy has been invoked.
func (g *Group) Destroy() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return nil
	}
	g.destroyed = true

	if err := writeFile(g.path, "cgroup.kill", "1"); err != nil {
		// cgroup.kill requires a kernel new enough to support it; fall back
		// to signalling every attached pid directly.
		for _, pid := range g.attached {
			_ = killPid(pid)
		}
	}

	waitForEmpty(g.path)

	// cgroupfs directories only ever contain kernel-exposed pseudo-files, so
	// RemoveAll is just a more tolerant rmdir here — it stays idempotent if
	// Destroy races with the kernel cleaning up the node itself.
	if err := os.RemoveAll(g.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func writeFile(groupPath, entry, value string) error {
	return os.WriteFile(filepath.Join(groupPath, entry), []byte(value), 0644)
}

// enableControllers enables the requested controllers in parent's
// subtree_control file, as cgroup v2 requires for a child to use them.
// Ancestors above parent are not written.
func enableControllers(parent, controllers string) error {
	return writeFile(parent, "cgroup.subtree_control", controllers)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
