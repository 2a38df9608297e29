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

// Package cpuallocator implements the CPU-set allocator: a process-wide
// pool of logical CPU indices from which disjoint blocks are reserved for
// concurrently running matches, and released back when a match ends.
package cpuallocator

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/utils/cpuset"

	logger "github.com/Atsuyo64/ai-tournament/pkg/log"
)

const (
	logSource = "cpuallocator"
	debugFlag = "cpu-allocator-debug"
)

var log logger.Logger = logger.NewLogger(logSource)
var debug bool

func init() {
	flag.BoolVar(&debug, debugFlag, false, "enable CPU allocator debug log")
}

func debugf(format string, args ...interface{}) {
	if debug {
		log.Info(format, args...)
	}
}

// ErrOutOfCPUs is returned by Reserve when the pool has no free block of
// the requested size left, contiguous or otherwise.
var ErrOutOfCPUs = errors.New("cpuallocator: not enough free CPUs")

// Allocator hands out disjoint cpuset.CPUSet blocks from a fixed total pool.
// It is process-wide shared state — held by the Evaluator and passed by
// reference, not a package global (§9) — and safe for concurrent use: all
// reservations are serialized behind a single mutex (§4.2).
type Allocator struct {
	mu    sync.Mutex
	total cpuset.CPUSet // the full pool this allocator was created with
	free  cpuset.CPUSet // currently unreserved CPUs
}

// NewAllocator creates an Allocator that can hand out CPUs from total.
func NewAllocator(total cpuset.CPUSet) *Allocator {
	return &Allocator{total: total, free: total}
}

// Reserve reserves k CPUs, preferring the lowest-indexed contiguous block
// available (to minimise cross-package/NUMA thrash) and falling back to any
// free block of the right size. It returns ErrOutOfCPUs if no such block
// exists among the currently free CPUs.
func (a *Allocator) Reserve(k int) (cpuset.CPUSet, error) {
	if k <= 0 {
		return cpuset.CPUSet{}, fmt.Errorf("cpuallocator: invalid reservation size %d", k)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.free.Size() < k {
		return cpuset.CPUSet{}, ErrOutOfCPUs
	}

	if block, ok := contiguousBlock(a.free, k); ok {
		a.free = a.free.Difference(block)
		debugf("reserved contiguous block #%s (pool now #%s)", block, a.free)
		return block, nil
	}

	block := anyBlock(a.free, k)
	a.free = a.free.Difference(block)
	debugf("reserved non-contiguous block #%s (pool now #%s)", block, a.free)
	return block, nil
}

// Release returns a previously reserved CPU set to the pool.
func (a *Allocator) Release(cpus cpuset.CPUSet) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.free = a.free.Union(cpus.Intersection(a.total))
	debugf("released #%s (pool now #%s)", cpus, a.free)
}

// Free reports the currently unreserved CPUs, for diagnostics.
func (a *Allocator) Free() cpuset.CPUSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

// contiguousBlock looks for the lowest-indexed run of k consecutive CPU
// indices that are all members of free.
func contiguousBlock(free cpuset.CPUSet, k int) (cpuset.CPUSet, bool) {
	ids := free.ToSlice()
	sort.Ints(ids)

	runStart := 0
	for i := 1; i <= len(ids); i++ {
		broke := i == len(ids) || ids[i] != ids[i-1]+1
		if broke {
			if i-runStart >= k {
				return cpuset.New(ids[runStart : runStart+k]...), true
			}
			runStart = i
		}
	}

	return cpuset.CPUSet{}, false
}

// anyBlock takes the k lowest-indexed CPUs in free, contiguous or not.
func anyBlock(free cpuset.CPUSet, k int) cpuset.CPUSet {
	ids := free.ToSlice()
	sort.Ints(ids)
	return cpuset.New(ids[:k]...)
}
