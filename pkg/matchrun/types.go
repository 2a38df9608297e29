// Copyright 2024 The ai-tournament Authors.
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

// Package matchrun implements the match runtime (§4.3): it spawns the
// agent processes for a single match, pins them to a reserved CPU set and
// (when available) a cgroup v2 resource group, drives the game's turn
// loop over a length-prefixed TCP protocol with per-action and per-match
// time budgets, and returns a scored outcome.
package matchrun

import "time"

// AgentDescriptor names one runnable agent participating in a match (§3).
// It is immutable after discovery.
type AgentDescriptor struct {
	Name string   // unique within a run
	Path string   // path to the executable
	Args []string // configured argv tail
}

// TerminationReason classifies why an agent's participation in a match
// ended (§4.3's failure taxonomy).
type TerminationReason int

const (
	// Normal means the agent was still connected when the game declared
	// the match finished.
	Normal TerminationReason = iota
	// TimedOut means no complete response arrived within ActionTimeout.
	TimedOut
	// BudgetExhausted means the agent's cumulative think-time exceeded
	// TotalBudget.
	BudgetExhausted
	// MemoryExceeded means the agent's resource group reported an OOM
	// kill or a peak at or above its memory cap.
	MemoryExceeded
	// Crashed means the agent exited, disconnected, or produced malformed
	// I/O before the game ended.
	Crashed
	// Disqualified means the game itself flagged a rule violation.
	Disqualified
)

func (r TerminationReason) String() string {
	switch r {
	case Normal:
		return "normal"
	case TimedOut:
		return "timed_out"
	case BudgetExhausted:
		return "budget_exhausted"
	case MemoryExceeded:
		return "memory_exceeded"
	case Crashed:
		return "crashed"
	case Disqualified:
		return "disqualified"
	default:
		return "unknown"
	}
}

// Constraints carries the resource and timing limits applied to every
// agent in a match (§3). Construct with NewConstraints and WithX options.
type Constraints struct {
	RAMPerAgent      int64         // bytes, 0 = unlimited
	CoresPerAgent    int           // 0 = unconstrained
	ActionTimeout    time.Duration // 0 = unlimited
	TotalBudget      time.Duration // 0 = unlimited
	AllowUncontained bool
}

// ConstraintsOption configures Constraints built by NewConstraints.
type ConstraintsOption func(*Constraints)

// NewConstraints builds a Constraints value from functional options,
// generalizing the teacher's pkg/config Option pattern for in-process
// construction.
func NewConstraints(opts ...ConstraintsOption) Constraints {
	var c Constraints
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithRAMPerAgent caps each agent's resident memory in bytes.
func WithRAMPerAgent(bytes int64) ConstraintsOption {
	return func(c *Constraints) { c.RAMPerAgent = bytes }
}

// WithCoresPerAgent caps the number of CPU cores pinned to each agent.
func WithCoresPerAgent(cores int) ConstraintsOption {
	return func(c *Constraints) { c.CoresPerAgent = cores }
}

// WithActionTimeout caps the time allowed for a single agent response.
func WithActionTimeout(d time.Duration) ConstraintsOption {
	return func(c *Constraints) { c.ActionTimeout = d }
}

// WithTotalBudget caps an agent's cumulative think-time across a match.
func WithTotalBudget(d time.Duration) ConstraintsOption {
	return func(c *Constraints) { c.TotalBudget = d }
}

// WithAllowUncontained permits degrading to time-only enforcement when
// cgroup v2 resource groups are unavailable.
func WithAllowUncontained(allow bool) ConstraintsOption {
	return func(c *Constraints) { c.AllowUncontained = allow }
}

// MatchDescriptor is the ordered sequence of agents participating in one
// match (§3). Length 1 for single-player, 2 for head-to-head, more for
// higher-arity games.
type MatchDescriptor struct {
	Agents []AgentDescriptor
}

// Event is one entry of a match's replayable event trace, recorded only
// when logging is enabled (§3).
type Event struct {
	At     time.Time
	Agent  string
	Kind   string // "state", "action", "terminate"
	Detail string
}

// Outcome is the result of running one match to completion (§3).
type Outcome struct {
	Scores  map[string]float64
	Reasons map[string]TerminationReason
	Elapsed time.Duration
	Trace   []Event
}
