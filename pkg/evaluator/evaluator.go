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

// Package evaluator implements the orchestrator (§4.5): it loads agents,
// uses the CPU allocator and resource-group manager it is given, repeatedly
// asks a strategy.Strategy for the next batch of matches, runs them
// through a bounded worker pool, and folds outcomes back into the
// strategy one at a time through a single recorder goroutine.
package evaluator

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/cpuset"

	"github.com/Atsuyo64/ai-tournament/pkg/cgroups"
	"github.com/Atsuyo64/ai-tournament/pkg/cpuallocator"
	logger "github.com/Atsuyo64/ai-tournament/pkg/log"
	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

var log logger.Logger = logger.NewLogger("evaluator")

// Loader discovers agent descriptors under a directory (§4.5 step 1; the
// external collaborator boundary from §1). pkg/loader supplies the
// default directory-layout implementation.
type Loader interface {
	Load(dir string) ([]matchrun.AgentDescriptor, error)
}

// Metrics receives per-match and per-run counters. Implementations may
// wrap a prometheus registry; a nil Metrics disables instrumentation.
type Metrics interface {
	ObserveMatch(outcome matchrun.Outcome)
	ObserveRun(agents int, matches int)
}

// Result is the evaluator's final output (§4.5 step 4).
type Result struct {
	Scores      map[string]float64
	LoaderError error
}

// Option configures an Evaluator built by New.
type Option func(*Evaluator)

// WithLoader sets the agent loader. Required.
func WithLoader(l Loader) Option {
	return func(e *Evaluator) { e.loader = l }
}

// WithStrategy sets the tournament strategy. Required.
func WithStrategy(s strategy.Strategy) Option {
	return func(e *Evaluator) { e.strategy = s }
}

// WithGame sets the game every match is played against. Required.
func WithGame(g matchrun.Game) Option {
	return func(e *Evaluator) { e.game = g }
}

// WithConstraints sets the per-agent resource and timing limits applied
// to every match.
func WithConstraints(c matchrun.Constraints) Option {
	return func(e *Evaluator) { e.constraints = c }
}

// WithResourceManager sets the cgroup v2 manager used to create one
// resource group per agent per match. If unset, matches run uncontained
// (only permitted when constraints.AllowUncontained is set).
func WithResourceManager(m *cgroups.Manager) Option {
	return func(e *Evaluator) { e.cgroupMgr = m }
}

// WithCPUAllocator sets the process-wide CPU pool to reserve from.
// Required.
func WithCPUAllocator(a *cpuallocator.Allocator) Option {
	return func(e *Evaluator) { e.cpus = a }
}

// WithMetrics attaches a Metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithStdio persists each agent's stdout/stderr under dir, one file per
// agent-match (§6 log_dir). debugStderr pipes agent stderr to the
// evaluator's own stderr; with dir set, stderr then no longer goes to that
// file, which keeps only stdout.
func WithStdio(dir string, debugStderr bool) Option {
	return func(e *Evaluator) {
		e.stdio = matchrun.StdioConfig{Dir: dir, DebugStderr: debugStderr}
	}
}

// WithAgentsPerMatch overrides the worker pool sizing's assumed agent
// count per match (default 2). Used to size the bounded pool
// floor(total_cores/cores_per_agent/agents_per_match) before any agents
// are loaded.
func WithAgentsPerMatch(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.agentsPerMatch = n
		}
	}
}

// Evaluator orchestrates one tournament run end to end (§4.5).
type Evaluator struct {
	loader         Loader
	strategy       strategy.Strategy
	game           matchrun.Game
	constraints    matchrun.Constraints
	cgroupMgr      *cgroups.Manager
	cpus           *cpuallocator.Allocator
	metrics        Metrics
	agentsPerMatch int
	stdio          matchrun.StdioConfig

	// runMatch runs one match and returns its outcome. Defaults to
	// e.runOne; overridable in tests so the worker pool and recorder
	// wiring can be exercised without spawning real agent processes.
	runMatch func(ctx context.Context, m matchrun.MatchDescriptor) (matchrun.Outcome, error)
}

// New builds an Evaluator from opts.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{agentsPerMatch: 2}
	for _, opt := range opts {
		opt(e)
	}
	if e.runMatch == nil {
		e.runMatch = e.runOne
	}
	return e
}

// Run loads the agents under agentsDir, then drives the configured
// strategy to completion, running each batch of matches through a
// bounded worker pool (§4.5 steps 1–4).
func (e *Evaluator) Run(ctx context.Context, agentsDir string) (Result, error) {
	if e.loader == nil {
		return Result{}, fmt.Errorf("evaluator: no loader configured")
	}
	if e.strategy == nil {
		return Result{}, fmt.Errorf("evaluator: no strategy configured")
	}
	if e.game == nil {
		return Result{}, fmt.Errorf("evaluator: no game configured")
	}
	if e.cpus == nil {
		return Result{}, fmt.Errorf("evaluator: no CPU allocator configured")
	}

	if e.stdio.Dir != "" {
		if err := os.RemoveAll(e.stdio.Dir); err != nil {
			return Result{}, fmt.Errorf("evaluator: failed to clear log_dir %q: %w", e.stdio.Dir, err)
		}
		if err := os.MkdirAll(e.stdio.Dir, 0755); err != nil {
			return Result{}, fmt.Errorf("evaluator: failed to create log_dir %q: %w", e.stdio.Dir, err)
		}
	}

	agents, loadErr := e.loader.Load(agentsDir)
	if loadErr != nil {
		log.Warn("loader reported errors: %v", loadErr)
	}

	cores := e.constraints.CoresPerAgent
	if cores <= 0 {
		cores = 1
	}
	poolSize := e.cpus.Free().Size() / (cores * e.agentsPerMatch)
	if poolSize < 1 {
		poolSize = 1
	}

	var state strategy.State
	var prior []strategy.Recorded
	matchCount := 0

	for {
		batch, done := e.strategy.NextBatch(state, prior)
		if done {
			break
		}

		recorded, err := e.runBatch(ctx, batch, poolSize)
		if err != nil {
			return Result{}, fmt.Errorf("evaluator: %w", err)
		}

		prior = recorded
		matchCount += len(recorded)
		for _, r := range recorded {
			state = e.strategy.Record(state, r.Match, r.Outcome)
		}
	}

	if e.metrics != nil {
		e.metrics.ObserveRun(len(agents), matchCount)
	}

	return Result{
		Scores:      e.strategy.Finalize(state),
		LoaderError: loadErr,
	}, nil
}

// runBatch runs every match in batch through a bounded worker pool sized
// poolSize, funneling completed outcomes through a single buffered
// channel drained by one recorder goroutine so Record is only ever
// called from one goroutine at a time (§5 ordering guarantees, §9
// single-writer-channel design).
func (e *Evaluator) runBatch(ctx context.Context, batch []matchrun.MatchDescriptor, poolSize int) ([]strategy.Recorded, error) {
	sem := make(chan struct{}, poolSize)
	results := make(chan strategy.Recorded, len(batch))

	g, gctx := errgroup.WithContext(ctx)

	for _, m := range batch {
		m := m
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, err := e.runMatch(gctx, m)
			if err != nil {
				return err
			}

			results <- strategy.Recorded{Match: m, Outcome: outcome}
			return nil
		})
	}

	err := g.Wait()
	close(results)

	recorded := make([]strategy.Recorded, 0, len(batch))
	for r := range results {
		recorded = append(recorded, r)
		if e.metrics != nil {
			e.metrics.ObserveMatch(r.Outcome)
		}
	}

	return recorded, err
}

// runOne reserves CPUs and (if available) a resource group for one
// match, runs it, and releases both regardless of outcome.
func (e *Evaluator) runOne(ctx context.Context, m matchrun.MatchDescriptor) (matchrun.Outcome, error) {
	cores := e.constraints.CoresPerAgent
	if cores <= 0 {
		cores = 1
	}
	need := cores * len(m.Agents)

	cpus, err := e.cpus.Reserve(need)
	if err != nil {
		return matchrun.Outcome{}, fmt.Errorf("failed to reserve %d cpus: %w", need, err)
	}
	defer e.cpus.Release(cpus)

	var factory matchrun.GroupFactory
	if e.cgroupMgr != nil {
		factory = e.newGroupFactory()
	}

	return matchrun.Run(ctx, m, e.constraints, e.game, cpus, factory, false, uuid.NewString(), e.stdio)
}

// newGroupFactory adapts the Evaluator's cgroups.Manager into a
// matchrun.GroupFactory. Group names are suffixed with a fresh UUID
// since the same agent may play concurrently in more than one match.
func (e *Evaluator) newGroupFactory() matchrun.GroupFactory {
	return func(agentName string, c matchrun.Constraints, cpus cpuset.CPUSet) (*cgroups.Group, error) {
		quotaUs := int64(0)
		if c.CoresPerAgent > 0 {
			quotaUs = int64(c.CoresPerAgent) * 100000
		}
		name := fmt.Sprintf("%s-%s", agentName, uuid.NewString())
		return e.cgroupMgr.Create(name, c.RAMPerAgent, quotaUs, cpus)
	}
}
