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

package matchrun

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"k8s.io/utils/cpuset"

	"github.com/Atsuyo64/ai-tournament/pkg/cgroups"
	"github.com/Atsuyo64/ai-tournament/pkg/cpuallocator"
	logger "github.com/Atsuyo64/ai-tournament/pkg/log"
)

var log logger.Logger = logger.NewLogger("matchrun")

// acceptTimeout bounds how long Run waits for a spawned agent to dial back
// and complete its handshake before declaring it Crashed.
const acceptTimeout = 10 * time.Second

// StdioConfig controls whether a match's agent processes have their stdio
// persisted to disk (§6 log_dir/debug_stderr). The zero value disables
// capture entirely.
type StdioConfig struct {
	// Dir is the directory under which "<matchID>-<agent>.log" files are
	// created, one per agent. Empty disables stdout/stderr capture.
	Dir string
	// DebugStderr pipes each agent's stderr to the evaluator's own stderr
	// instead of its log file.
	DebugStderr bool
}

// GroupFactory creates the per-agent resource group used to pin an agent's
// memory and CPU, or reports ErrUnsupported/ErrPermission when cgroup v2 is
// unavailable. Run degrades to CPU-affinity-only enforcement when a factory
// returns ErrUnsupported and constraints.AllowUncontained is set (§4.1).
type GroupFactory func(agentName string, c Constraints, cpus cpuset.CPUSet) (*cgroups.Group, error)

// Run spawns every agent in match, drives game to completion over the
// length-prefixed TCP protocol, and returns the scored Outcome (§4.3). cpus
// is the full CPU set reserved for this match by the caller's
// cpuallocator.Allocator; Run partitions it evenly across agents. newGroup
// may be nil, in which case every agent runs uncontained; Run still returns
// an error if uncontained operation is attempted without
// constraints.AllowUncontained. matchID names this match's persisted stdio
// files when stdio.Dir is set.
func Run(ctx context.Context, match MatchDescriptor, c Constraints, game Game, cpus cpuset.CPUSet, newGroup GroupFactory, trace bool, matchID string, stdio StdioConfig) (Outcome, error) {
	start := time.Now()

	if len(match.Agents) == 0 {
		return Outcome{}, fmt.Errorf("matchrun: match has no agents")
	}
	if newGroup == nil && !c.AllowUncontained {
		return Outcome{}, fmt.Errorf("matchrun: no resource group factory configured and uncontained mode disabled")
	}

	agentCPUs, err := partition(cpus, len(match.Agents), c.CoresPerAgent)
	if err != nil {
		return Outcome{}, err
	}

	players := make([]*player, len(match.Agents))
	outcome := Outcome{
		Scores:  make(map[string]float64),
		Reasons: make(map[string]TerminationReason),
	}

	defer func() {
		for _, p := range players {
			if p != nil {
				p.teardown()
			}
		}
	}()

	for i, ad := range match.Agents {
		p, err := spawn(ctx, ad, c, agentCPUs[i], newGroup, matchID, stdio)
		if err != nil {
			outcome.Reasons[ad.Name] = Crashed
			log.Warn("agent %q failed to start: %v", ad.Name, err)
			continue
		}
		players[i] = p
	}

	for i, p := range players {
		if p == nil {
			continue
		}
		conn, err := p.accept(acceptTimeout)
		if err != nil {
			outcome.Reasons[match.Agents[i].Name] = Crashed
			log.Warn("agent %q did not complete handshake: %v", match.Agents[i].Name, err)
			p.teardown()
			players[i] = nil
			continue
		}
		p.conn = conn
	}

	names := make([]string, len(match.Agents))
	for i, ad := range match.Agents {
		names[i] = ad.Name
	}

	playMatch(players, names, game, c, trace, &outcome)
	outcome.Elapsed = time.Since(start)

	return outcome, nil
}

// playMatch drives game to completion against the given players, filling
// in outcome.Scores, outcome.Reasons and (if trace) outcome.Trace. It is
// the engine core's turn loop (§4.3), factored out of Run so it can be
// exercised against fake players in tests without spawning real
// processes. Entries already present in outcome.Reasons (agents that
// failed to start or complete the handshake) are treated as already
// Crashed and never act.
func playMatch(players []*player, names []string, game Game, c Constraints, trace bool, outcome *Outcome) {
	state := game.InitialState(len(players))
	reasons := make(map[int]TerminationReason)
	for i, p := range players {
		if p == nil {
			reasons[i] = outcome.Reasons[names[i]]
		}
	}

	var events []Event

	for !game.IsTerminal(state) {
		actor := game.CurrentActor(state)
		if actor < 0 || actor >= len(players) {
			break
		}

		p := players[actor]
		name := names[actor]

		if p == nil || p.done {
			// Already eliminated; the game must treat this as a forfeit on
			// its own turn-advance logic, but if it asks us to act for an
			// eliminated agent there is nothing left to do.
			break
		}

		if trace {
			events = append(events, Event{At: time.Now(), Agent: name, Kind: "state", Detail: game.SerializeState(state)})
		}

		reason, action, err := p.requestAction(game, state, c)
		if err != nil {
			p.done = true
			reasons[actor] = reason
			outcome.Reasons[name] = reason
			if trace {
				events = append(events, Event{At: time.Now(), Agent: name, Kind: "terminate", Detail: reason.String()})
			}
			break
		}

		if trace {
			events = append(events, Event{At: time.Now(), Agent: name, Kind: "action", Detail: fmt.Sprintf("%v", action)})
		}

		next, disqualified, err := game.Apply(state, actor, action)
		if err != nil || disqualified {
			p.done = true
			reasons[actor] = Disqualified
			outcome.Reasons[name] = Disqualified
			if trace {
				events = append(events, Event{At: time.Now(), Agent: name, Kind: "terminate", Detail: Disqualified.String()})
			}
			break
		}

		state = next
	}

	for i, p := range players {
		name := names[i]
		if _, already := outcome.Reasons[name]; already {
			continue
		}
		if p == nil {
			outcome.Reasons[name] = Crashed
			continue
		}

		if stats, err := p.memorySnapshot(); err == nil && p.memExceeded(stats, c) {
			reasons[i] = MemoryExceeded
			outcome.Reasons[name] = MemoryExceeded
			continue
		}

		reasons[i] = Normal
		outcome.Reasons[name] = Normal
	}

	scores := game.Score(state, reasons)
	for i, name := range names {
		outcome.Scores[name] = scores[i]
	}

	outcome.Trace = events
}

// partition splits cpus into n disjoint, contiguous-as-possible
// blocks of coresPerAgent CPUs each (coresPerAgent 0 means "use whatever
// fraction remains", typically the whole reserved set divided evenly).
func partition(cpus cpuset.CPUSet, n int, coresPerAgent int) ([]cpuset.CPUSet, error) {
	ids := cpus.ToSlice()
	if coresPerAgent <= 0 {
		coresPerAgent = len(ids) / n
		if coresPerAgent == 0 {
			coresPerAgent = 1
		}
	}

	if coresPerAgent*n > len(ids) {
		return nil, fmt.Errorf("matchrun: %d agents at %d cores each need %d CPUs, only %d reserved", n, coresPerAgent, coresPerAgent*n, len(ids))
	}

	out := make([]cpuset.CPUSet, n)
	for i := 0; i < n; i++ {
		out[i] = cpuset.New(ids[i*coresPerAgent : (i+1)*coresPerAgent]...)
	}
	return out, nil
}

// player holds the live state of one spawned agent for the duration of a
// match.
type player struct {
	name string
	cmd  *exec.Cmd
	ln   net.Listener
	conn *conn
	grp  *cgroups.Group
	log  *os.File

	usedBudget time.Duration
	done       bool
}

// spawn opens a fresh loopback TCP listener, starts an agent's process
// with that listener's port as its first argument, pins it to cpus, and
// attaches it to a resource group when newGroup is available (§4.3
// handshake start).
func spawn(ctx context.Context, ad AgentDescriptor, c Constraints, cpus cpuset.CPUSet, newGroup GroupFactory, matchID string, stdio StdioConfig) (*player, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("matchrun: failed to open listener for %q: %w", ad.Name, err)
	}

	addr := ln.Addr().(*net.TCPAddr)
	// §6 agent executable contract: port, total budget (us), per-action
	// timeout (us), then the agent's own configured argv tail.
	args := []string{
		fmt.Sprintf("%d", addr.Port),
		fmt.Sprintf("%d", c.TotalBudget.Microseconds()),
		fmt.Sprintf("%d", c.ActionTimeout.Microseconds()),
	}
	args = append(args, ad.Args...)

	cmd := exec.CommandContext(ctx, ad.Path, args...)
	cmd.Stdin = nil

	p := &player{name: ad.Name, cmd: cmd, ln: ln}

	if stdio.Dir != "" {
		logPath := filepath.Join(stdio.Dir, fmt.Sprintf("%s-%s.log", matchID, ad.Name))
		f, err := os.Create(logPath)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("matchrun: failed to create stdio log %q: %w", logPath, err)
		}
		p.log = f
		cmd.Stdout = f
		if stdio.DebugStderr {
			cmd.Stderr = os.Stderr
		} else {
			cmd.Stderr = f
		}
	} else if stdio.DebugStderr {
		cmd.Stderr = os.Stderr
	}

	var grp *cgroups.Group
	if newGroup != nil {
		grp, err = newGroup(ad.Name, c, cpus)
		if err != nil && !(c.AllowUncontained && errors.Is(err, cgroups.ErrUnsupported)) {
			ln.Close()
			return nil, fmt.Errorf("matchrun: resource group unavailable for %q: %w", ad.Name, err)
		}
	} else if !c.AllowUncontained {
		ln.Close()
		return nil, fmt.Errorf("matchrun: no resource group factory configured and uncontained mode disabled")
	}
	p.grp = grp

	if err := cmd.Start(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("matchrun: failed to start %q: %w", ad.Name, err)
	}

	if grp != nil {
		if err := grp.Attach(cmd.Process.Pid); err != nil {
			log.Warn("failed to attach agent %q (pid %d) to resource group: %v", ad.Name, cmd.Process.Pid, err)
		}
	} else {
		if err := cpuallocator.PinProcess(cmd.Process.Pid, cpus); err != nil {
			log.Warn("failed to pin agent %q (pid %d) to cpus %s: %v", ad.Name, cmd.Process.Pid, cpus.String(), err)
		}
	}

	return p, nil
}

// accept waits for the spawned process to connect back on its listener.
func (p *player) accept(timeout time.Duration) (*conn, error) {
	if tl, ok := p.ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(timeout))
	}
	nc, err := p.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(nc), nil
}

// requestAction sends the serialized state to the acting agent and waits
// for its response, enforcing both the per-action timeout and the
// cumulative think-time budget (§4.3).
func (p *player) requestAction(game Game, state State, c Constraints) (TerminationReason, Action, error) {
	remaining := c.ActionTimeout
	if c.TotalBudget > 0 {
		left := c.TotalBudget - p.usedBudget
		if left <= 0 {
			return BudgetExhausted, nil, fmt.Errorf("matchrun: agent %q exhausted its think-time budget", p.name)
		}
		if remaining == 0 || left < remaining {
			remaining = left
		}
	}

	var deadline time.Time
	if remaining > 0 {
		deadline = time.Now().Add(remaining)
	} else {
		deadline = time.Now().Add(365 * 24 * time.Hour)
	}

	payload := game.SerializeState(state)
	sendStart := time.Now()

	if err := p.conn.writeFrame(deadline, payload); err != nil {
		return Crashed, nil, fmt.Errorf("matchrun: failed to send state to %q: %w", p.name, err)
	}

	raw, err := p.conn.readFrame(deadline)
	elapsed := time.Since(sendStart)
	p.usedBudget += elapsed

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return TimedOut, nil, fmt.Errorf("matchrun: agent %q timed out: %w", p.name, err)
		}
		return Crashed, nil, fmt.Errorf("matchrun: agent %q disconnected: %w", p.name, err)
	}

	if c.TotalBudget > 0 && p.usedBudget > c.TotalBudget {
		return BudgetExhausted, nil, fmt.Errorf("matchrun: agent %q exceeded its think-time budget", p.name)
	}

	action, err := game.ParseAction(raw)
	if err != nil {
		return Crashed, nil, fmt.Errorf("matchrun: agent %q sent malformed action: %w", p.name, err)
	}

	return Normal, action, nil
}

// memorySnapshot reports the agent's resource group statistics, or an
// error if the agent ran uncontained.
func (p *player) memorySnapshot() (cgroups.Stats, error) {
	if p.grp == nil {
		return cgroups.Stats{}, fmt.Errorf("matchrun: agent %q ran without a resource group", p.name)
	}
	return p.grp.Snapshot()
}

// memExceeded reports whether a group snapshot indicates the agent was
// OOM-killed, or peaked at or above its configured memory cap.
func (p *player) memExceeded(stats cgroups.Stats, c Constraints) bool {
	if stats.OOMKills > 0 {
		return true
	}
	return c.RAMPerAgent > 0 && stats.PeakBytes >= c.RAMPerAgent
}

// teardown closes the agent's connection and listener, destroys its
// resource group if any, and best-effort kills its process if it has not
// already exited.
func (p *player) teardown() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	if p.ln != nil {
		_ = p.ln.Close()
	}
	if p.grp != nil {
		if err := p.grp.Destroy(); err != nil {
			log.Warn("failed to destroy resource group for agent %q: %v", p.name, err)
		}
	} else if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_, _ = p.cmd.Process.Wait()
	}
	if p.log != nil {
		_ = p.log.Close()
	}
}
