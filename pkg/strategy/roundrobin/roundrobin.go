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

// Package roundrobin implements the fixed-schedule round-robin strategy
// (§4.4): every unordered k-tuple of the configured agents plays a fixed
// number of times, generated once up front rather than round by round.
package roundrobin

import (
	"sort"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

// Tally is a strategy-defined pairwise scoring rule applied to a match's
// raw matchrun.Outcome to decide each agent's win/draw/loss contribution.
// The default tally reads a higher-scoring agent as the winner and equal
// scores as a draw.
type Tally func(o matchrun.Outcome, agents []matchrun.AgentDescriptor) map[string]float64

// DefaultTally awards Win=1, Draw=0.5, Loss=0 based on comparing each
// pair of agents' matchrun.Outcome.Scores.
func DefaultTally(o matchrun.Outcome, agents []matchrun.AgentDescriptor) map[string]float64 {
	out := make(map[string]float64, len(agents))
	for _, a := range agents {
		var wins, draws int
		for _, b := range agents {
			if a.Name == b.Name {
				continue
			}
			switch {
			case o.Scores[a.Name] > o.Scores[b.Name]:
				wins++
			case o.Scores[a.Name] == o.Scores[b.Name]:
				draws++
			}
		}
		out[a.Name] = float64(wins) + 0.5*float64(draws)
	}
	return out
}

// Option configures a Strategy built by New.
type Option func(*Strategy)

// WithRepetitions sets how many times each k-tuple plays. Default 1.
func WithRepetitions(m int) Option {
	return func(s *Strategy) {
		if m > 0 {
			s.repetitions = m
		}
	}
}

// WithTally overrides DefaultTally.
func WithTally(t Tally) Option {
	return func(s *Strategy) { s.tally = t }
}

// state tracks which scheduled match index is next and every agent's
// accumulated tally score.
type state struct {
	next   int
	scores map[string]float64
}

// Strategy plays a deterministic fixed schedule: every unordered k-tuple
// from the configured agent roster, each played WithRepetitions times.
type Strategy struct {
	schedule    []matchrun.MatchDescriptor
	repetitions int
	tally       Tally
}

// New builds a Strategy over every unordered k-tuple of agents, k
// defaulting to 2 (classic pairwise round robin) but generalized to any
// arity via k.
func New(agents []matchrun.AgentDescriptor, k int, opts ...Option) *Strategy {
	if k <= 0 {
		k = 2
	}

	s := &Strategy{repetitions: 1, tally: DefaultTally}
	for _, opt := range opts {
		opt(s)
	}

	tuples := combinations(agents, k)
	for i := 0; i < s.repetitions; i++ {
		for _, tuple := range tuples {
			s.schedule = append(s.schedule, matchrun.MatchDescriptor{Agents: tuple})
		}
	}

	return s
}

// NextBatch returns the entire remaining schedule as a single batch: a
// fixed schedule has no ordering dependency between its matches, so they
// can all run concurrently, bounded only by the evaluator's worker pool.
func (s *Strategy) NextBatch(st strategy.State, prior []strategy.Recorded) ([]matchrun.MatchDescriptor, bool) {
	cur, _ := st.(*state)
	idx := 0
	if cur != nil {
		idx = cur.next
	}

	if idx >= len(s.schedule) {
		return nil, true
	}
	return s.schedule[idx:], false
}

// Record applies the tally rule to one match's outcome and folds it into
// the running per-agent scores.
func (s *Strategy) Record(st strategy.State, m matchrun.MatchDescriptor, o matchrun.Outcome) strategy.State {
	cur, _ := st.(*state)
	if cur == nil {
		cur = &state{scores: make(map[string]float64)}
	}
	if cur.scores == nil {
		cur.scores = make(map[string]float64)
	}

	for name, v := range s.tally(o, m.Agents) {
		cur.scores[name] += v
	}
	cur.next++

	return cur
}

// Finalize returns each agent's accumulated tally score.
func (s *Strategy) Finalize(st strategy.State) map[string]float64 {
	cur, _ := st.(*state)
	out := make(map[string]float64)
	if cur == nil {
		return out
	}
	for name, v := range cur.scores {
		out[name] = v
	}
	return out
}

// combinations returns every unordered k-subset of agents, generated
// recursively, deterministic in the input order.
func combinations(agents []matchrun.AgentDescriptor, k int) [][]matchrun.AgentDescriptor {
	if k <= 0 || k > len(agents) {
		return nil
	}

	var out [][]matchrun.AgentDescriptor
	var pick func(start int, chosen []matchrun.AgentDescriptor)
	pick = func(start int, chosen []matchrun.AgentDescriptor) {
		if len(chosen) == k {
			tuple := make([]matchrun.AgentDescriptor, k)
			copy(tuple, chosen)
			out = append(out, tuple)
			return
		}
		for i := start; i < len(agents); i++ {
			pick(i+1, append(chosen, agents[i]))
		}
	}
	pick(0, nil)

	sort.Slice(out, func(i, j int) bool {
		return scheduleKey(out[i]) < scheduleKey(out[j])
	})

	return out
}

func scheduleKey(tuple []matchrun.AgentDescriptor) string {
	key := ""
	for _, ad := range tuple {
		key += ad.Name + "\x00"
	}
	return key
}
