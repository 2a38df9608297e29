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

// Package singleplayer implements the N-repetitions strategy (§4.4):
// every agent plays the same game alone (or, generalized, in a fixed
// k-tuple shared by all repetitions) N times, and its final score is an
// aggregation of its N match scores.
package singleplayer

import (
	"sort"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

// Aggregation names how an agent's repeated match scores combine into
// its final tournament score.
type Aggregation int

const (
	// Mean averages an agent's scores across repetitions. Default.
	Mean Aggregation = iota
	// Sum totals an agent's scores across repetitions.
	Sum
	// Min takes an agent's worst repetition.
	Min
	// Max takes an agent's best repetition.
	Max
)

// Option configures a Strategy built by New.
type Option func(*Strategy)

// WithAggregation overrides the default Mean aggregation rule.
func WithAggregation(a Aggregation) Option {
	return func(s *Strategy) { s.aggregation = a }
}

// WithRepetitions sets how many times each tuple plays. Default 1.
func WithRepetitions(n int) Option {
	return func(s *Strategy) {
		if n > 0 {
			s.repetitions = n
		}
	}
}

// state is the strategy's internal progress: how many repetitions of
// each tuple have been scheduled, how many match outcomes have been
// recorded within the repetition currently in progress, and every score
// recorded so far.
type state struct {
	scheduled int
	recorded  int
	scores    map[string][]float64
}

// Strategy runs every configured tuple through a fixed number of
// repetitions, aggregating each agent's per-repetition scores with the
// configured Aggregation rule (§9's aggregation-rule Open Question,
// resolved here with a Mean default).
type Strategy struct {
	tuples      [][]matchrun.AgentDescriptor
	repetitions int
	aggregation Aggregation
}

// New builds a Strategy that plays every tuple in tuples exactly
// WithRepetitions times (default 1). A tuple of length 1 is the
// classic single-player case; longer tuples generalize it to any fixed
// k-player repetition tournament, since §4.4 allows higher arities.
func New(tuples [][]matchrun.AgentDescriptor, opts ...Option) *Strategy {
	s := &Strategy{tuples: tuples, repetitions: 1, aggregation: Mean}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextBatch schedules one repetition of every tuple per call, so all
// tuples make equal progress round by round.
func (s *Strategy) NextBatch(st strategy.State, prior []strategy.Recorded) ([]matchrun.MatchDescriptor, bool) {
	cur, _ := st.(*state)
	if cur == nil {
		cur = &state{}
	}

	if cur.scheduled >= s.repetitions {
		return nil, true
	}

	batch := make([]matchrun.MatchDescriptor, len(s.tuples))
	for i, tuple := range s.tuples {
		batch[i] = matchrun.MatchDescriptor{Agents: tuple}
	}
	return batch, false
}

// Record folds one match's outcome into the running per-agent score
// history and advances the repetition counter once a full round's worth
// of tuples has been recorded.
func (s *Strategy) Record(st strategy.State, m matchrun.MatchDescriptor, o matchrun.Outcome) strategy.State {
	cur, _ := st.(*state)
	if cur == nil {
		cur = &state{scores: make(map[string][]float64)}
	}
	if cur.scores == nil {
		cur.scores = make(map[string][]float64)
	}

	for _, ad := range m.Agents {
		cur.scores[ad.Name] = append(cur.scores[ad.Name], o.Scores[ad.Name])
	}

	cur.recorded++
	if cur.recorded >= len(s.tuples) {
		cur.recorded = 0
		cur.scheduled++
	}

	return cur
}

// Finalize aggregates each agent's recorded scores with the configured
// Aggregation rule.
func (s *Strategy) Finalize(st strategy.State) map[string]float64 {
	cur, _ := st.(*state)
	out := make(map[string]float64)
	if cur == nil {
		return out
	}

	names := make([]string, 0, len(cur.scores))
	for name := range cur.scores {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		out[name] = aggregate(s.aggregation, cur.scores[name])
	}
	return out
}

func aggregate(a Aggregation, scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	switch a {
	case Sum:
		var total float64
		for _, v := range scores {
			total += v
		}
		return total
	case Min:
		m := scores[0]
		for _, v := range scores[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case Max:
		m := scores[0]
		for _, v := range scores[1:] {
			if v > m {
				m = v
			}
		}
		return m
	default: // Mean
		var total float64
		for _, v := range scores {
			total += v
		}
		return total / float64(len(scores))
	}
}
