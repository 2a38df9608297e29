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

// Package strategy defines the tournament-scheduling capability consumed
// by the evaluator (§4.4): given the agents discovered for a run, a
// Strategy decides which matches to play, in what order, and how a
// match's outcome feeds into a final per-agent score.
package strategy

import "github.com/Atsuyo64/ai-tournament/pkg/matchrun"

// State is strategy-defined state threaded through NextBatch/Record/
// Finalize — standings, remaining pairings, repetition counters, whatever
// a concrete strategy needs to decide its next batch of matches.
type State interface{}

// Recorded pairs a previously scheduled match with its outcome, passed
// back into NextBatch so a strategy can decide whether it is done.
type Recorded struct {
	Match   matchrun.MatchDescriptor
	Outcome matchrun.Outcome
}

// Strategy schedules the matches of one tournament run (§4.4). The
// evaluator drives it in rounds: call NextBatch to get the next set of
// matches it may run concurrently, run them, call Record for each
// completed one, and repeat until NextBatch reports done.
type Strategy interface {
	// NextBatch returns the next set of matches that may be run
	// concurrently, given the current state and (for strategies that
	// care about same-round context, such as Swiss pairing) the matches
	// just recorded. done is true once no more matches remain to be
	// scheduled.
	NextBatch(state State, prior []Recorded) (batch []matchrun.MatchDescriptor, done bool)

	// Record folds one completed match's outcome into state.
	Record(state State, m matchrun.MatchDescriptor, o matchrun.Outcome) State

	// Finalize computes each agent's final tournament score from state.
	Finalize(state State) map[string]float64
}
