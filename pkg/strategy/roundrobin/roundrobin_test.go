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

package roundrobin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

func agents(names ...string) []matchrun.AgentDescriptor {
	out := make([]matchrun.AgentDescriptor, len(names))
	for i, n := range names {
		out[i] = matchrun.AgentDescriptor{Name: n, Path: "/bin/" + n}
	}
	return out
}

func TestCombinationsPairwiseCount(t *testing.T) {
	tuples := combinations(agents("a", "b", "c", "d"), 2)
	require.Len(t, tuples, 6) // C(4,2)
}

func TestCombinationsHigherArity(t *testing.T) {
	tuples := combinations(agents("a", "b", "c", "d"), 3)
	require.Len(t, tuples, 4) // C(4,3)
}

func TestEveryPairPlaysExactlyRepetitionsTimes(t *testing.T) {
	roster := agents("a", "b", "c")
	s := New(roster, 2, WithRepetitions(3))

	var st strategy.State
	count := map[string]int{}
	for {
		batch, done := s.NextBatch(st, nil)
		if done {
			break
		}
		for _, m := range batch {
			key := m.Agents[0].Name + "-" + m.Agents[1].Name
			count[key]++
			st = s.Record(st, m, matchrun.Outcome{Scores: map[string]float64{
				m.Agents[0].Name: 1, m.Agents[1].Name: 0,
			}})
		}
	}

	for pair, n := range count {
		require.Equal(t, 3, n, "pair %s played %d times, want 3", pair, n)
	}
	require.Len(t, count, 3) // C(3,2)
}

func TestDefaultTallyWinLossDraw(t *testing.T) {
	pair := agents("a", "b")
	win := DefaultTally(matchrun.Outcome{Scores: map[string]float64{"a": 1, "b": 0}}, pair)
	require.Equal(t, 1.0, win["a"])
	require.Equal(t, 0.0, win["b"])

	draw := DefaultTally(matchrun.Outcome{Scores: map[string]float64{"a": 0.5, "b": 0.5}}, pair)
	require.Equal(t, 0.5, draw["a"])
	require.Equal(t, 0.5, draw["b"])
}

func TestFinalizeAccumulatesAcrossSchedule(t *testing.T) {
	roster := agents("a", "b")
	s := New(roster, 2, WithRepetitions(2))

	var st strategy.State
	for {
		batch, done := s.NextBatch(st, nil)
		if done {
			break
		}
		for _, m := range batch {
			st = s.Record(st, m, matchrun.Outcome{Scores: map[string]float64{"a": 1, "b": 0}})
		}
	}

	got := s.Finalize(st)
	require.Equal(t, 2.0, got["a"])
	require.Equal(t, 0.0, got["b"])
}
