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

package singleplayer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

func agent(name string) matchrun.AgentDescriptor {
	return matchrun.AgentDescriptor{Name: name, Path: "/bin/" + name}
}

func runAll(t *testing.T, s *Strategy, outcomes func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome) map[string]float64 {
	t.Helper()

	var st strategy.State
	rep := 0
	for {
		batch, done := s.NextBatch(st, nil)
		if done {
			break
		}
		for _, m := range batch {
			st = s.Record(st, m, outcomes(m, rep))
		}
		rep++
		if rep > 100 {
			t.Fatal("runaway loop")
		}
	}
	return s.Finalize(st)
}

func TestSingleplayerDefaultsToMeanOverRepetitions(t *testing.T) {
	tuples := [][]matchrun.AgentDescriptor{{agent("alice")}}
	s := New(tuples, WithRepetitions(3))

	scoresByRep := []float64{1.0, 0.0, 0.5}
	got := runAll(t, s, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		return matchrun.Outcome{Scores: map[string]float64{"alice": scoresByRep[rep]}}
	})

	require.InDelta(t, 0.5, got["alice"], 1e-9)
}

func TestSingleplayerSumAggregation(t *testing.T) {
	tuples := [][]matchrun.AgentDescriptor{{agent("alice")}}
	s := New(tuples, WithRepetitions(3), WithAggregation(Sum))

	scoresByRep := []float64{1.0, 2.0, 3.0}
	got := runAll(t, s, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		return matchrun.Outcome{Scores: map[string]float64{"alice": scoresByRep[rep]}}
	})

	require.InDelta(t, 6.0, got["alice"], 1e-9)
}

func TestSingleplayerMinMaxAggregation(t *testing.T) {
	tuples := [][]matchrun.AgentDescriptor{{agent("alice")}}
	scoresByRep := []float64{3.0, 1.0, 2.0}

	sMin := New(tuples, WithRepetitions(3), WithAggregation(Min))
	gotMin := runAll(t, sMin, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		return matchrun.Outcome{Scores: map[string]float64{"alice": scoresByRep[rep]}}
	})
	require.InDelta(t, 1.0, gotMin["alice"], 1e-9)

	sMax := New(tuples, WithRepetitions(3), WithAggregation(Max))
	gotMax := runAll(t, sMax, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		return matchrun.Outcome{Scores: map[string]float64{"alice": scoresByRep[rep]}}
	})
	require.InDelta(t, 3.0, gotMax["alice"], 1e-9)
}

func TestSingleplayerMultipleTuplesProgressTogether(t *testing.T) {
	tuples := [][]matchrun.AgentDescriptor{{agent("alice")}, {agent("bob")}}
	s := New(tuples, WithRepetitions(2))

	var rounds int
	got := runAll(t, s, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		rounds = rep + 1
		return matchrun.Outcome{Scores: map[string]float64{m.Agents[0].Name: 1.0}}
	})

	require.Equal(t, 2, rounds)
	require.InDelta(t, 1.0, got["alice"], 1e-9)
	require.InDelta(t, 1.0, got["bob"], 1e-9)
}

func TestSingleplayerGeneralizesToKPlayerTuples(t *testing.T) {
	tuples := [][]matchrun.AgentDescriptor{{agent("alice"), agent("bob")}}
	s := New(tuples, WithRepetitions(1))

	got := runAll(t, s, func(m matchrun.MatchDescriptor, rep int) matchrun.Outcome {
		return matchrun.Outcome{Scores: map[string]float64{"alice": 1.0, "bob": 0.0}}
	})

	require.InDelta(t, 1.0, got["alice"], 1e-9)
	require.InDelta(t, 0.0, got["bob"], 1e-9)
}
