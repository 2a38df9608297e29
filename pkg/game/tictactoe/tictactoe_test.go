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

package tictactoe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
)

func mustParse(t *testing.T, g Game, raw string) matchrun.Action {
	t.Helper()
	a, err := g.ParseAction(raw)
	require.NoError(t, err)
	return a
}

func TestParseActionRejectsMalformed(t *testing.T) {
	g := New()
	for _, raw := range []string{"", "1", "1,2,3", "a,b", "3,0", "0,-1"} {
		_, err := g.ParseAction(raw)
		require.Errorf(t, err, "expected error for %q", raw)
	}
}

func TestInitialStateEmptyBoardAgentZeroToMove(t *testing.T) {
	g := New()
	s := g.InitialState(2)
	require.Equal(t, 0, g.CurrentActor(s))
	require.False(t, g.IsTerminal(s))
}

func TestApplyTogglesTurnAndMarksCell(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	s, dq, err := g.Apply(s, 0, mustParse(t, g, "0,0"))
	require.NoError(t, err)
	require.False(t, dq)
	require.Equal(t, 1, g.CurrentActor(s))

	s, dq, err = g.Apply(s, 1, mustParse(t, g, "1,1"))
	require.NoError(t, err)
	require.False(t, dq)
	require.Equal(t, 0, g.CurrentActor(s))
}

func TestApplyDisqualifiesOutOfTurnMove(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	_, dq, err := g.Apply(s, 1, mustParse(t, g, "0,0"))
	require.Error(t, err)
	require.True(t, dq)
}

func TestApplyDisqualifiesOccupiedCell(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	s, _, err := g.Apply(s, 0, mustParse(t, g, "0,0"))
	require.NoError(t, err)

	_, dq, err := g.Apply(s, 1, mustParse(t, g, "0,0"))
	require.Error(t, err)
	require.True(t, dq)
}

func TestWinnerDetection(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	moves := []struct {
		actor int
		move  string
	}{
		{0, "0,0"}, {1, "1,0"},
		{0, "0,1"}, {1, "1,1"},
		{0, "0,2"}, // agent 0 completes the top row
	}

	var dq bool
	var err error
	for _, m := range moves {
		s, dq, err = g.Apply(s, m.actor, mustParse(t, g, m.move))
		require.NoError(t, err)
		require.False(t, dq)
	}

	require.True(t, g.IsTerminal(s))
	scores := g.Score(s, map[int]matchrun.TerminationReason{0: matchrun.Normal, 1: matchrun.Normal})
	require.Equal(t, map[int]float64{0: 1, 1: 0}, scores)
}

func TestDraw(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	// X O X / X X O / O X O -- full board, no line for either player.
	moves := []struct {
		actor int
		move  string
	}{
		{0, "0,0"}, {1, "0,1"},
		{0, "0,2"}, {1, "1,2"},
		{0, "1,0"}, {1, "2,0"},
		{0, "1,1"}, {1, "2,2"},
		{0, "2,1"},
	}

	var err error
	for _, m := range moves {
		s, _, err = g.Apply(s, m.actor, mustParse(t, g, m.move))
		require.NoError(t, err)
	}

	require.True(t, g.IsTerminal(s))
	scores := g.Score(s, map[int]matchrun.TerminationReason{0: matchrun.Normal, 1: matchrun.Normal})
	require.Equal(t, map[int]float64{0: 0.5, 1: 0.5}, scores)
}

func TestScoreForfeitsOnAbnormalTermination(t *testing.T) {
	g := New()
	s := g.InitialState(2)

	scores := g.Score(s, map[int]matchrun.TerminationReason{0: matchrun.Crashed, 1: matchrun.Normal})
	require.Equal(t, map[int]float64{0: 0, 1: 1}, scores)
}

func TestSerializeStateRoundTripsTurn(t *testing.T) {
	g := New()
	s := g.InitialState(2)
	require.Equal(t, "0,0,0,0,0,0,0,0,0;0", g.SerializeState(s))

	s, _, err := g.Apply(s, 0, mustParse(t, g, "1,1"))
	require.NoError(t, err)
	require.Equal(t, "0,0,0,0,1,0,0,0,0;1", g.SerializeState(s))
}
