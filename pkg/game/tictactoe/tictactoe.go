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

// Package tictactoe is a minimal matchrun.Game implementation: a 3x3
// board for exactly two agents, shipped as the built-in reference
// implementation of the Game capability (§4.3, §4.4).
package tictactoe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
)

const boardSize = 3

// cell values: 0 empty, 1 agent 0's mark, 2 agent 1's mark.
type board [boardSize * boardSize]int

// gameState is the matchrun.State for a tic-tac-toe match.
type gameState struct {
	board board
	turn  int // index of the agent to move next
}

// Action is a single move: the row/column of the cell to mark.
type Action struct {
	Row, Col int
}

// Game implements matchrun.Game for tic-tac-toe. It is stateless: all
// mutable per-match data lives in the State value InitialState returns.
type Game struct{}

// New returns a tic-tac-toe Game.
func New() Game { return Game{} }

// InitialState returns an empty board with agent 0 to move. numAgents
// must be 2; anything else is a misconfiguration the caller should
// reject before running a match.
func (Game) InitialState(numAgents int) matchrun.State {
	return &gameState{}
}

// CurrentActor returns the index of the agent whose turn it is.
func (Game) CurrentActor(s matchrun.State) int {
	return s.(*gameState).turn
}

// SerializeState renders the board as 9 comma-separated cell values
// (0/1/2) followed by the index of the agent to move, e.g. "0,0,0,0,1,0,0,0,2;0".
func (Game) SerializeState(s matchrun.State) string {
	gs := s.(*gameState)
	cells := make([]string, len(gs.board))
	for i, c := range gs.board {
		cells[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("%s;%d", strings.Join(cells, ","), gs.turn)
}

// ParseAction parses a "row,col" move, both 0-based and in [0,boardSize).
func (Game) ParseAction(raw string) (matchrun.Action, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("tictactoe: malformed action %q, want \"row,col\"", raw)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("tictactoe: invalid row in %q: %w", raw, err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("tictactoe: invalid col in %q: %w", raw, err)
	}
	if row < 0 || row >= boardSize || col < 0 || col >= boardSize {
		return nil, fmt.Errorf("tictactoe: move %d,%d out of bounds", row, col)
	}
	return Action{Row: row, Col: col}, nil
}

// Apply marks the cell for actorIndex's move. Moving onto an occupied
// cell, or out of turn, disqualifies the mover.
func (Game) Apply(s matchrun.State, actorIndex int, a matchrun.Action) (matchrun.State, bool, error) {
	gs := *s.(*gameState)
	if actorIndex != gs.turn {
		return &gs, true, fmt.Errorf("tictactoe: agent %d moved out of turn", actorIndex)
	}
	move, ok := a.(Action)
	if !ok {
		return &gs, true, fmt.Errorf("tictactoe: unexpected action type %T", a)
	}
	idx := move.Row*boardSize + move.Col
	if gs.board[idx] != 0 {
		return &gs, true, fmt.Errorf("tictactoe: cell %d,%d already occupied", move.Row, move.Col)
	}
	gs.board[idx] = actorIndex + 1
	gs.turn = 1 - actorIndex
	return &gs, false, nil
}

// IsTerminal reports whether the board has a winner or is full.
func (Game) IsTerminal(s matchrun.State) bool {
	gs := s.(*gameState)
	return winner(gs.board) != 0 || full(gs.board)
}

// Score awards 1/0 to a winner/loser, 0.5/0.5 on a draw. An agent whose
// status is anything but Normal forfeits regardless of board state.
func (Game) Score(s matchrun.State, agentStatus map[int]matchrun.TerminationReason) map[int]float64 {
	for idx, reason := range agentStatus {
		if reason != matchrun.Normal {
			other := 1 - idx
			return map[int]float64{idx: 0, other: 1}
		}
	}

	gs := s.(*gameState)
	switch winner(gs.board) {
	case 1:
		return map[int]float64{0: 1, 1: 0}
	case 2:
		return map[int]float64{0: 0, 1: 1}
	default:
		return map[int]float64{0: 0.5, 1: 0.5}
	}
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// winner returns 1 or 2 if that mark has completed a line, else 0.
func winner(b board) int {
	for _, line := range lines {
		a, c, d := b[line[0]], b[line[1]], b[line[2]]
		if a != 0 && a == c && c == d {
			return a
		}
	}
	return 0
}

func full(b board) bool {
	for _, c := range b {
		if c == 0 {
			return false
		}
	}
	return true
}
