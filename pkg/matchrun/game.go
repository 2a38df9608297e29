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

// State is an opaque, game-defined representation of a match's current
// position. The match runtime never inspects it directly — only through
// the Game capability's serialization methods.
type State interface{}

// Action is an opaque, game-defined representation of one agent's move.
type Action interface{}

// Game is the capability the engine core consumes for game semantics
// (§1: out of scope, supplied only via this interface; §9: a small closed
// set of operations dispatched through an interface rather than through
// engine recompilation).
type Game interface {
	// InitialState returns the starting position for a fresh match
	// between the given number of agents.
	InitialState(numAgents int) State

	// CurrentActor returns the index, within the match's agent list, of
	// the agent whose turn it is in state s.
	CurrentActor(s State) int

	// SerializeState renders s as the UTF-8 payload sent to the acting
	// agent.
	SerializeState(s State) string

	// ParseAction parses an agent's raw UTF-8 response into an Action.
	// A non-nil error classifies the agent as Crashed (§4.3: malformed
	// agent output is classified crashed).
	ParseAction(raw string) (Action, error)

	// Apply transitions s by the acting agent's action, returning the
	// resulting state. If the action violates a game rule, Apply returns
	// disqualified=true and the match ends with that agent Disqualified.
	Apply(s State, actorIndex int, a Action) (next State, disqualified bool, err error)

	// IsTerminal reports whether s is a finished position.
	IsTerminal(s State) bool

	// Score returns each agent index's final score for a terminal state.
	// agentStatus gives the termination reason recorded for each index so
	// far (Normal for agents still playing when the game ended on its
	// own), letting the game apply a default-loss rule to any agent that
	// did not finish normally.
	Score(s State, agentStatus map[int]TerminationReason) map[int]float64
}
