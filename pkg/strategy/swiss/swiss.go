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

// Package swiss implements Swiss-system pairing (§4.4/§8): each round
// pairs agents close in standings, never repeating a previous pairing
// while a legal alternative exists, awarding a bye to an unpaired agent
// when the cohort is odd.
package swiss

import (
	"sort"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
	"github.com/Atsuyo64/ai-tournament/pkg/strategy"
)

// Option configures a Strategy built by New.
type Option func(*Strategy)

// WithRounds sets how many Swiss rounds to run. Default 1.
func WithRounds(n int) Option {
	return func(s *Strategy) {
		if n > 0 {
			s.rounds = n
		}
	}
}

// WithByeScore sets the score awarded to an agent that draws a bye. Default 1.
func WithByeScore(v float64) Option {
	return func(s *Strategy) { s.byeScore = v }
}

type standing struct {
	name   string
	order  int // initial roster position, the deterministic tiebreak
	points float64
	byed   bool
	played map[string]bool
}

// state holds the Swiss tournament's standings and round progress.
type state struct {
	standings map[string]*standing
	round     int
	pending   int // matches still to be recorded before round advances
	recorded  int
}

// Strategy runs a fixed number of Swiss rounds over a roster of agents,
// pairing by standings each round (§4.4, §8).
type Strategy struct {
	roster   []matchrun.AgentDescriptor
	rounds   int
	byeScore float64
}

// New builds a Swiss Strategy over roster, running WithRounds rounds
// (default 1).
func New(roster []matchrun.AgentDescriptor, opts ...Option) *Strategy {
	s := &Strategy{roster: roster, rounds: 1, byeScore: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newState(roster []matchrun.AgentDescriptor) *state {
	st := &state{standings: make(map[string]*standing, len(roster))}
	for i, ad := range roster {
		st.standings[ad.Name] = &standing{name: ad.Name, order: i, played: make(map[string]bool)}
	}
	return st
}

// sortedStandings returns every standing ordered by points descending,
// ties broken by initial roster order — the deterministic secondary key
// §4.4 requires.
func sortedStandings(st *state) []*standing {
	out := make([]*standing, 0, len(st.standings))
	for _, s := range st.standings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].points != out[j].points {
			return out[i].points > out[j].points
		}
		return out[i].order < out[j].order
	})
	return out
}

// NextBatch pairs the current standings into one round's worth of
// matches. Rounds cannot overlap — a round's pairing depends on the
// points from every previous round being settled — but every match
// within the returned batch is independent and may run concurrently.
func (s *Strategy) NextBatch(st strategy.State, prior []strategy.Recorded) ([]matchrun.MatchDescriptor, bool) {
	cur, _ := st.(*state)
	if cur == nil {
		cur = newState(s.roster)
	}

	if cur.round >= s.rounds {
		return nil, true
	}

	standings := sortedStandings(cur)
	pairs, bye := pairRound(standings)

	var batch []matchrun.MatchDescriptor
	for _, p := range pairs {
		batch = append(batch, matchrun.MatchDescriptor{
			Agents: []matchrun.AgentDescriptor{descriptorOf(s.roster, p[0]), descriptorOf(s.roster, p[1])},
		})
	}
	cur.pending = len(batch)
	cur.recorded = 0

	if bye != "" {
		cur.standings[bye].points += s.byeScore
		cur.standings[bye].byed = true
	}

	if cur.pending == 0 {
		// Every agent byed (a single remaining agent): nothing to record,
		// advance the round immediately so NextBatch is called again.
		cur.round++
	}

	return batch, false
}

func descriptorOf(roster []matchrun.AgentDescriptor, name string) matchrun.AgentDescriptor {
	for _, ad := range roster {
		if ad.Name == name {
			return ad
		}
	}
	return matchrun.AgentDescriptor{Name: name}
}

// pairRound pairs standings (already sorted by rank) top-down, trying
// the next-highest unplayed opponent first and backtracking to the next
// candidate down the standings on failure (§9's resolved backtracking
// order), falling back to repeat pairings only if no legal pairing
// remains. If the cohort is odd, the bye goes to the lowest-ranked
// unpaired agent who has not byed yet, or the lowest-ranked unpaired
// agent overall if everyone remaining has already byed.
func pairRound(standings []*standing) ([][2]string, string) {
	names := make([]string, len(standings))
	byName := make(map[string]*standing, len(standings))
	for i, s := range standings {
		names[i] = s.name
		byName[s.name] = s
	}

	bye := ""
	if len(names)%2 == 1 {
		bye = pickBye(standings)
		filtered := names[:0:0]
		for _, n := range names {
			if n != bye {
				filtered = append(filtered, n)
			}
		}
		names = filtered
	}

	pairs, ok := backtrackPair(names, byName, false)
	if !ok {
		pairs, _ = backtrackPair(names, byName, true)
	}

	return pairs, bye
}

// pickBye chooses the lowest-ranked agent without a previous bye,
// falling back to the lowest-ranked agent overall.
func pickBye(standings []*standing) string {
	for i := len(standings) - 1; i >= 0; i-- {
		if !standings[i].byed {
			return standings[i].name
		}
	}
	return standings[len(standings)-1].name
}

// backtrackPair pairs names top-down: it takes the first remaining name
// and tries every later name in order as its opponent, recursing on the
// rest and backtracking on failure. allowRepeat disables the
// already-played check, used only as a fallback when no pairing without
// repeats exists.
func backtrackPair(names []string, byName map[string]*standing, allowRepeat bool) ([][2]string, bool) {
	if len(names) == 0 {
		return nil, true
	}

	head := names[0]
	rest := names[1:]

	for i, cand := range rest {
		if !allowRepeat && byName[head].played[cand] {
			continue
		}

		remaining := make([]string, 0, len(rest)-1)
		remaining = append(remaining, rest[:i]...)
		remaining = append(remaining, rest[i+1:]...)

		sub, ok := backtrackPair(remaining, byName, allowRepeat)
		if ok {
			return append([][2]string{{head, cand}}, sub...), true
		}
	}

	return nil, false
}

// Record folds one match's outcome into the standings: the winner (or
// both, on a draw) gains points and both agents are marked as having
// played each other.
func (s *Strategy) Record(st strategy.State, m matchrun.MatchDescriptor, o matchrun.Outcome) strategy.State {
	cur, _ := st.(*state)
	if cur == nil {
		// The first round was paired on a fresh state that NextBatch could
		// not hand back; redo its pending count and bye on this one.
		cur = newState(s.roster)
		pairs, bye := pairRound(sortedStandings(cur))
		cur.pending = len(pairs)
		if bye != "" {
			cur.standings[bye].points += s.byeScore
			cur.standings[bye].byed = true
		}
	}

	a, b := m.Agents[0].Name, m.Agents[1].Name
	cur.standings[a].points += o.Scores[a]
	cur.standings[b].points += o.Scores[b]
	cur.standings[a].played[b] = true
	cur.standings[b].played[a] = true

	cur.recorded++
	if cur.recorded >= cur.pending {
		cur.round++
	}

	return cur
}

// Finalize returns final Swiss points per agent (standings order is
// recoverable by sorting this map the same way sortedStandings does).
func (s *Strategy) Finalize(st strategy.State) map[string]float64 {
	cur, _ := st.(*state)
	out := make(map[string]float64)
	if cur == nil {
		return out
	}
	for name, s := range cur.standings {
		out[name] = s.points
	}
	return out
}
