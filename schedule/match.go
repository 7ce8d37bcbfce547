/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 *
 * Package schedule generates one round of court assignments for a club
 * night. The round is modeled as a small mixed-integer program balancing
 * per-court skill spread, team power spread, and repeat-pairing fatigue,
 * with fixed-partner requirements handled as hard constraints.
 */
package schedule

import (
	"fmt"
	"sort"
)

// Pair is an unordered pair of player names, stored sorted so it can key
// history maps regardless of construction order.
type Pair struct {
	A, B string
}

func NewPair(a, b string) Pair {
	if b < a {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

func (p Pair) Has(name string) bool {
	return p.A == name || p.B == name
}

func (p Pair) String() string {
	return p.A + "/" + p.B
}

// PairHistory counts how many times each pair has shared a court this
// session. Counts never decrease while a session runs.
type PairHistory map[Pair]int

func (h PairHistory) Count(a, b string) int {
	return h[NewPair(a, b)]
}

func (h PairHistory) Clone() PairHistory {
	out := make(PairHistory, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// recordCourt increments every pair among the given co-court players.
func (h PairHistory) recordCourt(players []string) {
	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			h[NewPair(players[i], players[j])]++
		}
	}
}

// Weights tunes the round objective. Skill, Power, and Pairing are
// nonnegative multipliers; the penalty fields are added to team or player
// power and are typically negative or zero.
type Weights struct {
	Skill   float64 `yaml:"skill"`
	Power   float64 `yaml:"power"`
	Pairing float64 `yaml:"pairing"`

	FemaleFemaleTeamPenalty float64 `yaml:"female_female_team_penalty"`
	MixedGenderTeamPenalty  float64 `yaml:"mixed_gender_team_penalty"`
	FemaleSinglesPenalty    float64 `yaml:"female_singles_penalty"`
}

// DefaultWeights mirrors the tuning used on regular club nights.
func DefaultWeights() Weights {
	return Weights{
		Skill:   1.0,
		Power:   3.0,
		Pairing: 2.0,
	}
}

// Match is one scheduled court, either singles or doubles.
type Match interface {
	Court() int
	Players() []string
}

// SinglesMatch is a 1v1 court assignment.
type SinglesMatch struct {
	CourtNum   int
	Player1    string
	Player2    string
	Rating1    float64
	Rating2    float64
	RatingDiff float64
}

func (m SinglesMatch) Court() int { return m.CourtNum }

func (m SinglesMatch) Players() []string {
	return []string{m.Player1, m.Player2}
}

func (m SinglesMatch) String() string {
	return fmt.Sprintf("court %d: %v vs %v", m.CourtNum, m.Player1, m.Player2)
}

// DoublesMatch is a 2v2 court assignment. Team power is the sum of the
// partners' real skills plus any gender-composition penalty.
type DoublesMatch struct {
	CourtNum   int
	Team1      Pair
	Team2      Pair
	Team1Power float64
	Team2Power float64
	PowerDiff  float64
}

func (m DoublesMatch) Court() int { return m.CourtNum }

func (m DoublesMatch) Players() []string {
	return []string{m.Team1.A, m.Team1.B, m.Team2.A, m.Team2.B}
}

func (m DoublesMatch) String() string {
	return fmt.Sprintf("court %d: %v vs %v", m.CourtNum, m.Team1, m.Team2)
}

// SortMatches orders matches by court number in place.
func SortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Court() < matches[j].Court()
	})
}
