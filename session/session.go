/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 *
 * Package session drives one club night: preparing rounds through the
 * scheduler, collecting results, rotating rests, and tracking earned
 * points, with snapshot persistence between operator actions.
 */
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mikeb26/clubnight/mip"
	"github.com/mikeb26/clubnight/rating"
	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/schedule"
)

var (
	ErrNotPrepared       = errors.New("no round is awaiting results")
	ErrRoundInProgress   = errors.New("current round has not been finalized")
	ErrInvalidCourtCount = errors.New("court count must be at least 1")
	ErrDuplicatePlayer   = errors.New("player already in session")
	ErrInvalidWinners    = errors.New("winners do not match the current round")
	ErrNoFeasibleRound   = errors.New("no feasible round assignment")
)

// RemoveStatus reports how a removal request was handled.
type RemoveStatus int

const (
	RemoveNotFound RemoveStatus = iota
	RemoveImmediate
	RemoveQueued
)

func (s RemoveStatus) String() string {
	switch s {
	case RemoveImmediate:
		return "removed"
	case RemoveQueued:
		return "queued until round ends"
	case RemoveNotFound:
		return "not found"
	}
	return "unknown"
}

// Session is one club night's mutable state. It is not safe for
// concurrent use; a night has a single operator.
type Session struct {
	Name      string
	IsDoubles bool
	NumCourts int
	Round     int

	// Recorded marks whether matches are written to the external match
	// log; StoreID is the external session row when they are.
	Recorded bool
	StoreID  int64

	players         map[string]*roster.Player
	joined          []string
	queue           *schedule.RestQueue
	history         schedule.PairHistory
	weights         schedule.Weights
	matches         []schedule.Match
	resting         []string
	prepared        bool
	pendingRemovals []string
	solveTimeout    time.Duration
}

// New starts a session over the given players. The rest queue begins in a
// random order.
func New(name string, players []*roster.Player, numCourts int,
	isDoubles bool, weights schedule.Weights) (*Session, error) {

	if numCourts < 1 {
		return nil, ErrInvalidCourtCount
	}

	pool := make(map[string]*roster.Player, len(players))
	joined := make([]string, 0, len(players))
	for _, p := range players {
		if _, ok := pool[p.Name]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicatePlayer, p.Name)
		}
		pool[p.Name] = p
		joined = append(joined, p.Name)
	}

	return &Session{
		Name:      name,
		IsDoubles: isDoubles,
		NumCourts: numCourts,
		players:   pool,
		joined:    joined,
		queue:     schedule.NewRestQueue(joined),
		history:   make(schedule.PairHistory),
		weights:   weights,
	}, nil
}

func (s *Session) perCourt() int {
	if s.IsDoubles {
		return schedule.PlayersPerCourtDoubles
	}
	return schedule.PlayersPerCourtSingles
}

// PrepareRound advances the round counter, selects who rests, and asks
// the scheduler for court assignments. On failure no matches are pending
// and the rest queue is left unrotated so a retry sees the same state.
func (s *Session) PrepareRound(ctx context.Context) ([]schedule.Match, error) {
	if s.prepared {
		return nil, ErrRoundInProgress
	}

	s.Round++
	required := roster.DeriveRequiredPartners(s.players)
	resting := s.selectResting(required)
	restSet := make(map[string]bool, len(resting))
	for _, name := range resting {
		restSet[name] = true
	}

	tier, real := rating.PrepareOptimizerRatings(s.players)
	genders := make(map[string]roster.Gender, len(s.players))
	for name, p := range s.players {
		genders[name] = p.Gender
	}

	res, err := schedule.GenerateRound(ctx, schedule.Request{
		TierRatings:  tier,
		RealSkills:   real,
		Genders:      genders,
		Resting:      restSet,
		NumCourts:    s.NumCourts,
		IsDoubles:    s.IsDoubles,
		History:      s.history,
		Required:     required,
		Weights:      s.weights,
		SolveTimeout: s.solveTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("session: round %d: %w", s.Round, err)
	}
	if !res.Success {
		if res.Status == mip.StatusInfeasible {
			return nil, fmt.Errorf("session: round %d infeasible: %w",
				s.Round, ErrNoFeasibleRound)
		}
		return nil, fmt.Errorf("session: round %d timed out: %w",
			s.Round, ErrNoFeasibleRound)
	}

	s.matches = res.Matches
	s.history = res.History
	s.resting = resting
	s.queue.RotateAfterRound(resting)
	s.prepared = true
	return s.matches, nil
}

// selectResting walks the rest queue from the front, keeping fixed
// partners together so nobody rests stranded while their partner plays.
// A linked group only rests when it fits in the remaining rest slots.
func (s *Session) selectResting(required roster.RequiredPartners) []string {
	restCount := s.queue.RestCount(s.NumCourts, s.perCourt())
	if restCount <= 0 {
		return nil
	}

	order := s.queue.Order()
	inRest := make(map[string]bool)
	var resting []string
	take := func(name string) {
		inRest[name] = true
		resting = append(resting, name)
	}

	for _, p := range order {
		if len(resting) >= restCount {
			break
		}
		if inRest[p] {
			continue
		}
		group := []string{p}
		if s.IsDoubles {
			var linked []string
			for q := range required.Partners(p) {
				if _, ok := s.players[q]; ok && !inRest[q] {
					linked = append(linked, q)
				}
			}
			sort.Strings(linked)
			group = append(group, linked...)
		}
		if len(resting)+len(group) <= restCount {
			for _, name := range group {
				take(name)
			}
		} else if len(group) == 1 {
			take(p)
		}
		// a partial group keeps playing this round
	}

	// pathological link structures can leave slots open; fill strictly
	// from the front
	for _, p := range order {
		if len(resting) >= restCount {
			break
		}
		if !inRest[p] {
			take(p)
		}
	}
	return resting
}

// FinalizeRound records the round's results: every winner earns a point,
// every rested player half a point. Winners are given per court and must
// exactly match one side of that court's match. Deferred removals are
// applied once the round closes.
func (s *Session) FinalizeRound(winnersByCourt map[int][]string) error {
	if !s.prepared {
		return ErrNotPrepared
	}
	if len(winnersByCourt) != len(s.matches) {
		return fmt.Errorf("%w: got %d courts, round has %d",
			ErrInvalidWinners, len(winnersByCourt), len(s.matches))
	}

	var winners []string
	for _, m := range s.matches {
		names, ok := winnersByCourt[m.Court()]
		if !ok {
			return fmt.Errorf("%w: no result for court %d",
				ErrInvalidWinners, m.Court())
		}
		_, side, err := matchSide(m, names)
		if err != nil {
			return err
		}
		winners = append(winners, side...)
	}

	for _, name := range winners {
		s.players[name].EarnedRating += 1
	}
	for _, name := range s.resting {
		if p, ok := s.players[name]; ok {
			p.EarnedRating += 0.5
		}
	}

	s.matches = nil
	s.resting = nil
	s.prepared = false

	for _, name := range s.pendingRemovals {
		s.removeNow(name)
	}
	s.pendingRemovals = nil
	return nil
}

// matchSide validates that names is exactly one side of m and returns
// the side number (1 or 2) with its canonical player list.
func matchSide(m schedule.Match, names []string) (int, []string, error) {
	var sides [][]string
	switch v := m.(type) {
	case schedule.DoublesMatch:
		sides = [][]string{{v.Team1.A, v.Team1.B}, {v.Team2.A, v.Team2.B}}
	case schedule.SinglesMatch:
		sides = [][]string{{v.Player1}, {v.Player2}}
	default:
		return 0, nil, fmt.Errorf("%w: unknown match type %T",
			ErrInvalidWinners, m)
	}

	given := append([]string(nil), names...)
	sort.Strings(given)
	for num, side := range sides {
		want := append([]string(nil), side...)
		sort.Strings(want)
		if len(given) == len(want) {
			same := true
			for i := range want {
				if given[i] != want[i] {
					same = false
					break
				}
			}
			if same {
				return num + 1, side, nil
			}
		}
	}
	return 0, nil, fmt.Errorf("%w: %v is not a side on court %d",
		ErrInvalidWinners, names, m.Court())
}

// WinnerSides validates the given winner sets against the pending round
// and returns the winning side number per court. Nothing is recorded;
// callers use this to reject a mistyped result before it lands anywhere
// durable.
func (s *Session) WinnerSides(winnersByCourt map[int][]string) (map[int]int, error) {
	if !s.prepared {
		return nil, ErrNotPrepared
	}
	if len(winnersByCourt) != len(s.matches) {
		return nil, fmt.Errorf("%w: got %d courts, round has %d",
			ErrInvalidWinners, len(winnersByCourt), len(s.matches))
	}

	out := make(map[int]int, len(s.matches))
	for _, m := range s.matches {
		names, ok := winnersByCourt[m.Court()]
		if !ok {
			return nil, fmt.Errorf("%w: no result for court %d",
				ErrInvalidWinners, m.Court())
		}
		num, _, err := matchSide(m, names)
		if err != nil {
			return nil, err
		}
		out[m.Court()] = num
	}
	return out, nil
}

// AddPlayer joins a player mid-session. They start with the field's
// average earned points rounded to the nearest half, enter the back of
// the rest queue, and sit out any round already in progress.
func (s *Session) AddPlayer(p *roster.Player) error {
	if _, ok := s.players[p.Name]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicatePlayer, p.Name)
	}

	if len(s.players) > 0 {
		sum := 0.0
		for _, existing := range s.players {
			sum += existing.EarnedRating
		}
		avg := sum / float64(len(s.players))
		p.EarnedRating = math.Round(avg*2) / 2
	}

	s.players[p.Name] = p
	s.joined = append(s.joined, p.Name)
	s.queue.Add(p.Name)
	if s.prepared {
		s.resting = append(s.resting, p.Name)
	}
	return nil
}

// RemovePlayer takes a player out of the session. A player on court
// finishes their match first; the removal lands when the round is
// finalized.
func (s *Session) RemovePlayer(name string) RemoveStatus {
	if _, ok := s.players[name]; !ok {
		return RemoveNotFound
	}
	if s.prepared {
		for _, m := range s.matches {
			for _, p := range m.Players() {
				if p == name {
					s.pendingRemovals = append(s.pendingRemovals, name)
					return RemoveQueued
				}
			}
		}
	}
	s.removeNow(name)
	return RemoveImmediate
}

func (s *Session) removeNow(name string) {
	delete(s.players, name)
	for i, j := range s.joined {
		if j == name {
			s.joined = append(s.joined[:i], s.joined[i+1:]...)
			break
		}
	}
	s.queue.Remove(name)
	for i, r := range s.resting {
		if r == name {
			s.resting = append(s.resting[:i], s.resting[i+1:]...)
			break
		}
	}
}

// UpdateCourts changes the court count for subsequent rounds.
func (s *Session) UpdateCourts(n int) error {
	if n < 1 {
		return ErrInvalidCourtCount
	}
	s.NumCourts = n
	return nil
}

// Standing is one row of the session leaderboard.
type Standing struct {
	Name   string
	Earned float64
}

// Standings returns players by earned points, best first; ties keep the
// order players joined the session.
func (s *Session) Standings() []Standing {
	out := make([]Standing, 0, len(s.players))
	for _, name := range s.joined {
		out = append(out, Standing{Name: name, Earned: s.players[name].EarnedRating})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Earned > out[j].Earned
	})
	return out
}

// CurrentMatches returns the pending round's matches, nil when no round
// is in progress.
func (s *Session) CurrentMatches() []schedule.Match {
	if !s.prepared {
		return nil
	}
	return s.matches
}

// Resting returns who sits out the pending round.
func (s *Session) Resting() []string {
	out := make([]string, len(s.resting))
	copy(out, s.resting)
	return out
}

// Players returns the current pool keyed by name.
func (s *Session) Players() map[string]*roster.Player {
	return s.players
}

// Player looks up one pool member.
func (s *Session) Player(name string) (*roster.Player, bool) {
	p, ok := s.players[name]
	return p, ok
}

// SetSolveTimeout overrides the scheduler deadline; zero restores the
// default.
func (s *Session) SetSolveTimeout(d time.Duration) {
	s.solveTimeout = d
}
