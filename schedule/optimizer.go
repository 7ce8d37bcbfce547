/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package schedule

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/mikeb26/clubnight/mip"
	"github.com/mikeb26/clubnight/roster"
)

const (
	PlayersPerCourtDoubles = 4
	PlayersPerCourtSingles = 2

	// DefaultSolveTimeout bounds one round's optimization.
	DefaultSolveTimeout = 10 * time.Second
)

// Request describes one round to generate. TierRatings keys define the
// player pool; Resting players are excluded before the model is built.
type Request struct {
	TierRatings  map[string]float64
	RealSkills   map[string]float64
	Genders      map[string]roster.Gender
	Resting      map[string]bool
	NumCourts    int
	IsDoubles    bool
	History      PairHistory
	Required     roster.RequiredPartners
	Weights      Weights
	SolveTimeout time.Duration
}

// Result is the outcome of one round generation. On success History is an
// updated copy of the request's history; on failure Matches is nil and the
// request's history is returned untouched.
type Result struct {
	Matches []Match
	History PairHistory
	Success bool
	Status  mip.Status
}

// GenerateRound builds and solves the round assignment model. Court count
// is capped to what the available pool can fill; zero effective courts is
// a success with no matches. Infeasibility and solver timeout are failure
// results, not errors; a non-nil error indicates a solver malfunction.
func GenerateRound(ctx context.Context, req Request) (Result, error) {
	perCourt := PlayersPerCourtSingles
	if req.IsDoubles {
		perCourt = PlayersPerCourtDoubles
	}

	available := make([]string, 0, len(req.TierRatings))
	for name := range req.TierRatings {
		if !req.Resting[name] {
			available = append(available, name)
		}
	}
	// sort before shuffling so the outcome depends only on the shuffle
	sort.Strings(available)
	rand.Shuffle(len(available), func(i, j int) {
		available[i], available[j] = available[j], available[i]
	})

	numCourts := req.NumCourts
	if maxCourts := len(available) / perCourt; numCourts > maxCourts {
		numCourts = maxCourts
	}
	if numCourts <= 0 {
		return Result{Matches: []Match{}, History: req.History, Success: true,
			Status: mip.StatusOptimal}, nil
	}

	b := newRoundModel(req, available, numCourts, perCourt)

	timeout := req.SolveTimeout
	if timeout <= 0 {
		timeout = DefaultSolveTimeout
	}
	solveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sol, err := b.model.Solve(solveCtx)
	if err != nil {
		return Result{History: req.History, Status: sol.Status},
			fmt.Errorf("schedule: round solve failed: %w", err)
	}
	if sol.Status != mip.StatusOptimal && sol.Status != mip.StatusFeasible {
		log.Printf("schedule: no round found for %d players on %d courts: %v",
			len(available), numCourts, sol.Status)
		return Result{History: req.History, Status: sol.Status}, nil
	}

	matches := b.extractMatches(req, sol.Values)
	history := req.History.Clone()
	if history == nil {
		history = make(PairHistory)
	}
	for _, m := range matches {
		history.recordCourt(m.Players())
	}

	return Result{Matches: matches, History: history, Success: true,
		Status: sol.Status}, nil
}

// roundModel holds the MIP under construction plus the variable indexes
// needed to read the solution back.
type roundModel struct {
	model     *mip.Model
	available []string
	numCourts int
	perCourt  int

	onCourt  map[string][]mip.Var // player -> per-court binary
	pairs    []Pair
	pairVars map[Pair][]mip.Var // pair -> per-court binary

	skillMax, skillMin []mip.Var // per-court spread trackers
	powerMax, powerMin []mip.Var
	excuse             map[string]mip.Var

	// rating envelopes over this instance's data. The activation constant
	// for the max/min rows is the envelope width plus one, kept tight so
	// the relaxations stay numerically tame.
	skillLo, skillHi float64
	powerLo, powerHi float64
}

func newRoundModel(req Request, available []string, numCourts, perCourt int) *roundModel {
	b := &roundModel{
		model:     mip.NewModel(),
		available: available,
		numCourts: numCourts,
		perCourt:  perCourt,
		onCourt:   make(map[string][]mip.Var, len(available)),
		pairVars:  make(map[Pair][]mip.Var),
	}
	m := b.model

	for _, p := range available {
		vars := make([]mip.Var, numCourts)
		for c := 0; c < numCourts; c++ {
			vars[c] = m.AddBinary(fmt.Sprintf("on_%s_%d", p, c))
		}
		b.onCourt[p] = vars
	}
	for i := 0; i < len(available); i++ {
		for j := i + 1; j < len(available); j++ {
			pr := NewPair(available[i], available[j])
			vars := make([]mip.Var, numCourts)
			for c := 0; c < numCourts; c++ {
				vars[c] = m.AddBinary(fmt.Sprintf("pair_%s_%d", pr, c))
			}
			b.pairs = append(b.pairs, pr)
			b.pairVars[pr] = vars
		}
	}

	// every court filled exactly, every player on at most one court
	for c := 0; c < numCourts; c++ {
		terms := make([]mip.Term, 0, len(available))
		for _, p := range available {
			terms = append(terms, mip.Term{Var: b.onCourt[p][c], Coef: 1})
		}
		m.AddCons(terms, mip.EQ, float64(perCourt))
	}
	for _, p := range available {
		terms := make([]mip.Term, 0, numCourts)
		for c := 0; c < numCourts; c++ {
			terms = append(terms, mip.Term{Var: b.onCourt[p][c], Coef: 1})
		}
		m.AddCons(terms, mip.LE, 1)
	}

	// pairing consistency: every on-court player is in exactly one
	// selected pair on their court. Nonnegativity of the pair variables
	// inside this equality also caps each pair by both players' on-court
	// variables, so no separate linking rows are needed.
	for _, p := range available {
		for c := 0; c < numCourts; c++ {
			terms := []mip.Term{{Var: b.onCourt[p][c], Coef: -1}}
			for _, pr := range b.pairs {
				if pr.Has(p) {
					terms = append(terms, mip.Term{Var: b.pairVars[pr][c], Coef: 1})
				}
			}
			m.AddCons(terms, mip.EQ, 0)
		}
	}

	b.computeEnvelopes(req)
	b.addSpreadObjective(req)
	b.addPairingObjective(req)
	if req.IsDoubles {
		b.addRequiredPartnerCons(req)
	}
	b.seedGreedyStart(req)

	return b
}

// seedGreedyStart hands the solver an initial feasible round so a hard
// instance still yields a playable assignment within the deadline.
// Fixed-partner pairs are kept whole; when the pool exceeds the seats,
// the overflow simply stays off court. A start the constraints reject
// is silently discarded.
func (b *roundModel) seedGreedyStart(req Request) {
	needed := b.numCourts * b.perCourt
	if len(b.available) < needed {
		return
	}

	// units are fixed-partner pairs (greedily matched) plus singletons
	matched := make(map[string]bool)
	var units [][]string
	if req.IsDoubles && req.Required != nil {
		ordered := make([]string, len(b.available))
		copy(ordered, b.available)
		sort.Strings(ordered)
		for _, p := range ordered {
			if matched[p] {
				continue
			}
			var qs []string
			for q := range req.Required.Partners(p) {
				if _, ok := b.onCourt[q]; ok && !matched[q] {
					qs = append(qs, q)
				}
			}
			sort.Strings(qs)
			if len(qs) > 0 {
				matched[p] = true
				matched[qs[0]] = true
				units = append(units, []string{p, qs[0]})
			}
		}
	}

	var rest []string
	for _, p := range b.available {
		if !matched[p] {
			rest = append(rest, p)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if req.RealSkills[rest[i]] != req.RealSkills[rest[j]] {
			return req.RealSkills[rest[i]] > req.RealSkills[rest[j]]
		}
		return rest[i] < rest[j]
	})

	var teams [][]string
	if req.IsDoubles {
		// seat whole pair units first, then fill from the strongest
		// remaining singletons; overflow players sit out
		seats := 0
		for _, u := range units {
			if seats+2 > needed {
				break
			}
			teams = append(teams, u)
			seats += 2
		}
		var chosen []string
		for _, p := range rest {
			if seats >= needed {
				break
			}
			chosen = append(chosen, p)
			seats++
		}
		if seats != needed || len(chosen)%2 != 0 {
			return
		}
		for i := 0; i < len(chosen); i += 2 {
			teams = append(teams, []string{chosen[i], chosen[i+1]})
		}
	} else {
		for _, p := range rest {
			if len(teams) >= needed {
				break
			}
			teams = append(teams, []string{p})
		}
	}

	teamsPerCourt := 2
	if len(teams) != b.numCourts*teamsPerCourt {
		return
	}
	sort.Slice(teams, func(i, j int) bool {
		pi := req.RealSkills[teams[i][0]]
		pj := req.RealSkills[teams[j][0]]
		for _, p := range teams[i][1:] {
			pi += req.RealSkills[p]
		}
		for _, p := range teams[j][1:] {
			pj += req.RealSkills[p]
		}
		if pi != pj {
			return pi > pj
		}
		return teams[i][0] < teams[j][0]
	})

	values := make([]float64, b.model.NumVars())
	courtPlayers := make([][]string, b.numCourts)
	for c := 0; c < b.numCourts; c++ {
		for _, team := range teams[c*teamsPerCourt : (c+1)*teamsPerCourt] {
			courtPlayers[c] = append(courtPlayers[c], team...)
			for _, p := range team {
				values[b.onCourt[p][c]] = 1
			}
			if len(team) == 2 {
				values[b.pairVars[NewPair(team[0], team[1])][c]] = 1
			}
		}
		if !req.IsDoubles && len(courtPlayers[c]) == 2 {
			values[b.pairVars[NewPair(courtPlayers[c][0], courtPlayers[c][1])][c]] = 1
		}
	}

	// fill in the implied court spread values and any excuse variables
	b.completeStart(req, values, courtPlayers)
	b.model.SetStart(values)
}

func (b *roundModel) completeStart(req Request, values []float64, courtPlayers [][]string) {
	for c, players := range courtPlayers {
		if len(players) == 0 {
			continue
		}
		maxR, minR := req.TierRatings[players[0]], req.TierRatings[players[0]]
		for _, p := range players[1:] {
			r := req.TierRatings[p]
			if r > maxR {
				maxR = r
			}
			if r < minR {
				minR = r
			}
		}
		values[b.skillMax[c]] = maxR
		values[b.skillMin[c]] = minR

		var powers []float64
		if req.IsDoubles {
			for _, pr := range b.pairs {
				if values[b.pairVars[pr][c]] > 0.5 {
					powers = append(powers, b.teamPower(req, pr))
				}
			}
		} else {
			for _, p := range players {
				powers = append(powers, b.singlesPower(req, p))
			}
		}
		if len(powers) > 0 {
			maxP, minP := powers[0], powers[0]
			for _, v := range powers[1:] {
				if v > maxP {
					maxP = v
				}
				if v < minP {
					minP = v
				}
			}
			values[b.powerMax[c]] = maxP
			values[b.powerMin[c]] = minP
		}
	}

	for p, v := range b.excuse {
		playing := false
		for c := 0; c < b.numCourts; c++ {
			if values[b.onCourt[p][c]] > 0.5 {
				playing = true
			}
		}
		if !playing {
			// a benched player needs no excuse
			continue
		}
		direct := false
		for _, pr := range b.pairs {
			if !pr.Has(p) {
				continue
			}
			if !b.isRequiredPair(req, pr) {
				continue
			}
			for c := 0; c < b.numCourts; c++ {
				if values[b.pairVars[pr][c]] > 0.5 {
					direct = true
				}
			}
		}
		if !direct {
			values[v] = 1
		}
	}
}

// computeEnvelopes finds the tier-rating and power ranges over this
// instance's data so the spread variables and activation rows use tight
// bounds instead of a fixed huge constant.
func (b *roundModel) computeEnvelopes(req Request) {
	first := true
	for _, p := range b.available {
		r := req.TierRatings[p]
		if first || r < b.skillLo {
			b.skillLo = r
		}
		if first || r > b.skillHi {
			b.skillHi = r
		}
		first = false
	}

	first = true
	observe := func(power float64) {
		if first || power < b.powerLo {
			b.powerLo = power
		}
		if first || power > b.powerHi {
			b.powerHi = power
		}
		first = false
	}
	if req.IsDoubles {
		for _, pr := range b.pairs {
			observe(b.teamPower(req, pr))
		}
	} else {
		for _, p := range b.available {
			observe(b.singlesPower(req, p))
		}
	}
}

// addSpreadObjective adds the per-court max/min tracking variables for
// tier-rating spread and power spread, weighted into the objective. The
// activation rows deactivate by the envelope width, which is enough by
// construction: every rating lies inside [lo, hi].
func (b *roundModel) addSpreadObjective(req Request) {
	m := b.model

	skillM := b.skillHi - b.skillLo + 1
	powerM := b.powerHi - b.powerLo + 1

	for c := 0; c < b.numCourts; c++ {
		maxR := m.AddContinuous(fmt.Sprintf("maxr_%d", c), b.skillLo, b.skillHi)
		minR := m.AddContinuous(fmt.Sprintf("minr_%d", c), b.skillLo, b.skillHi)
		b.skillMax = append(b.skillMax, maxR)
		b.skillMin = append(b.skillMin, minR)
		m.AddObjTerm(maxR, req.Weights.Skill)
		m.AddObjTerm(minR, -req.Weights.Skill)

		for _, p := range b.available {
			r := req.TierRatings[p]
			x := b.onCourt[p][c]
			// maxR >= r when p plays court c, unconstrained otherwise
			m.AddCons([]mip.Term{{Var: maxR, Coef: 1}, {Var: x, Coef: -skillM}},
				mip.GE, r-skillM)
			m.AddCons([]mip.Term{{Var: minR, Coef: 1}, {Var: x, Coef: skillM}},
				mip.LE, r+skillM)
		}

		maxP := m.AddContinuous(fmt.Sprintf("maxp_%d", c), b.powerLo, b.powerHi)
		minP := m.AddContinuous(fmt.Sprintf("minp_%d", c), b.powerLo, b.powerHi)
		b.powerMax = append(b.powerMax, maxP)
		b.powerMin = append(b.powerMin, minP)
		m.AddObjTerm(maxP, req.Weights.Power)
		m.AddObjTerm(minP, -req.Weights.Power)

		if req.IsDoubles {
			for _, pr := range b.pairs {
				power := b.teamPower(req, pr)
				t := b.pairVars[pr][c]
				m.AddCons([]mip.Term{{Var: maxP, Coef: 1}, {Var: t, Coef: -powerM}},
					mip.GE, power-powerM)
				m.AddCons([]mip.Term{{Var: minP, Coef: 1}, {Var: t, Coef: powerM}},
					mip.LE, power+powerM)
			}
		} else {
			for _, p := range b.available {
				power := b.singlesPower(req, p)
				x := b.onCourt[p][c]
				m.AddCons([]mip.Term{{Var: maxP, Coef: 1}, {Var: x, Coef: -powerM}},
					mip.GE, power-powerM)
				m.AddCons([]mip.Term{{Var: minP, Coef: 1}, {Var: x, Coef: powerM}},
					mip.LE, power+powerM)
			}
		}
	}
}

// addPairingObjective penalizes re-pairing players in proportion to how
// often they have already shared a court. Required partners are exempt.
func (b *roundModel) addPairingObjective(req Request) {
	if req.History == nil || req.Weights.Pairing == 0 {
		return
	}
	for _, pr := range b.pairs {
		if b.isRequiredPair(req, pr) {
			continue
		}
		hist := req.History[pr]
		if hist == 0 {
			continue
		}
		coef := req.Weights.Pairing * float64(hist)
		for c := 0; c < b.numCourts; c++ {
			b.model.AddObjTerm(b.pairVars[pr][c], coef)
		}
	}
}

// addRequiredPartnerCons forces each linked player who plays to either
// partner one of their required partners directly, or be excused because
// every such partner is themselves playing with another of their own
// required partners.
func (b *roundModel) addRequiredPartnerCons(req Request) {
	if req.Required == nil {
		return
	}
	m := b.model

	links := func(p string) []string {
		var out []string
		for q := range req.Required.Partners(p) {
			if _, ok := b.onCourt[q]; ok {
				out = append(out, q)
			}
		}
		sort.Strings(out)
		return out
	}

	for _, p := range b.available {
		lp := links(p)
		if len(lp) == 0 {
			continue
		}

		excuse := m.AddBinary(fmt.Sprintf("excuse_%s", p))
		if b.excuse == nil {
			b.excuse = make(map[string]mip.Var)
		}
		b.excuse[p] = excuse

		// direct pairings with required partners + excuse >= plays
		terms := []mip.Term{{Var: excuse, Coef: 1}}
		for _, q := range lp {
			for c := 0; c < b.numCourts; c++ {
				terms = append(terms,
					mip.Term{Var: b.pairVars[NewPair(p, q)][c], Coef: 1})
			}
		}
		for c := 0; c < b.numCourts; c++ {
			terms = append(terms, mip.Term{Var: b.onCourt[p][c], Coef: -1})
		}
		m.AddCons(terms, mip.GE, 0)

		// the excuse only holds if every required partner of p is taken
		// by one of their own other required partners
		for _, q := range lp {
			var alt []mip.Term
			for _, r := range links(q) {
				if r == p {
					continue
				}
				for c := 0; c < b.numCourts; c++ {
					alt = append(alt,
						mip.Term{Var: b.pairVars[NewPair(q, r)][c], Coef: 1})
				}
			}
			terms := append([]mip.Term{{Var: excuse, Coef: 1}}, negateTerms(alt)...)
			m.AddCons(terms, mip.LE, 0)
		}
	}
}

func negateTerms(terms []mip.Term) []mip.Term {
	out := make([]mip.Term, len(terms))
	for i, t := range terms {
		out[i] = mip.Term{Var: t.Var, Coef: -t.Coef}
	}
	return out
}

func (b *roundModel) isRequiredPair(req Request, pr Pair) bool {
	if req.Required == nil {
		return false
	}
	return req.Required.Partners(pr.A)[pr.B] || req.Required.Partners(pr.B)[pr.A]
}

func (b *roundModel) teamPower(req Request, pr Pair) float64 {
	power := req.RealSkills[pr.A] + req.RealSkills[pr.B]
	ga, gb := req.Genders[pr.A], req.Genders[pr.B]
	switch {
	case ga == roster.Female && gb == roster.Female:
		power += req.Weights.FemaleFemaleTeamPenalty
	case ga != gb:
		power += req.Weights.MixedGenderTeamPenalty
	}
	return power
}

func (b *roundModel) singlesPower(req Request, p string) float64 {
	power := req.RealSkills[p]
	if req.Genders[p] == roster.Female {
		power += req.Weights.FemaleSinglesPenalty
	}
	return power
}

// extractMatches reads the solved assignment back into match values,
// numbered by court starting at 1.
func (b *roundModel) extractMatches(req Request, values []float64) []Match {
	matches := make([]Match, 0, b.numCourts)

	for c := 0; c < b.numCourts; c++ {
		var selected []Pair
		for _, pr := range b.pairs {
			if values[b.pairVars[pr][c]] > 0.5 {
				selected = append(selected, pr)
			}
		}
		sort.Slice(selected, func(i, j int) bool {
			return selected[i].A < selected[j].A
		})

		if req.IsDoubles {
			if len(selected) != 2 {
				log.Printf("schedule: court %d resolved %d teams, expected 2",
					c+1, len(selected))
				continue
			}
			p1 := b.teamPower(req, selected[0])
			p2 := b.teamPower(req, selected[1])
			diff := p1 - p2
			if diff < 0 {
				diff = -diff
			}
			matches = append(matches, DoublesMatch{
				CourtNum:   c + 1,
				Team1:      selected[0],
				Team2:      selected[1],
				Team1Power: p1,
				Team2Power: p2,
				PowerDiff:  diff,
			})
		} else {
			if len(selected) != 1 {
				log.Printf("schedule: court %d resolved %d pairings, expected 1",
					c+1, len(selected))
				continue
			}
			pr := selected[0]
			r1 := req.TierRatings[pr.A]
			r2 := req.TierRatings[pr.B]
			diff := r1 - r2
			if diff < 0 {
				diff = -diff
			}
			matches = append(matches, SinglesMatch{
				CourtNum:   c + 1,
				Player1:    pr.A,
				Player2:    pr.B,
				Rating1:    r1,
				Rating2:    r2,
				RatingDiff: diff,
			})
		}
	}

	SortMatches(matches)
	return matches
}
