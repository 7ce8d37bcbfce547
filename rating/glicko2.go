/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package rating

import (
	"fmt"
	"math"
	"sort"

	"github.com/mikeb26/clubnight/roster"
)

// Glicko-2 constants per Glickman's paper. One club session is treated as
// one rating period.
const (
	DefaultRating     = 1500.0
	DefaultRD         = 350.0
	DefaultVolatility = 0.06

	glickoScale = 173.7178
	defaultTau  = 0.5
	volTol      = 1e-6
	maxVolIter  = 100
)

// Glicko2 is the incremental rating engine. Doubles matches are reduced
// to 1v1 updates against a composite of the opposing team.
type Glicko2 struct {
	Tau float64
}

func NewGlicko2() *Glicko2 {
	return &Glicko2{Tau: defaultTau}
}

// Opponent is one opponent faced during a rating period, with the score
// achieved against them (1 win, 0 loss).
type Opponent struct {
	Rating     float64
	RD         float64
	Volatility float64
	Score      float64
}

// MatchResult is one completed match in store order: side 1 listed first,
// WinnerSide 1 or 2. Doubles sides have two names, singles one.
type MatchResult struct {
	Side1      []string
	Side2      []string
	WinnerSide int
}

func glickoState(p *roster.Player) (rating, rd, vol float64) {
	rating, rd, vol = p.Elo, p.Deviation, p.Volatility
	if rating == 0 {
		rating = DefaultRating
	}
	if rd == 0 {
		rd = DefaultRD
	}
	if vol == 0 {
		vol = DefaultVolatility
	}
	return rating, rd, vol
}

// CompositeOpponent averages a team's rating state into a single virtual
// opponent.
func CompositeOpponent(team []*roster.Player, score float64) Opponent {
	var sumR, sumRD, sumVol float64
	for _, p := range team {
		r, rd, vol := glickoState(p)
		sumR += r
		sumRD += rd
		sumVol += vol
	}
	n := float64(len(team))
	return Opponent{
		Rating:     sumR / n,
		RD:         sumRD / n,
		Volatility: sumVol / n,
		Score:      score,
	}
}

// ProcessSession applies one rating period covering the given matches.
// Every player in the pool is updated: participants from their results,
// everyone else by deviation growth alone. All opponents are evaluated at
// their pre-period state, so match order within the session is irrelevant.
func (g *Glicko2) ProcessSession(players map[string]*roster.Player,
	matches []MatchResult) error {

	// opponents are snapshotted before any update lands
	opps := make(map[string][]Opponent)
	for _, m := range matches {
		if err := checkKnown(players, m); err != nil {
			return err
		}
		side1 := lookup(players, m.Side1)
		side2 := lookup(players, m.Side2)
		s1 := 0.0
		if m.WinnerSide == 1 {
			s1 = 1.0
		}
		for _, p := range side1 {
			opps[p.Name] = append(opps[p.Name], CompositeOpponent(side2, s1))
		}
		for _, p := range side2 {
			opps[p.Name] = append(opps[p.Name], CompositeOpponent(side1, 1-s1))
		}
	}

	type update struct {
		p          *roster.Player
		r, rd, vol float64
	}
	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Strings(names)

	updates := make([]update, 0, len(names))
	for _, name := range names {
		p := players[name]
		r, rd, vol := glickoState(p)
		nr, nrd, nvol := g.update(r, rd, vol, opps[name])
		updates = append(updates, update{p: p, r: nr, rd: nrd, vol: nvol})
	}
	for _, u := range updates {
		u.p.Elo = u.r
		u.p.Deviation = u.rd
		u.p.Volatility = u.vol
	}
	return nil
}

func checkKnown(players map[string]*roster.Player, m MatchResult) error {
	for _, side := range [][]string{m.Side1, m.Side2} {
		for _, name := range side {
			if _, ok := players[name]; !ok {
				return fmt.Errorf("rating: match references unknown player %q", name)
			}
		}
	}
	return nil
}

func lookup(players map[string]*roster.Player, names []string) []*roster.Player {
	out := make([]*roster.Player, len(names))
	for i, name := range names {
		out[i] = players[name]
	}
	return out
}

// update runs one Glicko-2 rating period for a single player.
func (g *Glicko2) update(rating, rd, vol float64, opps []Opponent) (float64, float64, float64) {
	tau := g.Tau
	if tau == 0 {
		tau = defaultTau
	}

	mu := (rating - DefaultRating) / glickoScale
	phi := rd / glickoScale

	if len(opps) == 0 {
		// deviation grows with inactivity; rating and volatility hold
		phiStar := math.Sqrt(phi*phi + vol*vol)
		return rating, phiStar * glickoScale, vol
	}

	// estimated variance and improvement from the period's games
	v := 0.0
	deltaSum := 0.0
	for _, o := range opps {
		muJ := (o.Rating - DefaultRating) / glickoScale
		phiJ := o.RD / glickoScale
		gj := glickoG(phiJ)
		ej := glickoE(mu, muJ, phiJ)
		v += gj * gj * ej * (1 - ej)
		deltaSum += gj * (o.Score - ej)
	}
	v = 1 / v
	delta := v * deltaSum

	newVol := solveVolatility(delta, phi, v, vol, tau)

	phiStar := math.Sqrt(phi*phi + newVol*newVol)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newMu := mu + newPhi*newPhi*deltaSum

	return newMu*glickoScale + DefaultRating, newPhi * glickoScale, newVol
}

func glickoG(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func glickoE(mu, muJ, phiJ float64) float64 {
	return 1 / (1 + math.Exp(-glickoG(phiJ)*(mu-muJ)))
}

// solveVolatility finds the new volatility with the Illinois variant of
// regula falsi, per the Glicko-2 paper's iterative procedure.
func solveVolatility(delta, phi, v, vol, tau float64) float64 {
	a := math.Log(vol * vol)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		num := ex * (delta*delta - phi*phi - v - ex)
		den := 2 * (phi*phi + v + ex) * (phi*phi + v + ex)
		return num/den - (x-a)/(tau*tau)
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 {
			k++
		}
		B = a - k*tau
	}

	fA, fB := f(A), f(B)
	for i := 0; i < maxVolIter && math.Abs(B-A) > volTol; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}

	return math.Exp(A / 2)
}
