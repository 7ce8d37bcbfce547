/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package roster

import (
	"strings"
)

type Gender string

const (
	Male   Gender = "M"
	Female Gender = "F"
)

// Player is one club member. Name is the unique key across the registry,
// the session pool, and the match log. Mu/Sigma hold the current skill
// estimate; PriorMu/PriorSigma hold the seed values used when rebuilding
// ratings from the full match history. Elo/Deviation/Volatility carry the
// Glicko-2 state for the incremental engine.
type Player struct {
	Name       string
	Gender     Gender
	PriorMu    float64
	PriorSigma float64
	Mu         float64
	Sigma      float64

	Elo        float64
	Deviation  float64
	Volatility float64

	// TeamName lists fixed-partner team memberships, comma separated.
	// Players sharing a team name are scheduled as required partners.
	TeamName string

	// EarnedRating accumulates session points (+1 win, +0.5 rest).
	EarnedRating float64

	// StoreID is the external registry row id, 0 when never synced.
	StoreID int64
}

const (
	DefaultMu    = 25.0
	DefaultSigma = 25.0 / 3.0
)

// EffectiveMu returns the current skill mean, falling back to the prior and
// then to the global default when the player has never been rated.
func (p *Player) EffectiveMu() float64 {
	if p.Mu != 0 {
		return p.Mu
	}
	if p.PriorMu != 0 {
		return p.PriorMu
	}
	return DefaultMu
}

func (p *Player) EffectiveSigma() float64 {
	if p.Sigma > 0 {
		return p.Sigma
	}
	if p.PriorSigma > 0 {
		return p.PriorSigma
	}
	return DefaultSigma
}

// ConservativeRating is the pessimistic skill estimate used for display
// ordering: mu - 3*sigma.
func (p *Player) ConservativeRating() float64 {
	return p.EffectiveMu() - 3*p.EffectiveSigma()
}

// Teams splits the comma separated TeamName field into trimmed, non-empty
// team names.
func (p *Player) Teams() []string {
	if p.TeamName == "" {
		return nil
	}
	var teams []string
	for _, t := range strings.Split(p.TeamName, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			teams = append(teams, t)
		}
	}
	return teams
}

// RequiredPartners maps each player to the set of players they must be
// paired with when both are on court.
type RequiredPartners map[string]map[string]bool

// Add records a directed requirement edge. Callers building graphs from
// team membership get symmetric edges; hand-built graphs may be asymmetric
// and the scheduler tolerates that.
func (rp RequiredPartners) Add(player, partner string) {
	if player == partner {
		return
	}
	set, ok := rp[player]
	if !ok {
		set = make(map[string]bool)
		rp[player] = set
	}
	set[partner] = true
}

// Partners returns the required partners of player, nil when unconstrained.
func (rp RequiredPartners) Partners(player string) map[string]bool {
	return rp[player]
}

// DeriveRequiredPartners builds the mutual required-partner graph from team
// membership. Every pair of players sharing a team name is linked; teams
// with a single member contribute nothing.
func DeriveRequiredPartners(players map[string]*Player) RequiredPartners {
	byTeam := make(map[string][]string)
	for name, p := range players {
		for _, team := range p.Teams() {
			byTeam[team] = append(byTeam[team], name)
		}
	}

	rp := make(RequiredPartners)
	for _, members := range byTeam {
		if len(members) < 2 {
			continue
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				rp.Add(members[i], members[j])
				rp.Add(members[j], members[i])
			}
		}
	}

	return rp
}
