/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 *
 * Package rating converts stored skill estimates into the normalized
 * scales the scheduler consumes, and implements the two update engines:
 * incremental Glicko-2 with composite doubles opponents, and a
 * TrueSkill-Through-Time batch recompute over the full match history.
 */
package rating

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mikeb26/clubnight/roster"
)

// Anchor points mapping the TrueSkill mu scale onto the club's 0-5
// scheduling scale. A mu of 18 plays like a 0, a mu of 32 like a 5;
// values outside the anchors extrapolate linearly rather than clamp.
const (
	MuBad      = 18.0
	MuGood     = 32.0
	SkillRange = 5.0
)

const (
	minGenderSamples = 3
	minStdDev        = 0.1
	fallbackMean     = 25.0
	fallbackStdDev   = 5.0
)

// RealSkill maps a mu onto the 0-5 scheduling scale.
func RealSkill(mu float64) float64 {
	return (mu - MuBad) / (MuGood - MuBad) * SkillRange
}

// GenderStats summarizes one gender's mu distribution within a pool.
type GenderStats struct {
	Mean   float64
	StdDev float64
	Count  int
}

// ComputeGenderStats returns per-gender mu statistics for the pool.
// Genders with too few samples or a degenerate spread fall back to fixed
// reference values so tier projection stays stable on small nights.
func ComputeGenderStats(players map[string]*roster.Player) map[roster.Gender]GenderStats {
	mus := make(map[roster.Gender][]float64)
	for _, p := range players {
		mus[p.Gender] = append(mus[p.Gender], p.EffectiveMu())
	}

	out := make(map[roster.Gender]GenderStats)
	for _, g := range []roster.Gender{roster.Male, roster.Female} {
		samples := mus[g]
		gs := GenderStats{Mean: fallbackMean, StdDev: fallbackStdDev,
			Count: len(samples)}
		if len(samples) >= minGenderSamples {
			mean := stat.Mean(samples, nil)
			sd := stat.StdDev(samples, nil)
			if sd >= minStdDev {
				gs.Mean = mean
				gs.StdDev = sd
			}
		}
		out[g] = gs
	}
	return out
}

// TierStrategy computes a player's court-grouping rating from their mu
// and the pool's gender statistics. It is a policy choice, not fixed
// math, so alternatives can be swapped in without touching the
// scheduler.
type TierStrategy func(mu float64, gender roster.Gender,
	stats map[roster.Gender]GenderStats) float64

// TierRating projects a player's mu onto the reference (male) gender
// distribution before normalizing, so the scheduler mixes genders by
// standing within their own field rather than by raw mu.
func TierRating(mu float64, gender roster.Gender,
	stats map[roster.Gender]GenderStats) float64 {

	own := stats[gender]
	ref := stats[roster.Male]
	z := (mu - own.Mean) / own.StdDev
	return RealSkill(ref.Mean + z*ref.StdDev)
}

// LinearTier ignores gender statistics and groups purely by raw skill.
func LinearTier(mu float64, _ roster.Gender,
	_ map[roster.Gender]GenderStats) float64 {

	return RealSkill(mu)
}

// PrepareOptimizerRatings returns the tier-rating and real-skill maps for
// a scheduling request, grouping with the gender-projected tier policy.
func PrepareOptimizerRatings(players map[string]*roster.Player) (tier, real map[string]float64) {
	return PrepareRatings(players, TierRating)
}

// PrepareRatings is PrepareOptimizerRatings with an explicit tier policy.
func PrepareRatings(players map[string]*roster.Player,
	strategy TierStrategy) (tier, real map[string]float64) {

	stats := ComputeGenderStats(players)
	tier = make(map[string]float64, len(players))
	real = make(map[string]float64, len(players))
	for name, p := range players {
		tier[name] = strategy(p.EffectiveMu(), p.Gender, stats)
		real[name] = RealSkill(p.EffectiveMu())
	}
	return tier, real
}
