/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package schedule

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/mikeb26/clubnight/mip"
	"github.com/mikeb26/clubnight/roster"
)

func doublesRequest(numPlayers, numCourts int) Request {
	tier := make(map[string]float64)
	real := make(map[string]float64)
	genders := make(map[string]roster.Gender)
	for i := 0; i < numPlayers; i++ {
		name := fmt.Sprintf("P%02d", i+1)
		tier[name] = rand.Float64() * 5
		real[name] = tier[name]
		genders[name] = roster.Male
	}
	return Request{
		TierRatings: tier,
		RealSkills:  real,
		Genders:     genders,
		NumCourts:   numCourts,
		IsDoubles:   true,
		History:     make(PairHistory),
		Weights:     DefaultWeights(),
	}
}

func playerSet(matches []Match) map[string]bool {
	out := make(map[string]bool)
	for _, m := range matches {
		for _, p := range m.Players() {
			out[p] = true
		}
	}
	return out
}

func TestEmptyPool(t *testing.T) {
	req := doublesRequest(0, 2)
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success for empty pool")
	}
	if len(res.Matches) != 0 {
		t.Errorf("expected no matches, got %v", res.Matches)
	}
}

func TestTooFewForOneCourt(t *testing.T) {
	req := doublesRequest(3, 2)
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success || len(res.Matches) != 0 {
		t.Errorf("expected empty success, got success=%v matches=%v",
			res.Success, res.Matches)
	}
}

func TestCourtCapping(t *testing.T) {
	// 9 players can fill at most 2 doubles courts no matter how many
	// courts were requested
	req := doublesRequest(9, 5)
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if n := len(playerSet(res.Matches)); n != 8 {
		t.Errorf("expected 8 distinct players on court, got %d", n)
	}
}

func TestNoDuplicatePlayersAcrossMatches(t *testing.T) {
	req := doublesRequest(12, 3)
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	if len(res.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(res.Matches))
	}
	seen := make(map[string]int)
	for _, m := range res.Matches {
		for _, p := range m.Players() {
			seen[p]++
		}
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("player %v scheduled %d times", p, n)
		}
	}
}

func TestWideRatingRange(t *testing.T) {
	// ratings extrapolated far past the usual 0-5 band still solve; the
	// activation bound tracks the instance data
	req := doublesRequest(8, 2)
	i := 0
	for _, name := range sortedKeys(req.TierRatings) {
		v := -4.0 + float64(i)*2.5
		req.TierRatings[name] = v
		req.RealSkills[name] = v
		i++
	}

	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if n := len(playerSet(res.Matches)); n != 8 {
		t.Errorf("expected 8 distinct players on court, got %d", n)
	}
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestDeadlineReturnsPromptly(t *testing.T) {
	// an already-expired solve deadline must not hang in the simplex;
	// the greedy incumbent still yields a playable round
	req := doublesRequest(12, 3)
	req.SolveTimeout = time.Millisecond

	begin := time.Now()
	res, err := GenerateRound(context.Background(), req)
	elapsed := time.Since(begin)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("generation ran %v past a millisecond deadline", elapsed)
	}

	if res.Success {
		if len(res.Matches) != 3 {
			t.Fatalf("expected 3 matches, got %d", len(res.Matches))
		}
		if n := len(playerSet(res.Matches)); n != 12 {
			t.Errorf("expected all 12 players on court, got %d", n)
		}
	} else if res.Status != mip.StatusDeadlineExceeded {
		t.Errorf("expected deadline status on failure, got %v", res.Status)
	}
}

func TestRestingExcluded(t *testing.T) {
	req := doublesRequest(10, 2)
	req.Resting = map[string]bool{"P01": true, "P02": true}
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	on := playerSet(res.Matches)
	if on["P01"] || on["P02"] {
		t.Errorf("resting player scheduled: %v", on)
	}
	if len(on) != 8 {
		t.Errorf("expected 8 players on court, got %d", len(on))
	}
}

func TestHistoryUpdatedOnSuccess(t *testing.T) {
	req := doublesRequest(8, 2)
	req.History[NewPair("P01", "P02")] = 3
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	// original map untouched
	if len(req.History) != 1 || req.History[NewPair("P01", "P02")] != 3 {
		t.Errorf("request history mutated: %v", req.History)
	}
	// each court contributes all six of its pairs
	total := 0
	for _, n := range res.History {
		total += n
	}
	if total != 3+2*6 {
		t.Errorf("expected 15 total pair counts, got %d (%v)", total, res.History)
	}
	for pr, n := range res.History {
		if n < req.History[pr] {
			t.Errorf("pair %v count decreased: %d -> %d", pr, req.History[pr], n)
		}
	}
}

func TestSinglesRound(t *testing.T) {
	req := doublesRequest(4, 2)
	req.IsDoubles = false
	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 singles matches, got %d", len(res.Matches))
	}
	for _, m := range res.Matches {
		sm, ok := m.(SinglesMatch)
		if !ok {
			t.Fatalf("expected SinglesMatch, got %T", m)
		}
		if sm.Player1 == sm.Player2 {
			t.Errorf("player matched against themselves: %v", sm)
		}
	}
}

func TestInfeasibleRequiredPartners(t *testing.T) {
	// two players both require P02 exclusively; only one can have them
	req := doublesRequest(4, 1)
	rp := make(roster.RequiredPartners)
	rp.Add("P01", "P02")
	rp.Add("P03", "P02")
	req.Required = rp
	req.History[NewPair("P01", "P03")] = 1

	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure, got matches %v", res.Matches)
	}
	if res.Matches != nil {
		t.Errorf("failure must carry nil matches, got %v", res.Matches)
	}
	if res.Status != mip.StatusInfeasible {
		t.Errorf("expected infeasible status, got %v", res.Status)
	}
	if len(res.History) != 1 || res.History[NewPair("P01", "P03")] != 1 {
		t.Errorf("history changed on failure: %v", res.History)
	}
}

// teammates maps each player to their doubles partner in the round.
func teammates(matches []Match) map[string]string {
	out := make(map[string]string)
	for _, m := range matches {
		dm, ok := m.(DoublesMatch)
		if !ok {
			continue
		}
		out[dm.Team1.A] = dm.Team1.B
		out[dm.Team1.B] = dm.Team1.A
		out[dm.Team2.A] = dm.Team2.B
		out[dm.Team2.B] = dm.Team2.A
	}
	return out
}

// verifyRequiredPartners checks that every playing player with partner
// links is either partnered with one of them, or every such link is
// themselves partnered with another of their own links.
func verifyRequiredPartners(t *testing.T, round int, matches []Match,
	rp roster.RequiredPartners) {
	t.Helper()

	mates := teammates(matches)
	for p, mate := range mates {
		links := rp.Partners(p)
		if len(links) == 0 {
			continue
		}
		if links[mate] {
			continue
		}
		for q := range links {
			qMate, playing := mates[q]
			if !playing {
				continue
			}
			if !rp.Partners(q)[qMate] {
				t.Errorf("round %d: %v plays with %v while required partner %v plays with %v",
					round, p, mate, q, qMate)
			}
		}
	}
}

func runRequiredPartnerRounds(t *testing.T, numPlayers int,
	link func(rp roster.RequiredPartners)) {
	t.Helper()

	rp := make(roster.RequiredPartners)
	link(rp)

	req := doublesRequest(numPlayers, numPlayers/4)
	req.Required = rp

	for round := 0; round < 10; round++ {
		res, err := GenerateRound(context.Background(), req)
		if err != nil {
			t.Fatalf("round %d failed: %v", round, err)
		}
		if !res.Success {
			t.Fatalf("round %d: no assignment found (%v)", round, res.Status)
		}
		if len(res.Matches) != numPlayers/4 {
			t.Fatalf("round %d: expected %d matches, got %d", round,
				numPlayers/4, len(res.Matches))
		}
		verifyRequiredPartners(t, round, res.Matches, rp)
		req.History = res.History
	}
}

func TestRequiredPartnersHub(t *testing.T) {
	// P01 is linked to both P02 and P03
	runRequiredPartnerRounds(t, 8, func(rp roster.RequiredPartners) {
		rp.Add("P01", "P02")
		rp.Add("P02", "P01")
		rp.Add("P01", "P03")
		rp.Add("P03", "P01")
	})
}

func TestRequiredPartnersTriangle(t *testing.T) {
	runRequiredPartnerRounds(t, 8, func(rp roster.RequiredPartners) {
		for _, e := range [][2]string{{"P01", "P02"}, {"P02", "P03"}, {"P01", "P03"}} {
			rp.Add(e[0], e[1])
			rp.Add(e[1], e[0])
		}
	})
}

func TestRequiredPartnersSquare(t *testing.T) {
	runRequiredPartnerRounds(t, 8, func(rp roster.RequiredPartners) {
		for _, e := range [][2]string{{"P01", "P02"}, {"P02", "P03"},
			{"P03", "P04"}, {"P04", "P01"}} {
			rp.Add(e[0], e[1])
			rp.Add(e[1], e[0])
		}
	})
}

func TestRequiredPartnerWithRestingLink(t *testing.T) {
	// P02 rests, so P01's only link is off the floor and P01 plays freely
	req := doublesRequest(9, 2)
	rp := make(roster.RequiredPartners)
	rp.Add("P01", "P02")
	rp.Add("P02", "P01")
	req.Required = rp
	req.Resting = map[string]bool{"P02": true}

	res, err := GenerateRound(context.Background(), req)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got status %v", res.Status)
	}
	on := playerSet(res.Matches)
	if !on["P01"] {
		t.Errorf("P01 should still play while their partner rests")
	}
	if on["P02"] {
		t.Errorf("resting P02 was scheduled")
	}
}
