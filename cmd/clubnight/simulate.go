/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/mikeb26/clubnight/rating"
	"github.com/mikeb26/clubnight/schedule"
	"github.com/mikeb26/clubnight/session"
)

const defaultSimRounds = 6

// handleSimulate runs a whole club night in memory: round generation,
// winner selection biased toward the stronger side, standings, and a
// post-session Glicko-2 rating pass over the simulated results.
func handleSimulate(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config with roster and weights")
	seed := fs.Int64("seed", 0, "Random seed, 0 for nondeterministic")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *cfgPath == "" {
		fmt.Fprintln(os.Stderr, "Please provide a roster with --config.")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	players, err := cfg.roster()
	if err != nil {
		log.Fatalf("Error in roster: %v", err)
	}
	rounds := cfg.Rounds
	if rounds <= 0 {
		rounds = defaultSimRounds
	}

	rng := rand.New(rand.NewSource(*seed))
	if *seed == 0 {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	s, err := session.New(cfg.Name, players, cfg.Courts, cfg.isDoubles(),
		cfg.weights())
	if err != nil {
		log.Fatalf("Error creating session: %v", err)
	}

	var results []rating.MatchResult
	for round := 0; round < rounds; round++ {
		matches, err := s.PrepareRound(ctx)
		if err != nil {
			log.Fatalf("Error generating round %v: %v", round+1, err)
		}
		fmt.Print(session.BuildRoundOutput(s))
		fmt.Println()

		winners := make(map[int][]string)
		for _, m := range matches {
			res := simulateMatch(m, rng)
			results = append(results, res)
			if res.WinnerSide == 1 {
				winners[m.Court()] = res.Side1
			} else {
				winners[m.Court()] = res.Side2
			}
		}
		if err := s.FinalizeRound(winners); err != nil {
			log.Fatalf("Error finalizing round %v: %v", round+1, err)
		}
	}

	fmt.Print(session.BuildStandingsOutput(s))

	if err := rating.NewGlicko2().ProcessSession(s.Players(), results); err != nil {
		log.Fatalf("Error updating ratings: %v", err)
	}
	fmt.Println()
	printRatings(s)
}

// simulateMatch picks a winner with probability weighted by the rating
// gap between the sides.
func simulateMatch(m schedule.Match, rng *rand.Rand) rating.MatchResult {
	var res rating.MatchResult
	var diff float64
	switch v := m.(type) {
	case schedule.DoublesMatch:
		res.Side1 = []string{v.Team1.A, v.Team1.B}
		res.Side2 = []string{v.Team2.A, v.Team2.B}
		diff = v.Team1Power - v.Team2Power
	case schedule.SinglesMatch:
		res.Side1 = []string{v.Player1}
		res.Side2 = []string{v.Player2}
		diff = v.Rating1 - v.Rating2
	}

	// logistic on the power gap; even sides are a coin flip
	pSide1 := 1.0 / (1.0 + math.Exp(-diff))
	if rng.Float64() < pSide1 {
		res.WinnerSide = 1
	} else {
		res.WinnerSide = 2
	}
	return res
}

func printRatings(s *session.Session) {
	names := make([]string, 0, len(s.Players()))
	for name := range s.Players() {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Updated ratings:")
	for _, name := range names {
		p := s.Players()[name]
		fmt.Printf("  %-20s %7.1f (rd %.0f)\n", p.Name, p.Elo, p.Deviation)
	}
}
