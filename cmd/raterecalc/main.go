/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mikeb26/clubnight/internal"
	"github.com/mikeb26/clubnight/rating"
	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/s3store"
)

//go:embed help.txt
var helpText string

func main() {
	fs := flag.NewFlagSet("raterecalc", flag.ExitOnError)
	fs.Usage = func() { fmt.Print(helpText) }
	engine := fs.String("engine", "ttt", "Rating engine: ttt or glicko2")
	bucket := fs.String("bucket", internal.DefaultStoreBucket,
		"S3 bucket holding the store")
	dryRun := fs.Bool("dry-run", false, "Compute but do not write back")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *engine != "ttt" && *engine != "glicko2" {
		fmt.Fprintf(os.Stderr, "Unknown engine: %s\n", *engine)
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	st := s3store.New(ctx, *bucket)
	if err := st.Init(); err != nil {
		log.Fatalf("Error opening store %v: %v", *bucket, err)
	}

	var players map[string]*roster.Player
	var sessions []s3store.SessionRecord
	var matches []s3store.MatchRecord

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = st.GetAllPlayers()
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = st.GetAllSessions()
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = st.GetAllMatches()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("Error fetching store contents: %v", err)
	}

	log.Printf("loaded %v players, %v sessions, %v matches", len(players),
		len(sessions), len(matches))

	var err error
	switch *engine {
	case "glicko2":
		err = runGlicko(st, players, sessions, matches, *dryRun)
	case "ttt":
		err = runTTT(st, players, sessions, matches, *dryRun)
	}
	if err != nil {
		log.Fatalf("Error recomputing ratings: %v", err)
	}
}

// runGlicko applies each session's unprocessed matches as one rating
// period and marks them processed.
func runGlicko(st *s3store.Store, players map[string]*roster.Player,
	sessions []s3store.SessionRecord, matches []s3store.MatchRecord,
	dryRun bool) error {

	bySession := make(map[int64][]s3store.MatchRecord)
	for _, m := range matches {
		if m.Processed {
			continue
		}
		bySession[m.SessionID] = append(bySession[m.SessionID], m)
	}

	engine := rating.NewGlicko2()
	var processedIDs []int64

	bar := pb.StartNew(len(sessions))
	for _, sess := range sessions {
		recs := bySession[sess.ID]
		if len(recs) == 0 {
			bar.Increment()
			continue
		}
		results := make([]rating.MatchResult, 0, len(recs))
		for _, rec := range recs {
			s1, s2 := rec.Sides()
			results = append(results, rating.MatchResult{
				Side1:      s1,
				Side2:      s2,
				WinnerSide: rec.WinnerSide,
			})
			processedIDs = append(processedIDs, rec.ID)
		}
		if err := engine.ProcessSession(players, results); err != nil {
			bar.Finish()
			return fmt.Errorf("session %v (%v): %w", sess.Name, sess.ID, err)
		}
		bar.Increment()
	}
	bar.Finish()

	if len(processedIDs) == 0 {
		fmt.Println("No unprocessed matches; ratings unchanged")
		return nil
	}

	printGlickoRatings(players)
	if dryRun {
		fmt.Println("(dry run; nothing written)")
		return nil
	}
	if err := st.UpsertPlayers(players); err != nil {
		return err
	}
	return st.MarkMatchesProcessed(processedIDs)
}

// runTTT rebuilds every player's skill curve from the full match history.
// The processed flag is irrelevant here; the recompute always starts from
// the priors.
func runTTT(st *s3store.Store, players map[string]*roster.Player,
	sessions []s3store.SessionRecord, matches []s3store.MatchRecord,
	dryRun bool) error {

	sessionDay := make(map[int64]int, len(sessions))
	for _, sess := range sessions {
		when, err := sess.CreatedTime()
		if err != nil {
			return fmt.Errorf("session %v (%v): bad timestamp: %w",
				sess.Name, sess.ID, err)
		}
		if when.IsZero() {
			when = time.Unix(0, sess.ID)
		}
		sessionDay[sess.ID] = rating.DayNumber(when)
	}

	games := make([]rating.Game, 0, len(matches))
	for _, rec := range matches {
		s1, s2 := rec.Sides()
		for _, name := range append(append([]string{}, s1...), s2...) {
			if _, ok := players[name]; !ok {
				return fmt.Errorf("match %v references unknown player %v",
					rec.ID, name)
			}
		}
		day, ok := sessionDay[rec.SessionID]
		if !ok {
			return fmt.Errorf("match %v references unknown session %v",
				rec.ID, rec.SessionID)
		}
		winner, loser := s1, s2
		if rec.WinnerSide == 2 {
			winner, loser = s2, s1
		}
		games = append(games, rating.Game{
			Teams: [2][]string{winner, loser},
			Time:  day,
		})
	}
	if len(games) == 0 {
		fmt.Println("No recorded matches; ratings unchanged")
		return nil
	}

	cfg := rating.DefaultTTTConfig()
	// the rebuild starts from seed beliefs, never from the current
	// estimates it is about to replace
	priors := make(map[string]rating.Gaussian, len(players))
	for name, p := range players {
		g := rating.Gaussian{Mu: p.PriorMu, Sigma: p.PriorSigma}
		if g.Mu == 0 {
			g.Mu = roster.DefaultMu
		}
		if g.Sigma <= 0 {
			g.Sigma = roster.DefaultSigma
		}
		priors[name] = g
	}

	h := rating.NewHistory(games, priors, cfg)
	bar := pb.StartNew(cfg.Iterations)
	h.Progress = func(iter int, delta float64) {
		bar.Increment()
	}
	iters, delta := h.Converge()
	bar.Finish()
	log.Printf("converged after %v sweeps (max delta %.2g)", iters, delta)

	updated := make(map[string]*roster.Player)
	for name, g := range h.Ratings() {
		p := players[name]
		p.Mu = g.Mu
		p.Sigma = g.Sigma
		updated[name] = p
	}

	printTTTRatings(updated)
	if dryRun {
		fmt.Println("(dry run; nothing written)")
		return nil
	}
	return st.UpsertPlayers(updated)
}

func sortedNames(players map[string]*roster.Player) []string {
	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printGlickoRatings(players map[string]*roster.Player) {
	for _, name := range sortedNames(players) {
		p := players[name]
		fmt.Printf("%-20s %7.1f (rd %.0f, vol %.4f)\n", p.Name, p.Elo,
			p.Deviation, p.Volatility)
	}
}

func printTTTRatings(players map[string]*roster.Player) {
	for _, name := range sortedNames(players) {
		p := players[name]
		fmt.Printf("%-20s mu %5.2f sigma %4.2f (conservative %5.2f)\n",
			p.Name, p.Mu, p.Sigma, p.ConservativeRating())
	}
}
