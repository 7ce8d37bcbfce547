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
	"strconv"
	"strings"

	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/s3store"
	"github.com/mikeb26/clubnight/schedule"
	"github.com/mikeb26/clubnight/session"
)

//go:embed help.txt
var helpText string

// cmdHandler defines the signature for command handler functions.
type cmdHandler func(ctx context.Context, args []string)

// commands maps command names to their respective handler functions.
var commands = map[string]cmdHandler{
	"help":      handleHelp,
	"new":       handleNew,
	"round":     handleRound,
	"finalize":  handleFinalize,
	"standings": handleStandings,
	"add":       handleAdd,
	"remove":    handleRemove,
	"courts":    handleCourts,
	"sessions":  handleSessions,
	"clear":     handleClear,
	"simulate":  handleSimulate,
}

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if handler, ok := commands[cmd]; ok {
		handler(ctx, os.Args[2:])
	} else {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf("%v", helpText)
}

func handleHelp(ctx context.Context, args []string) {
	usage()
}

func snapshotManager() *session.Manager {
	mgr, err := session.DefaultManager()
	if err != nil {
		log.Fatalf("Error locating session storage: %v", err)
	}
	return mgr
}

func mustLoadSession(mgr *session.Manager, name string) *session.Session {
	if name == "" {
		fmt.Fprintln(os.Stderr, "Please provide a session with --name.")
		os.Exit(1)
	}
	s, err := mgr.Load(name)
	if err != nil {
		log.Fatalf("Error loading session %v: %v", name, err)
	}
	if s == nil {
		log.Fatalf("No session named %v; run '%s new' first", name, os.Args[0])
	}
	return s
}

func mustSaveSession(mgr *session.Manager, s *session.Session) {
	if err := mgr.Save(s); err != nil {
		log.Fatalf("Error saving session %v: %v", s.Name, err)
	}
}

func handleNew(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	cfgPath := fs.String("config", "", "YAML config with roster and weights")
	courts := fs.Int("courts", 0, "Override the config's court count")
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
	if *courts > 0 {
		cfg.Courts = *courts
	}
	players, err := cfg.roster()
	if err != nil {
		log.Fatalf("Error in roster: %v", err)
	}

	mgr := snapshotManager()
	if existing, err := mgr.Load(cfg.Name); err != nil {
		log.Fatalf("Error checking for session %v: %v", cfg.Name, err)
	} else if existing != nil {
		log.Fatalf("Session %v already exists; clear it first", cfg.Name)
	}

	s, err := session.New(cfg.Name, players, cfg.Courts, cfg.isDoubles(),
		cfg.weights())
	if err != nil {
		log.Fatalf("Error creating session: %v", err)
	}
	mustSaveSession(mgr, s)

	fmt.Printf("Session %v started: %v players on %v courts\n", s.Name,
		len(s.Players()), s.NumCourts)
	fmt.Printf("Run '%s round --name %v' to generate the first round\n",
		os.Args[0], s.Name)
}

func handleRound(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("round", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)

	if _, err := s.PrepareRound(ctx); err != nil {
		log.Fatalf("Error generating round: %v", err)
	}
	mustSaveSession(mgr, s)

	fmt.Print(session.BuildRoundOutput(s))
}

func handleFinalize(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("finalize", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	bucket := fs.String("bucket", "", "S3 bucket to log finished matches to")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)

	winners, err := parseWinners(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fmt.Fprintln(os.Stderr,
			"Winners are given as court=Name or court=Name,Name arguments.")
		os.Exit(1)
	}

	if *bucket != "" {
		if err := recordMatches(ctx, s, winners, *bucket); err != nil {
			log.Fatalf("Error recording matches: %v", err)
		}
	}

	if err := s.FinalizeRound(winners); err != nil {
		log.Fatalf("Error finalizing round: %v", err)
	}
	mustSaveSession(mgr, s)

	fmt.Print(session.BuildStandingsOutput(s))
}

// parseWinners turns court=Name[,Name] arguments into the winner map.
func parseWinners(args []string) (map[int][]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no winners given")
	}
	winners := make(map[int][]string)
	for _, arg := range args {
		court, names, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("malformed winner %q", arg)
		}
		courtNum, err := strconv.Atoi(court)
		if err != nil {
			return nil, fmt.Errorf("malformed court in %q", arg)
		}
		var side []string
		for _, n := range strings.Split(names, ",") {
			n = strings.TrimSpace(n)
			if n != "" {
				side = append(side, n)
			}
		}
		if len(side) == 0 {
			return nil, fmt.Errorf("no winner names in %q", arg)
		}
		winners[courtNum] = side
	}
	return winners, nil
}

// recordMatches appends the round's results to the durable match log,
// creating the session row on first use. The winner sets are validated
// against the round's matches before anything is written, so a mistyped
// result never lands in the log.
func recordMatches(ctx context.Context, s *session.Session,
	winners map[int][]string, bucket string) error {

	matches := s.CurrentMatches()
	if matches == nil {
		return fmt.Errorf("no round in progress")
	}

	sides, err := s.WinnerSides(winners)
	if err != nil {
		return err
	}

	st := s3store.New(ctx, bucket)
	if err := st.Init(); err != nil {
		return err
	}

	if s.StoreID == 0 {
		id, err := st.CreateSession(s.Name, s.IsDoubles)
		if err != nil {
			return err
		}
		s.StoreID = id
	}

	for _, m := range matches {
		var p1, p2, p3, p4 string
		switch v := m.(type) {
		case schedule.DoublesMatch:
			p1, p3 = v.Team1.A, v.Team1.B
			p2, p4 = v.Team2.A, v.Team2.B
		case schedule.SinglesMatch:
			p1, p2 = v.Player1, v.Player2
		}
		if _, err := st.AddMatch(s.StoreID, p1, p2, sides[m.Court()],
			p3, p4); err != nil {
			return err
		}
	}
	s.Recorded = true
	return nil
}

func handleStandings(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("standings", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)
	fmt.Print(session.BuildStandingsOutput(s))
}

// guestRegistry is the slice of the durable store the add command needs.
type guestRegistry interface {
	UpsertPlayers(players map[string]*roster.Player) error
	DeletePlayersByIDs(ids []int64) error
}

// addGuestPlayer registers the guest in the durable registry before
// joining them to the session. If the session add fails, the freshly
// written registry row is removed again so the registry does not
// accumulate players who never played.
func addGuestPlayer(reg guestRegistry, s *session.Session,
	p *roster.Player) error {

	if reg != nil {
		hadID := p.StoreID != 0
		if err := reg.UpsertPlayers(map[string]*roster.Player{p.Name: p}); err != nil {
			return err
		}
		if err := s.AddPlayer(p); err != nil {
			if !hadID {
				if derr := reg.DeletePlayersByIDs([]int64{p.StoreID}); derr != nil {
					return fmt.Errorf("%w (registry rollback failed: %v)",
						err, derr)
				}
			}
			return err
		}
		return nil
	}
	return s.AddPlayer(p)
}

func handleAdd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	player := fs.String("player", "", "Player name to add")
	gender := fs.String("gender", "M", "Player gender (M or F)")
	team := fs.String("team", "", "Fixed-partner team name, if any")
	mu := fs.Float64("mu", 0, "Skill estimate, 0 for the default prior")
	bucket := fs.String("bucket", "", "S3 bucket to register the guest in")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *player == "" {
		fmt.Fprintln(os.Stderr, "Please provide a player with --player.")
		fs.Usage()
		os.Exit(1)
	}
	g, err := parseGender(*player, *gender)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)

	var reg guestRegistry
	if *bucket != "" {
		st := s3store.New(ctx, *bucket)
		if err := st.Init(); err != nil {
			log.Fatalf("Error opening registry: %v", err)
		}
		reg = st
	}

	p := &roster.Player{
		Name:     *player,
		Gender:   g,
		Mu:       *mu,
		TeamName: *team,
	}
	if err := addGuestPlayer(reg, s, p); err != nil {
		log.Fatalf("Error adding %v: %v", *player, err)
	}
	mustSaveSession(mgr, s)

	fmt.Printf("%v joins %v with %.1f points\n", p.Name, s.Name,
		p.EarnedRating)
}

func handleRemove(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	player := fs.String("player", "", "Player name to remove")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *player == "" {
		fmt.Fprintln(os.Stderr, "Please provide a player with --player.")
		fs.Usage()
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)

	switch s.RemovePlayer(*player) {
	case session.RemoveImmediate:
		fmt.Printf("%v removed from %v\n", *player, s.Name)
	case session.RemoveQueued:
		fmt.Printf("%v finishes the current round and then leaves %v\n",
			*player, s.Name)
	case session.RemoveNotFound:
		log.Fatalf("No player named %v in %v", *player, s.Name)
	}
	mustSaveSession(mgr, s)
}

func handleCourts(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("courts", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	courts := fs.Int("courts", 0, "New court count")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	mgr := snapshotManager()
	s := mustLoadSession(mgr, *name)

	if err := s.UpdateCourts(*courts); err != nil {
		log.Fatalf("Error updating courts: %v", err)
	}
	mustSaveSession(mgr, s)

	fmt.Printf("%v now plays on %v courts starting next round\n", s.Name,
		s.NumCourts)
}

func handleSessions(ctx context.Context, args []string) {
	mgr := snapshotManager()
	names, err := mgr.List()
	if err != nil {
		log.Fatalf("Error listing sessions: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No stored sessions")
		return
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Println(n)
	}
}

func handleClear(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	name := fs.String("name", "", "Session name")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "Please provide a session with --name.")
		fs.Usage()
		os.Exit(1)
	}

	mgr := snapshotManager()
	if err := mgr.Clear(*name); err != nil {
		log.Fatalf("Error clearing session %v: %v", *name, err)
	}
	fmt.Printf("Session %v cleared\n", *name)
}
