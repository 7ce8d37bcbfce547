/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/schedule"
	"github.com/mikeb26/clubnight/session"
)

func TestParseWinners(t *testing.T) {
	winners, err := parseWinners([]string{"1=Alice,Bob", "2=Carol"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := map[int][]string{
		1: {"Alice", "Bob"},
		2: {"Carol"},
	}
	if !reflect.DeepEqual(winners, want) {
		t.Errorf("got %v, want %v", winners, want)
	}

	for _, bad := range [][]string{
		nil,
		{"noequals"},
		{"x=Alice"},
		{"1="},
	} {
		if _, err := parseWinners(bad); err == nil {
			t.Errorf("expected error for %v", bad)
		}
	}
}

// fakeRegistry records registry traffic so the guest flow can be
// checked without a bucket.
type fakeRegistry struct {
	upserts   int
	deleted   []int64
	upsertErr error
}

func (r *fakeRegistry) UpsertPlayers(players map[string]*roster.Player) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	for _, p := range players {
		if p.StoreID == 0 {
			p.StoreID = int64(1000 + r.upserts)
		}
	}
	return nil
}

func (r *fakeRegistry) DeletePlayersByIDs(ids []int64) error {
	r.deleted = append(r.deleted, ids...)
	return nil
}

func guestTestSession(t *testing.T) *session.Session {
	t.Helper()
	players := make([]*roster.Player, 4)
	for i := range players {
		players[i] = &roster.Player{
			Name:   string(rune('A' + i)),
			Gender: roster.Male,
		}
	}
	s, err := session.New("guest night", players, 1, true,
		schedule.DefaultWeights())
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	return s
}

func TestAddGuestPlayer(t *testing.T) {
	s := guestTestSession(t)
	reg := &fakeRegistry{}

	guest := &roster.Player{Name: "Guest", Gender: roster.Female}
	if err := addGuestPlayer(reg, s, guest); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if reg.upserts != 1 {
		t.Errorf("expected one registry upsert, got %d", reg.upserts)
	}
	if guest.StoreID == 0 {
		t.Error("guest should carry a registry row id")
	}
	if _, ok := s.Player("Guest"); !ok {
		t.Error("guest missing from session")
	}
	if len(reg.deleted) != 0 {
		t.Errorf("successful add should not delete rows: %v", reg.deleted)
	}
}

func TestAddGuestPlayerRollsBack(t *testing.T) {
	s := guestTestSession(t)
	reg := &fakeRegistry{}

	// duplicate of an existing session player: the session add fails and
	// the freshly written registry row must be removed again
	dup := &roster.Player{Name: "A", Gender: roster.Male}
	err := addGuestPlayer(reg, s, dup)
	if !errors.Is(err, session.ErrDuplicatePlayer) {
		t.Fatalf("expected ErrDuplicatePlayer, got %v", err)
	}
	if len(reg.deleted) != 1 || reg.deleted[0] != dup.StoreID {
		t.Errorf("expected rollback of row %d, got %v", dup.StoreID, reg.deleted)
	}
}

func TestAddGuestPlayerRegistryFailure(t *testing.T) {
	s := guestTestSession(t)
	wantErr := errors.New("bucket gone")
	reg := &fakeRegistry{upsertErr: wantErr}

	guest := &roster.Player{Name: "Guest", Gender: roster.Female}
	if err := addGuestPlayer(reg, s, guest); !errors.Is(err, wantErr) {
		t.Fatalf("expected the registry error, got %v", err)
	}
	if _, ok := s.Player("Guest"); ok {
		t.Error("guest must not join the session when the registry write fails")
	}
}

func TestParseGender(t *testing.T) {
	if g, err := parseGender("X", "M"); err != nil || g != roster.Male {
		t.Errorf("expected Male, got %v, %v", g, err)
	}
	if g, err := parseGender("X", "F"); err != nil || g != roster.Female {
		t.Errorf("expected Female, got %v, %v", g, err)
	}
	for _, bad := range []string{"", "m", "female", "Q"} {
		if _, err := parseGender("X", bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "night.yaml")
	body := `name: tuesday
courts: 2
rounds: 4
weights:
  skill: 1
  power: 3
  pairing: 2
players:
  - name: Alice
    gender: F
    mu: 27
    team: Smashers
  - name: Bob
    gender: M
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Name != "tuesday" || cfg.Courts != 2 || cfg.Rounds != 4 {
		t.Errorf("unexpected header: %+v", cfg)
	}
	if !cfg.isDoubles() {
		t.Error("doubles should default to true")
	}
	if cfg.weights().Power != 3 {
		t.Errorf("unexpected weights: %+v", cfg.weights())
	}

	players, err := cfg.roster()
	if err != nil {
		t.Fatalf("roster failed: %v", err)
	}
	if len(players) != 2 || players[0].TeamName != "Smashers" {
		t.Errorf("unexpected roster: %+v", players)
	}
}

func TestLoadConfigRejectsBadRoster(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"noname.yaml":    "courts: 2\nplayers:\n  - name: A\n    gender: M\n",
		"nocourts.yaml":  "name: x\nplayers:\n  - name: A\n    gender: M\n",
		"noplayers.yaml": "name: x\ncourts: 2\n",
	}
	for file, body := range cases {
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if _, err := loadConfig(path); err == nil {
			t.Errorf("%v: expected error", file)
		}
	}

	path := filepath.Join(dir, "badgender.yaml")
	body := "name: x\ncourts: 1\nplayers:\n  - name: A\n    gender: Q\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := cfg.roster(); err == nil {
		t.Error("expected gender validation error")
	}
}
