/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package session

import (
	"context"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/mikeb26/clubnight/schedule"
)

func TestSnapshotRoundTrip(t *testing.T) {
	mgr := NewManager(t.TempDir())
	s := testSession(t, 9, 2)
	s.Players()["P03"].EarnedRating = 1.5

	matches, err := s.PrepareRound(context.Background())
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	if err := mgr.Save(s); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := mgr.Load(s.Name)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("load returned no session")
	}

	if loaded.Name != s.Name || loaded.Round != s.Round ||
		loaded.NumCourts != s.NumCourts || loaded.IsDoubles != s.IsDoubles {
		t.Errorf("header mismatch: %+v vs %+v", loaded, s)
	}
	if !reflect.DeepEqual(loaded.queue.Order(), s.queue.Order()) {
		t.Errorf("queue order mismatch: %v vs %v",
			loaded.queue.Order(), s.queue.Order())
	}
	if !reflect.DeepEqual(loaded.CurrentMatches(), matches) {
		t.Errorf("matches mismatch: %v vs %v", loaded.CurrentMatches(), matches)
	}
	if !reflect.DeepEqual(loaded.history, s.history) {
		t.Errorf("history mismatch: %v vs %v", loaded.history, s.history)
	}
	if !reflect.DeepEqual(loaded.Standings(), s.Standings()) {
		t.Errorf("standings mismatch: %v vs %v",
			loaded.Standings(), s.Standings())
	}
	if !reflect.DeepEqual(loaded.joined, s.joined) {
		t.Errorf("join order mismatch: %v vs %v", loaded.joined, s.joined)
	}
	if !reflect.DeepEqual(loaded.Resting(), s.Resting()) {
		t.Errorf("resting mismatch: %v vs %v", loaded.Resting(), s.Resting())
	}

	// the restored session can finish the round
	if err := loaded.FinalizeRound(winnersSideOne(loaded.CurrentMatches())); err != nil {
		t.Fatalf("finalize on restored session failed: %v", err)
	}
}

func TestSnapshotMissing(t *testing.T) {
	mgr := NewManager(t.TempDir())
	s, err := mgr.Load("never saved")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s != nil {
		t.Errorf("expected nil session for missing snapshot, got %+v", s)
	}
}

func TestSnapshotCorrupt(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	path := mgr.path("bad night")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	s, err := mgr.Load("bad night")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s != nil {
		t.Errorf("corrupt snapshot should read as missing, got %+v", s)
	}
	// and the unreadable file is gone
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("corrupt snapshot not deleted: %v", err)
	}
}

func TestSnapshotListAndClear(t *testing.T) {
	mgr := NewManager(t.TempDir())

	s1 := testSession(t, 8, 2)
	s1.Name = "monday"
	s2 := testSession(t, 8, 2)
	s2.Name = "thursday"
	for _, s := range []*Session{s1, s2} {
		if err := mgr.Save(s); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	names, err := mgr.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 snapshots, got %v", names)
	}

	if err := mgr.Clear("monday"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if err := mgr.Clear("monday"); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
	names, err = mgr.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 1 || names[0] != "thursday" {
		t.Errorf("unexpected snapshots after clear: %v", names)
	}
}

func TestSnapshotSinglesMatches(t *testing.T) {
	mgr := NewManager(t.TempDir())
	s, err := New("singles night", testPlayers(4), 2, false,
		schedule.DefaultWeights())
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	s.SetSolveTimeout(5 * time.Second)

	matches, err := s.PrepareRound(context.Background())
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := mgr.Save(s); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := mgr.Load(s.Name)
	if err != nil || loaded == nil {
		t.Fatalf("load failed: %v (%v)", err, loaded)
	}
	if !reflect.DeepEqual(loaded.CurrentMatches(), matches) {
		t.Errorf("singles matches mismatch: %v vs %v",
			loaded.CurrentMatches(), matches)
	}
}
