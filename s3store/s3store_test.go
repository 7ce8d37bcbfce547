/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package s3store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mikeb26/clubnight/roster"
)

const testBucket = "clubnight-test"

func testStore(t *testing.T) *Store {
	t.Helper()
	st := New(context.Background(), testBucket)
	if err := st.Init(); err != nil {
		t.Skip(fmt.Sprintf("Skipping test due to lack of access to %v: %v",
			testBucket, err))
	}
	return st
}

func TestPlayerRoundTrip(t *testing.T) {
	st := testStore(t)

	name := fmt.Sprintf("roundtrip-%d", newRowID())
	players := map[string]*roster.Player{
		name: {
			Name:   name,
			Gender: roster.Female,
			Mu:     27.5,
			Sigma:  4.2,
			Elo:    1612,
		},
	}
	if err := st.UpsertPlayers(players); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if players[name].StoreID == 0 {
		t.Fatal("upsert did not assign a row id")
	}

	all, err := st.GetAllPlayers()
	if err != nil {
		t.Fatalf("getAllPlayers failed: %v", err)
	}
	got, ok := all[name]
	if !ok {
		t.Fatalf("player %v missing from registry", name)
	}
	if got.Mu != 27.5 || got.Sigma != 4.2 || got.Elo != 1612 ||
		got.Gender != roster.Female {
		t.Errorf("player fields did not survive round trip: %+v", got)
	}

	if err := st.DeletePlayersByIDs([]int64{got.StoreID}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	all, err = st.GetAllPlayers()
	if err != nil {
		t.Fatalf("getAllPlayers failed: %v", err)
	}
	if _, ok := all[name]; ok {
		t.Errorf("player %v still present after delete", name)
	}
}

func TestSessionAndMatchFlow(t *testing.T) {
	st := testStore(t)

	name := fmt.Sprintf("flowtest-%d", newRowID())
	sessID, err := st.CreateSession(name, true)
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	sess, err := st.GetSessionByName(name)
	if err != nil {
		t.Fatalf("getSessionByName failed: %v", err)
	}
	if sess == nil || sess.ID != sessID || !sess.IsDoubles {
		t.Fatalf("unexpected session row: %+v", sess)
	}
	if _, err := sess.CreatedTime(); err != nil {
		t.Errorf("session timestamp unparseable: %v", err)
	}

	missing, err := st.GetSessionByName(name + "-missing")
	if err != nil {
		t.Fatalf("getSessionByName failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for absent session, got %+v", missing)
	}

	matchID, err := st.AddMatch(sessID, "Alice", "Bob", 1, "Carol", "Dave")
	if err != nil {
		t.Fatalf("addMatch failed: %v", err)
	}

	pending, err := st.GetUnprocessedMatches(sessID)
	if err != nil {
		t.Fatalf("getUnprocessedMatches failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != matchID {
		t.Fatalf("unexpected pending matches: %+v", pending)
	}

	if err := st.MarkMatchesProcessed([]int64{matchID}); err != nil {
		t.Fatalf("markProcessed failed: %v", err)
	}
	pending, err = st.GetUnprocessedMatches(sessID)
	if err != nil {
		t.Fatalf("getUnprocessedMatches failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("matches still pending after processing: %+v", pending)
	}
}

func TestMatchRecordSides(t *testing.T) {
	doubles := MatchRecord{
		Player1: "Alice", Player2: "Bob", Player3: "Carol", Player4: "Dave",
	}
	s1, s2 := doubles.Sides()
	if len(s1) != 2 || s1[0] != "Alice" || s1[1] != "Carol" {
		t.Errorf("unexpected side 1: %v", s1)
	}
	if len(s2) != 2 || s2[0] != "Bob" || s2[1] != "Dave" {
		t.Errorf("unexpected side 2: %v", s2)
	}

	singles := MatchRecord{Player1: "Alice", Player2: "Bob"}
	s1, s2 = singles.Sides()
	if len(s1) != 1 || len(s2) != 1 {
		t.Errorf("singles rows should have one player per side: %v vs %v",
			s1, s2)
	}
}

func TestPlayerKeyNormalization(t *testing.T) {
	if playerKey("Alice Chen") != playerKey("  alice chen ") {
		t.Error("player keys should ignore case and padding")
	}
	if playerKey("Alice Chen") == playerKey("Alice Chan") {
		t.Error("distinct names should not collide")
	}
	if !strings.HasPrefix(playerKey("Alice Chen"), playerPrefix) {
		t.Error("player keys should live under the player prefix")
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := wrapErr("getAllPlayers", cause)

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatal("expected StoreError")
	}
	if se.Op != "getAllPlayers" {
		t.Errorf("unexpected op: %v", se.Op)
	}
	if !errors.Is(err, cause) {
		t.Errorf("unwrap lost the cause: %v", se.Unwrap())
	}
}
