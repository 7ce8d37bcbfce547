/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package session

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mikeb26/clubnight/roster"
	"github.com/mikeb26/clubnight/schedule"
)

const (
	snapshotVersion = 1
	snapshotSuffix  = ".json.gz"
)

// Manager persists session snapshots as gzipped JSON files in a
// directory, one file per session name. A snapshot that cannot be decoded
// is treated the same as a missing one and deleted so a stale format
// never wedges a club night.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// DefaultManager stores snapshots under the user's config directory.
func DefaultManager() (*Manager, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("session: cannot locate config dir: %w", err)
	}
	return NewManager(filepath.Join(base, "clubnight", "sessions")), nil
}

type matchSnapshot struct {
	Court      int      `json:"court"`
	Doubles    bool     `json:"doubles"`
	Side1      []string `json:"side1"`
	Side2      []string `json:"side2"`
	Side1Power float64  `json:"side1Power"`
	Side2Power float64  `json:"side2Power"`
}

type pairCountSnapshot struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

type snapshot struct {
	Version         int                 `json:"version"`
	Name            string              `json:"name"`
	IsDoubles       bool                `json:"isDoubles"`
	NumCourts       int                 `json:"numCourts"`
	Round           int                 `json:"round"`
	Recorded        bool                `json:"recorded"`
	StoreID         int64               `json:"storeId,omitempty"`
	Players         []roster.Player     `json:"players"`
	QueueOrder      []string            `json:"queueOrder"`
	Resting         []string            `json:"resting,omitempty"`
	Prepared        bool                `json:"prepared"`
	Matches         []matchSnapshot     `json:"matches,omitempty"`
	History         []pairCountSnapshot `json:"history,omitempty"`
	Weights         schedule.Weights    `json:"weights"`
	PendingRemovals []string            `json:"pendingRemovals,omitempty"`
	SavedAt         time.Time           `json:"savedAt"`
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, sanitizeName(name)+snapshotSuffix)
}

func sanitizeName(name string) string {
	mapper := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}
	return strings.Map(mapper, name)
}

// Save writes the session atomically: the snapshot lands in a temp file
// first and is renamed into place.
func (m *Manager) Save(s *Session) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("session: cannot create snapshot dir: %w", err)
	}

	snap := snapshot{
		Version:         snapshotVersion,
		Name:            s.Name,
		IsDoubles:       s.IsDoubles,
		NumCourts:       s.NumCourts,
		Round:           s.Round,
		Recorded:        s.Recorded,
		StoreID:         s.StoreID,
		QueueOrder:      s.queue.Order(),
		Resting:         s.resting,
		Prepared:        s.prepared,
		Weights:         s.weights,
		PendingRemovals: s.pendingRemovals,
		SavedAt:         time.Now().UTC(),
	}
	// players are saved in join order; Load rebuilds the join order from
	// the slice, which standings tie-breaking depends on
	for _, name := range s.joined {
		snap.Players = append(snap.Players, *s.players[name])
	}
	for _, match := range s.matches {
		snap.Matches = append(snap.Matches, encodeMatch(match))
	}
	for pr, n := range s.history {
		snap.History = append(snap.History,
			pairCountSnapshot{A: pr.A, B: pr.B, Count: n})
	}

	tmp, err := os.CreateTemp(m.dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("session: cannot create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	gw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gw).Encode(&snap); err != nil {
		tmp.Close()
		return fmt.Errorf("session: cannot encode snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: cannot finish snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: cannot close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path(s.Name)); err != nil {
		return fmt.Errorf("session: cannot install snapshot: %w", err)
	}
	return nil
}

// Load restores a session by name. A missing snapshot returns (nil, nil);
// a corrupt or outdated one is deleted and also returns (nil, nil).
func (m *Manager) Load(name string) (*Session, error) {
	f, err := os.Open(m.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: cannot open snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	gr, err := gzip.NewReader(f)
	if err == nil {
		err = json.NewDecoder(gr).Decode(&snap)
		gr.Close()
	}
	if err != nil || snap.Version != snapshotVersion {
		log.Printf("session: discarding unreadable snapshot for %q: %v",
			name, err)
		os.Remove(m.path(name))
		return nil, nil
	}

	s := &Session{
		Name:            snap.Name,
		IsDoubles:       snap.IsDoubles,
		NumCourts:       snap.NumCourts,
		Round:           snap.Round,
		Recorded:        snap.Recorded,
		StoreID:         snap.StoreID,
		players:         make(map[string]*roster.Player, len(snap.Players)),
		queue:           schedule.NewOrderedRestQueue(snap.QueueOrder),
		history:         make(schedule.PairHistory, len(snap.History)),
		weights:         snap.Weights,
		resting:         snap.Resting,
		prepared:        snap.Prepared,
		pendingRemovals: snap.PendingRemovals,
	}
	for i := range snap.Players {
		p := snap.Players[i]
		s.players[p.Name] = &p
		s.joined = append(s.joined, p.Name)
	}
	for _, pc := range snap.History {
		s.history[schedule.NewPair(pc.A, pc.B)] = pc.Count
	}
	for _, ms := range snap.Matches {
		s.matches = append(s.matches, decodeMatch(ms))
	}
	return s, nil
}

// Clear removes a session's snapshot; a missing file is not an error.
func (m *Manager) Clear(name string) error {
	err := os.Remove(m.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("session: cannot remove snapshot: %w", err)
	}
	return nil
}

// List returns the names of all stored snapshots.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: cannot list snapshots: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), snapshotSuffix))
	}
	return names, nil
}

func encodeMatch(m schedule.Match) matchSnapshot {
	switch v := m.(type) {
	case schedule.DoublesMatch:
		return matchSnapshot{
			Court:      v.CourtNum,
			Doubles:    true,
			Side1:      []string{v.Team1.A, v.Team1.B},
			Side2:      []string{v.Team2.A, v.Team2.B},
			Side1Power: v.Team1Power,
			Side2Power: v.Team2Power,
		}
	case schedule.SinglesMatch:
		return matchSnapshot{
			Court:      v.CourtNum,
			Side1:      []string{v.Player1},
			Side2:      []string{v.Player2},
			Side1Power: v.Rating1,
			Side2Power: v.Rating2,
		}
	}
	return matchSnapshot{}
}

func decodeMatch(ms matchSnapshot) schedule.Match {
	diff := ms.Side1Power - ms.Side2Power
	if diff < 0 {
		diff = -diff
	}
	if ms.Doubles {
		return schedule.DoublesMatch{
			CourtNum:   ms.Court,
			Team1:      schedule.NewPair(ms.Side1[0], ms.Side1[1]),
			Team2:      schedule.NewPair(ms.Side2[0], ms.Side2[1]),
			Team1Power: ms.Side1Power,
			Team2Power: ms.Side2Power,
			PowerDiff:  diff,
		}
	}
	return schedule.SinglesMatch{
		CourtNum:   ms.Court,
		Player1:    ms.Side1[0],
		Player2:    ms.Side2[0],
		Rating1:    ms.Side1Power,
		Rating2:    ms.Side2Power,
		RatingDiff: diff,
	}
}
