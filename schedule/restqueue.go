/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package schedule

import (
	"math/rand"
)

// RestQueue tracks who sits out each round. Players rest from the front
// and re-enter at the back, so over a session everyone rests within one
// round of everyone else (assuming a stable pool).
type RestQueue struct {
	order []string
}

// NewRestQueue builds a queue over the given players in a random order.
func NewRestQueue(players []string) *RestQueue {
	q := NewOrderedRestQueue(players)
	rand.Shuffle(len(q.order), func(i, j int) {
		q.order[i], q.order[j] = q.order[j], q.order[i]
	})
	return q
}

// NewOrderedRestQueue builds a queue preserving the given order. Used when
// restoring a snapshot and in deterministic tests.
func NewOrderedRestQueue(players []string) *RestQueue {
	order := make([]string, len(players))
	copy(order, players)
	return &RestQueue{order: order}
}

// RestCount returns how many players must sit out a round with the given
// court allocation. Courts beyond what the pool can fill are ignored.
func (q *RestQueue) RestCount(numCourts, perCourt int) int {
	total := len(q.order)
	maxCourts := total / perCourt
	if numCourts < maxCourts {
		maxCourts = numCourts
	}
	if maxCourts < 0 {
		maxCourts = 0
	}
	return total - maxCourts*perCourt
}

// Resting returns the players at the front of the queue who sit out this
// round.
func (q *RestQueue) Resting(numCourts, perCourt int) []string {
	n := q.RestCount(numCourts, perCourt)
	out := make([]string, n)
	copy(out, q.order[:n])
	return out
}

// RotateAfterRound removes the rested players from wherever they sit in
// the queue, reshuffles them among themselves, and appends them to the
// back. Names not present in the queue are ignored.
func (q *RestQueue) RotateAfterRound(rested []string) {
	restedSet := make(map[string]bool, len(rested))
	for _, name := range rested {
		restedSet[name] = true
	}

	var kept, moved []string
	for _, name := range q.order {
		if restedSet[name] {
			moved = append(moved, name)
		} else {
			kept = append(kept, name)
		}
	}
	rand.Shuffle(len(moved), func(i, j int) {
		moved[i], moved[j] = moved[j], moved[i]
	})
	q.order = append(kept, moved...)
}

// Add appends a player to the back of the queue. Adding a player already
// present is a no-op.
func (q *RestQueue) Add(name string) {
	if q.Contains(name) {
		return
	}
	q.order = append(q.order, name)
}

// Remove deletes a player from the queue; absent names are a no-op.
func (q *RestQueue) Remove(name string) {
	for i, n := range q.order {
		if n == name {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

func (q *RestQueue) Contains(name string) bool {
	for _, n := range q.order {
		if n == name {
			return true
		}
	}
	return false
}

func (q *RestQueue) Len() int { return len(q.order) }

// Order returns a snapshot of the current queue order, front first.
func (q *RestQueue) Order() []string {
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}
