/* Copyright © 2025-2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this repository for license terms
 */
package session

import (
	"fmt"
	"strings"

	"github.com/mikeb26/clubnight/schedule"
)

// BuildRoundOutput formats the pending round into aligned string output.
func BuildRoundOutput(s *Session) string {
	matches := s.CurrentMatches()
	if matches == nil {
		return "No round is in progress"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Round %v:\n\n", s.Round))

	type row struct{ court, side1, side2, diff string }
	var rows []row
	for _, m := range matches {
		switch v := m.(type) {
		case schedule.DoublesMatch:
			rows = append(rows, row{
				court: fmt.Sprintf("%v", v.CourtNum),
				side1: fmt.Sprintf("%v + %v", v.Team1.A, v.Team1.B),
				side2: fmt.Sprintf("%v + %v", v.Team2.A, v.Team2.B),
				diff:  fmt.Sprintf("%.2f", v.PowerDiff),
			})
		case schedule.SinglesMatch:
			rows = append(rows, row{
				court: fmt.Sprintf("%v", v.CourtNum),
				side1: v.Player1,
				side2: v.Player2,
				diff:  fmt.Sprintf("%.2f", v.RatingDiff),
			})
		}
	}

	maxC, max1, max2, maxD := len("Court"), len("Side 1"), len("Side 2"),
		len("Diff")
	for _, r := range rows {
		if l := len(r.court); l > maxC {
			maxC = l
		}
		if l := len(r.side1); l > max1 {
			max1 = l
		}
		if l := len(r.side2); l > max2 {
			max2 = l
		}
		if l := len(r.diff); l > maxD {
			maxD = l
		}
	}

	sb.WriteString(fmt.Sprintf("%-*s  %-*s  %-*s  %-*s\n", maxC, "Court",
		max1, "Side 1", max2, "Side 2", maxD, "Diff"))
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%-*s  %-*s  %-*s  %-*s\n", maxC, r.court,
			max1, r.side1, max2, r.side2, maxD, r.diff))
	}

	if resting := s.Resting(); len(resting) > 0 {
		sb.WriteString(fmt.Sprintf("\nResting: %v\n",
			strings.Join(resting, ", ")))
	}

	return sb.String()
}

// BuildStandingsOutput formats the session leaderboard into grouped,
// aligned string output.
func BuildStandingsOutput(s *Session) string {
	standings := s.Standings()
	if len(standings) == 0 {
		return "No players in session"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Standings after Round %v:\n\n", s.Round))

	type row struct{ rank, player, points string }
	var rows []row
	priorPoints := -1.0
	rank := 0
	for idx, st := range standings {
		var rankStr string
		if idx != 0 && st.Earned == priorPoints {
			rankStr = ""
		} else {
			rank = idx + 1
			rankStr = fmt.Sprintf("%v.", rank)
			priorPoints = st.Earned
		}
		rows = append(rows, row{
			rank:   rankStr,
			player: st.Name,
			points: fmt.Sprintf("%.1f", st.Earned),
		})
	}

	maxR, maxN, maxP := len("Place"), len("Name"), len("Points")
	for _, r := range rows {
		if l := len(r.rank); l > maxR {
			maxR = l
		}
		if l := len(r.player); l > maxN {
			maxN = l
		}
		if l := len(r.points); l > maxP {
			maxP = l
		}
	}

	sb.WriteString(fmt.Sprintf("%-*s  %-*s  %-*s\n", maxR, "Place", maxN,
		"Name", maxP, "Points"))
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%-*s  %-*s  %-*s\n", maxR, r.rank,
			maxN, r.player, maxP, r.points))
	}

	return sb.String()
}
