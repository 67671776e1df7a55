package engine

import (
	"fmt"
	"slices"
	"strings"
)

type Standing struct {
	Player Player `json:"player"`
	Total  int    `json:"total"`
	Won    int    `json:"won"`
	Streak int    `json:"streak"`
}

// Standings orders players by total points, ties keeping join order.
func Standings(s GameState) []Standing {
	totals := Totals(s)
	out := make([]Standing, len(s.Players))
	for i, p := range s.Players {
		out[i] = Standing{
			Player: p,
			Total:  totals[p.ID],
			Won:    RoundsWon(s, p.ID),
			Streak: CurrentWinStreak(s, p.ID),
		}
	}
	slices.SortStableFunc(out, func(a, b Standing) int { return b.Total - a.Total })
	return out
}

// Highlights renders the rotating scoreboard messages. It returns nothing
// until at least one player has joined.
func Highlights(s GameState) []string {
	if len(s.Players) == 0 {
		return nil
	}
	standings := Standings(s)
	var out []string

	out = append(out, fmt.Sprintf("Rounds scored: %d/%d.", RoundsFullyScored(s), len(s.Rounds)))

	var noWins []string
	for _, p := range s.Players {
		if RoundsWon(s, p.ID) == 0 {
			noWins = append(noWins, p.Name)
		}
	}
	if len(noWins) > 0 {
		out = append(out, fmt.Sprintf("%s %s not won a round yet.", strings.Join(noWins, ", "), verb(len(noWins))))
	}

	if who, n := bestBy(s.Players, standings, func(st Standing) int { return st.Streak }); n > 0 {
		out = append(out, fmt.Sprintf("%s %s a %d-round winning streak.", strings.Join(who, ", "), verb(len(who)), n))
	}

	switch {
	case len(standings) >= 2:
		a, b := standings[0], standings[1]
		out = append(out, fmt.Sprintf("%s leads %s by %d pts.", a.Player.Name, b.Player.Name, a.Total-b.Total))
	case len(standings) == 1:
		out = append(out, fmt.Sprintf("%s is in the lead.", standings[0].Player.Name))
	}

	if who, n := bestBy(s.Players, standings, func(st Standing) int { return st.Won }); n > 0 {
		out = append(out, fmt.Sprintf("%s %s the most exact bids: %d.", strings.Join(who, ", "), verb(len(who)), n))
	}

	if name, round, pts := bestRound(s); pts > 0 {
		out = append(out, fmt.Sprintf("Best single round: %s with %d pts in round %d.", name, pts, round))
	}

	if target := s.Settings.TargetPoints; target > 0 {
		var reached []string
		for _, st := range standings {
			if st.Total >= target {
				reached = append(reached, st.Player.Name)
			}
		}
		if len(reached) > 0 {
			out = append(out, fmt.Sprintf("%s %s reached %d pts.", strings.Join(reached, ", "), verb(len(reached)), target))
		}
	}

	return out
}

// bestBy returns the names sharing the highest metric, in join order.
func bestBy(players []Player, standings []Standing, metric func(Standing) int) ([]string, int) {
	byID := make(map[string]int, len(standings))
	top := 0
	for _, st := range standings {
		v := metric(st)
		byID[st.Player.ID] = v
		top = max(top, v)
	}
	if top == 0 {
		return nil, 0
	}
	var who []string
	for _, p := range players {
		if byID[p.ID] == top {
			who = append(who, p.Name)
		}
	}
	return who, top
}

func bestRound(s GameState) (string, int, int) {
	var name string
	var index, best int
	for _, r := range s.Rounds {
		for _, p := range s.Players {
			if pts := roundPoints(r, p.ID); pts > best {
				name, index, best = p.Name, r.Index, pts
			}
		}
	}
	return name, index, best
}

func verb(n int) string {
	if n == 1 {
		return "has"
	}
	return "have"
}
