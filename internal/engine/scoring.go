package engine

// PointsFor scores one player's round under TEN_PLUS_BID. Only an exact bid
// scores; a missed or undecided round is worth nothing.
func PointsFor(bid *int, ok *bool) int {
	if bid == nil || ok == nil || !*ok {
		return 0
	}
	return 10 + *bid
}

func roundPoints(r Round, playerID string) int {
	bid, hasBid := r.Bids[playerID]
	ok, hasOK := r.OK[playerID]
	if !hasBid || !hasOK {
		return 0
	}
	return PointsFor(&bid, &ok)
}

func Totals(s GameState) map[string]int {
	totals := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		totals[p.ID] = 0
	}
	for _, r := range s.Rounds {
		for _, p := range s.Players {
			totals[p.ID] += roundPoints(r, p.ID)
		}
	}
	return totals
}

func RoundsWon(s GameState, playerID string) int {
	won := 0
	for _, r := range s.Rounds {
		if r.OK[playerID] {
			won++
		}
	}
	return won
}

// CurrentWinStreak counts exact bids backwards from the latest round and stops
// at the first miss or undecided round.
func CurrentWinStreak(s GameState, playerID string) int {
	streak := 0
	for i := len(s.Rounds) - 1; i >= 0; i-- {
		ok, decided := s.Rounds[i].OK[playerID]
		if !decided || !ok {
			break
		}
		streak++
	}
	return streak
}

func RoundsFullyScored(s GameState) int {
	if len(s.Players) == 0 {
		return 0
	}
	scored := 0
	for _, r := range s.Rounds {
		complete := true
		for _, p := range s.Players {
			if _, ok := r.OK[p.ID]; !ok {
				complete = false
				break
			}
		}
		if complete {
			scored++
		}
	}
	return scored
}
