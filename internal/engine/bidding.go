package engine

// ForbiddenBid reports the one value the last player to bid may not choose.
// There is no forbidden value unless exactly one player is still missing a bid,
// or when the bids already entered exceed the cards dealt.
func ForbiddenBid(r Round, players []Player) (int, bool) {
	missing := 0
	entered := 0
	for _, p := range players {
		bid, ok := r.Bids[p.ID]
		if !ok {
			missing++
			continue
		}
		entered += bid
	}
	if missing != 1 {
		return 0, false
	}
	forbidden := r.Cards - entered
	if forbidden < 0 {
		return 0, false
	}
	return forbidden, true
}

// LastBidder returns the player still missing a bid when there is exactly one.
func LastBidder(r Round, players []Player) (Player, bool) {
	var last Player
	missing := 0
	for _, p := range players {
		if _, ok := r.Bids[p.ID]; !ok {
			last = p
			missing++
		}
	}
	return last, missing == 1
}

// IsLegalBid checks a proposed bid for playerID. The player's own current bid
// is ignored, so revising a bid after everyone else has bid is held to the
// last-bidder rule as well.
func IsLegalBid(r Round, players []Player, playerID string, value int) bool {
	if value < 0 {
		return false
	}
	if _, ok := r.Bids[playerID]; ok {
		r.Bids = cloneMap(r.Bids)
		delete(r.Bids, playerID)
	}
	last, ok := LastBidder(r, players)
	if !ok || last.ID != playerID {
		return true
	}
	forbidden, ok := ForbiddenBid(r, players)
	return !ok || value != forbidden
}

// CanLock holds even when bids were written without going through IsLegalBid.
func CanLock(r Round, players []Player) error {
	sum := 0
	for _, p := range players {
		bid, ok := r.Bids[p.ID]
		if !ok {
			return ErrMissingBids
		}
		sum += bid
	}
	if sum == r.Cards {
		return ErrBidsEqualCards
	}
	return nil
}
