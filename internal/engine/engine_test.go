package engine

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func stubIDs(t *testing.T) {
	t.Helper()
	n := 0
	prevID, prevNow := newID, now
	newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	clock := int64(1000)
	now = func() int64 {
		clock++
		return clock
	}
	t.Cleanup(func() { newID, now = prevID, prevNow })
}

func bid(v int) *int { return &v }

func mustApply(t *testing.T, s GameState, cmd Command) GameState {
	t.Helper()
	_, next, err := Apply(s, cmd)
	if err != nil {
		t.Fatalf("apply %s: unexpected err %v", cmd.Type, err)
	}
	return next
}

// threePlayerGame seats three players on a descending 17..1 plan.
func threePlayerGame(t *testing.T) GameState {
	t.Helper()
	s := NewGame()
	for _, name := range []string{"Ana", "Ben", "Cy"} {
		s = mustApply(t, s, Command{Type: CmdAddPlayer, Name: name})
	}
	return mustApply(t, s, Command{Type: CmdBuildPlan, Descending: true})
}

func TestAddPlayerRejectsBlankName(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plain name", input: "Ana", wantErr: false},
		{name: "surrounding space is trimmed", input: "  Ben ", wantErr: false},
		{name: "empty", input: "", wantErr: true},
		{name: "only spaces", input: "   ", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(NewGame(), Command{Type: CmdAddPlayer, Name: tc.input})
			if tc.wantErr && !errors.Is(err, ErrEmptyName) {
				t.Fatalf("want ErrEmptyName, got %v", err)
			}
			if !tc.wantErr && (err != nil || len(next.Players) != 1) {
				t.Fatalf("unexpected err %v / players %+v", err, next.Players)
			}
		})
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	stubIDs(t)
	s := threePlayerGame(t)
	r := s.Rounds[0]
	p := s.Players[0]

	next := mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: p.ID, Bid: bid(2)})

	if _, ok := s.Rounds[0].Bids[p.ID]; ok {
		t.Fatalf("input round was mutated: %+v", s.Rounds[0].Bids)
	}
	if next.Rounds[0].Bids[p.ID] != 2 {
		t.Fatalf("bid not applied: %+v", next.Rounds[0].Bids)
	}

	added := mustApply(t, s, Command{Type: CmdAddPlayer, Name: "Dee"})
	if len(s.Players) != 3 || len(added.Players) != 4 {
		t.Fatalf("players: input %d, output %d", len(s.Players), len(added.Players))
	}
}

func TestRemovePlayerPurgesOnlyThatPlayer(t *testing.T) {
	stubIDs(t)
	s := threePlayerGame(t)
	a, b, c := s.Players[0], s.Players[1], s.Players[2]
	r := s.Rounds[0] // 17 cards

	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: a.ID, Bid: bid(3)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: b.ID, Bid: bid(4)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: c.ID, Bid: bid(5)})
	s = mustApply(t, s, Command{Type: CmdSetLocked, RoundID: r.ID, Locked: true})
	s = mustApply(t, s, Command{Type: CmdSetOutcome, RoundID: r.ID, PlayerID: a.ID, OK: true})
	s = mustApply(t, s, Command{Type: CmdSetOutcome, RoundID: r.ID, PlayerID: b.ID, OK: false})

	events, next, err := Apply(s, Command{Type: CmdRemovePlayer, PlayerID: a.ID})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if !ContainsEvent(events, EvtPlayerRemoved) {
		t.Fatalf("expected EvtPlayerRemoved")
	}
	if len(next.Players) != 2 {
		t.Fatalf("want 2 players, got %+v", next.Players)
	}
	for _, r := range next.Rounds {
		if _, ok := r.Bids[a.ID]; ok {
			t.Fatalf("round %d still has removed player's bid", r.Index)
		}
		if _, ok := r.OK[a.ID]; ok {
			t.Fatalf("round %d still has removed player's outcome", r.Index)
		}
	}
	wantBids := map[string]int{b.ID: 4, c.ID: 5}
	wantOK := map[string]bool{b.ID: false}
	if !reflect.DeepEqual(next.Rounds[0].Bids, wantBids) || !reflect.DeepEqual(next.Rounds[0].OK, wantOK) {
		t.Fatalf("other players changed: bids %+v ok %+v", next.Rounds[0].Bids, next.Rounds[0].OK)
	}
	if _, ok := s.Rounds[0].Bids[a.ID]; !ok {
		t.Fatalf("removal mutated the previous snapshot")
	}
}

func TestRemoveUnknownPlayer(t *testing.T) {
	_, _, err := Apply(NewGame(), Command{Type: CmdRemovePlayer, PlayerID: "ghost"})
	if !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("want ErrUnknownPlayer, got %v", err)
	}
}

func TestSetBidRules(t *testing.T) {
	stubIDs(t)
	base := threePlayerGame(t)
	a, b, c := base.Players[0], base.Players[1], base.Players[2]
	seven := base.Rounds[6]
	seven.Cards = 7
	base.Rounds = replaceRound(base.Rounds, 6, seven)

	withTwo := mustApply(t, base, Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: a.ID, Bid: bid(3)})
	withTwo = mustApply(t, withTwo, Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: b.ID, Bid: bid(2)})

	cases := []struct {
		name    string
		setup   GameState
		cmd     Command
		wantErr error
	}{
		{
			name:    "last bidder cannot make the total equal cards",
			setup:   withTwo,
			cmd:     Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: c.ID, Bid: bid(2)},
			wantErr: ErrIllegalBid,
		},
		{
			name:  "last bidder may bid anything else",
			setup: withTwo,
			cmd:   Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: c.ID, Bid: bid(3)},
		},
		{
			name:    "negative bids are illegal",
			setup:   base,
			cmd:     Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: a.ID, Bid: bid(-1)},
			wantErr: ErrIllegalBid,
		},
		{
			name:  "clearing a bid is always allowed",
			setup: withTwo,
			cmd:   Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: a.ID},
		},
		{
			name:    "unknown round",
			setup:   base,
			cmd:     Command{Type: CmdSetBid, RoundID: "nope", PlayerID: a.ID, Bid: bid(1)},
			wantErr: ErrUnknownRound,
		},
		{
			name:    "unknown player",
			setup:   base,
			cmd:     Command{Type: CmdSetBid, RoundID: seven.ID, PlayerID: "nobody", Bid: bid(1)},
			wantErr: ErrUnknownPlayer,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(tc.setup, tc.cmd)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if !reflect.DeepEqual(next, tc.setup) {
					t.Fatalf("rejected command changed the state")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
		})
	}
}

func TestLockRequiresAllBidsAndNoExactTotal(t *testing.T) {
	stubIDs(t)
	s := threePlayerGame(t)
	a, b, c := s.Players[0], s.Players[1], s.Players[2]
	last := s.Rounds[len(s.Rounds)-1] // 1 card

	_, _, err := Apply(s, Command{Type: CmdSetLocked, RoundID: last.ID, Locked: true})
	if !errors.Is(err, ErrMissingBids) {
		t.Fatalf("want ErrMissingBids, got %v", err)
	}

	// Write bids that sum to cards directly, as a programmatic edit would.
	forced := last
	forced.Bids = map[string]int{a.ID: 1, b.ID: 0, c.ID: 0}
	s2 := s
	s2.Rounds = replaceRound(s.Rounds, len(s.Rounds)-1, forced)
	_, _, err = Apply(s2, Command{Type: CmdSetLocked, RoundID: last.ID, Locked: true})
	if !errors.Is(err, ErrBidsEqualCards) {
		t.Fatalf("want ErrBidsEqualCards, got %v", err)
	}

	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: last.ID, PlayerID: a.ID, Bid: bid(1)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: last.ID, PlayerID: b.ID, Bid: bid(1)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: last.ID, PlayerID: c.ID, Bid: bid(0)})
	events, locked, err := Apply(s, Command{Type: CmdSetLocked, RoundID: last.ID, Locked: true})
	if err != nil || !ContainsEvent(events, EvtRoundLocked) {
		t.Fatalf("lock: err %v events %+v", err, events)
	}

	_, _, err = Apply(locked, Command{Type: CmdSetBid, RoundID: last.ID, PlayerID: a.ID, Bid: bid(0)})
	if !errors.Is(err, ErrRoundLocked) {
		t.Fatalf("want ErrRoundLocked, got %v", err)
	}
}

func TestOutcomesOnlyOnLockedRoundsAndClearedOnUnlock(t *testing.T) {
	stubIDs(t)
	s := threePlayerGame(t)
	a, b, c := s.Players[0], s.Players[1], s.Players[2]
	r := s.Rounds[0]

	_, _, err := Apply(s, Command{Type: CmdSetOutcome, RoundID: r.ID, PlayerID: a.ID, OK: true})
	if !errors.Is(err, ErrRoundNotLocked) {
		t.Fatalf("want ErrRoundNotLocked, got %v", err)
	}

	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: a.ID, Bid: bid(5)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: b.ID, Bid: bid(5)})
	s = mustApply(t, s, Command{Type: CmdSetBid, RoundID: r.ID, PlayerID: c.ID, Bid: bid(5)})
	s = mustApply(t, s, Command{Type: CmdSetLocked, RoundID: r.ID, Locked: true})
	s = mustApply(t, s, Command{Type: CmdSetOutcome, RoundID: r.ID, PlayerID: a.ID, OK: true})
	if !s.Rounds[0].OK[a.ID] {
		t.Fatalf("outcome not recorded")
	}

	events, s, err := Apply(s, Command{Type: CmdSetLocked, RoundID: r.ID, Locked: false})
	if err != nil || !ContainsEvent(events, EvtRoundUnlocked) {
		t.Fatalf("unlock: err %v", err)
	}
	if len(s.Rounds[0].OK) != 0 {
		t.Fatalf("unlocked round kept outcomes: %+v", s.Rounds[0].OK)
	}
	if s.Rounds[0].Bids[a.ID] != 5 {
		t.Fatalf("unlock dropped bids")
	}
}

func TestResetTwiceGivesDistinctEmptyGames(t *testing.T) {
	stubIDs(t)
	s := threePlayerGame(t)

	_, first, err := Apply(s, Command{Type: CmdReset})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	_, second, err := Apply(first, Command{Type: CmdReset})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if first.ID == second.ID || first.ID == s.ID {
		t.Fatalf("reset reused an id: %s %s %s", s.ID, first.ID, second.ID)
	}
	for _, g := range []GameState{first, second} {
		if len(g.Players) != 0 || len(g.Rounds) != 0 {
			t.Fatalf("reset left data behind: %+v", g)
		}
	}
	if second.CreatedAt <= s.CreatedAt {
		t.Fatalf("reset did not advance createdAt")
	}
}

func TestUnsupportedCommand(t *testing.T) {
	_, _, err := Apply(NewGame(), Command{Type: "Shuffle"})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("want ErrUnsupportedCommand, got %v", err)
	}
}

func TestNormalizeFillsNilMaps(t *testing.T) {
	s := Normalize(GameState{ID: "g", Rounds: []Round{{ID: "r", Index: 1, Cards: 3}}})
	if s.Rounds[0].Bids == nil || s.Rounds[0].OK == nil || s.Players == nil {
		t.Fatalf("normalize left nils: %+v", s)
	}
	if s.Settings.ScoringMode != ScoringTenPlusBid || s.Settings.TargetPoints != DefaultTargetPoints {
		t.Fatalf("normalize settings: %+v", s.Settings)
	}
}
