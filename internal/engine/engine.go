package engine

import (
	"errors"
	"slices"
	"strings"
)

var ErrEmptyName = errors.New("player name is empty")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrUnknownRound = errors.New("unknown round")
var ErrRoundLocked = errors.New("round is locked")
var ErrRoundNotLocked = errors.New("round is not locked")
var ErrIllegalBid = errors.New("illegal bid")
var ErrNoBid = errors.New("player has no bid")
var ErrMissingBids = errors.New("not every player has bid")
var ErrBidsEqualCards = errors.New("bids add up to cards dealt")
var ErrCannotAppend = errors.New("schedule cannot be extended that way")
var ErrUnsupportedCommand = errors.New("unsupported command")

const ScoringTenPlusBid = "TEN_PLUS_BID"

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Round struct {
	ID     string          `json:"id"`
	Index  int             `json:"index"` // 1-based
	Suit   Suit            `json:"suit"`
	Cards  int             `json:"cards"`
	Locked bool            `json:"locked"`
	Bids   map[string]int  `json:"bids"`
	OK     map[string]bool `json:"ok"` // empty until the round is locked
}

type Settings struct {
	ScoringMode  string `json:"scoringMode"`
	TargetPoints int    `json:"targetPoints"`
}

// GameState is the unit of persistence and of exchange between devices.
// Values are treated as immutable: Apply never writes into a state it was given.
type GameState struct {
	ID        string   `json:"id"`
	CreatedAt int64    `json:"createdAt"` // unix millis
	Players   []Player `json:"players"`
	Rounds    []Round  `json:"rounds"`
	Settings  Settings `json:"settings"`
}

type CommandType string

const (
	CmdAddPlayer        CommandType = "AddPlayer"
	CmdRemovePlayer     CommandType = "RemovePlayer"
	CmdBuildPlan        CommandType = "BuildPlan"
	CmdAppendAscending  CommandType = "AppendAscending"
	CmdAppendDescending CommandType = "AppendDescending"
	CmdSetBid           CommandType = "SetBid"
	CmdSetOutcome       CommandType = "SetOutcome"
	CmdSetLocked        CommandType = "SetLocked"
	CmdReset            CommandType = "Reset"
)

type Command struct {
	Type       CommandType
	Name       string
	PlayerID   string
	RoundID    string
	Bid        *int // nil clears the bid
	OK         bool
	Locked     bool
	Descending bool
}

type EventType string

const (
	EvtPlayerAdded     EventType = "PlayerAdded"
	EvtPlayerRemoved   EventType = "PlayerRemoved"
	EvtPlanBuilt       EventType = "PlanBuilt"
	EvtPlanExtended    EventType = "PlanExtended"
	EvtBidChanged      EventType = "BidChanged"
	EvtOutcomeRecorded EventType = "OutcomeRecorded"
	EvtRoundLocked     EventType = "RoundLocked"
	EvtRoundUnlocked   EventType = "RoundUnlocked"
	EvtGameReset       EventType = "GameReset"
)

type Event struct {
	Type     EventType
	PlayerID string
	RoundID  string
	Rounds   int
}

func Apply(s GameState, cmd Command) ([]Event, GameState, error) {
	newState := s

	switch cmd.Type {
	case CmdAddPlayer:
		name := strings.TrimSpace(cmd.Name)
		if name == "" {
			return nil, s, ErrEmptyName
		}
		p := Player{ID: newID(), Name: name}
		newState.Players = append(slices.Clip(s.Players), p)
		return []Event{{Type: EvtPlayerAdded, PlayerID: p.ID}}, newState, nil

	case CmdRemovePlayer:
		if !hasPlayer(s, cmd.PlayerID) {
			return nil, s, ErrUnknownPlayer
		}
		newState.Players = slices.DeleteFunc(slices.Clone(s.Players), func(p Player) bool {
			return p.ID == cmd.PlayerID
		})
		newState.Rounds = make([]Round, len(s.Rounds))
		for i, r := range s.Rounds {
			newState.Rounds[i] = withoutPlayer(r, cmd.PlayerID)
		}
		return []Event{{Type: EvtPlayerRemoved, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdBuildPlan:
		newState.Rounds = buildRounds(GeneratePlan(len(s.Players), cmd.Descending), 0)
		return []Event{{Type: EvtPlanBuilt, Rounds: len(newState.Rounds)}}, newState, nil

	case CmdAppendAscending, CmdAppendDescending:
		descending := cmd.Type == CmdAppendDescending
		if len(s.Rounds) == 0 {
			newState.Rounds = buildRounds(GeneratePlan(len(s.Players), descending), 0)
			return []Event{{Type: EvtPlanBuilt, Rounds: len(newState.Rounds)}}, newState, nil
		}
		rows, err := continuation(s, descending)
		if err != nil {
			return nil, s, err
		}
		added := buildRounds(rows, len(s.Rounds))
		newState.Rounds = append(slices.Clip(s.Rounds), added...)
		return []Event{{Type: EvtPlanExtended, Rounds: len(added)}}, newState, nil

	case CmdSetBid:
		i, err := findRound(s, cmd.RoundID)
		if err != nil {
			return nil, s, err
		}
		if !hasPlayer(s, cmd.PlayerID) {
			return nil, s, ErrUnknownPlayer
		}
		r := s.Rounds[i]
		if r.Locked {
			return nil, s, ErrRoundLocked
		}
		bids := cloneMap(r.Bids)
		if cmd.Bid == nil {
			delete(bids, cmd.PlayerID)
		} else {
			if !IsLegalBid(r, s.Players, cmd.PlayerID, *cmd.Bid) {
				return nil, s, ErrIllegalBid
			}
			bids[cmd.PlayerID] = *cmd.Bid
		}
		r.Bids = bids
		newState.Rounds = replaceRound(s.Rounds, i, r)
		return []Event{{Type: EvtBidChanged, RoundID: r.ID, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdSetOutcome:
		i, err := findRound(s, cmd.RoundID)
		if err != nil {
			return nil, s, err
		}
		if !hasPlayer(s, cmd.PlayerID) {
			return nil, s, ErrUnknownPlayer
		}
		r := s.Rounds[i]
		if !r.Locked {
			return nil, s, ErrRoundNotLocked
		}
		if _, ok := r.Bids[cmd.PlayerID]; !ok {
			return nil, s, ErrNoBid
		}
		outcomes := cloneMap(r.OK)
		outcomes[cmd.PlayerID] = cmd.OK
		r.OK = outcomes
		newState.Rounds = replaceRound(s.Rounds, i, r)
		return []Event{{Type: EvtOutcomeRecorded, RoundID: r.ID, PlayerID: cmd.PlayerID}}, newState, nil

	case CmdSetLocked:
		i, err := findRound(s, cmd.RoundID)
		if err != nil {
			return nil, s, err
		}
		r := s.Rounds[i]
		if r.Locked == cmd.Locked {
			return nil, s, nil
		}
		if cmd.Locked {
			if err := CanLock(r, s.Players); err != nil {
				return nil, s, err
			}
			r.Locked = true
			newState.Rounds = replaceRound(s.Rounds, i, r)
			return []Event{{Type: EvtRoundLocked, RoundID: r.ID}}, newState, nil
		}
		r.Locked = false
		r.OK = map[string]bool{}
		newState.Rounds = replaceRound(s.Rounds, i, r)
		return []Event{{Type: EvtRoundUnlocked, RoundID: r.ID}}, newState, nil

	case CmdReset:
		return []Event{{Type: EvtGameReset}}, NewGame(), nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func hasPlayer(s GameState, id string) bool {
	return slices.ContainsFunc(s.Players, func(p Player) bool { return p.ID == id })
}

func findRound(s GameState, id string) (int, error) {
	i := slices.IndexFunc(s.Rounds, func(r Round) bool { return r.ID == id })
	if i < 0 {
		return -1, ErrUnknownRound
	}
	return i, nil
}

// replaceRound returns a copy of rounds with position i swapped for r.
func replaceRound(rounds []Round, i int, r Round) []Round {
	out := slices.Clone(rounds)
	out[i] = r
	return out
}

func withoutPlayer(r Round, playerID string) Round {
	_, hasBid := r.Bids[playerID]
	_, hasOK := r.OK[playerID]
	if hasBid {
		r.Bids = cloneMap(r.Bids)
		delete(r.Bids, playerID)
	}
	if hasOK {
		r.OK = cloneMap(r.OK)
		delete(r.OK, playerID)
	}
	return r
}

func buildRounds(rows []PlanRow, offset int) []Round {
	rounds := make([]Round, len(rows))
	for i, row := range rows {
		rounds[i] = Round{
			ID:    newID(),
			Index: offset + i + 1,
			Suit:  row.Suit,
			Cards: row.Cards,
			Bids:  map[string]int{},
			OK:    map[string]bool{},
		}
	}
	return rounds
}
