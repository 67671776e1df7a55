package types

import "github.com/DoyleJ11/judgement-scorekeeper/internal/engine"

// ClientMessage.Type is one of addPlayer, removePlayer, buildPlan,
// appendAscending, appendDescending, setBid, setOutcome, lock, unlock, reset,
// live, saveCloud, loadCloud.
type ClientMessage struct {
	Type       string `json:"type"`
	Name       string `json:"name,omitempty"`
	PlayerID   string `json:"player_id,omitempty"`
	RoundID    string `json:"round_id,omitempty"`
	Bid        *int   `json:"bid,omitempty"` // null clears the bid
	OK         bool   `json:"ok,omitempty"`
	Descending bool   `json:"descending,omitempty"`
	On         bool   `json:"on,omitempty"`
	GameID     string `json:"game_id,omitempty"`
}

// Forbidden is the bid the last player still to bid may not make.
type Forbidden struct {
	PlayerID string `json:"player_id"`
	Bid      int    `json:"bid"`
}

type ServerMessage struct {
	Type       string               `json:"type"` // "StateSnapshot" | "Notice" | "Error"
	Version    int                  `json:"version,omitempty"`
	Live       bool                 `json:"live,omitempty"`
	State      *engine.GameState    `json:"state,omitempty"`
	Totals     map[string]int       `json:"totals,omitempty"`
	Standings  []engine.Standing    `json:"standings,omitempty"`
	Highlights []string             `json:"highlights,omitempty"`
	Forbidden  map[string]Forbidden `json:"forbidden,omitempty"` // keyed by round id
	Message    string               `json:"message,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// NewSnapshot derives the scoreboard view of state.
func NewSnapshot(version int, live bool, state engine.GameState) ServerMessage {
	forbidden := make(map[string]Forbidden)
	for _, r := range state.Rounds {
		if r.Locked {
			continue
		}
		v, ok := engine.ForbiddenBid(r, state.Players)
		if !ok {
			continue
		}
		if p, ok := engine.LastBidder(r, state.Players); ok {
			forbidden[r.ID] = Forbidden{PlayerID: p.ID, Bid: v}
		}
	}
	return ServerMessage{
		Type:       "StateSnapshot",
		Version:    version,
		Live:       live,
		State:      &state,
		Totals:     engine.Totals(state),
		Standings:  engine.Standings(state),
		Highlights: engine.Highlights(state),
		Forbidden:  forbidden,
	}
}

func NewNotice(text string) ServerMessage {
	return ServerMessage{Type: "Notice", Message: text}
}

func NewError(text string) ServerMessage {
	return ServerMessage{Type: "Error", Error: text}
}
