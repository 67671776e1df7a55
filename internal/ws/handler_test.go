package ws

import (
	"testing"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/table"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToTableMsg(t *testing.T) {
	three := 3
	tests := []struct {
		in   types.ClientMessage
		want table.Msg
	}{
		{types.ClientMessage{Type: "addPlayer", Name: "Ana"},
			table.FromClient{ClientID: "c", Cmd: engine.Command{Type: engine.CmdAddPlayer, Name: "Ana"}}},
		{types.ClientMessage{Type: "buildPlan", Descending: true},
			table.FromClient{ClientID: "c", Cmd: engine.Command{Type: engine.CmdBuildPlan, Descending: true}}},
		{types.ClientMessage{Type: "setBid", RoundID: "r", PlayerID: "p", Bid: &three},
			table.FromClient{ClientID: "c", Cmd: engine.Command{Type: engine.CmdSetBid, RoundID: "r", PlayerID: "p", Bid: &three}}},
		{types.ClientMessage{Type: "unlock", RoundID: "r"},
			table.FromClient{ClientID: "c", Cmd: engine.Command{Type: engine.CmdSetLocked, RoundID: "r"}}},
		{types.ClientMessage{Type: "lock", RoundID: "r"},
			table.FromClient{ClientID: "c", Cmd: engine.Command{Type: engine.CmdSetLocked, RoundID: "r", Locked: true}}},
		{types.ClientMessage{Type: "live", On: true}, table.SetLive{ClientID: "c", On: true}},
		{types.ClientMessage{Type: "saveCloud"}, table.SaveCloud{ClientID: "c"}},
		{types.ClientMessage{Type: "loadCloud", GameID: "g"}, table.LoadCloud{ClientID: "c", GameID: "g"}},
	}
	for _, tc := range tests {
		t.Run(tc.in.Type, func(t *testing.T) {
			got, ok := toTableMsg("c", tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []types.ClientMessage{{Type: "LockPick"}, {Type: "loadCloud"}} {
		_, ok := toTableMsg("c", bad)
		assert.False(t, ok, bad.Type)
	}
}

func TestToServerMessage(t *testing.T) {
	state := engine.NewGame()
	state.Players = []engine.Player{{ID: "a", Name: "Ana"}, {ID: "b", Name: "Ben"}}
	state.Rounds = []engine.Round{{ID: "r1", Index: 1, Cards: 3, Bids: map[string]int{"a": 1}, OK: map[string]bool{}}}

	msg := toServerMessage(table.Outgoing{Snapshot: &table.Snapshot{Version: 4, State: state}})
	assert.Equal(t, "StateSnapshot", msg.Type)
	assert.Equal(t, 4, msg.Version)
	assert.Equal(t, map[string]types.Forbidden{"r1": {PlayerID: "b", Bid: 2}}, msg.Forbidden)
	assert.Equal(t, map[string]int{"a": 0, "b": 0}, msg.Totals)
	assert.NotEmpty(t, msg.Highlights)

	assert.Equal(t, types.NewError("illegal bid"), toServerMessage(table.Outgoing{Err: "illegal bid"}))
	assert.Equal(t, types.NewNotice("saved"), toServerMessage(table.Outgoing{Notice: "saved"}))
}
