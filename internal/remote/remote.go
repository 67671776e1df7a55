// Package remote is the hosted copy of each game: one record per game id plus
// a change feed scoped to that id.
package remote

import (
	"errors"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
)

var ErrNotFound = errors.New("game not found")

// Change is one insert or update of a game record as seen by a subscriber.
// Token is whatever the writer passed to Upsert, empty for untagged writes.
type Change struct {
	Token string
	New   engine.GameState
}

type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Notice is what travels on a change feed. Subscribers fetch the record itself.
type Notice struct {
	GameID string `json:"id"`
	Token  string `json:"token,omitempty"`
}
