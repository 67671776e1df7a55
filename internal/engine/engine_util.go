package engine

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

const DefaultTargetPoints = 100

func NewGame() GameState {
	return GameState{
		ID:        newID(),
		CreatedAt: now(),
		Players:   []Player{},
		Rounds:    []Round{},
		Settings:  Settings{ScoringMode: ScoringTenPlusBid, TargetPoints: DefaultTargetPoints},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Normalize fills in the parts of a decoded snapshot that JSON may leave nil,
// so callers can index rounds and settings without checking.
func Normalize(s GameState) GameState {
	if s.Players == nil {
		s.Players = []Player{}
	}
	if s.Rounds == nil {
		s.Rounds = []Round{}
	}
	s.Rounds = slices.Clone(s.Rounds)
	for i, r := range s.Rounds {
		if r.Bids == nil || r.OK == nil {
			r.Bids = cloneMap(r.Bids)
			r.OK = cloneMap(r.OK)
			s.Rounds[i] = r
		}
	}
	if s.Settings.ScoringMode == "" {
		s.Settings.ScoringMode = ScoringTenPlusBid
	}
	if s.Settings.TargetPoints == 0 {
		s.Settings.TargetPoints = DefaultTargetPoints
	}
	return s
}

// cloneMap never returns nil, so the copy can always be written to.
func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	maps.Copy(out, m)
	return out
}

var newID = func() string {
	return uuid.NewString()
}

var now = func() int64 {
	return time.Now().UnixMilli()
}
