package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"go.uber.org/zap"
)

// Store owns the canonical snapshot of one table and keeps its KV slot in
// step with it. It is not safe for concurrent use; a single table loop owns it.
type Store struct {
	kv    KV
	key   string
	log   *zap.Logger
	state engine.GameState
}

func New(kv KV, key string, log *zap.Logger) *Store {
	return &Store{
		kv:    kv,
		key:   key,
		log:   log.With(zap.String("slot", key)),
		state: engine.NewGame(),
	}
}

func (s *Store) Snapshot() engine.GameState { return s.state }

// Load restores the slot. A missing, unreadable or malformed record starts a
// fresh game instead of failing.
func (s *Store) Load(ctx context.Context) engine.GameState {
	raw, err := s.kv.Get(ctx, s.key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.state = engine.NewGame()
		return s.state
	case err != nil:
		s.log.Warn("load failed, starting fresh", zap.Error(err))
		s.state = engine.NewGame()
		return s.state
	}

	state, err := Decode([]byte(raw))
	if err != nil {
		s.log.Warn("discarding malformed record", zap.Error(err))
		s.state = engine.NewGame()
		return s.state
	}
	s.state = state
	return s.state
}

func (s *Store) Save(ctx context.Context) error {
	data, err := json.Marshal(s.state)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key, string(data))
}

// Clear forgets the slot and installs a fresh game in memory.
func (s *Store) Clear(ctx context.Context) error {
	s.state = engine.NewGame()
	return s.kv.Delete(ctx, s.key)
}

// Apply runs cmd against the current snapshot. Rejected commands and commands
// with no events leave the snapshot and the slot alone. A reset clears the
// slot before the new game is written. Persistence failures are logged and do
// not roll back.
func (s *Store) Apply(ctx context.Context, cmd engine.Command) ([]engine.Event, engine.GameState, error) {
	events, next, err := engine.Apply(s.state, cmd)
	if err != nil {
		return nil, s.state, err
	}
	if len(events) == 0 {
		return nil, s.state, nil
	}
	if cmd.Type == engine.CmdReset {
		if err := s.Clear(ctx); err != nil {
			s.log.Warn("clear failed", zap.String("game_id", s.state.ID), zap.Error(err))
		}
	}
	s.state = next
	s.persist(ctx)
	return events, s.state, nil
}

// Replace installs a snapshot obtained elsewhere (share link, another device).
func (s *Store) Replace(ctx context.Context, state engine.GameState) engine.GameState {
	s.state = engine.Normalize(state)
	s.persist(ctx)
	return s.state
}

func (s *Store) persist(ctx context.Context) {
	if err := s.Save(ctx); err != nil {
		s.log.Warn("save failed", zap.String("game_id", s.state.ID), zap.Error(err))
	}
}

func Decode(data []byte) (engine.GameState, error) {
	var state engine.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return engine.GameState{}, err
	}
	if state.ID == "" {
		return engine.GameState{}, errors.New("record has no game id")
	}
	return engine.Normalize(state), nil
}
