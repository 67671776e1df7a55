package remote

import (
	"context"
	"sync"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
)

// Memory is an in-process remote: every table in the process shares it, so
// devices connected to the same server stay in sync without a database.
type Memory struct {
	mu     sync.Mutex
	games  map[string]engine.GameState
	subs   map[string]map[*memorySub]struct{}
	writes int
}

func NewMemory() *Memory {
	return &Memory{
		games: make(map[string]engine.GameState),
		subs:  make(map[string]map[*memorySub]struct{}),
	}
}

func (m *Memory) Upsert(_ context.Context, state engine.GameState, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[state.ID] = state
	m.writes++
	m.notifyLocked(Change{Token: token, New: state})
	return nil
}

func (m *Memory) Ensure(_ context.Context, state engine.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[state.ID]; ok {
		return nil
	}
	m.games[state.ID] = state
	m.writes++
	m.notifyLocked(Change{New: state})
	return nil
}

func (m *Memory) FetchByID(_ context.Context, id string) (engine.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.games[id]
	if !ok {
		return engine.GameState{}, ErrNotFound
	}
	return state, nil
}

// Writes counts successful Upsert and Ensure inserts.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Subscribe(ctx context.Context, gameID string) (Subscription, error) {
	s := &memorySub{
		mem:    m,
		gameID: gameID,
		out:    make(chan Change, 64),
		closed: make(chan struct{}),
	}
	m.mu.Lock()
	if m.subs[gameID] == nil {
		m.subs[gameID] = make(map[*memorySub]struct{})
	}
	m.subs[gameID][s] = struct{}{}
	m.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = s.Close()
			case <-s.closed:
			}
		}()
	}
	return s, nil
}

// notifyLocked drops changes for subscribers whose buffer is full, as the
// slowest client must not hold up every writer.
func (m *Memory) notifyLocked(ch Change) {
	for s := range m.subs[ch.New.ID] {
		select {
		case s.out <- ch:
		default:
		}
	}
}

type memorySub struct {
	mem    *Memory
	gameID string
	out    chan Change
	closed chan struct{}
	once   sync.Once
}

func (s *memorySub) Changes() <-chan Change { return s.out }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.mem.mu.Lock()
		delete(s.mem.subs[s.gameID], s)
		if len(s.mem.subs[s.gameID]) == 0 {
			delete(s.mem.subs, s.gameID)
		}
		close(s.out)
		s.mem.mu.Unlock()
		close(s.closed)
	})
	return nil
}
