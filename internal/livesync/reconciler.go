// Package livesync keeps a local game and its remote record converging while a
// table is live.
package livesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/remote"
	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultDelay    = 350 * time.Millisecond
	DefaultTokenTTL = 30 * time.Second

	// maxTokens bounds the publishes remembered within one TTL. Each token
	// costs 1.
	maxTokens = 1 << 12
)

type Mode int

const (
	Idle Mode = iota
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "live"
	}
	return "idle"
}

// Remote is the record store a Reconciler publishes to and listens on.
type Remote interface {
	Ensure(ctx context.Context, state engine.GameState) error
	Upsert(ctx context.Context, state engine.GameState, token string) error
	FetchByID(ctx context.Context, id string) (engine.GameState, error)
	Subscribe(ctx context.Context, gameID string) (remote.Subscription, error)
}

type Option func(*Reconciler)

func WithDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.delay = d
		}
	}
}

func WithTokenTTL(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithErrorHandler receives publish failures. It runs on the timer goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Reconciler) { r.onError = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// WithContext bounds the lifetime of subscriptions and publishes.
func WithContext(ctx context.Context) Option {
	return func(r *Reconciler) { r.base = ctx }
}

// Reconciler is safe for concurrent use; publishes run on their own timer
// goroutine while Reconcile is called from the owner's loop.
type Reconciler struct {
	remote   Remote
	log      *zap.Logger
	delay    time.Duration
	ttl      time.Duration
	onError  func(error)
	tokens   *ristretto.Cache
	newToken func() string
	base     context.Context

	mu      sync.Mutex
	mode    Mode
	gameID  string
	sub     remote.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	pending engine.GameState
	epoch   uint64
}

func New(rem Remote, opts ...Option) (*Reconciler, error) {
	r := &Reconciler{
		remote:   rem,
		log:      zap.NewNop(),
		delay:    DefaultDelay,
		ttl:      DefaultTokenTTL,
		onError:  func(error) {},
		newToken: uuid.NewString,
		base:     context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxTokens * 10,
		MaxCost:            maxTokens,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	r.tokens = cache
	return r, nil
}

func (r *Reconciler) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// GameID is the id of the record being followed, empty while Idle.
func (r *Reconciler) GameID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gameID
}

// GoLive makes sure the remote record exists without overwriting it, then
// follows its changes. ctx bounds the insert only.
func (r *Reconciler) GoLive(ctx context.Context, state engine.GameState) error {
	if r.Mode() == Live {
		return nil
	}
	if err := r.remote.Ensure(ctx, state); err != nil {
		return fmt.Errorf("ensure %s: %w", state.ID, err)
	}
	subCtx, cancel := context.WithCancel(r.base)
	sub, err := r.remote.Subscribe(subCtx, state.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", state.ID, err)
	}

	r.mu.Lock()
	r.mode = Live
	r.gameID = state.ID
	r.sub = sub
	r.ctx = subCtx
	r.cancel = cancel
	r.mu.Unlock()

	r.log.Info("live", zap.String("game_id", state.ID))
	return nil
}

// GoIdle stops following and drops any publish still waiting on the timer.
func (r *Reconciler) GoIdle() {
	r.mu.Lock()
	if r.mode == Idle {
		r.mu.Unlock()
		return
	}
	r.mode = Idle
	r.epoch++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	sub, cancel, id := r.sub, r.cancel, r.gameID
	r.sub, r.cancel, r.ctx, r.gameID = nil, nil, nil, ""
	r.mu.Unlock()

	cancel()
	if err := sub.Close(); err != nil {
		r.log.Warn("close subscription", zap.String("game_id", id), zap.Error(err))
	}
	r.log.Info("idle", zap.String("game_id", id))
}

// Changes is nil while Idle; a nil channel never fires in a select.
func (r *Reconciler) Changes() <-chan remote.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return nil
	}
	return r.sub.Changes()
}

// LocalChanged schedules state for publishing. Calls inside the delay window
// collapse into one publish of the latest state.
func (r *Reconciler) LocalChanged(state engine.GameState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != Live {
		return
	}
	r.pending = state
	r.epoch++
	ep := r.epoch
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() { r.publish(ep) })
}

func (r *Reconciler) publish(ep uint64) {
	r.mu.Lock()
	if r.mode != Live || ep != r.epoch {
		r.mu.Unlock()
		return
	}
	state, ctx := r.pending, r.ctx
	r.timer = nil
	token := r.remember()
	r.mu.Unlock()

	if err := r.remote.Upsert(ctx, state, token); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("publish failed", zap.String("game_id", state.ID), zap.Error(err))
		r.onError(fmt.Errorf("publish %s: %w", state.ID, err))
		return
	}
	r.log.Debug("published", zap.String("game_id", state.ID), zap.String("token", token))
}

// Reconcile decides whether an inbound change replaces local. Echoes of this
// reconciler's own publishes are dropped. Otherwise the change wins when it
// is not older than local by createdAt, which only orders resets: two edits
// of the same game always tie and the later arrival wins. Accepting a change
// cancels any local publish still waiting on the timer.
func (r *Reconciler) Reconcile(local engine.GameState, ch remote.Change) (engine.GameState, bool) {
	if ch.Token != "" {
		if _, own := r.tokens.Get(ch.Token); own {
			return local, false
		}
	}
	if ch.New.ID == "" || ch.New.CreatedAt < local.CreatedAt {
		return local, false
	}
	r.dropPending()
	return engine.Normalize(ch.New), true
}

// dropPending forgets a publish that an accepted change has overtaken.
func (r *Reconciler) dropPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Fetch reads the remote record once, regardless of mode.
func (r *Reconciler) Fetch(ctx context.Context, id string) (engine.GameState, error) {
	state, err := r.remote.FetchByID(ctx, id)
	if err != nil {
		return engine.GameState{}, err
	}
	return engine.Normalize(state), nil
}

// Save overwrites the remote record immediately, outside the debounce.
func (r *Reconciler) Save(ctx context.Context, state engine.GameState) error {
	return r.remote.Upsert(ctx, state, r.remember())
}

// remember issues a publish token and waits until Reconcile can see it.
func (r *Reconciler) remember() string {
	token := r.newToken()
	if !r.tokens.SetWithTTL(token, struct{}{}, 1, r.ttl) {
		r.log.Warn("publish token dropped, its echo will look foreign", zap.String("token", token))
	}
	r.tokens.Wait()
	return token
}

func (r *Reconciler) Close() {
	r.GoIdle()
	r.tokens.Close()
}
