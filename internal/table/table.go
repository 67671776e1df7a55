package table

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/livesync"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/remote"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/store"
	"go.uber.org/zap"
)

var ErrCloudDisabled = errors.New("cloud sync is not configured")

const remoteTimeout = 5 * time.Second

type Msg interface{ isTableMsg() }

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isTableMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Outgoing // where this client wants to receive updates
}

func (Join) isTableMsg() {}

type Leave struct{ ClientID string }

func (Leave) isTableMsg() {}

type Shutdown struct{}

func (Shutdown) isTableMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isTableMsg() {}

// SetLive switches live sync on or off for the whole table.
type SetLive struct {
	ClientID string
	On       bool
}

func (SetLive) isTableMsg() {}

// SaveCloud overwrites the remote record with the current game.
type SaveCloud struct{ ClientID string }

func (SaveCloud) isTableMsg() {}

// LoadCloud replaces the current game with a remote record. Reply, if set,
// must be buffered.
type LoadCloud struct {
	ClientID string
	GameID   string
	Reply    chan error
}

func (LoadCloud) isTableMsg() {}

type publishFailed struct{ err error }

func (publishFailed) isTableMsg() {}

type Snapshot struct {
	Version int
	Live    bool
	State   engine.GameState
}

// Outgoing carries exactly one of a snapshot, a notice or an error.
type Outgoing struct {
	Snapshot *Snapshot
	Notice   string
	Err      string
}

type View struct {
	Version    int
	NumClients int
	Live       bool
	State      engine.GameState
}

type Config struct {
	KV         store.KV
	KeyVersion string
	Remote     livesync.Remote // nil disables every cloud operation
	Debounce   time.Duration
	TokenTTL   time.Duration
	Log        *zap.Logger
}

type Table struct {
	code    string
	inbox   chan Msg
	store   *store.Store
	sync    *livesync.Reconciler
	version int
	clients map[string]chan Outgoing
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(parent context.Context, code string, cfg Config) (*Table, error) {
	ctx, cancel := context.WithCancel(parent)
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("table", code))

	t := &Table{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		store:   store.New(cfg.KV, store.SlotKey(cfg.KeyVersion, code), log),
		clients: make(map[string]chan Outgoing),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.Remote != nil {
		r, err := livesync.New(cfg.Remote,
			livesync.WithDelay(cfg.Debounce),
			livesync.WithTokenTTL(cfg.TokenTTL),
			livesync.WithLogger(log),
			livesync.WithContext(ctx),
			livesync.WithErrorHandler(t.reportPublishError),
		)
		if err != nil {
			cancel()
			return nil, err
		}
		t.sync = r
	}

	t.store.Load(ctx)
	go t.loop()
	return t, nil
}

// Expose the inbox so tests or WS layer can send messages.
func (t *Table) Inbox() chan<- Msg { return t.inbox }

func (t *Table) Code() string { return t.code }

// Done is closed once the table has shut down.
func (t *Table) Done() <-chan struct{} { return t.ctx.Done() }

// Send queues m unless the table has shut down or ctx ends first. It reports
// whether m was queued.
func (t *Table) Send(ctx context.Context, m Msg) bool {
	select {
	case <-t.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case t.inbox <- m:
		return true
	case <-t.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// CloudEnabled reports whether a remote is configured.
func (t *Table) CloudEnabled() bool { return t.sync != nil }

func (t *Table) loop() {
	for {
		select {
		case <-t.ctx.Done():
			t.shutdown()
			return

		case ch, ok := <-t.changes():
			if !ok {
				t.sync.GoIdle()
				t.notifyAll("Live sync stopped: the change feed closed.")
				t.broadcastSnapshot()
				break
			}
			t.inbound(ch)

		case m := <-t.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				t.clients[msg.ClientID] = msg.Outbox
				snap := t.snapshot()
				msg.Outbox <- Outgoing{Snapshot: &snap}

			case Leave:
				delete(t.clients, msg.ClientID)

			case FromClient:
				prev := t.store.Snapshot()
				events, _, err := t.store.Apply(t.ctx, msg.Cmd)
				if err != nil {
					t.sendTo(msg.ClientID, Outgoing{Err: err.Error()})
					break
				}
				if len(events) == 0 {
					break // nothing changed
				}
				t.changed(prev)

			case SetLive:
				t.setLive(msg)

			case SaveCloud:
				t.saveCloud(msg.ClientID)

			case LoadCloud:
				err := t.loadCloud(msg.GameID)
				if err != nil {
					t.sendTo(msg.ClientID, Outgoing{Notice: "Load failed: " + err.Error()})
				}
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case publishFailed:
				t.notifyAll("Live publish failed: " + msg.err.Error())

			case GetState:
				msg.Reply <- View{
					Version:    t.version,
					NumClients: len(t.clients),
					Live:       t.live(),
					State:      t.store.Snapshot(),
				}

			case Shutdown:
				t.shutdown()
				return
			}
		}
	}
}

func (t *Table) changes() <-chan remote.Change {
	if t.sync == nil {
		return nil
	}
	return t.sync.Changes()
}

func (t *Table) live() bool {
	return t.sync != nil && t.sync.Mode() == livesync.Live
}

func (t *Table) snapshot() Snapshot {
	return Snapshot{Version: t.version, Live: t.live(), State: t.store.Snapshot()}
}

// changed publishes a locally made change. A new game id means a reset or a
// load, so live sync moves over to the new record.
func (t *Table) changed(prev engine.GameState) {
	t.broadcastSnapshot()
	if !t.live() {
		return
	}
	next := t.store.Snapshot()
	if next.ID != prev.ID {
		t.follow(next)
		return
	}
	t.sync.LocalChanged(next)
}

func (t *Table) follow(state engine.GameState) {
	t.sync.GoIdle()
	ctx, cancel := context.WithTimeout(t.ctx, remoteTimeout)
	defer cancel()
	if err := t.sync.GoLive(ctx, state); err != nil {
		t.log.Warn("follow new game failed", zap.String("game_id", state.ID), zap.Error(err))
		t.notifyAll("Live sync stopped: " + err.Error())
		t.broadcastSnapshot()
	}
}

func (t *Table) inbound(ch remote.Change) {
	local := t.store.Snapshot()
	next, ok := t.sync.Reconcile(local, ch)
	if !ok {
		return
	}
	t.store.Replace(t.ctx, next)
	t.log.Debug("accepted remote change", zap.String("game_id", next.ID))
	t.broadcastSnapshot()
	if next.ID != local.ID {
		t.follow(next)
	}
}

func (t *Table) setLive(msg SetLive) {
	if t.sync == nil {
		t.sendTo(msg.ClientID, Outgoing{Notice: ErrCloudDisabled.Error()})
		return
	}
	if msg.On == t.live() {
		return
	}
	if !msg.On {
		t.sync.GoIdle()
		t.broadcastSnapshot()
		return
	}
	ctx, cancel := context.WithTimeout(t.ctx, remoteTimeout)
	defer cancel()
	if err := t.sync.GoLive(ctx, t.store.Snapshot()); err != nil {
		t.sendTo(msg.ClientID, Outgoing{Notice: "Going live failed: " + err.Error()})
		return
	}
	t.broadcastSnapshot()
}

func (t *Table) saveCloud(clientID string) {
	if t.sync == nil {
		t.sendTo(clientID, Outgoing{Notice: ErrCloudDisabled.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(t.ctx, remoteTimeout)
	defer cancel()
	state := t.store.Snapshot()
	if err := t.sync.Save(ctx, state); err != nil {
		t.sendTo(clientID, Outgoing{Notice: "Save failed: " + err.Error()})
		return
	}
	t.sendTo(clientID, Outgoing{Notice: fmt.Sprintf("Saved to cloud (id: %s).", state.ID)})
}

func (t *Table) loadCloud(gameID string) error {
	if t.sync == nil {
		return ErrCloudDisabled
	}
	ctx, cancel := context.WithTimeout(t.ctx, remoteTimeout)
	defer cancel()
	state, err := t.sync.Fetch(ctx, gameID)
	if err != nil {
		return fmt.Errorf("game %s: %w", gameID, err)
	}
	prev := t.store.Snapshot()
	t.store.Replace(t.ctx, state)
	t.changed(prev)
	return nil
}

// reportPublishError runs on the reconciler's timer goroutine.
func (t *Table) reportPublishError(err error) {
	select {
	case t.inbox <- publishFailed{err: err}:
	case <-t.ctx.Done():
	}
}

func (t *Table) shutdown() {
	if t.sync != nil {
		t.sync.Close()
	}
	for id, ch := range t.clients {
		close(ch) // Tell client no more updates
		delete(t.clients, id)
	}
	t.cancel()
}

func (t *Table) sendTo(clientID string, out Outgoing) {
	ch, ok := t.clients[clientID]
	if !ok {
		return
	}
	select {
	case ch <- out:
	default:
		close(ch)
		delete(t.clients, clientID)
	}
}

func (t *Table) notifyAll(text string) {
	t.broadcast(Outgoing{Notice: text})
}

func (t *Table) broadcastSnapshot() {
	t.version++
	snap := t.snapshot()
	t.broadcast(Outgoing{Snapshot: &snap})
}

func (t *Table) broadcast(out Outgoing) {
	for id, ch := range t.clients {
		select {
		case ch <- out:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(t.clients, id)
		}
	}
}
