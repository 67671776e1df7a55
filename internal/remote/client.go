package remote

import (
	"context"
	"errors"
	"sync"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"go.uber.org/zap"
)

// Client pairs the games table with a change feed.
type Client struct {
	records *Records
	feed    Feed
	log     *zap.Logger
}

func NewClient(records *Records, feed Feed, log *zap.Logger) *Client {
	return &Client{records: records, feed: feed, log: log}
}

// Upsert writes the record, then announces it. A failed announce is logged
// only: the write itself succeeded and later writes will announce again.
func (c *Client) Upsert(ctx context.Context, state engine.GameState, token string) error {
	if err := c.records.Upsert(ctx, state, token); err != nil {
		return err
	}
	if err := c.feed.Announce(ctx, Notice{GameID: state.ID, Token: token}); err != nil {
		c.log.Warn("announce failed", zap.String("game_id", state.ID), zap.Error(err))
	}
	return nil
}

func (c *Client) Ensure(ctx context.Context, state engine.GameState) error {
	created, err := c.records.Ensure(ctx, state)
	if err != nil {
		return err
	}
	if created {
		c.log.Debug("created remote game", zap.String("game_id", state.ID))
	}
	return nil
}

func (c *Client) FetchByID(ctx context.Context, id string) (engine.GameState, error) {
	state, _, err := c.records.FetchByID(ctx, id)
	return state, err
}

func (c *Client) Subscribe(ctx context.Context, gameID string) (Subscription, error) {
	l, err := c.feed.Listen(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &clientSub{
		listener: l,
		cancel:   cancel,
		out:      make(chan Change, 16),
	}
	go s.loop(ctx, c, gameID)
	return s, nil
}

func (c *Client) Close() error {
	return errors.Join(c.feed.Close(), c.records.Close())
}

type clientSub struct {
	listener Listener
	cancel   context.CancelFunc
	out      chan Change
	once     sync.Once
}

// loop turns notices into full records.
func (s *clientSub) loop(ctx context.Context, c *Client, gameID string) {
	defer close(s.out)
	for n := range s.listener.Notices() {
		state, origin, err := c.records.FetchByID(ctx, gameID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch after notice failed", zap.String("game_id", gameID), zap.Error(err))
			continue
		}
		select {
		case s.out <- fetched(n, state, origin):
		case <-ctx.Done():
			return
		}
	}
}

// fetched tags a fetched row with the token of the write that produced it. A
// row overwritten between the notice and the fetch carries the later writer's
// origin, not the notice's token.
func fetched(n Notice, state engine.GameState, origin string) Change {
	if origin == "" {
		origin = n.Token
	}
	return Change{Token: origin, New: state}
}

func (s *clientSub) Changes() <-chan Change { return s.out }

func (s *clientSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.listener.Close()
	})
	return err
}
