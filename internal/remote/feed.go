package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

// Feed carries change notices for game records.
type Feed interface {
	Announce(ctx context.Context, n Notice) error
	Listen(ctx context.Context, gameID string) (Listener, error)
	Close() error
}

// Listener's channel is closed when the listener stops, whatever the cause.
type Listener interface {
	Notices() <-chan Notice
	Close() error
}

func channelFor(gameID string) string { return "games_" + gameID }

// PGFeed uses postgres LISTEN/NOTIFY, one channel per game.
type PGFeed struct {
	pool *pgxpool.Pool
}

func DialPGFeed(ctx context.Context, dsn string) (*PGFeed, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	return &PGFeed{pool: pool}, nil
}

func (f *PGFeed) Announce(ctx context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if _, err := f.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channelFor(n.GameID), string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", n.GameID, err)
	}
	return nil
}

func (f *PGFeed) Listen(ctx context.Context, gameID string) (Listener, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channelFor(gameID)}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", gameID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &pgListener{
		conn:   conn,
		cancel: cancel,
		out:    make(chan Notice, 16),
		done:   make(chan struct{}),
	}
	go l.loop(ctx)
	return l, nil
}

func (f *PGFeed) Close() error {
	f.pool.Close()
	return nil
}

type pgListener struct {
	conn   *pgxpool.Conn
	cancel context.CancelFunc
	out    chan Notice
	done   chan struct{}
	once   sync.Once
}

func (l *pgListener) loop(ctx context.Context) {
	defer close(l.done)
	defer close(l.out)
	for {
		msg, err := l.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return
		}
		var n Notice
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			continue
		}
		select {
		case l.out <- n:
		case <-ctx.Done():
			return
		}
	}
}

func (l *pgListener) Notices() <-chan Notice { return l.out }

// Close stops waiting and hands the connection back; a connection interrupted
// mid-wait is discarded by the pool.
func (l *pgListener) Close() error {
	l.once.Do(func() {
		l.cancel()
		<-l.done
		l.conn.Release()
	})
	return nil
}

// NATSFeed publishes notices on subject games.<id>.
type NATSFeed struct {
	nc *nats.Conn
}

func DialNATSFeed(url string) (*NATSFeed, error) {
	nc, err := nats.Connect(url, nats.Name("judgement-scorekeeper"))
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NATSFeed{nc: nc}, nil
}

func subjectFor(gameID string) string { return "games." + gameID }

func (f *NATSFeed) Announce(_ context.Context, n Notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := f.nc.Publish(subjectFor(n.GameID), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.GameID, err)
	}
	return nil
}

func (f *NATSFeed) Listen(ctx context.Context, gameID string) (Listener, error) {
	msgs := make(chan *nats.Msg, 16)
	sub, err := f.nc.ChanSubscribe(subjectFor(gameID), msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", gameID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &natsListener{
		sub:    sub,
		cancel: cancel,
		out:    make(chan Notice, 16),
		done:   make(chan struct{}),
	}
	go l.loop(ctx, msgs)
	return l, nil
}

func (f *NATSFeed) Close() error {
	f.nc.Close()
	return nil
}

type natsListener struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
	out    chan Notice
	done   chan struct{}
	once   sync.Once
}

func (l *natsListener) loop(ctx context.Context, msgs <-chan *nats.Msg) {
	defer close(l.done)
	defer close(l.out)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-msgs:
			var n Notice
			if err := json.Unmarshal(m.Data, &n); err != nil {
				continue
			}
			select {
			case l.out <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *natsListener) Notices() <-chan Notice { return l.out }

func (l *natsListener) Close() error {
	var err error
	l.once.Do(func() {
		err = l.sub.Unsubscribe()
		l.cancel()
		<-l.done
	})
	return err
}
