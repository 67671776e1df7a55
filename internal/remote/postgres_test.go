package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/engine"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a real database only when JUDGEMENT_TEST_DSN is set.
func postgresClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("JUDGEMENT_TEST_DSN")
	if dsn == "" {
		t.Skip("JUDGEMENT_TEST_DSN not set")
	}
	records, err := OpenRecords(dsn)
	require.NoError(t, err)
	feed, err := DialPGFeed(context.Background(), dsn)
	require.NoError(t, err)
	c := NewClient(records, feed, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPostgresRoundTrip(t *testing.T) {
	c := postgresClient(t)
	ctx := context.Background()

	state := engine.NewGame()
	state.Players = []engine.Player{{ID: "p1", Name: "Ana"}}
	require.NoError(t, c.Ensure(ctx, state))

	changed := state
	changed.Players = append([]engine.Player{}, state.Players...)
	changed.Players = append(changed.Players, engine.Player{ID: "p2", Name: "Ben"})
	require.NoError(t, c.Ensure(ctx, changed))

	got, err := c.FetchByID(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 1, "Ensure must not overwrite")

	require.NoError(t, c.Upsert(ctx, changed, "tok"))
	got, err = c.FetchByID(ctx, state.ID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)

	_, err = c.FetchByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresSubscribeSeesUpsert(t *testing.T) {
	c := postgresClient(t)
	ctx := context.Background()

	state := engine.NewGame()
	require.NoError(t, c.Ensure(ctx, state))

	sub, err := c.Subscribe(ctx, state.ID)
	require.NoError(t, err)
	defer sub.Close()

	state.Players = []engine.Player{{ID: "p1", Name: "Ana"}}
	require.NoError(t, c.Upsert(ctx, state, "tok-1"))

	ch := recvChange(t, sub.Changes(), 5*time.Second)
	assert.Equal(t, "tok-1", ch.Token)
	assert.Len(t, ch.New.Players, 1)
}
