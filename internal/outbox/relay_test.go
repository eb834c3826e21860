package outbox

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stageflow/internal/db"
	"stageflow/internal/migrate"
)

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, routingKey+" "+string(payload))
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newStore(t *testing.T) Store {
	t.Helper()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(conn, dialect))
	return Store{DB: conn, Dialect: dialect}
}

func enqueue(t *testing.T, s Store, key string, payload any) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, tx, key, payload))
	require.NoError(t, tx.Commit())
}

func TestEnqueueRequiresTransaction(t *testing.T) {
	s := newStore(t)
	var tx *sql.Tx
	err := s.Enqueue(context.Background(), tx, "k", map[string]string{})
	require.Error(t, err)
}

func TestEnqueueRolledBackIsNeverRelayed(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	tx, err := s.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Enqueue(ctx, tx, "project.stage.transitioned", map[string]string{"a": "b"}))
	require.NoError(t, tx.Rollback())

	msgs, err := s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessOncePublishesInOrder(t *testing.T) {
	s := newStore(t)
	enqueue(t, s, "project.stage.transitioned", map[string]int{"n": 1})
	enqueue(t, s, "project.stage.transitioned", map[string]int{"n": 2})

	pub := &fakePublisher{}
	relay := NewRelay(s, pub, DefaultRelayConfig(), nil)
	require.NoError(t, relay.ProcessOnce(context.Background()))

	assert.Equal(t, []string{
		`project.stage.transitioned {"n":1}`,
		`project.stage.transitioned {"n":2}`,
	}, pub.sent)
	assert.Equal(t, uint64(2), relay.Stats().Published)

	pending, dead, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Zero(t, dead)

	require.NoError(t, relay.ProcessOnce(context.Background()))
	assert.Len(t, pub.sent, 2)
}

func TestProcessOnceBacksOffThenDeadLetters(t *testing.T) {
	s := newStore(t)
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return current }
	enqueue(t, s, "k", map[string]string{"x": "y"})

	pub := &fakePublisher{err: errors.New("broker down")}
	cfg := DefaultRelayConfig()
	cfg.MaxRetries = 2
	cfg.BreakerThreshold = 100
	relay := NewRelay(s, pub, cfg, nil)
	relay.now = func() time.Time { return current }
	ctx := context.Background()

	require.NoError(t, relay.ProcessOnce(ctx))
	msgs, err := s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "message waits for its retry time")

	current = current.Add(2 * time.Second)
	msgs, err = s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].LastError)
	assert.Equal(t, "broker down", *msgs[0].LastError)

	require.NoError(t, relay.ProcessOnce(ctx))
	pending, dead, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, 1, dead)
	assert.Equal(t, uint64(1), relay.Stats().Dead)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	s := newStore(t)
	for i := 0; i < 4; i++ {
		enqueue(t, s, "k", map[string]int{"i": i})
	}
	pub := &fakePublisher{err: errors.New("unreachable")}
	cfg := DefaultRelayConfig()
	cfg.BreakerThreshold = 2
	relay := NewRelay(s, pub, cfg, nil)

	require.NoError(t, relay.ProcessOnce(context.Background()))
	assert.Equal(t, uint64(2), relay.Stats().Failed)

	var untouched int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM outbox_messages WHERE retry_count=0`).Scan(&untouched))
	assert.Equal(t, 2, untouched)
}

func TestBackoffIsCapped(t *testing.T) {
	relay := NewRelay(nil, nil, RelayConfig{BackoffBase: time.Second, BackoffMax: 5 * time.Second}, nil)
	assert.Equal(t, time.Second, relay.backoff(1))
	assert.Equal(t, 2*time.Second, relay.backoff(2))
	assert.Equal(t, 4*time.Second, relay.backoff(3))
	assert.Equal(t, 5*time.Second, relay.backoff(4))
	assert.Equal(t, 5*time.Second, relay.backoff(30))
}

func TestDeleteOldKeepsRecentAndPending(t *testing.T) {
	s := newStore(t)
	current := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return current }
	enqueue(t, s, "old", 1)
	enqueue(t, s, "pending", 2)
	ctx := context.Background()
	msgs, err := s.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, s.MarkPublished(ctx, msgs[0].ID))

	current = current.AddDate(0, 0, 10)
	n, err := s.DeleteOld(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, _, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCanRetryCountsTheFailedAttempt(t *testing.T) {
	msg := &Message{RetryCount: 0}
	assert.True(t, msg.CanRetry(2))
	msg.RetryCount = 1
	assert.False(t, msg.CanRetry(2))
	assert.False(t, (&Message{}).CanRetry(1))
}
