package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/logging"
	"github.com/dmitrijs2005/cryptchat/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
}

func (f *fakePurger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() error { c.closed = true; return nil }

func stubStore(t *testing.T, p Purger, c io.Closer, err error) *string {
	t.Helper()
	orig := openStore
	t.Cleanup(func() { openStore = orig })
	var dsn string
	openStore = func(_ context.Context, d string) (io.Closer, Purger, error) {
		dsn = d
		if err != nil {
			return nil, nil, err
		}
		return c, p, nil
	}
	return &dsn
}

func TestNewApp_OpenError(t *testing.T) {
	stubStore(t, nil, nil, errors.New("refused"))

	_, err := NewApp(context.Background(), &config.Config{DatabaseDSN: "postgres://x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestRun_PurgesUntilCanceled(t *testing.T) {
	p := &fakePurger{n: 3}
	c := &fakeCloser{}
	dsn := stubStore(t, p, c, nil)

	var logs bytes.Buffer
	cfg := &config.Config{DatabaseDSN: "postgres://db", PurgeInterval: 5 * time.Millisecond}
	app, err := NewApp(context.Background(), cfg, logging.NewTextLogger(&logs, "info"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://db", *dsn)

	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	app.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return p.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.True(t, c.closed)
	p.mu.Lock()
	assert.Equal(t, fixed.UTC(), p.calls[0])
	p.mu.Unlock()
	assert.Contains(t, logs.String(), "purged messages")
}

func TestPurgeOnce_LogsErrors(t *testing.T) {
	var logs bytes.Buffer
	app := &App{
		config: &config.Config{},
		logger: logging.NewTextLogger(&logs, "debug"),
		store:  &fakePurger{err: errors.New("deadlock")},
		now:    time.Now,
	}

	app.purgeOnce(context.Background())

	assert.Contains(t, logs.String(), "purge failed")
	assert.Contains(t, logs.String(), "deadlock")
}

func TestPurgeOnce_QuietWhenNothingPurged(t *testing.T) {
	var logs bytes.Buffer
	app := &App{
		config: &config.Config{},
		logger: logging.NewTextLogger(&logs, "info"),
		store:  &fakePurger{},
		now:    time.Now,
	}

	app.purgeOnce(context.Background())

	assert.Empty(t, logs.String())
}
