package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyLocker struct{ calls int }

func (d *denyLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	d.calls++
	return nil, false, nil
}

func TestRunCycle_RunsAdvancer(t *testing.T) {
	q := newStubQuerier()
	enrol(q, "a@example.com", 1, 7*time.Hour, nil)
	s := &stubSender{}

	r := NewRunner(newTestAdvancer(q, s), nil, RunnerConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestRunCycle_BusyWhenLockHeld(t *testing.T) {
	q := newStubQuerier()
	enrol(q, "a@example.com", 1, 7*time.Hour, nil)
	s := &stubSender{}
	l := &denyLocker{}

	r := NewRunner(newTestAdvancer(q, s), l, RunnerConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := r.RunCycle(context.Background())

	assert.ErrorIs(t, err, ErrCycleBusy)
	assert.Equal(t, 1, l.calls)
	assert.Empty(t, s.sent)
}

func TestStart_StopsOnCancel(t *testing.T) {
	q := newStubQuerier()
	r := NewRunner(newTestAdvancer(q, &stubSender{}), nil, RunnerConfig{PollInterval: time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
