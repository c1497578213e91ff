package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mediabot/internal/eventbus"
	logx "mediabot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	runs atomic.Int32
	err  error
}

func (c *countingStore) Maintain(context.Context) error {
	c.runs.Add(1)
	return c.err
}

func TestRunNowRecordsSnapshot(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "maintenance.")
	defer unsub()

	st := &countingStore{err: errors.New("locked")}
	s := New(st, logx.Nop(), bus)

	require.EqualError(t, s.RunNow(t.Context()), "locked")
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Runs)
	assert.Equal(t, "locked", snap.LastErr)
	assert.False(t, snap.LastRun.IsZero())

	select {
	case ev := <-events:
		assert.Equal(t, "maintenance.run", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()

	st := &countingStore{}
	s := New(st, logx.Nop(), nil)

	require.Error(t, s.Start(t.Context(), "not a cron"))
	require.NoError(t, s.Start(t.Context(), "@daily"))
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	assert.Equal(t, "@daily", snap.Schedule)
	assert.True(t, snap.Next.After(time.Now()))

	require.Error(t, s.Apply("61 * * * *"))
	assert.Equal(t, "@daily", s.Snapshot().Schedule)

	require.NoError(t, s.Apply(""))
	snap = s.Snapshot()
	assert.Empty(t, snap.Schedule)
	assert.True(t, snap.Next.IsZero())
}

func TestNilTargetIsIdle(t *testing.T) {
	t.Parallel()

	s := New(nil, logx.Nop(), nil)
	require.NoError(t, s.Start(t.Context(), "@hourly"))
	defer s.Stop(context.Background())

	assert.True(t, s.Snapshot().Next.IsZero())
	require.NoError(t, s.RunNow(t.Context()))
	assert.Zero(t, s.Snapshot().Runs)
}
