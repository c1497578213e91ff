package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediabot/internal/eventbus"
	"mediabot/internal/notification"
	kit "mediabot/internal/transport"
	logx "mediabot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []kit.ChatTarget
	err   error
	block bool
}

func (f *fakeSender) SendNotification(ctx context.Context, to kit.ChatTarget, n notification.Notification) (kit.MessageRef, error) {
	if f.block {
		<-ctx.Done()
		return kit.MessageRef{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to)
	return kit.MessageRef{ChatID: to.ChatID}, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDeliverRecordsHistoryAndEvents(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8, "notifier.")
	defer unsub()

	snd := &fakeSender{}
	s := New(Config{}, snd, logx.Nop(), bus)
	n := notification.Notification{Title: "Dune (2021)", Keyword: "dune"}

	require.NoError(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: 7}, n))
	assert.Equal(t, 1, snd.count())
	assert.Equal(t, Stats{Sent: 1}, s.Stats())

	hist := s.Snapshot()
	require.Len(t, hist, 1)
	assert.Equal(t, int64(7), hist[0].ChatID)
	assert.Equal(t, "dune", hist[0].Keyword)
	assert.Empty(t, hist[0].Err)

	select {
	case ev := <-events:
		assert.Equal(t, "notifier.sent", ev.Type)
		de := ev.Data.(DeliveryEvent)
		assert.Equal(t, "Dune (2021)", de.Title)
	case <-time.After(time.Second):
		t.Fatal("no bus event")
	}
}

func TestDeliverFailure(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{err: errors.New("chat not found")}
	s := New(Config{}, snd, logx.Nop(), nil)

	err := s.Deliver(t.Context(), kit.ChatTarget{ChatID: 1}, notification.Notification{Title: "x"})
	require.EqualError(t, err, "chat not found")
	assert.Equal(t, uint64(1), s.Stats().Failed)
	assert.Equal(t, "chat not found", s.Snapshot()[0].Err)
}

func TestDeliverWithoutSender(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	require.ErrorIs(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: 1}, notification.Notification{}), ErrNoSender)
}

func TestDeliverSendTimeout(t *testing.T) {
	t.Parallel()
	s := New(Config{SendTimeout: 20 * time.Millisecond}, &fakeSender{block: true}, logx.Nop(), nil)

	err := s.Deliver(t.Context(), kit.ChatTarget{ChatID: 1}, notification.Notification{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDedupWindow(t *testing.T) {
	t.Parallel()

	snd := &fakeSender{}
	s := New(Config{DedupWindow: time.Minute}, snd, logx.Nop(), nil)
	n := notification.Notification{Title: "Dune (2021)", Preamble: "A new movie"}

	require.NoError(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: 1}, n))
	require.NoError(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: 1}, n))
	require.NoError(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: 2}, n))

	assert.Equal(t, 2, snd.count())
	assert.Equal(t, Stats{Sent: 2, Suppressed: 1}, s.Stats())
}

func TestDedupCap(t *testing.T) {
	t.Parallel()

	s := New(Config{DedupWindow: time.Minute, DedupMaxEntries: 2}, &fakeSender{}, logx.Nop(), nil)
	for _, k := range []string{"a", "b", "c"} {
		assert.True(t, s.dedupAllow(k, time.Minute, 2))
		time.Sleep(time.Millisecond)
	}
	s.dmu.Lock()
	assert.Len(t, s.dedup, 2)
	_, hasOldest := s.dedup["a"]
	s.dmu.Unlock()
	assert.False(t, hasOldest)
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()

	s := New(Config{RatePerSec: 10000}, &fakeSender{}, logx.Nop(), nil)
	for i := 0; i < historySize+10; i++ {
		require.NoError(t, s.Deliver(t.Context(), kit.ChatTarget{ChatID: int64(i + 1)}, notification.Notification{}))
	}
	hist := s.Snapshot()
	require.Len(t, hist, historySize)
	assert.Equal(t, int64(11), hist[0].ChatID)
}
