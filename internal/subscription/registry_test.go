package subscription

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediabot/internal/storage"
	logx "mediabot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(storage.NewMemory(), logx.Nop())
}

func keywords(subs []Subscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Keyword)
	}
	return out
}

func TestAddNormalizesAndLists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	sub, err := r.Add(ctx, Owner{ID: 1, DisplayName: "alice"}, "  BatMan ", 0)
	require.NoError(t, err)
	assert.Equal(t, "batman", sub.Keyword)
	assert.Equal(t, "alice", sub.OwnerName)

	_, err = r.Add(ctx, Owner{ID: 1, DisplayName: "alice"}, "the wire", 0)
	require.NoError(t, err)

	got, err := r.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"batman", "the wire"}, keywords(got))
}

func TestAddRejectsDuplicateCaseInsensitive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Add(ctx, Owner{ID: 1}, "Batman", 0)
	require.NoError(t, err)
	_, err = r.Add(ctx, Owner{ID: 1}, " BATMAN", 0)
	require.ErrorIs(t, err, ErrDuplicateKeyword)
	assert.Equal(t, "Keyword `batman` already exists!", UserMessage(err))

	got, err := r.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Another owner may hold the same keyword.
	_, err = r.Add(ctx, Owner{ID: 2}, "batman", 0)
	require.NoError(t, err)
}

func TestAddRejectsTooLongAfterTrim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Add(ctx, Owner{ID: 1}, "abcdefghijklmnopqrstu", 0)
	require.ErrorIs(t, err, ErrKeywordTooLong)
	assert.Equal(t, "Keyword too long! Please shorten it to 20 characters or less.", UserMessage(err))

	_, err = r.Add(ctx, Owner{ID: 1}, "   abcdefghijklmnopqrst   ", 0)
	require.NoError(t, err)

	// Twenty runes of multi-byte text are fine.
	_, err = r.Add(ctx, Owner{ID: 1}, "ääääääääääääääääääää", 0)
	require.NoError(t, err)
}

func TestAddEmpty(t *testing.T) {
	t.Parallel()
	_, err := newRegistry(t).Add(context.Background(), Owner{ID: 1}, "   ", 0)
	require.ErrorIs(t, err, ErrEmptyKeyword)
	assert.Equal(t, "Keyword required for add action!", UserMessage(err))
}

func TestLimitIsPerOwnerAndCheckedBeforeDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Add(ctx, Owner{ID: 1}, "a", 2)
	require.NoError(t, err)
	_, err = r.Add(ctx, Owner{ID: 1}, "b", 2)
	require.NoError(t, err)

	_, err = r.Add(ctx, Owner{ID: 1}, "c", 2)
	require.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, "You've reached the keyword limit! Please remove one before adding another.", UserMessage(err))

	_, err = r.Add(ctx, Owner{ID: 1}, "a", 2)
	require.ErrorIs(t, err, ErrLimitReached)

	_, err = r.Add(ctx, Owner{ID: 4}, "c", 2)
	require.NoError(t, err)

	// Non-positive limit means unlimited.
	for i := 0; i < 5; i++ {
		_, err = r.Add(ctx, Owner{ID: 5}, fmt.Sprintf("kw%d", i), 0)
		require.NoError(t, err)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	_, err := r.Add(ctx, Owner{ID: 1}, "batman", 0)
	require.NoError(t, err)
	_, err = r.Add(ctx, Owner{ID: 1}, "wire", 0)
	require.NoError(t, err)
	_, err = r.Add(ctx, Owner{ID: 2}, "batman", 0)
	require.NoError(t, err)

	err = r.Remove(ctx, 1, "superman")
	require.ErrorIs(t, err, ErrKeywordNotFound)
	assert.Equal(t, "Keyword `superman` doesn't exist!", UserMessage(err))

	require.NoError(t, r.Remove(ctx, 1, " BATMAN "))

	got, err := r.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"wire"}, keywords(got))

	other, err := r.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"batman"}, keywords(other))

	require.NoError(t, r.Remove(ctx, 1, "wire"))
	got, err = r.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAllKeepsInsertionOrderAcrossOwners(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	adds := []struct {
		owner int64
		kw    string
	}{{10, "x"}, {2, "y"}, {10, "z"}, {3, "w"}}
	for _, a := range adds {
		_, err := r.Add(ctx, Owner{ID: a.owner}, a.kw, 0)
		require.NoError(t, err)
	}

	all, err := r.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z", "w"}, keywords(all))
}

func TestConcurrentAddsForOneOwnerRespectLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := newRegistry(t)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Add(ctx, Owner{ID: 7}, fmt.Sprintf("k%d", i), 3)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, ErrLimitReached))
	}
	assert.Equal(t, 3, ok)

	got, err := r.List(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRegistrySurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subs.db")

	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	r := NewRegistry(st, logx.Nop())
	_, err = r.Add(ctx, Owner{ID: 1, DisplayName: "alice"}, "batman", 0)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = storage.Open(storage.Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	all, err := NewRegistry(st, logx.Nop()).All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice", all[0].OwnerName)
	assert.Equal(t, "batman", all[0].Keyword)
}

func TestAllKeepsOwnerOrderWhenClockStepsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r1 := NewRegistry(st, logx.Nop())
	r1.now = func() time.Time { return base }
	_, err := r1.Add(ctx, Owner{ID: 1}, "bat", 0)
	require.NoError(t, err)
	_, err = r1.Add(ctx, Owner{ID: 2}, "robin", 0)
	require.NoError(t, err)

	// A restarted process whose clock is a minute behind.
	r2 := NewRegistry(st, logx.Nop())
	r2.now = func() time.Time { return base.Add(-time.Minute) }
	added, err := r2.Add(ctx, Owner{ID: 1}, "batman", 0)
	require.NoError(t, err)
	assert.True(t, added.AddedAt.After(base), "new entry sorts after the owner's newest")
	_, err = r2.Add(ctx, Owner{ID: 3}, "joker", 0)
	require.NoError(t, err)

	list, err := r2.List(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bat", "batman"}, keywords(list))

	all, err := r2.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	var owner1 []string
	for _, s := range all {
		if s.OwnerID == 1 {
			owner1 = append(owner1, s.Keyword)
		}
	}
	assert.Equal(t, []string{"bat", "batman"}, owner1)
}

func TestMergeByAddedAtNeverReordersAList(t *testing.T) {
	t.Parallel()

	t0 := time.Unix(100, 0)
	a := []Subscription{
		{OwnerID: 1, Keyword: "a1", AddedAt: t0.Add(2 * time.Second)},
		{OwnerID: 1, Keyword: "a2", AddedAt: t0},
	}
	b := []Subscription{{OwnerID: 2, Keyword: "b1", AddedAt: t0.Add(time.Second)}}

	got := mergeByAddedAt([][]Subscription{a, b})
	assert.Equal(t, []string{"b1", "a1", "a2"}, keywords(got))
}
