package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "mediabot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	mk := func(driver, name string) func() Store {
		return func() Store {
			st, err := Open(Config{Driver: driver, Path: filepath.Join(dir, name)}, logx.Nop())
			require.NoError(t, err)
			return st
		}
	}
	return map[string]func() Store{
		"memory": mk("memory", ""),
		"file":   mk("file", "file/state.json"),
		"sqlite": mk("sqlite", "sqlite/state.db"),
		"badger": mk("badger", "badger"),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, open := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			_, ok, err := st.Get(ctx, "keywords/1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.Put(ctx, "keywords/1", []byte(`["a"]`)))
			require.NoError(t, st.Put(ctx, "keywords/2", []byte(`["b"]`)))
			require.NoError(t, st.Put(ctx, "other/1", []byte(`x`)))
			require.NoError(t, st.Put(ctx, "keywords/1", []byte(`["a","c"]`)))

			v, ok, err := st.Get(ctx, "keywords/1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `["a","c"]`, string(v))

			var keys []string
			err = st.Scan(ctx, "keywords/", func(k string, _ []byte) error {
				keys = append(keys, k)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"keywords/1", "keywords/2"}, keys)

			require.NoError(t, st.Delete(ctx, "keywords/2"))
			require.NoError(t, st.Delete(ctx, "keywords/missing"))
			_, ok, err = st.Get(ctx, "keywords/2")
			require.NoError(t, err)
			assert.False(t, ok)

			if m, isM := st.(Maintainer); isM {
				require.NoError(t, m.Maintain(ctx))
			}
		})
	}
}

func TestScanCallbackMayReenter(t *testing.T) {
	ctx := context.Background()
	for name, open := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			require.NoError(t, st.Put(ctx, "k/a", []byte("1")))
			err := st.Scan(ctx, "k/", func(k string, _ []byte) error {
				_, _, err := st.Get(ctx, k)
				return err
			})
			require.NoError(t, err)
		})
	}
}

func TestFileStoreReplaysJournalAfterReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, "keywords/1", []byte("one")))
	require.NoError(t, st.Put(ctx, "keywords/2", []byte("two")))
	require.NoError(t, st.(Maintainer).Maintain(ctx))
	require.NoError(t, st.Delete(ctx, "keywords/2"))
	require.NoError(t, st.Put(ctx, "keywords/3", []byte("three")))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got := map[string]string{}
	require.NoError(t, st.Scan(ctx, "", func(k string, v []byte) error {
		got[k] = string(v)
		return nil
	}))
	assert.Equal(t, map[string]string{"keywords/1": "one", "keywords/3": "three"}, got)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}
