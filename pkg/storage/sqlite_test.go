package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

func userCodecs() map[domain.Key]Codec {
	return map[domain.Key]Codec{
		"user": {
			Encode: func(item any) (string, []byte, error) {
				u := item.(user)
				payload, err := json.Marshal(u)
				return u.ID, payload, err
			},
			Decode: func(payload []byte) (any, error) {
				var u user
				err := json.Unmarshal(payload, &u)
				return u, err
			},
		},
	}
}

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"), userCodecs(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	alice := user{ID: "1", Name: "alice"}
	require.NoError(t, store.Put(ctx, "user", alice, nil))

	got, err := store.Get(ctx, "user", domain.Query{"id": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, alice, got)
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "user", domain.Query{"id": "9"}, nil)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStoreUnsupportedType(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "order", domain.Query{"id": "1"}, nil)
	require.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestSQLiteStorePutReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "user", user{ID: "1", Name: "old"}, nil))
	require.NoError(t, store.Put(ctx, "user", user{ID: "1", Name: "new"}, nil))

	got, err := store.Get(ctx, "user", domain.Query{"id": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", got.(user).Name)
}

func TestSQLiteStoreGetManyByIds(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutMany(ctx, "user", slices.Values([]any{
		user{ID: "1", Name: "a"},
		user{ID: "2", Name: "b"},
		user{ID: "3", Name: "c"},
	}), nil))

	seq, err := store.GetMany(ctx, "user", domain.Query{"ids": []string{"3", "1"}}, nil)
	require.NoError(t, err)

	var names []string
	for item, err := range seq {
		require.NoError(t, err)
		names = append(names, item.(user).Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestSQLiteStoreGetManyAllRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "user", user{ID: "2", Name: "b"}, nil))
	require.NoError(t, store.Put(ctx, "user", user{ID: "1", Name: "a"}, nil))

	seq, err := store.GetMany(ctx, "user", domain.Query{}, nil)
	require.NoError(t, err)

	var names []string
	for item, err := range seq {
		require.NoError(t, err)
		names = append(names, item.(user).Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	store, err := OpenSQLiteStore(path, userCodecs(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "user", user{ID: "1", Name: "alice"}, nil))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path, userCodecs(), nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "user", domain.Query{"id": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.(user).Name)
}
