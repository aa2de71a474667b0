package application

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/multisession/internal/adapters/blob/file"
	"github.com/bnema/multisession/internal/adapters/blob/sqlite"
	"github.com/bnema/multisession/internal/adapters/sealed"
	"github.com/bnema/multisession/internal/domain"
	"github.com/bnema/multisession/internal/ports"
)

func blobBackends(t *testing.T) map[string]func(t *testing.T) ports.BlobStore {
	t.Helper()

	return map[string]func(t *testing.T) ports.BlobStore{
		"file": func(t *testing.T) ports.BlobStore {
			return file.NewStore(t.TempDir())
		},
		"sqlite": func(t *testing.T) ports.BlobStore {
			store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func TestCredentialStoreLifecycle(t *testing.T) {
	t.Parallel()

	for name, open := range blobBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := NewCredentialStore(open(t), nil, nil)

			bundle, err := store.Load(ctx, "111")
			require.NoError(t, err)
			assert.False(t, bundle.Paired())
			assert.Empty(t, bundle.Keys)

			paired, err := store.Paired(ctx, "111")
			require.NoError(t, err)
			assert.False(t, paired)

			require.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{
				Creds: []byte(`{"me":"111"}`),
				Keys: map[string][]byte{
					"pre-key:1":            []byte("p1"),
					"app-state/sync-key:A": []byte("s1"),
				},
			}))

			bundle, err = store.Load(ctx, "111")
			require.NoError(t, err)
			assert.Equal(t, []byte(`{"me":"111"}`), bundle.Creds)
			assert.Equal(t, map[string][]byte{
				"pre-key:1":            []byte("p1"),
				"app-state/sync-key:A": []byte("s1"),
			}, bundle.Keys)

			require.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{
				Keys: map[string][]byte{"pre-key:1": nil},
			}))
			bundle, err = store.Load(ctx, "111")
			require.NoError(t, err)
			assert.NotContains(t, bundle.Keys, "pre-key:1")
			assert.True(t, bundle.Paired(), "creds untouched by a keys-only delta")

			require.NoError(t, store.Delete(ctx, "111"))
			paired, err = store.Paired(ctx, "111")
			require.NoError(t, err)
			assert.False(t, paired)
		})
	}
}

func TestCredentialStoreIsolatesAccounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCredentialStore(file.NewStore(t.TempDir()), nil, nil)

	require.NoError(t, store.Apply(ctx, "1", domain.CredentialDelta{Creds: []byte("one")}))
	require.NoError(t, store.Apply(ctx, "11", domain.CredentialDelta{Creds: []byte("eleven")}))
	require.NoError(t, store.Delete(ctx, "1"))

	bundle, err := store.Load(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, []byte("eleven"), bundle.Creds)
}

func TestCredentialStoreSealsRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	blobs := file.NewStore(t.TempDir())
	store := NewCredentialStore(blobs, sealed.New(identity), nil)
	require.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{Creds: []byte("secret-creds")}))

	raw, err := blobs.Get(ctx, Namespace("111")+"creds")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-creds")

	bundle, err := store.Load(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret-creds"), bundle.Creds)

	_, err = NewCredentialStore(blobs, nil, nil).Load(ctx, "111")
	require.ErrorIs(t, err, domain.ErrStorage)
}

func TestCredentialStoreRejectsCorruptRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := file.NewStore(t.TempDir())
	store := NewCredentialStore(blobs, nil, nil)
	require.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{Creds: []byte("creds")}))

	require.NoError(t, blobs.Put(ctx, Namespace("111")+"creds", []byte("torn write")))

	_, err := store.Load(ctx, "111")
	require.ErrorIs(t, err, domain.ErrStorage)
	require.ErrorIs(t, err, domain.ErrCorruptRecord)
}

func TestCredentialStoreSerializesWritesPerAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewCredentialStore(file.NewStore(t.TempDir()), nil, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{
				Keys: map[string][]byte{"k" + string(rune('a'+i)): []byte{byte(i)}},
			}))
		}()
	}
	wg.Wait()

	bundle, err := store.Load(ctx, "111")
	require.NoError(t, err)
	assert.Len(t, bundle.Keys, 20)
}

func TestCredentialStoreKeepsKeyNamesVerbatim(t *testing.T) {
	t.Parallel()

	for name, open := range blobBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := NewCredentialStore(open(t), nil, nil)
			keys := map[string][]byte{
				"session-123@s.whatsapp.net:1": []byte("a"),
				"session-123@s.whatsapp.net-1": []byte("b"),
				"sync/a":                       []byte("c"),
				"sync__a":                      []byte("d"),
				".":                            []byte("e"),
				"..":                           []byte("f"),
				"Pre-Key":                      []byte("g"),
				"pre-key":                      []byte("h"),
			}
			require.NoError(t, store.Apply(ctx, "111", domain.CredentialDelta{Creds: []byte("c"), Keys: keys}))

			bundle, err := store.Load(ctx, "111")
			require.NoError(t, err)
			assert.Equal(t, keys, bundle.Keys)
		})
	}
}

func TestCredentialStoreRejectsEmptyKeyName(t *testing.T) {
	t.Parallel()

	store := NewCredentialStore(file.NewStore(t.TempDir()), nil, nil)
	err := store.Apply(context.Background(), "111", domain.CredentialDelta{Keys: map[string][]byte{"": []byte("x")}})
	require.ErrorIs(t, err, domain.ErrStorage)
}
