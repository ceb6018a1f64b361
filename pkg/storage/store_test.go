package storage

import (
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]ConfigStore {
	t.Helper()

	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	sealer, err := security.NewSealerFromPassphrase("test-passphrase")
	require.NoError(t, err)
	sealed, err := NewBoltStore(t.TempDir(), WithSealer(sealer))
	require.NoError(t, err)
	t.Cleanup(func() { sealed.Close() })

	return map[string]ConfigStore{
		"memory":      NewMemoryStore(),
		"bolt":        bolt,
		"bolt-sealed": sealed,
	}
}

func TestConfigStoreGetSet(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetConfig(KeyRabbitMQUser)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.SetConfig(KeyRabbitMQUser, "guest"))
			v, err := store.GetConfig(KeyRabbitMQUser)
			require.NoError(t, err)
			assert.Equal(t, "guest", v)

			require.NoError(t, store.SetConfig(KeyRabbitMQUser, "admin"))
			v, err = store.GetConfig(KeyRabbitMQUser)
			require.NoError(t, err)
			assert.Equal(t, "admin", v)
		})
	}
}

func TestConfigStoreMakeConfigGeneratesOnce(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			calls := 0
			gen := func() (string, error) {
				calls++
				return security.SecurePassword(security.DefaultPasswordLength)
			}

			first, err := store.MakeConfig(KeyRabbitMQPassword, gen)
			require.NoError(t, err)
			second, err := store.MakeConfig(KeyRabbitMQPassword, gen)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.Equal(t, 1, calls)

			stored, err := store.GetConfig(KeyRabbitMQPassword)
			require.NoError(t, err)
			assert.Equal(t, first, stored)
		})
	}
}

func TestConfigStoreMakeConfigKeepsExisting(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.SetConfig(KeyRabbitMQUser, "operator"))

			v, err := store.MakeConfig(KeyRabbitMQUser, Static("guest"))
			require.NoError(t, err)
			assert.Equal(t, "operator", v)
		})
	}
}

func TestConfigStoreMakeConfigGeneratorError(t *testing.T) {
	boom := errors.New("entropy exhausted")
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.MakeConfig(KeyRabbitMQCookie, func() (string, error) { return "", boom })
			assert.ErrorIs(t, err, boom)

			_, err = store.GetConfig(KeyRabbitMQCookie)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetConfig(KeyRabbitMQCookie, "cookie-value"))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	v, err := store.GetConfig(KeyRabbitMQCookie)
	require.NoError(t, err)
	assert.Equal(t, "cookie-value", v)
}

func TestBoltStoreSealedNeedsPassphrase(t *testing.T) {
	dir := t.TempDir()
	sealer, err := security.NewSealerFromPassphrase("right")
	require.NoError(t, err)

	store, err := NewBoltStore(dir, WithSealer(sealer))
	require.NoError(t, err)
	require.NoError(t, store.SetConfig(KeyRabbitMQPassword, "hunter2"))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	_, err = store.GetConfig(KeyRabbitMQPassword)
	assert.Error(t, err)
	require.NoError(t, store.Close())

	wrong, _ := security.NewSealerFromPassphrase("wrong")
	store, err = NewBoltStore(dir, WithSealer(wrong))
	require.NoError(t, err)
	_, err = store.GetConfig(KeyRabbitMQPassword)
	assert.Error(t, err)
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir, WithSealer(sealer))
	require.NoError(t, err)
	defer store.Close()
	v, err := store.GetConfig(KeyRabbitMQPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}
