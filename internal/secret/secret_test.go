package secret_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/secret"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestEnvStore_Get(t *testing.T) {
	s := &secret.EnvStore{
		Names:  secret.DefaultEnvNames,
		Lookup: envOf(map[string]string{"DB_PSWRD": "hunter2", "MONGO_TOKEN": "abc"}),
	}

	v, err := s.Get(secret.KeyDBPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(v))

	v, err = s.Get("mongo-token")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))

	v, err = s.Get(secret.KeyAWSSecretAccessKey)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestEnvStore_Overlay(t *testing.T) {
	s := &secret.EnvStore{Lookup: envOf(map[string]string{"DB_PSWRD": "env"}), Names: secret.DefaultEnvNames}
	require.NoError(t, s.Set(secret.KeyDBPassword, []byte("override")))

	v, _ := s.Get(secret.KeyDBPassword)
	assert.Equal(t, "override", string(v))

	require.NoError(t, s.Delete(secret.KeyDBPassword))
	v, _ = s.Get(secret.KeyDBPassword)
	assert.Equal(t, "env", string(v))
}

func TestChain_FirstNonEmptyWins(t *testing.T) {
	first := &secret.EnvStore{Lookup: envOf(nil)}
	second := &secret.EnvStore{Lookup: envOf(map[string]string{"DB_PSWRD": "from-second"}), Names: secret.DefaultEnvNames}
	c := secret.Chain{first, second}

	v, err := c.Get(secret.KeyDBPassword)
	require.NoError(t, err)
	assert.Equal(t, "from-second", string(v))

	require.NoError(t, c.Set(secret.KeyDBPassword, []byte("local")))
	v, _ = c.Get(secret.KeyDBPassword)
	assert.Equal(t, "local", string(v))

	v, err = secret.Chain{}.Get("anything")
	require.NoError(t, err)
	assert.Nil(t, v)
}

// fakeSecurity mimics the security tool over an in-memory keychain.
type fakeSecurity struct {
	items map[string]string
	calls [][]string
}

func (f *fakeSecurity) run(args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	key := args[2] + "/" + args[4]
	switch args[0] {
	case "add-generic-password":
		f.items[key] = args[6]
		return nil, nil
	case "find-generic-password":
		v, ok := f.items[key]
		if !ok {
			return []byte("The specified item could not be found in the keychain."), errors.New("exit status 44")
		}
		return []byte(v + "\n"), nil
	case "delete-generic-password":
		delete(f.items, key)
		return nil, nil
	}
	return nil, errors.New("unknown command")
}

func TestKeychainStore(t *testing.T) {
	fake := &fakeSecurity{items: map[string]string{}}
	k := &secret.KeychainStore{Service: "intake-test", Run: fake.run}

	v, err := k.Get(secret.KeyDBPassword)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, k.Set(secret.KeyDBPassword, []byte("pa ss")))
	v, err = k.Get(secret.KeyDBPassword)
	require.NoError(t, err)
	assert.Equal(t, "pa ss", string(v))
	assert.Equal(t, []string{"add-generic-password", "-a", "db-password", "-s", "intake-test", "-w", "pa ss", "-U"}, fake.calls[1])

	require.NoError(t, k.Delete(secret.KeyDBPassword))
	require.NoError(t, k.Delete(secret.KeyDBPassword))
	v, err = k.Get(secret.KeyDBPassword)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestChain_FallsThroughToKeychain(t *testing.T) {
	fake := &fakeSecurity{items: map[string]string{"aws-secret-access-key/" + secret.DefaultKeychainService: "wJalr"}}
	c := secret.Chain{
		&secret.EnvStore{Lookup: envOf(nil)},
		&secret.KeychainStore{Run: fake.run},
	}
	v, err := c.Get(secret.KeyAWSSecretAccessKey)
	require.NoError(t, err)
	assert.Equal(t, "wJalr", string(v))
}
