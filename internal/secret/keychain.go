package secret

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DefaultKeychainService is the keychain service credentials are filed under.
const DefaultKeychainService = "planet-pulse-intake"

// Runner executes the security tool and returns its stdout. A non-nil
// error means the command failed; out then holds its combined output.
type Runner func(args ...string) (out []byte, err error)

func runSecurity(args ...string) ([]byte, error) {
	cmd := exec.Command("security", args...)
	out, err := cmd.Output()
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.Stderr, err
	}
	return out, err
}

// KeychainStore implements SecretStore on the macOS login keychain
// through the `security` CLI.
type KeychainStore struct {
	Service string
	Run     Runner
}

// NewKeychainStore creates a KeychainStore for DefaultKeychainService.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{Service: DefaultKeychainService, Run: runSecurity}
}

// Default returns the environment store, backed by the keychain on macOS.
func Default() SecretStore {
	if runtime.GOOS == "darwin" {
		return Chain{NewEnvStore(), NewKeychainStore()}
	}
	return NewEnvStore()
}

func (k *KeychainStore) service() string {
	if k.Service == "" {
		return DefaultKeychainService
	}
	return k.Service
}

func (k *KeychainStore) run(args ...string) ([]byte, error) {
	if k.Run == nil {
		return runSecurity(args...)
	}
	return k.Run(args...)
}

// Set stores value under key, replacing an existing item.
func (k *KeychainStore) Set(key string, value []byte) error {
	out, err := k.run("add-generic-password",
		"-a", key,
		"-s", k.service(),
		"-w", string(value),
		"-U",
	)
	if err != nil {
		return fmt.Errorf("keychain set %s: %s: %w", key, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Get returns the secret under key. A missing item, or a keychain that
// cannot be read, yields no value and no error so a Chain falls through.
func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := k.run("find-generic-password",
		"-a", key,
		"-s", k.service(),
		"-w",
	)
	if err != nil {
		return nil, nil
	}
	return []byte(strings.TrimRight(string(out), "\n")), nil
}

// Delete removes the item under key. Deleting a missing item is not an error.
func (k *KeychainStore) Delete(key string) error {
	_, _ = k.run("delete-generic-password",
		"-a", key,
		"-s", k.service(),
	)
	return nil
}
