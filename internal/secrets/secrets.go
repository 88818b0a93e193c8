// Package secrets keeps credentials such as the Redis password out of
// config.json, in the OS keychain or an encrypted file beside the config.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/99designs/keyring"
)

const keychainService = "w3vault"

// Names of the stored secrets.
const (
	RedisPassword = "redis_password"
)

// envOverrides lets CI and containers inject a secret without a keychain.
var envOverrides = map[string]string{
	RedisPassword: "W3VAULT_REDIS_PASSWORD",
}

// PasswordEnv unlocks the file backend when no desktop keychain exists.
const PasswordEnv = "W3VAULT_KEYRING_PASSWORD"

// ErrNotFound is returned for secrets that were never stored.
var ErrNotFound = errors.New("secret not found")

// Store wraps a keyring.
type Store struct {
	ring keyring.Keyring
}

// New wraps ring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Open returns a store backed by the OS keychain, falling back to an
// encrypted file in dir.
func Open(dir string) (*Store, error) {
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  dir,
		FilePasswordFunc:         filePassword,
	}

	// On Linux without a GUI, fall back to file-based storage.
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		ring, err = keyring.Open(keyring.Config{
			ServiceName:      keychainService,
			AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
			FileDir:          dir,
			FilePasswordFunc: filePassword,
		})
		if err != nil {
			return nil, fmt.Errorf("opening keyring: %w", err)
		}
	}
	return &Store{ring: ring}, nil
}

func filePassword(prompt string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	return keyring.TerminalPrompt(prompt)
}

func ref(name string) string { return keychainService + "." + name }

// Set stores value under name.
func (s *Store) Set(name, value string) error {
	if err := s.ring.Set(keyring.Item{
		Key:         ref(name),
		Data:        []byte(value),
		Label:       "w3vault " + name,
		Description: "w3vault credential",
	}); err != nil {
		return fmt.Errorf("keychain store: %w", err)
	}
	return nil
}

// Get returns the secret stored under name. An environment override, when
// set, wins over the keychain.
func (s *Store) Get(name string) (string, error) {
	if env, ok := envOverrides[name]; ok {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
	}
	item, err := s.ring.Get(ref(name))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("keychain retrieve: %w", err)
	}
	return string(item.Data), nil
}

// Delete removes name. Deleting a missing secret is not an error.
func (s *Store) Delete(name string) error {
	err := s.ring.Remove(ref(name))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}
