// Package apitoken keeps the HTTP API bearer token in the OS keychain, with
// a file fallback for hosts that have none.
package apitoken

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/zalando/go-keyring"
)

const DefaultService = "dragstrip"

// ErrNotFound is returned when no token is stored under a name.
var ErrNotFound = keyring.ErrNotFound

// KeyringStore wraps the OS keychain with an optional file fallback.
type KeyringStore struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

func NewKeyringStore(serviceName, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &KeyringStore{service: serviceName, fallbackPath: fallbackPath}
}

func (k *KeyringStore) key(name string) string {
	return "token/" + name
}

// Set stores token under name.
func (k *KeyringStore) Set(name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("apitoken: token name is required")
	}
	err := keyring.Set(k.service, k.key(name), token)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("apitoken: keyring set %s: %w", name, err)
	}
	return k.setFallback(name, token)
}

// Get returns the token stored under name, or ErrNotFound.
func (k *KeyringStore) Get(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("apitoken: token name is required")
	}
	val, err := keyring.Get(k.service, k.key(name))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("apitoken: keyring get %s: %w", name, err)
	}

	fallback, ferr := k.getFallback(name)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes the token from the keychain and the fallback file.
func (k *KeyringStore) Delete(name string) error {
	err := keyring.Delete(k.service, k.key(name))
	ferr := k.deleteFallback(name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("apitoken: keyring delete %s: %w", name, err)
	}
	return ferr
}

// Ensure returns the stored token, generating and storing one first if
// none exists.
func (k *KeyringStore) Ensure(name string) (token string, created bool, err error) {
	token, err = k.Get(name)
	if err == nil {
		return token, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}
	token = Generate()
	if err := k.Set(name, token); err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Generate makes a new random token.
func Generate() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Equal compares tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackTokens map[string]string

func (k *KeyringStore) setFallback(name, token string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("apitoken: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[name] = token
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) getFallback(name string) (string, error) {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return "", fmt.Errorf("apitoken: fallback path not configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[name]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (k *KeyringStore) deleteFallback(name string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[name]; !ok {
		return nil
	}
	delete(data, name)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (fallbackTokens, error) {
	out := fallbackTokens{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("apitoken: read fallback tokens: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("apitoken: decode fallback tokens: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data fallbackTokens) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("apitoken: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("apitoken: encode fallback tokens: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("apitoken: write fallback tokens: %w", err)
	}
	return nil
}
