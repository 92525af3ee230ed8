package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrSecretNotFound is returned when a secret has not been stored.
var ErrSecretNotFound = errors.New("secret not found")

const apiTokenKey = "api_token"

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// SecretsFile is a flat JSON map of secret name to value, readable only by
// the owner.
type SecretsFile struct {
	path string
	mu   sync.Mutex
}

func newSecretsFile(path string) *SecretsFile {
	return &SecretsFile{path: path}
}

// NewSecrets opens the default secrets file.
func NewSecrets() *SecretsFile {
	return newSecretsFile(secretsFilePath())
}

func (s *SecretsFile) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	out := map[string]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return out, nil
}

func (s *SecretsFile) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return v, nil
}

func (s *SecretsFile) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return err
	}
	m[key] = value

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o600)
}

// GetAPIToken returns the management API token, generating and storing a
// random one on first use. LEADBOT_API_TOKEN takes precedence.
func GetAPIToken(s *SecretsFile) (string, error) {
	if v := os.Getenv("LEADBOT_API_TOKEN"); v != "" {
		return v, nil
	}
	tok, err := s.Get(apiTokenKey)
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := s.Set(apiTokenKey, tok); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return tok, nil
}
