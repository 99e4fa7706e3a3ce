// Package secrets resolves the Soracom auth key credentials from pluggable
// sources: process environment, an encrypted database store, HashiCorp Vault,
// AWS Secrets Manager or an ansible-vault file.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/soratab/soratab/pkg/soracom"
)

// Keys the credential sources are queried with.
const (
	KeyAuthKeyID     = "auth_key_id"
	KeyAuthKeySecret = "auth_key_secret"
)

// Provider is a read-only secrets source.
type Provider interface {
	Get(key string) (string, error)
}

// Credentials resolves the Soracom auth key pair through the provider.
func Credentials(p Provider) (soracom.Credentials, error) {
	id, err := p.Get(KeyAuthKeyID)
	if err != nil {
		return soracom.Credentials{}, fmt.Errorf("can't get auth key id: %w", err)
	}
	secret, err := p.Get(KeyAuthKeySecret)
	if err != nil {
		return soracom.Credentials{}, fmt.Errorf("can't get auth key secret: %w", err)
	}
	return soracom.Credentials{AuthKeyID: id, AuthKeySecret: secret}, nil
}

// NoOpProvider is a provider that does nothing.
type NoOpProvider struct{}

// Get returns an error on every key.
func (p *NoOpProvider) Get(string) (string, error) {
	return "", errors.New("not implemented")
}

// MemoryProvider stores secrets in memory, for testing.
type MemoryProvider struct {
	secrets map[string]string
}

// NewMemoryProvider creates a new MemoryProvider with the given secrets.
func NewMemoryProvider(secrets map[string]string) *MemoryProvider {
	return &MemoryProvider{secrets: secrets}
}

// Get returns the secret for the given key.
func (m *MemoryProvider) Get(key string) (string, error) {
	if val, ok := m.secrets[key]; ok {
		return val, nil
	}
	return "", errors.New("secret not found")
}

// EnvProvider reads secrets from prefixed environment variables, i.e. with
// the default prefix the key "auth_key_id" maps to SORATAB_AUTH_KEY_ID.
type EnvProvider struct {
	Prefix string // defaults to "SORATAB_"
}

// Get returns the value of the environment variable for the key.
func (e *EnvProvider) Get(key string) (string, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "SORATAB_"
	}
	name := prefix + strings.ToUpper(key)
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return val, nil
}
