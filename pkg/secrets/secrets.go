// Package secrets resolves secret references at apply time. Secret
// values flow from providers straight into resolved attributes and are
// never written to run records or logs.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Provider fetches secret values from one source.
type Provider interface {
	// Name identifies the provider, e.g. "env" or "awssm".
	Name() string

	// Get returns the secret value, or errors.ErrCodeNotFound when the
	// provider has no value for the key.
	Get(ctx context.Context, key string) (string, error)
}

// Manager resolves secrets across providers in priority order. Resolved
// values are cached for the lifetime of the manager, so one run sees a
// consistent value per key.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	priority  []string
	cache     map[string]string
}

// NewManager returns a manager with the env provider registered.
func NewManager() *Manager {
	m := &Manager{
		providers: make(map[string]Provider),
		cache:     make(map[string]string),
	}
	m.RegisterProvider(&EnvProvider{})
	return m
}

// RegisterProvider adds a provider and appends it to the priority order.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[p.Name()]; !exists {
		m.priority = append(m.priority, p.Name())
	}
	m.providers[p.Name()] = p
}

// SetPriority replaces the provider lookup order. Unknown names are
// ignored.
func (m *Manager) SetPriority(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var order []string
	for _, n := range names {
		if _, ok := m.providers[n]; ok {
			order = append(order, n)
		}
	}
	m.priority = order
}

// Get resolves key through the providers in priority order. The first
// provider holding the key wins.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	if v, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return v, nil
	}
	order := append([]string(nil), m.priority...)
	m.mu.RUnlock()

	for _, name := range order {
		m.mu.RLock()
		p := m.providers[name]
		m.mu.RUnlock()

		v, err := p.Get(ctx, key)
		if err == nil {
			m.mu.Lock()
			m.cache[key] = v
			m.mu.Unlock()
			return v, nil
		}
		if !errors.Is(err, errors.ErrCodeNotFound) {
			return "", errors.SecretError(key, err)
		}
	}
	return "", errors.SecretError(key, fmt.Errorf("no provider holds %q", key))
}

// GetFromProvider resolves key through one named provider, bypassing the
// priority order.
func (m *Manager) GetFromProvider(ctx context.Context, provider, key string) (string, error) {
	m.mu.RLock()
	p, ok := m.providers[provider]
	m.mu.RUnlock()
	if !ok {
		return "", errors.SecretError(key, fmt.Errorf("unknown provider %q", provider))
	}
	v, err := p.Get(ctx, key)
	if err != nil {
		return "", errors.SecretError(key, err)
	}
	return v, nil
}

// Resolver adapts the manager to the expression evaluator's secret
// lookup signature.
func (m *Manager) Resolver(ctx context.Context) func(key string) (string, error) {
	return func(key string) (string, error) {
		return m.Get(ctx, key)
	}
}

// EnvProvider reads secrets from the process environment. Keys are
// uppercased and dots become underscores, so "db.password" reads
// DB_PASSWORD.
type EnvProvider struct{}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(_ context.Context, key string) (string, error) {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	return "", errors.New(errors.ErrCodeNotFound, fmt.Sprintf("environment variable %s is not set", name))
}

// StaticProvider serves fixed values, for tests and overrides.
type StaticProvider struct {
	ProviderName string
	Values       map[string]string
}

func (p *StaticProvider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "static"
}

func (p *StaticProvider) Get(_ context.Context, key string) (string, error) {
	if v, ok := p.Values[key]; ok {
		return v, nil
	}
	return "", errors.New(errors.ErrCodeNotFound, fmt.Sprintf("no value for %q", key))
}
