// Package backend defines the run-record storage contract and the
// registry through which backends self-register.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("state is locked")

// Backend stores run records as opaque blobs addressed by path.
type Backend interface {
	// Type returns the backend type name, e.g. "local" or "s3".
	Type() string

	// Read returns the record at path, or ErrNotFound.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores the record at path, replacing any previous content.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the record at path. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, path string) error

	// List returns all record paths under the prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether a record exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an advisory lock on path.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held advisory lock.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo describes who holds a lock and why.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// LockError carries the holder's info when acquisition fails.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("locked by %s (operation %s, since %s): %v",
		e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339), e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Type names the registered backend.
	Type string `yaml:"type" mapstructure:"type"`

	// Config holds backend-specific options (bucket, path, region...).
	Config map[string]string `yaml:"config" mapstructure:"config"`
}

// Factory builds a backend from its settings map.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend type available by name. Backends call this
// from init so a blank import is enough to enable them.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create instantiates the backend named by config.Type.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (available: %v)", config.Type, Types())
	}
	return factory(config.Config)
}

// Types returns the registered backend type names in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
