package storage

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a configuration key has never been set
var ErrNotFound = errors.New("config key not found")

// Well-known configuration keys
const (
	KeyRabbitMQUser     = "rabbitmq-user"
	KeyRabbitMQPassword = "rabbitmq-password"
	KeyRabbitMQCookie   = "rabbitmq-cookie"
)

// Generator produces the initial value of a configuration key
type Generator func() (string, error)

// ConfigStore persists generated credentials across convergence runs
type ConfigStore interface {
	// GetConfig returns the value of key or ErrNotFound
	GetConfig(key string) (string, error)

	// SetConfig stores value under key, replacing any previous value
	SetConfig(key, value string) error

	// MakeConfig returns the stored value of key, generating and storing
	// it first if the key is absent. Existing values are never replaced.
	MakeConfig(key string, generate Generator) (string, error)

	Close() error
}

// MemoryStore is an in-process ConfigStore
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) GetConfig(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetConfig(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) MakeConfig(key string, generate Generator) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	v, err := generate()
	if err != nil {
		return "", err
	}
	s.values[key] = v
	return v, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Static returns a Generator that always yields value
func Static(value string) Generator {
	return func() (string, error) { return value, nil }
}
