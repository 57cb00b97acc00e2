package settings

import "sync"

// Memory is an in-memory KV for tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]string

	// PutError, if set, is returned by Put.
	PutError error
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get returns the value for key or def.
func (m *Memory) Get(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Put stores value under key.
func (m *Memory) Put(key, value string) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}
