package storage

import (
	"sync"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

// Memory is an in-process medium. Nothing survives the process.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory medium
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	metrics.RecordStorageOperation(BackendMemory, "get", nil)
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	metrics.RecordStorageOperation(BackendMemory, "set", nil)
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	metrics.RecordStorageOperation(BackendMemory, "delete", nil)
	return nil
}

// Len reports the number of stored keys
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
