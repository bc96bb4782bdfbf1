// Package localstore provides the durable key-value capability the ledger
// persists into.
package localstore

import (
	"fmt"
	"strings"
	"sync"
)

// Store is a durable key-value map. Set replaces the whole value
// atomically: readers see either the previous or the new bytes.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// Locker is implemented by stores shared between processes. The returned
// func releases the lock.
type Locker interface {
	Lock() (func() error, error)
}

type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func validateKey(key string) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return fmt.Errorf("store key is required")
	}
	if strings.ContainsAny(k, `/\`) || k == "." || k == ".." {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}
