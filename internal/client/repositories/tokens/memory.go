package tokens

import (
	"context"
	"sync"
)

// MemoryStore is a Store that forgets everything on exit.
type MemoryStore struct {
	mu sync.Mutex
	t  *Tokens
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t == nil {
		return nil, nil
	}
	cp := *m.t
	return &cp, nil
}

func (m *MemoryStore) Save(_ context.Context, t *Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.t = &cp
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = nil
	return nil
}
