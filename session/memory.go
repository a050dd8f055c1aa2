package session

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store. The zero value is ready to use.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore returns a store seeded with state.
func NewMemoryStore(state State) *MemoryStore {
	state.User = state.User.Clone()
	return &MemoryStore{state: state}
}

func (s *MemoryStore) Snapshot(context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.state
	out.User = s.state.User.Clone()
	return out, nil
}

func (s *MemoryStore) SetUser(_ context.Context, user UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = user.Clone()
	return nil
}

func (s *MemoryStore) SetToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Token = token
	return nil
}

func (s *MemoryStore) SetLoading(_ context.Context, loading bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = loading
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{}
	return nil
}

// MemoryCache is a process-local Cache. The zero value is ready to use.
type MemoryCache struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryCache(values map[string]string) *MemoryCache {
	c := &MemoryCache{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

// MemoryBackend keeps one MemoryStore and MemoryCache per client ID.
type MemoryBackend struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
	caches map[string]*MemoryCache
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		stores: make(map[string]*MemoryStore),
		caches: make(map[string]*MemoryCache),
	}
}

func (b *MemoryBackend) Store(clientID string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stores[clientID]
	if !ok {
		s = &MemoryStore{}
		b.stores[clientID] = s
	}
	return s
}

func (b *MemoryBackend) Cache(clientID string) Cache {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.caches[clientID]
	if !ok {
		c = NewMemoryCache(nil)
		b.caches[clientID] = c
	}
	return c
}
