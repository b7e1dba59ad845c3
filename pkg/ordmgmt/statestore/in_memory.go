package statestore

import (
	"context"
	"sync"
)

type InMemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]State)}
}

func (s *InMemoryStore) Load(_ context.Context, name string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[name], nil
}

func (s *InMemoryStore) Save(_ context.Context, name string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[name] = st
	return nil
}
