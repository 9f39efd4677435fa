package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// Memory implements domain.ContextStore with a keyed in-memory map. Lookups
// are O(1); repeated GetOrCreate calls for the same id return the identical
// Context instance, so handler mutations are visible on the next turn without
// an explicit write-back. Not durable across restarts.
type Memory struct {
	mu       sync.RWMutex
	contexts map[string]*domain.Context
	logger   *slog.Logger
}

func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		contexts: make(map[string]*domain.Context),
		logger:   logger.With("component", "store.memory"),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*domain.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contexts[id], nil
}

func (m *Memory) GetOrCreate(_ context.Context, id string) (*domain.Context, error) {
	m.mu.RLock()
	c, ok := m.contexts[id]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contexts[id]; ok {
		return c, nil
	}

	now := time.Now()
	c = &domain.Context{
		UserID:    id,
		State:     domain.StateWelcome,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.contexts[id] = c
	m.logger.Debug("context created", "user", id)
	return c, nil
}

// Save is a persistence marker: the live instance is already the stored one.
func (m *Memory) Save(_ context.Context, c *domain.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[c.UserID] = c
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.contexts[id]
	delete(m.contexts, id)
	return ok, nil
}

// Sweep removes contexts not updated since olderThan.
func (m *Memory) Sweep(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.contexts {
		if c.UpdatedAt.Before(olderThan) {
			delete(m.contexts, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored contexts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}

func (m *Memory) Close() error { return nil }
