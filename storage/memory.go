package storage

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]Ticket)}
}

func (m *MemoryStore) Create(_ context.Context, t Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[t.ChannelID]; ok {
		return ErrTicketExists
	}
	m.tickets[t.ChannelID] = t
	return nil
}

func (m *MemoryStore) Get(_ context.Context, channelID string) (Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[channelID]
	if !ok {
		return Ticket{}, ErrTicketNotFound
	}
	return t, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, channelID string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[channelID]
	if !ok {
		return ErrTicketNotFound
	}
	t.Status = status
	m.tickets[channelID] = t
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[channelID]; !ok {
		return ErrTicketNotFound
	}
	delete(m.tickets, channelID)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Ticket, error) {
	m.mu.RLock()
	out := make([]Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sortTickets(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortTickets(ts []Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ChannelID < ts[j].ChannelID
		}
		return ts[i].CreatedAt.Before(ts[j].CreatedAt)
	})
}
