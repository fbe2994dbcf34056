package quickbooks

import (
	"context"
	"sync"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// memoryStore is an in-memory service.ConnectionStore.
type memoryStore struct {
	conns map[model.Environment]*model.Connection
	// beforeUpdate runs inside UpdateConnectionTokens before the refresh-token check.
	beforeUpdate func(*model.Connection)
	logs         []model.SyncLogEntry
	mu           sync.Mutex
}

func newMemoryStore(conns ...model.Connection) *memoryStore {
	s := &memoryStore{conns: make(map[model.Environment]*model.Connection)}
	for _, c := range conns {
		c := c
		c.IsActive = true
		s.conns[c.Environment] = &c
	}
	return s
}

func (s *memoryStore) GetActiveConnection(_ context.Context, env model.Environment) (*model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[env]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memoryStore) UpdateConnectionTokens(_ context.Context, id, previous string, u service.TokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		if c.ID != id {
			continue
		}
		if s.beforeUpdate != nil {
			s.beforeUpdate(c)
		}
		if c.RefreshToken != previous {
			return service.ErrStaleConnection
		}
		c.AccessToken = u.AccessToken
		c.RefreshToken = u.RefreshToken
		c.TokenExpiresAt = u.ExpiresAt
		if !u.RefreshTokenExpiresAt.IsZero() {
			c.RefreshTokenExpiresAt = u.RefreshTokenExpiresAt
		}
		return nil
	}
	return service.ErrStaleConnection
}

func (s *memoryStore) SaveConnection(_ context.Context, conn *model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conn
	cp.IsActive = true
	s.conns[conn.Environment] = &cp
	return nil
}

func (s *memoryStore) AppendSyncLog(_ context.Context, e *model.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *e)
	return nil
}

func (s *memoryStore) syncLogs() []model.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SyncLogEntry(nil), s.logs...)
}
