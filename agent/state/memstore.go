package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// InMemoryStore keeps session contexts in-process. Load and Save deep-copy
// through JSON so an in-progress turn's local mutations never leak into the
// store before Save. Default choice for tests and single-node setups.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionContext
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*SessionContext),
	}
}

func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*SessionContext, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}
	s.mu.RLock()
	stored, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	return cloneContext(stored)
}

func (s *InMemoryStore) Save(ctx context.Context, sctx *SessionContext) error {
	if sctx == nil {
		return ErrNilContext
	}
	if strings.TrimSpace(sctx.SessionID) == "" {
		return ErrInvalidSession
	}
	copied, err := cloneContext(sctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[sctx.SessionID] = copied
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

func cloneContext(sctx *SessionContext) (*SessionContext, error) {
	payload, err := json.Marshal(sctx)
	if err != nil {
		return nil, fmt.Errorf("clone session context: %w", err)
	}
	var copied SessionContext
	if err := json.Unmarshal(payload, &copied); err != nil {
		return nil, fmt.Errorf("clone session context: %w", err)
	}
	return &copied, nil
}
