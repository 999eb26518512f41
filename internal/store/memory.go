package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synapsemind/backend/internal/model/discussion"
)

// Memory implements Store with in-process maps. It backs tests and is a
// drop-in for environments without a database file.
type Memory struct {
	mu        sync.RWMutex
	providers map[string]discussion.Provider
	sessions  map[string]discussion.Session
	rosters   map[string][]string
	messages  map[string][]discussion.Message
}

// NewMemory bootstraps an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		providers: make(map[string]discussion.Provider),
		sessions:  make(map[string]discussion.Session),
		rosters:   make(map[string][]string),
		messages:  make(map[string][]discussion.Message),
	}
}

func (s *Memory) CreateProvider(_ context.Context, p *discussion.Provider) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = discussion.StatusOffline
	}

	s.mu.Lock()
	s.providers[p.ID] = *p
	s.mu.Unlock()
	return nil
}

func (s *Memory) ListProviders(_ context.Context) ([]discussion.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers := make([]discussion.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].DisplayName < providers[j].DisplayName
	})
	return providers, nil
}

func (s *Memory) GetProvider(_ context.Context, id string) (discussion.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return discussion.Provider{}, ErrProviderNotFound
	}
	return p, nil
}

func (s *Memory) UpdateProvider(_ context.Context, p discussion.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[p.ID]; !ok {
		return ErrProviderNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.providers[p.ID] = p
	return nil
}

func (s *Memory) DeleteProvider(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[id]; !ok {
		return ErrProviderNotFound
	}
	delete(s.providers, id)
	return nil
}

func (s *Memory) CreateSession(_ context.Context, sess *discussion.Session, providerIDs []string) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.IsActive = true

	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.rosters[sess.ID] = append([]string(nil), providerIDs...)
	s.messages[sess.ID] = make([]discussion.Message, 0, 16)
	s.mu.Unlock()
	return nil
}

func (s *Memory) ListSessions(_ context.Context) ([]discussion.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]discussion.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *Memory) GetSession(_ context.Context, id string) (discussion.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return discussion.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Memory) UpdateSession(_ context.Context, sess discussion.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[sess.ID]
	if !ok {
		return ErrSessionNotFound
	}
	current.Title = sess.Title
	current.Description = sess.Description
	current.Topic = sess.Topic
	current.MaxRounds = sess.MaxRounds
	current.Temperature = sess.Temperature
	current.MaxTokens = sess.MaxTokens
	current.IsActive = sess.IsActive
	current.UpdatedAt = time.Now().UTC()
	s.sessions[sess.ID] = current
	return nil
}

func (s *Memory) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	delete(s.rosters, id)
	delete(s.messages, id)
	return nil
}

func (s *Memory) CompleteSession(_ context.Context, id string, rounds int, consensusPct float64, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.CurrentRound = rounds
	sess.IsActive = false
	sess.IsCompleted = true
	sess.ConsensusReached = true
	sess.ConsensusPercentage = consensusPct
	sess.CompletedAt = &completedAt
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[id] = sess
	return nil
}

func (s *Memory) Roster(_ context.Context, sessionID string) ([]discussion.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.rosters[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	roster := make([]discussion.Provider, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.providers[id]; ok {
			roster = append(roster, p)
		}
	}
	return roster, nil
}

func (s *Memory) CreateMessage(_ context.Context, m *discussion.Message) error {
	if m.SessionID == "" {
		return ErrSessionNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return ErrSessionNotFound
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

func (s *Memory) ListMessages(_ context.Context, sessionID string) ([]discussion.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]discussion.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *Memory) CountMessages(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, msgs := range s.messages {
		total += len(msgs)
	}
	return total, nil
}
