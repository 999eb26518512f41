package store

import (
	"context"
	"errors"
	"time"

	"github.com/synapsemind/backend/internal/model/discussion"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrProviderNotFound = errors.New("provider not found")
)

// Store is the durable persistence port consumed by the engine and the
// HTTP handlers. All operations are atomic and immediately consistent.
type Store interface {
	CreateProvider(ctx context.Context, p *discussion.Provider) error
	ListProviders(ctx context.Context) ([]discussion.Provider, error)
	GetProvider(ctx context.Context, id string) (discussion.Provider, error)
	UpdateProvider(ctx context.Context, p discussion.Provider) error
	DeleteProvider(ctx context.Context, id string) error

	CreateSession(ctx context.Context, s *discussion.Session, providerIDs []string) error
	ListSessions(ctx context.Context) ([]discussion.Session, error)
	GetSession(ctx context.Context, id string) (discussion.Session, error)
	UpdateSession(ctx context.Context, s discussion.Session) error
	DeleteSession(ctx context.Context, id string) error
	CompleteSession(ctx context.Context, id string, rounds int, consensusPct float64, completedAt time.Time) error

	// Roster returns the session's providers in persisted speaking order.
	Roster(ctx context.Context, sessionID string) ([]discussion.Provider, error)

	CreateMessage(ctx context.Context, m *discussion.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]discussion.Message, error)
	CountMessages(ctx context.Context) (int, error)
}
