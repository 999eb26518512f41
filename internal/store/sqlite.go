package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/synapsemind/backend/internal/model/discussion"
)

const schema = `
CREATE TABLE IF NOT EXISTS providers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	provider_type TEXT NOT NULL,
	model_name TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	api_base TEXT NOT NULL DEFAULT '',
	brand_color TEXT NOT NULL DEFAULT '#3b82f6',
	is_enabled INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'offline',
	avg_response_time REAL NOT NULL DEFAULT 0,
	last_check_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	topic TEXT NOT NULL,
	max_rounds INTEGER NOT NULL,
	current_round INTEGER NOT NULL DEFAULT 0,
	temperature REAL NOT NULL,
	max_tokens INTEGER NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	is_completed INTEGER NOT NULL DEFAULT 0,
	consensus_reached INTEGER NOT NULL DEFAULT 0,
	consensus_percentage REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_providers (
	session_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	order_index INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, provider_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	provider_id TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	thinking_content TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	response_time_ms REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
`

// SQLite persists sessions, providers and messages in a SQLite file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateProvider(ctx context.Context, p *discussion.Provider) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO providers (id, name, display_name, provider_type, model_name, api_key, api_base,
			brand_color, is_enabled, status, avg_response_time, last_check_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.DisplayName, p.Type, p.ModelName, p.APIKey, p.APIBase,
		p.BrandColor, p.Enabled, string(p.Status), p.AvgResponseTime, p.LastCheckAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert provider: %w", err)
	}
	return nil
}

const providerColumns = `id, name, display_name, provider_type, model_name, api_key, api_base,
	brand_color, is_enabled, status, avg_response_time, last_check_at, created_at, updated_at`

func scanProvider(row interface{ Scan(...any) error }) (discussion.Provider, error) {
	var p discussion.Provider
	var status string
	var lastCheck sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Type, &p.ModelName, &p.APIKey, &p.APIBase,
		&p.BrandColor, &p.Enabled, &status, &p.AvgResponseTime, &lastCheck, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return discussion.Provider{}, err
	}
	p.Status = discussion.ProviderStatus(status)
	if lastCheck.Valid {
		t := lastCheck.Time
		p.LastCheckAt = &t
	}
	return p, nil
}

func (s *SQLite) ListProviders(ctx context.Context) ([]discussion.Provider, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+providerColumns+" FROM providers ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []discussion.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return providers, nil
}

func (s *SQLite) GetProvider(ctx context.Context, id string) (discussion.Provider, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+providerColumns+" FROM providers WHERE id = ?", id)
	p, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return discussion.Provider{}, ErrProviderNotFound
	}
	if err != nil {
		return discussion.Provider{}, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

func (s *SQLite) UpdateProvider(ctx context.Context, p discussion.Provider) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE providers SET name = ?, display_name = ?, provider_type = ?, model_name = ?,
			api_key = ?, api_base = ?, brand_color = ?, is_enabled = ?, status = ?,
			avg_response_time = ?, last_check_at = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.DisplayName, p.Type, p.ModelName, p.APIKey, p.APIBase, p.BrandColor,
		p.Enabled, string(p.Status), p.AvgResponseTime, p.LastCheckAt, time.Now().UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (s *SQLite) DeleteProvider(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM providers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (s *SQLite) CreateSession(ctx context.Context, sess *discussion.Session, providerIDs []string) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	sess.IsActive = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, description, topic, max_rounds, current_round, temperature,
			max_tokens, is_active, is_completed, consensus_reached, consensus_percentage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, 1, 0, 0, 0, ?, ?)`,
		sess.ID, sess.Title, sess.Description, sess.Topic, sess.MaxRounds,
		sess.Temperature, sess.MaxTokens, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, providerID := range providerIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO session_providers (session_id, provider_id, order_index) VALUES (?, ?, ?)",
			sess.ID, providerID, i)
		if err != nil {
			return fmt.Errorf("failed to insert roster entry: %w", err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `id, title, description, topic, max_rounds, current_round, temperature,
	max_tokens, is_active, is_completed, consensus_reached, consensus_percentage,
	created_at, updated_at, completed_at`

func scanSession(row interface{ Scan(...any) error }) (discussion.Session, error) {
	var sess discussion.Session
	var completedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.Title, &sess.Description, &sess.Topic, &sess.MaxRounds,
		&sess.CurrentRound, &sess.Temperature, &sess.MaxTokens, &sess.IsActive, &sess.IsCompleted,
		&sess.ConsensusReached, &sess.ConsensusPercentage, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err != nil {
		return discussion.Session{}, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	return sess, nil
}

func (s *SQLite) ListSessions(ctx context.Context) ([]discussion.Session, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []discussion.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return sessions, nil
}

func (s *SQLite) GetSession(ctx context.Context, id string) (discussion.Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return discussion.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return discussion.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *SQLite) UpdateSession(ctx context.Context, sess discussion.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title = ?, description = ?, topic = ?, max_rounds = ?,
			temperature = ?, max_tokens = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		sess.Title, sess.Description, sess.Topic, sess.MaxRounds,
		sess.Temperature, sess.MaxTokens, sess.IsActive, time.Now().UTC(), sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM session_providers WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete roster: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return tx.Commit()
}

func (s *SQLite) CompleteSession(ctx context.Context, id string, rounds int, consensusPct float64, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET current_round = ?, is_active = 0, is_completed = 1,
			consensus_reached = 1, consensus_percentage = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		rounds, consensusPct, completedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SQLite) Roster(ctx context.Context, sessionID string) ([]discussion.Provider, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+providerColumns+` FROM providers
		JOIN session_providers sp ON sp.provider_id = providers.id
		WHERE sp.session_id = ?
		ORDER BY sp.order_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()

	var roster []discussion.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return roster, nil
}

func (s *SQLite) CreateMessage(ctx context.Context, m *discussion.Message) error {
	if m.SessionID == "" {
		return ErrSessionNotFound
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, provider_id, role, content, thinking_content,
			tokens_used, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.ProviderID, string(m.Role), m.Content, m.ThinkingContent,
		m.TokensUsed, m.ResponseTimeMS, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLite) ListMessages(ctx context.Context, sessionID string) ([]discussion.Message, error) {
	// rowid order is insertion order, which is exactly creation order even
	// when timestamps collide within one clock tick.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, provider_id, role, content, thinking_content,
			tokens_used, response_time_ms, created_at
		FROM messages WHERE session_id = ? ORDER BY rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []discussion.Message
	for rows.Next() {
		var m discussion.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ProviderID, &role, &m.Content,
			&m.ThinkingContent, &m.TokensUsed, &m.ResponseTimeMS, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = discussion.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}

func (s *SQLite) CountMessages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
