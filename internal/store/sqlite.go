package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/careai/careai-go/internal/domain"
	"github.com/careai/careai-go/internal/logger"
)

// SQLite is the default persistence backend, a single local database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (or creates) the database file and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME,
			state TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_ts ON messages(conversation_id, timestamp);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
	}
	logger.L.Info("sqlite store initialized", "path", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, created_at, updated_at, completed_at, state
		FROM conversations WHERE id = ?;`, id)

	var c domain.Conversation
	var completedAt sql.NullTime
	var state string
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &completedAt, &state); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(state), &c.State); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return &c, nil
}

func (s *SQLite) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	state, err := json.Marshal(c.State)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO conversations
		(id, user_id, title, created_at, updated_at, completed_at, state)
		VALUES (?,?,?,?,?,?,?);`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt, c.CompletedAt, string(state)); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	state, err := json.Marshal(c.State)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations
		SET title = ?, updated_at = ?, completed_at = ?, state = ?
		WHERE id = ?;`,
		c.Title, c.UpdatedAt, c.CompletedAt, string(state), c.ID); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *SQLite) InsertMessage(ctx context.Context, m *domain.Message) error {
	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode message metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO messages
		(id, conversation_id, content, role, timestamp, metadata)
		VALUES (?,?,?,?,?,?);`,
		m.ID, m.ConversationID, m.Content, m.Role.String(), m.Timestamp, string(meta)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLite) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	// Newest-limit selection, then reordered ascending so the model sees
	// recent context in chronological order.
	rows, err := s.db.QueryContext(ctx, `SELECT id, conversation_id, content, role, timestamp, metadata
		FROM messages WHERE conversation_id = ?
		ORDER BY timestamp DESC LIMIT ?;`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var role, meta string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &role, &m.Timestamp, &meta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = domain.Role(role)
		if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode message metadata: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	reverse(out)
	return out, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func reverse(ms []*domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
