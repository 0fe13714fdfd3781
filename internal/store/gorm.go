package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/careai/careai-go/internal/domain"
)

// conversationModel is the GORM persistence shape of a conversation.
// State is stored as a JSON text column.
type conversationModel struct {
	ID          string     `gorm:"primaryKey;size:36;column:id"`
	UserID      string     `gorm:"index:idx_conversations_user_id;size:36;not null;column:user_id"`
	Title       string     `gorm:"type:text;not null;column:title"`
	CreatedAt   time.Time  `gorm:"not null;column:created_at"`
	UpdatedAt   time.Time  `gorm:"not null;column:updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	State       string     `gorm:"type:text;not null;default:'{}';column:state"`
}

func (conversationModel) TableName() string { return "conversations" }

type messageModel struct {
	ID             string    `gorm:"primaryKey;size:36;column:id"`
	ConversationID string    `gorm:"index:idx_messages_conversation_ts,priority:1;size:36;not null;column:conversation_id"`
	Content        string    `gorm:"type:text;not null;column:content"`
	Role           string    `gorm:"size:20;not null;column:role"`
	Timestamp      time.Time `gorm:"index:idx_messages_conversation_ts,priority:2;not null;column:timestamp"`
	Metadata       string    `gorm:"type:text;not null;default:'{}';column:metadata"`
}

func (messageModel) TableName() string { return "messages" }

func toConversationModel(c *domain.Conversation) (*conversationModel, error) {
	state, err := json.Marshal(c.State)
	if err != nil {
		return nil, fmt.Errorf("encode conversation state: %w", err)
	}
	return &conversationModel{
		ID:          c.ID,
		UserID:      c.UserID,
		Title:       c.Title,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		CompletedAt: c.CompletedAt,
		State:       string(state),
	}, nil
}

func (m *conversationModel) toDomain() (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		CompletedAt: m.CompletedAt,
	}
	if err := json.Unmarshal([]byte(m.State), &c.State); err != nil {
		return nil, fmt.Errorf("decode conversation state: %w", err)
	}
	return c, nil
}

func toMessageModel(msg *domain.Message) (*messageModel, error) {
	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode message metadata: %w", err)
	}
	return &messageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		Role:           msg.Role.String(),
		Timestamp:      msg.Timestamp,
		Metadata:       string(meta),
	}, nil
}

func (m *messageModel) toDomain() (*domain.Message, error) {
	msg := &domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		Role:           domain.Role(m.Role),
		Timestamp:      m.Timestamp,
	}
	if err := json.Unmarshal([]byte(m.Metadata), &msg.Metadata); err != nil {
		return nil, fmt.Errorf("decode message metadata: %w", err)
	}
	return msg, nil
}

// Gorm is the Postgres persistence backend.
type Gorm struct {
	db *gorm.DB
}

var _ Store = (*Gorm)(nil)

// NewPostgres connects to Postgres and migrates the schema.
func NewPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.AutoMigrate(&conversationModel{}, &messageModel{}); err != nil {
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (s *Gorm) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var m conversationModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return m.toDomain()
}

func (s *Gorm) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	m, err := toConversationModel(c)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *Gorm) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	m, err := toConversationModel(c)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *Gorm) InsertMessage(ctx context.Context, msg *domain.Message) error {
	m, err := toMessageModel(msg)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Gorm) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	var models []*messageModel
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	out := make([]*domain.Message, 0, len(models))
	for _, m := range models {
		msg, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	reverse(out)
	return out, nil
}

func (s *Gorm) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
