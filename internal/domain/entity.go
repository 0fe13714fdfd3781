package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role tags a message with its author kind.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) String() string { return string(r) }

// Metadata is a schema-free key/value bag serialized as JSON at the
// persistence boundary.
type Metadata map[string]any

// User is a read-only reference entity; the conversation core never
// mutates it.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	LastLogin *time.Time
	Metadata  map[string]string
}

// Conversation is a durable thread of messages owned by one user.
// State carries cross-turn scratch data such as in-progress service
// request parameters. A set CompletedAt marks the conversation terminal.
type Conversation struct {
	ID          string
	UserID      string
	Title       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	State       Metadata
}

// NewConversation creates a conversation with the given id, or a fresh
// uuid when id is empty.
func NewConversation(id, userID string) *Conversation {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Title:     "New Conversation",
		CreatedAt: now,
		UpdatedAt: now,
		State:     Metadata{},
	}
}

// Message is an append-only record inside a conversation. It refers to
// its conversation by id only and is never updated after creation.
type Message struct {
	ID             string
	ConversationID string
	Content        string
	Role           Role
	Timestamp      time.Time
	Metadata       Metadata
}

// NewMessage creates a message with a fresh id and current timestamp.
func NewMessage(conversationID, content string, role Role) *Message {
	return &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		Role:           role,
		Timestamp:      time.Now().UTC(),
		Metadata:       Metadata{},
	}
}

// RequestStatus is the lifecycle state of a ServiceRequest.
type RequestStatus string

const (
	StatusPending             RequestStatus = "Pending"
	StatusInProgress          RequestStatus = "InProgress"
	StatusCompleted           RequestStatus = "Completed"
	StatusFailed              RequestStatus = "Failed"
	StatusAwaitingInformation RequestStatus = "AwaitingInformation"
)

// ServiceRequest models a follow-up request for a specific social
// service. Its lifecycle is owned by a future workflow component; the
// conversation core only classifies and responds.
type ServiceRequest struct {
	ID          string
	UserID      string
	ServiceType string
	Parameters  Metadata
	Status      RequestStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NewServiceRequest creates a pending request for the given service type.
func NewServiceRequest(userID, serviceType string, params Metadata) *ServiceRequest {
	if params == nil {
		params = Metadata{}
	}
	now := time.Now().UTC()
	return &ServiceRequest{
		ID:          uuid.New().String(),
		UserID:      userID,
		ServiceType: serviceType,
		Parameters:  params,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
