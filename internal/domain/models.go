// Package domain defines the persistence models for conversations, messages,
// and drafts. These types are mapped with GORM and form the core data layer
// of the chat application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Message roles accepted by the messages.role check constraint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleError     = "error"
)

// ValidRole reports whether r is one of the enumerated message roles.
func ValidRole(r string) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleError:
		return true
	}
	return false
}

// Conversation is a titled, ordered sequence of messages with its own
// provider selection and system prompt.
//
// Fields:
//   - ID: surrogate integer primary key assigned at creation.
//   - Title: human-readable title; auto-derived from the first user message
//     while it still carries the default "New Chat ..." value.
//   - Model: denormalized "provider:model" selection.
//   - SystemPrompt: optional instruction prepended to every request.
//   - CreatedAt: creation time (UTC).
//   - LastActiveAt: bumped on every new message; never decreases and is
//     always >= CreatedAt.
type Conversation struct {
	ID           int64     `json:"id"             gorm:"primaryKey;autoIncrement"`
	Title        string    `json:"title"          gorm:"type:varchar(255);not null"`
	Model        string    `json:"model"          gorm:"type:varchar(255);not null;default:''"`
	SystemPrompt string    `json:"system_prompt"  gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `json:"created_at"     gorm:"not null"`
	LastActiveAt time.Time `json:"last_active_at" gorm:"not null;index:idx_conversations_last_active"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single turn within a conversation. Messages are append-only;
// the only mutation is an in-place content edit.
//
// Tokens and Cost are estimates derived from word counts and a static
// pricing table. They are not billing-accurate.
type Message struct {
	ID             int64            `json:"id"              gorm:"primaryKey;autoIncrement"`
	ConversationID int64            `json:"conversation_id" gorm:"not null;index:idx_conversation_msgs,priority:1"`
	Role           string           `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system','error')"`
	Content        string           `json:"content"         gorm:"type:text;not null"`
	Timestamp      time.Time        `json:"timestamp"       gorm:"not null;index:idx_conversation_msgs,priority:2"`
	Tokens         *int             `json:"tokens,omitempty"`
	Cost           *decimal.Decimal `json:"cost,omitempty"  gorm:"type:numeric"`

	// Conversation owns its messages; they are cascade-deleted with it.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Draft holds unsent input text for a conversation. There is at most one
// draft per conversation.
type Draft struct {
	ConversationID int64     `json:"conversation_id" gorm:"primaryKey;autoIncrement:false"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	UpdatedAt      time.Time `json:"updated_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Draft.
func (Draft) TableName() string { return "drafts" }
