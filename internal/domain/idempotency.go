package domain

import "time"

// Idempotency records the assistant message produced for a send request
// carrying an Idempotency-Key, keyed by (conversation_id, key). A retried
// request with the same key is answered from this record instead of
// generating a second reply.
type Idempotency struct {
	ID             string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ConversationID int64     `gorm:"not null;uniqueIndex:ux_conversation_key,priority:1"`
	Key            string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_conversation_key,priority:2"`
	MessageID      int64     `gorm:"not null"`
	Status         int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt      time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
