// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// AddMessage appends a message to a conversation and bumps the conversation's
// LastActiveAt in the same transaction. A missing conversation yields
// ErrNotFound; no conversation is ever created implicitly.
//
// The message timestamp is never earlier than the conversation's current
// LastActiveAt, so timestamp order matches insertion order even if the wall
// clock steps backwards.
func AddMessage(ctx context.Context, db *gorm.DB, conversationID int64, role, content string, tokens *int, cost *decimal.Decimal) (*domain.Message, error) {
	var out *domain.Message
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv domain.Conversation
		if err := tx.Select("id", "last_active_at").Where("id = ?", conversationID).First(&conv).Error; err != nil {
			return err
		}

		ts := time.Now().UTC()
		if ts.Before(conv.LastActiveAt) {
			ts = conv.LastActiveAt
		}
		m := &domain.Message{
			ConversationID: conversationID,
			Role:           role,
			Content:        content,
			Timestamp:      ts,
			Tokens:         tokens,
			Cost:           cost,
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_active_at", ts).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns a conversation's messages ordered deterministically
// (Timestamp ASC, ID ASC). A conversation without messages yields an empty
// slice; a missing conversation yields ErrNotFound.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID int64) ([]domain.Message, error) {
	if err := conversationExists(ctx, db, conversationID); err != nil {
		return nil, err
	}
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountMessages returns the number of messages stored for a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// GetMessage fetches a message scoped to its conversation.
func GetMessage(ctx context.Context, db *gorm.DB, conversationID, messageID int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessage fetches a message by id alone.
func FindMessage(ctx context.Context, db *gorm.DB, messageID int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", messageID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageContent rewrites the stored content of one message in place.
// It is the only mutation messages support.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, conversationID, messageID int64, content string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SearchMessages returns messages whose content contains every given term
// (case-insensitive), newest first, capped at limit.
func SearchMessages(ctx context.Context, db *gorm.DB, terms []string, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	if len(terms) == 0 {
		return out, nil
	}
	q := db.WithContext(ctx).Model(&domain.Message{})
	for _, t := range terms {
		q = q.Where("LOWER(content) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(t))+"%")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("timestamp DESC, id DESC").Find(&out).Error
	return out, err
}

func conversationExists(ctx context.Context, db *gorm.DB, id int64) error {
	var n int64
	if err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
