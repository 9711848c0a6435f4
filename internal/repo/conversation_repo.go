// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Nothing is cached; every read reflects
// the table as it is.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - DeleteConversation is the exception: deleting a missing id is a no-op.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Usage:
//
//	conv, err := repo.CreateConversation(ctx, db, "New Chat", "OpenAI:gpt-4o", "")
//	if err != nil {
//	    // storage failure
//	}
//	if err := repo.RenameConversation(ctx, db, conv.ID, "Trip plans"); errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	}
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateConversation inserts a new conversation. CreatedAt and LastActiveAt
// are both set to the current UTC time.
func CreateConversation(ctx context.Context, db *gorm.DB, title, model, systemPrompt string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		Title:        title,
		Model:        model,
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a single conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns every conversation ordered by last activity,
// most recent first. It returns an empty slice when there are none.
func ListConversations(ctx context.Context, db *gorm.DB) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	err := db.WithContext(ctx).
		Order("last_active_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CountConversations returns the number of conversations whose title
// contains query (case-insensitive). An empty query counts all rows.
func CountConversations(ctx context.Context, db *gorm.DB, query string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Scopes(titleContains(query)).
		Count(&total).Error
	return total, err
}

// ListConversationsPage returns a page of conversations, optionally filtered
// by a title substring, ordered like ListConversations.
func ListConversationsPage(ctx context.Context, db *gorm.DB, query string, offset, limit int) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	err := db.WithContext(ctx).
		Scopes(titleContains(query)).
		Order("last_active_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchConversations returns all conversations whose title contains query,
// case-insensitively.
func SearchConversations(ctx context.Context, db *gorm.DB, query string) ([]domain.Conversation, error) {
	out := []domain.Conversation{}
	err := db.WithContext(ctx).
		Scopes(titleContains(query)).
		Order("last_active_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func titleContains(query string) func(*gorm.DB) *gorm.DB {
	query = strings.TrimSpace(query)
	return func(db *gorm.DB) *gorm.DB {
		if query == "" {
			return db
		}
		return db.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(query))+"%")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// RenameConversation sets the title of a conversation.
func RenameConversation(ctx context.Context, db *gorm.DB, id int64, title string) error {
	return updateConversationField(ctx, db, id, "title", title)
}

// SetModel stores a new "provider:model" selection on the conversation.
func SetModel(ctx context.Context, db *gorm.DB, id int64, model string) error {
	return updateConversationField(ctx, db, id, "model", model)
}

// SetSystemPrompt replaces the conversation's system prompt.
func SetSystemPrompt(ctx context.Context, db *gorm.DB, id int64, prompt string) error {
	return updateConversationField(ctx, db, id, "system_prompt", prompt)
}

// updateConversationField runs a single-column update. Missing is decided by
// existence rather than RowsAffected, so rewriting an identical value stays
// idempotent whatever the driver counts.
func updateConversationField(ctx context.Context, db *gorm.DB, id int64, column string, value any) error {
	if err := conversationExists(ctx, db, id); err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update(column, value).Error
}

// DeleteConversation removes a conversation together with its messages,
// draft and idempotency records. Deleting an id that does not exist is a
// no-op.
func DeleteConversation(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Draft{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Conversation{}).Error
	})
}
