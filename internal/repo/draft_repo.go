// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the single-row draft store.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// SaveDraft upserts the unsent text for a conversation. The text is stored
// byte-for-byte. A missing conversation yields ErrNotFound.
func SaveDraft(ctx context.Context, db *gorm.DB, conversationID int64, text string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conversationExists(ctx, tx, conversationID); err != nil {
			return err
		}
		d := &domain.Draft{
			ConversationID: conversationID,
			Content:        text,
			UpdatedAt:      time.Now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).Create(d).Error
	})
}

// LoadDraft returns the stored draft text and whether one exists.
func LoadDraft(ctx context.Context, db *gorm.DB, conversationID int64) (string, bool, error) {
	var d domain.Draft
	err := db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d.Content, true, nil
}

// ClearDraft removes a conversation's draft. It is a no-op when none exists.
func ClearDraft(ctx context.Context, db *gorm.DB, conversationID int64) error {
	return db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&domain.Draft{}).Error
}
