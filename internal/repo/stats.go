// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer and for the
// per-conversation usage summary.
package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-llm-chat/internal/domain"
)

// ConversationsStats returns the number of conversations and the greatest
// LastActiveAt among them. When there are none, maxLastActive is nil.
func ConversationsStats(ctx context.Context, db *gorm.DB) (count int64, maxLastActive *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest last_active_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		LastActiveAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Conversation{}).
		Select("last_active_at").Order("last_active_at DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.LastActiveAt, nil
}

// MessagesStats returns the number of messages in a conversation and the
// latest message timestamp, or nil when the conversation has no messages.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID int64) (count int64, maxTimestamp *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		Timestamp time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Select("timestamp").Order("timestamp DESC").Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.Timestamp, nil
}

// Usage aggregates the estimated token and cost figures stored on messages.
type Usage struct {
	Messages int64           `json:"messages"`
	Tokens   int64           `json:"tokens"`
	Cost     decimal.Decimal `json:"cost"`
}

// UsageStats sums the token and cost estimates of a conversation's messages.
// A conversationID of 0 aggregates across all conversations. Costs are summed
// in decimal rather than by SQL SUM so no precision is lost to REAL.
func UsageStats(ctx context.Context, db *gorm.DB, conversationID int64) (Usage, error) {
	var rows []struct {
		Tokens *int
		Cost   *decimal.Decimal
	}
	q := db.WithContext(ctx).Model(&domain.Message{}).Select("tokens", "cost")
	if conversationID != 0 {
		q = q.Where("conversation_id = ?", conversationID)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return Usage{}, err
	}

	u := Usage{Messages: int64(len(rows)), Cost: decimal.Zero}
	for _, r := range rows {
		if r.Tokens != nil {
			u.Tokens += int64(*r.Tokens)
		}
		if r.Cost != nil {
			u.Cost = u.Cost.Add(*r.Cost)
		}
	}
	return u, nil
}
