// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for captured group
// messages, including content-hash deduplication and the unprocessed queue
// consumed by the extraction job.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

// ErrDuplicateMessage is returned when a message with the same content hash
// was already stored for the tenant. Callers treat it as a benign drop.
var ErrDuplicateMessage = errors.New("duplicate message")

// CreateGroupMessage inserts a new group message row. A content-hash
// collision for the same tenant is reported as ErrDuplicateMessage.
func CreateGroupMessage(ctx context.Context, db *gorm.DB, m *domain.GroupMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMessage
		}
		return err
	}
	return nil
}

// ListUnprocessedMessages returns up to limit messages that the extraction
// job has not yet attempted, oldest first (Timestamp ASC, ID ASC for a
// deterministic order on equal timestamps).
func ListUnprocessedMessages(ctx context.Context, db *gorm.DB, limit int) ([]domain.GroupMessage, error) {
	var out []domain.GroupMessage
	q := db.WithContext(ctx).
		Where("processed = ?", false).
		Order("timestamp ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// MarkMessagesProcessed flips processed to true for the given ids. Marking
// an already-processed or absent id is a no-op.
func MarkMessagesProcessed(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.GroupMessage{}).
		Where("id IN ?", ids).
		Update("processed", true).Error
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM group_messages").Scan(&total).Error
	return total, err
}

// CountProcessedMessages returns how many messages the extraction job has
// already attempted.
func CountProcessedMessages(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM group_messages WHERE processed = 1").
		Scan(&total).Error
	return total, err
}
