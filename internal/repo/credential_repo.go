// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for WhatsApp
// credentials and signal key material.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

// KeyRef identifies one signal key within a tenant's key set.
type KeyRef struct {
	Type string
	ID   string
}

// GetCredential fetches the credential row for a user.
// Returns gorm.ErrRecordNotFound when the user has never logged in.
func GetCredential(ctx context.Context, db *gorm.DB, userID string) (*domain.Credential, error) {
	var c domain.Credential
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCredential creates or replaces the credential blob for a user.
// Insert is attempted first; a uniqueness conflict (two processes, or a
// retry racing an earlier create) falls back to an update by user id.
func UpsertCredential(ctx context.Context, db *gorm.DB, userID, creds string) error {
	c := &domain.Credential{
		ID:        uuid.NewString(),
		UserID:    userID,
		Creds:     creds,
		CreatedAt: time.Now().UTC(),
	}
	err := db.WithContext(ctx).Create(c).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.Credential{}).
		Where("user_id = ?", userID).
		Update("creds", creds).Error
}

// DeleteCredential removes the credential row for a user. Deleting an
// absent row is a no-op.
func DeleteCredential(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Credential{}).Error
}

// ListSignalKeys bulk-loads every signal key for a user, used to warm the
// in-memory cache on session start.
func ListSignalKeys(ctx context.Context, db *gorm.DB, userID string) ([]domain.SignalKey, error) {
	var out []domain.SignalKey
	err := db.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error
	return out, err
}

// ListSignalKeyRefs returns only the (type, id) identity of every stored key
// for a user, for computing the flush difference without loading key data.
func ListSignalKeyRefs(ctx context.Context, db *gorm.DB, userID string) ([]KeyRef, error) {
	var rows []domain.SignalKey
	err := db.WithContext(ctx).
		Select("key_type", "key_id").
		Where("user_id = ?", userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	refs := make([]KeyRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, KeyRef{Type: r.KeyType, ID: r.KeyID})
	}
	return refs, nil
}

// UpsertSignalKeys inserts or replaces a batch of signal keys. Conflict on
// (user_id, key_type, key_id) updates key_data in place.
func UpsertSignalKeys(ctx context.Context, db *gorm.DB, keys []domain.SignalKey) error {
	if len(keys) == 0 {
		return nil
	}
	for i := range keys {
		if keys[i].ID == "" {
			keys[i].ID = uuid.NewString()
		}
		if keys[i].CreatedAt.IsZero() {
			keys[i].CreatedAt = time.Now().UTC()
		}
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "key_type"}, {Name: "key_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"key_data"}),
		}).
		Create(&keys).Error
}

// DeleteSignalKeys removes the given keys for a user.
func DeleteSignalKeys(ctx context.Context, db *gorm.DB, userID string, refs []KeyRef) error {
	for _, ref := range refs {
		err := db.WithContext(ctx).
			Where("user_id = ? AND key_type = ? AND key_id = ?", userID, ref.Type, ref.ID).
			Delete(&domain.SignalKey{}).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllSignalKeys removes every signal key for a user (logout purge).
func DeleteAllSignalKeys(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.SignalKey{}).Error
}

// isUniqueViolation reports whether err is a uniqueness-constraint error.
// gorm.ErrDuplicatedKey is checked first; the string match covers SQLite
// drivers that surface the raw constraint message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}
