// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-tenant
// group monitoring preferences.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

// UpsertGroupPreference creates or updates the monitoring preference for one
// (user, group) pair.
func UpsertGroupPreference(ctx context.Context, db *gorm.DB, userID, groupID, groupName string, enabled bool) error {
	p := &domain.GroupPreference{
		ID:        uuid.NewString(),
		UserID:    userID,
		GroupID:   groupID,
		GroupName: groupName,
		IsEnabled: enabled,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"group_name", "is_enabled", "updated_at"}),
		}).
		Create(p).Error
}

// ListGroupPreferences returns all stored preferences for a user, ordered by
// group name for stable presentation.
func ListGroupPreferences(ctx context.Context, db *gorm.DB, userID string) ([]domain.GroupPreference, error) {
	var out []domain.GroupPreference
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("group_name ASC, group_id ASC").
		Find(&out).Error
	return out, err
}

// EnabledGroupIDs returns the set of group ids the user currently monitors.
func EnabledGroupIDs(ctx context.Context, db *gorm.DB, userID string) (map[string]struct{}, error) {
	var rows []domain.GroupPreference
	err := db.WithContext(ctx).
		Select("group_id").
		Where("user_id = ? AND is_enabled = ?", userID, true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		ids[r.GroupID] = struct{}{}
	}
	return ids, nil
}
