// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for extracted
// property listings, including the search used by the public API and the
// aggregate counters reported by the extraction job status endpoint.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

// ListingFilter captures the supported search predicates. Zero values mean
// "no constraint" for strings; pointer fields distinguish absent from zero.
type ListingFilter struct {
	UserID        string
	ListingType   string
	PropertyType  string
	Location      string // substring match, case-insensitive
	MinPrice      *int64
	MaxPrice      *int64
	Bedrooms      *int
	MinParking    *int
	MinConfidence *float64
}

// CreateListing inserts a new extracted property listing.
func CreateListing(ctx context.Context, db *gorm.DB, l *domain.PropertyListing) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(l).Error
}

// SearchListings returns one page of listings matching the filter, newest
// first, plus the total match count for pagination.
func SearchListings(ctx context.Context, db *gorm.DB, f ListingFilter, offset, limit int) ([]domain.PropertyListing, int64, error) {
	q := db.WithContext(ctx).Model(&domain.PropertyListing{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ListingType != "" {
		q = q.Where("listing_type = ?", f.ListingType)
	}
	if f.PropertyType != "" {
		q = q.Where("property_type = ?", f.PropertyType)
	}
	if f.Location != "" {
		q = q.Where("LOWER(location) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.Bedrooms != nil {
		q = q.Where("bedrooms = ?", *f.Bedrooms)
	}
	if f.MinParking != nil {
		q = q.Where("parking_count >= ?", *f.MinParking)
	}
	if f.MinConfidence != nil {
		q = q.Where("confidence >= ?", *f.MinConfidence)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.PropertyListing
	err := q.
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}

// CountListings uses a raw COUNT so a missing table surfaces as an error.
func CountListings(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM property_listings WHERE deleted_at IS NULL").
		Scan(&total).Error
	return total, err
}

// AvgListingConfidence returns the mean parsing confidence across all
// listings, or 0 when none exist.
func AvgListingConfidence(ctx context.Context, db *gorm.DB) (float64, error) {
	var avg *float64
	err := db.WithContext(ctx).
		Raw("SELECT AVG(confidence) FROM property_listings WHERE deleted_at IS NULL").
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}
