// Package services – ListingService
//
// This file implements ListingService, the application-level component that
// answers paginated, filtered searches over extracted property listings. It
// validates filter inputs, applies pagination defaults, and delegates the
// query to the repo layer.
package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
	"github.com/realestate9x/whatsapp-listings/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListingSearch carries caller-supplied filters. Zero values mean "no
// constraint"; pointers distinguish absent numeric filters from zero ones.
type ListingSearch struct {
	ListingType   string
	PropertyType  string
	Location      string
	MinPrice      *int64
	MaxPrice      *int64
	Bedrooms      *int
	MinParking    *int
	MinConfidence *float64
	Page          int
	PageSize      int
}

// ListingPage is one page of search results plus pagination metadata.
type ListingPage struct {
	Items      []domain.PropertyListing `json:"items"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	Total      int64                    `json:"total"`
	TotalPages int                      `json:"total_pages"`
}

// ListingService answers listing searches scoped to a single tenant.
type ListingService struct {
	DB *gorm.DB
}

// Search validates the filters, applies pagination defaults, and returns the
// requested page of the tenant's listings, newest first.
func (s *ListingService) Search(ctx context.Context, userID string, q ListingSearch) (*ListingPage, error) {
	tr := otel.Tracer("services/ListingService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}
	lt := strings.ToLower(strings.TrimSpace(q.ListingType))
	switch lt {
	case "", "sale", "rental", "lease":
	default:
		return nil, ErrInvalidListingType
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	f := repo.ListingFilter{
		UserID:        userID,
		ListingType:   lt,
		PropertyType:  strings.ToLower(strings.TrimSpace(q.PropertyType)),
		Location:      strings.TrimSpace(q.Location),
		MinPrice:      q.MinPrice,
		MaxPrice:      q.MaxPrice,
		Bedrooms:      q.Bedrooms,
		MinParking:    q.MinParking,
		MinConfidence: q.MinConfidence,
	}

	items, total, err := repo.SearchListings(ctx, s.DB, f, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &ListingPage{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}
