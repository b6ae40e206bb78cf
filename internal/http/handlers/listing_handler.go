// Property listing HTTP handlers.
//
// This file exposes the listing search endpoint:
//   - GET /listings  (filtered, paginated, newest first)
//
// Numeric filters arrive as query parameters and are optional; absent or
// malformed values simply mean "no constraint".
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/realestate9x/whatsapp-listings/internal/services"
	"github.com/realestate9x/whatsapp-listings/internal/utils"
)

// SearchListings returns a page of the tenant's extracted listings.
//
// Supported query parameters: listing_type, property_type, location,
// min_price, max_price, bedrooms, min_parking, min_confidence, page,
// page_size.
func (h *Handlers) SearchListings(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}

	q := services.ListingSearch{
		ListingType:   c.Query("listing_type"),
		PropertyType:  c.Query("property_type"),
		Location:      c.Query("location"),
		MinPrice:      utils.ParseIntPtr(c.Query("min_price")),
		MaxPrice:      utils.ParseIntPtr(c.Query("max_price")),
		MinConfidence: utils.ParseFloatPtr(c.Query("min_confidence")),
		Page:          utils.AtoiDefault(c.Query("page"), 1),
		PageSize:      utils.AtoiDefault(c.Query("page_size"), 0),
	}
	if n := utils.AtoiDefault(c.Query("bedrooms"), -1); n >= 0 {
		q.Bedrooms = &n
	}
	if n := utils.AtoiDefault(c.Query("min_parking"), -1); n >= 0 {
		q.MinParking = &n
	}

	page, err := h.listings.Search(c.Request.Context(), uid, q)
	if err != nil {
		if errors.Is(err, services.ErrInvalidListingType) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, "listing search failed")
		return
	}
	ok(c, http.StatusOK, page)
}
