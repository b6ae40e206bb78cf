// Group preference HTTP handlers.
//
// This file exposes REST endpoints for group monitoring preferences:
//   - GET /groups  (stored preferences merged with the live roster)
//   - PUT /groups  (bulk enable/disable)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/realestate9x/whatsapp-listings/internal/services"
)

// UpdateGroupsRequest is the JSON payload for bulk preference updates.
type UpdateGroupsRequest struct {
	Groups []services.GroupUpdate `json:"groups" binding:"required"`
}

// ListGroups returns the tenant's groups with their monitoring flags. When
// the session is connected the live roster is merged in; otherwise stored
// preferences answer alone.
func (h *Handlers) ListGroups(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	out, err := h.groups.List(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to list groups")
		return
	}
	ok(c, http.StatusOK, gin.H{"groups": out})
}

// UpdateGroups applies a bulk set of enable/disable changes and refreshes
// the running session's monitored set.
func (h *Handlers) UpdateGroups(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	var req UpdateGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload")
		return
	}
	if err := h.groups.Update(c.Request.Context(), uid, req.Groups); err != nil {
		if errors.Is(err, services.ErrEmptyGroupID) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to update groups")
		return
	}
	ok(c, http.StatusOK, gin.H{"updated": len(req.Groups)})
}
