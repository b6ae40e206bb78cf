// Extraction job HTTP handlers.
//
// This file exposes control endpoints for the background enrichment job:
//   - POST /extraction/start   (schedule recurring passes)
//   - POST /extraction/stop    (cancel the schedule)
//   - POST /extraction/run     (one synchronous pass)
//   - GET  /extraction/status  (pipeline counters)
//
// The job is process-wide, not per tenant; control endpoints still require a
// tenant header so anonymous callers cannot drive it.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/realestate9x/whatsapp-listings/internal/extract"
)

// StartExtractionRequest optionally overrides the pass interval.
type StartExtractionRequest struct {
	// IntervalSeconds between passes; the configured default applies when 0.
	IntervalSeconds int `json:"interval_seconds"`
}

// StartExtraction schedules recurring extraction passes.
func (h *Handlers) StartExtraction(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	var req StartExtractionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload")
			return
		}
	}
	if req.IntervalSeconds < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "interval_seconds must be >= 0")
		return
	}

	err := h.extraction.Start(time.Duration(req.IntervalSeconds) * time.Second)
	if errors.Is(err, extract.ErrAlreadyRunning) {
		fail(c, http.StatusConflict, ErrCodeConflict, "extraction already running")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to start extraction")
		return
	}
	ok(c, http.StatusAccepted, gin.H{"status": "started"})
}

// StopExtraction cancels the extraction schedule.
func (h *Handlers) StopExtraction(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	err := h.extraction.Stop()
	if errors.Is(err, extract.ErrNotRunning) {
		fail(c, http.StatusConflict, ErrCodeConflict, "extraction not running")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to stop extraction")
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "stopped"})
}

// RunExtraction performs one synchronous pass and returns its stats.
func (h *Handlers) RunExtraction(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	stats, err := h.extraction.RunOnce(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "extraction pass failed")
		return
	}
	ok(c, http.StatusOK, stats)
}

// ExtractionStatus reports pipeline counters computed from the store.
func (h *Handlers) ExtractionStatus(c *gin.Context) {
	if _, okUser := requireUser(c); !okUser {
		return
	}
	s, err := h.extraction.Status(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to read extraction status")
		return
	}
	ok(c, http.StatusOK, s)
}
