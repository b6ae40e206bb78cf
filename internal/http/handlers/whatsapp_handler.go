// WhatsApp session HTTP handlers.
//
// This file exposes REST endpoints for the tenant's WhatsApp session
// lifecycle:
//   - POST /whatsapp/connect      (start or resume a login)
//   - GET  /whatsapp/status       (connection status surface)
//   - GET  /whatsapp/qr           (pending login QR, PNG or JSON)
//   - POST /whatsapp/disconnect   (drop the connection, keep credentials)
//   - POST /whatsapp/logout       (terminal logout, purge credentials)
//
// Handlers are transport-thin: they validate input, call the session
// registry and application services, and translate results into HTTP
// responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/realestate9x/whatsapp-listings/internal/extract"
	"github.com/realestate9x/whatsapp-listings/internal/services"
	"github.com/realestate9x/whatsapp-listings/internal/wa"
)

//
// Service contracts
//

// SessionManager defines the session registry operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use.
type SessionManager interface {
	// GetOrCreate returns the tenant's session, constructing one if needed.
	GetOrCreate(userID string) *wa.Session
	// Get looks up an existing session without constructing one.
	Get(userID string) (*wa.Session, bool)
	// Evict closes and removes the tenant's session, keeping credentials.
	Evict(userID string)
}

// GroupManager defines group preference operations consumed by HTTP handlers.
type GroupManager interface {
	List(ctx context.Context, userID string) ([]services.GroupView, error)
	Update(ctx context.Context, userID string, updates []services.GroupUpdate) error
}

// ListingSearcher answers filtered, paginated listing searches.
type ListingSearcher interface {
	Search(ctx context.Context, userID string, q services.ListingSearch) (*services.ListingPage, error)
}

// ExtractionController drives the background enrichment job.
type ExtractionController interface {
	Start(interval time.Duration) error
	Stop() error
	RunOnce(ctx context.Context) (extract.PassStats, error)
	Status(ctx context.Context) (extract.StatusReport, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for sessions, groups, listings, and
// extraction control. It depends on abstract contracts to keep transport
// concerns separate from business logic.
type Handlers struct {
	sessions   SessionManager
	groups     GroupManager
	listings   ListingSearcher
	extraction ExtractionController
}

// New constructs a Handlers instance bound to the given collaborators.
func New(sessions SessionManager, groups GroupManager, listings ListingSearcher, extraction ExtractionController) *Handlers {
	return &Handlers{sessions: sessions, groups: groups, listings: listings, extraction: extraction}
}

// userID extracts the tenant id set by upstream middleware, falling back to
// the X-User-ID header. An empty result means the request is anonymous and
// must be rejected by the caller.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		return strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	return ""
}

// requireUser resolves the tenant id or writes a 401 and returns false.
func requireUser(c *gin.Context) (string, bool) {
	uid := userID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required")
		return "", false
	}
	return uid, true
}

//
// Handlers
//

// Connect starts (or resumes) the tenant's WhatsApp session. The connection
// proceeds in the background; poll /whatsapp/status and /whatsapp/qr for the
// login challenge.
func (h *Handlers) Connect(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sess := h.sessions.GetOrCreate(uid)
	sess.Connect()
	ok(c, http.StatusAccepted, sess.Status())
}

// SessionStatus reports the session's connection surface. A tenant without a
// session is simply disconnected, not an error.
func (h *Handlers) SessionStatus(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	if sess, found := h.sessions.Get(uid); found {
		ok(c, http.StatusOK, sess.Status())
		return
	}
	ok(c, http.StatusOK, wa.Status{Status: "disconnected"})
}

// QR serves the pending login QR code. The default response is a PNG; pass
// ?format=json for the raw code string. 404 when no login is pending.
func (h *Handlers) QR(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sess, found := h.sessions.Get(uid)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotConnected, "no session; connect first")
		return
	}
	code := sess.QR()
	if code == "" {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no login pending")
		return
	}

	if c.Query("format") == "json" {
		ok(c, http.StatusOK, gin.H{"code": code})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to render QR code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Disconnect drops the tenant's connection but keeps stored credentials, so
// a later connect resumes without a new QR scan.
func (h *Handlers) Disconnect(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	h.sessions.Evict(uid)
	ok(c, http.StatusOK, gin.H{"status": "disconnected"})
}

// Logout terminally logs the tenant out and purges stored credentials. The
// next connect starts a fresh QR login.
func (h *Handlers) Logout(c *gin.Context) {
	uid, okUser := requireUser(c)
	if !okUser {
		return
	}
	sess, found := h.sessions.Get(uid)
	if !found {
		// Nothing running; construct transiently so stored credentials are
		// purged even after a restart.
		sess = h.sessions.GetOrCreate(uid)
	}
	if err := sess.Logout(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeLogoutFailed, "logout failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "logged_out"})
}
