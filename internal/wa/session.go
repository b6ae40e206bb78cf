// Tenant session and its connection state machine.
//
// A Session owns exactly one connection for one tenant. Transitions are
// closed → connecting → open, with open → closed and connecting → closed on
// failure. closed always permits a fresh attempt; after a terminal logout
// the purge leaves the tenant with no credentials, so the next attempt goes
// through the login challenge again.
//
// All event handling is serialized by the session mutex, mirroring the
// in-order delivery guarantee of the underlying connection. The observable
// status surface is recomputed inside every transition, so external status
// queries never need their own synchronization beyond reading a copy.
package wa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
	"github.com/realestate9x/whatsapp-listings/internal/filter"
	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

// ErrNotConnected is returned by operations that require an open session.
var ErrNotConnected = errors.New("whatsapp session not connected")

// ConnState is the connection state machine's current state.
type ConnState int32

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
)

// String returns the lowercase state name used in the status surface.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Status is the observable per-tenant status surface.
type Status struct {
	Connected bool   `json:"connected"`
	QRPending bool   `json:"qr_pending"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Notifier receives lifecycle notifications from a session. The registry
// implements it; on a multi-process deployment this would be replaced by a
// message channel.
type Notifier interface {
	HandleLogout(userID string)
}

// Session is one tenant's connection, state machine, and intake pipeline.
type Session struct {
	userID string
	db     *gorm.DB
	dialer Dialer
	notify Notifier
	log    zerolog.Logger

	reconnectDelay time.Duration
	maxAttempts    int

	mu         sync.Mutex
	state      ConnState
	status     Status
	qr         string
	auth       *AuthState
	client     Client
	enabled    map[string]struct{}
	loggedOut  bool
	attempts   int
	retryTimer *time.Timer
	evicted    bool
}

func newSession(userID string, db *gorm.DB, dialer Dialer, notify Notifier, cfg Config, log zerolog.Logger) *Session {
	s := &Session{
		userID:         userID,
		db:             db,
		dialer:         dialer,
		notify:         notify,
		log:            log.With().Str("user", userID).Logger(),
		reconnectDelay: cfg.ReconnectDelay,
		maxAttempts:    cfg.MaxReconnectAttempts,
		enabled:        make(map[string]struct{}),
	}
	s.recomputeStatus("")
	return s
}

// Connect starts a background connection attempt. Calling it while already
// connecting or open is a no-op. An explicit connect after a logout starts
// the re-provisioning (QR) flow.
func (s *Session) Connect() {
	s.mu.Lock()
	if s.evicted || s.state != StateClosed {
		s.mu.Unlock()
		return
	}
	s.loggedOut = false
	s.setStateLocked(StateConnecting, "")
	s.mu.Unlock()

	go s.dial()
}

// dial runs one connection attempt off the event-handling path.
func (s *Session) dial() {
	ctx := context.Background()

	s.mu.Lock()
	if s.auth == nil {
		s.auth = LoadAuthState(ctx, s.db, s.userID, s.log)
	}
	auth := s.auth
	s.mu.Unlock()

	if err := s.refreshEnabledGroups(ctx); err != nil {
		s.log.Warn().Err(err).Msg("group preference load failed")
	}

	client, err := s.dialer.Dial(ctx, auth)
	if err != nil {
		s.connectFailed(fmt.Errorf("dial: %w", err))
		return
	}
	client.SetEventHandler(s.handleEvent)

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		s.connectFailed(fmt.Errorf("connect: %w", err))
	}
}

// connectFailed treats a failed attempt as a transient disconnect.
func (s *Session) connectFailed(err error) {
	s.log.Warn().Err(err).Msg("connection attempt failed")
	s.handleEvent(DisconnectedEvent{Reason: err})
}

// handleEvent is the single entry point for connection events. The mutex
// serializes it against API calls; events themselves arrive in order.
func (s *Session) handleEvent(evt Event) {
	switch ev := evt.(type) {
	case ConnectedEvent:
		s.onConnected()
	case QREvent:
		s.onQR(ev.Code)
	case CredentialsEvent:
		s.onCredentials(ev.Creds)
	case MessageEvent:
		s.onMessage(ev)
	case DisconnectedEvent:
		s.onDisconnected(ev.Reason)
	case LoggedOutEvent:
		s.onLoggedOut(ev.Reason)
	}
}

func (s *Session) onConnected() {
	s.mu.Lock()
	s.qr = ""
	s.attempts = 0
	s.setStateLocked(StateOpen, "")
	auth := s.auth
	s.mu.Unlock()

	s.log.Info().Msg("whatsapp session open")
	if auth != nil {
		if err := auth.SaveCredentials(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("credential persist failed after connect")
		}
	}
}

func (s *Session) onQR(code string) {
	s.mu.Lock()
	s.qr = code
	s.recomputeStatus("scan the QR code to log in")
	s.mu.Unlock()
	s.log.Info().Msg("login challenge issued")
}

func (s *Session) onCredentials(creds []byte) {
	s.mu.Lock()
	auth := s.auth
	s.mu.Unlock()
	if auth == nil {
		return
	}
	auth.SetCredentials(creds)
	if err := auth.SaveCredentials(context.Background()); err != nil {
		// Surfaced but non-fatal: the cache is intact and the next
		// rotation retries the write.
		s.log.Error().Err(err).Msg("credential persist failed")
		s.mu.Lock()
		s.recomputeStatus("credential persistence failing")
		s.mu.Unlock()
	}
}

// onMessage runs the intake pipeline: group gate → relevance filter →
// content-hash dedup → durable store. No error here may terminate event
// handling; everything is logged and dropped.
func (s *Session) onMessage(ev MessageEvent) {
	if ev.GroupID == "" {
		return // direct messages are not monitored
	}

	s.mu.Lock()
	_, monitored := s.enabled[ev.GroupID]
	s.mu.Unlock()
	if !monitored {
		return
	}

	res := filter.Classify(ev.Text)
	if !res.IsRelevant {
		messagesFiltered.WithLabelValues(s.userID).Inc()
		return
	}

	var metadata string
	if len(ev.Metadata) > 0 {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			metadata = string(b)
		}
	}

	msg := &domain.GroupMessage{
		UserID:      s.userID,
		GroupID:     ev.GroupID,
		GroupName:   ev.GroupName,
		Sender:      ev.Sender,
		MessageText: ev.Text,
		Metadata:    metadata,
		ContentHash: domain.ContentHash(ev.Sender, ev.Text),
		Timestamp:   ev.Timestamp,
	}
	err := repo.CreateGroupMessage(context.Background(), s.db, msg)
	switch {
	case err == nil:
		messagesStored.WithLabelValues(s.userID).Inc()
		s.log.Debug().
			Str("group", ev.GroupID).
			Float64("confidence", res.Confidence).
			Msg("message stored")
	case errors.Is(err, repo.ErrDuplicateMessage):
		messagesDuplicate.WithLabelValues(s.userID).Inc()
	default:
		s.log.Error().Err(err).Str("group", ev.GroupID).Msg("message store failed")
	}
}

func (s *Session) onDisconnected(reason error) {
	s.mu.Lock()
	if s.evicted || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	msg := "disconnected"
	if reason != nil {
		msg = reason.Error()
	}
	s.setStateLocked(StateClosed, msg)
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	s.log.Warn().Err(reason).Msg("whatsapp session disconnected")
}

func (s *Session) onLoggedOut(reason string) {
	s.mu.Lock()
	s.loggedOut = true
	s.qr = ""
	s.stopRetryLocked()
	s.setStateLocked(StateClosed, "logged out: "+reason)
	auth := s.auth
	s.mu.Unlock()

	s.log.Warn().Str("reason", reason).Msg("terminal logout, purging credentials")
	if auth != nil {
		if err := auth.Purge(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("credential purge failed")
		}
	}
	// The dialer may hold device state of its own; a stale paired device
	// would make the next connect skip the login challenge and loop on
	// failed handshakes.
	if p, ok := s.dialer.(DevicePurger); ok {
		if err := p.PurgeDevice(s.userID); err != nil {
			s.log.Error().Err(err).Msg("device state purge failed")
		}
	}
	if s.notify != nil {
		s.notify.HandleLogout(s.userID)
	}
}

// scheduleReconnectLocked arms the fixed-delay retry timer. After the
// attempt cap the session surfaces as needing a manual reconnect.
func (s *Session) scheduleReconnectLocked() {
	if s.loggedOut || s.evicted {
		return
	}
	if s.attempts >= s.maxAttempts {
		s.recomputeStatus("reconnect required")
		return
	}
	s.attempts++
	reconnectAttempts.WithLabelValues(s.userID).Inc()
	s.stopRetryLocked()
	s.retryTimer = time.AfterFunc(s.reconnectDelay, s.Connect)
}

func (s *Session) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// setStateLocked transitions the state machine and recomputes the status
// surface. Callers hold the mutex.
func (s *Session) setStateLocked(state ConnState, msg string) {
	s.state = state
	if state == StateOpen {
		s.qr = ""
	}
	s.recomputeStatus(msg)
}

// recomputeStatus rebuilds the status surface from current state. Called on
// every transition so Status() is always consistent without extra locking.
func (s *Session) recomputeStatus(msg string) {
	s.status = Status{
		Connected: s.state == StateOpen,
		QRPending: s.qr != "" && s.state != StateOpen,
		Status:    s.state.String(),
		Message:   msg,
	}
}

// Status returns a copy of the current status surface.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the current connection state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QR returns the pending login challenge, or "" when none is pending.
func (s *Session) QR() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr
}

// QRPending reports whether a login challenge awaits the tenant.
func (s *Session) QRPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr != "" && s.state != StateOpen
}

// Groups lists the groups the connected account participates in.
func (s *Session) Groups(ctx context.Context) ([]GroupInfo, error) {
	s.mu.Lock()
	client, open := s.client, s.state == StateOpen
	s.mu.Unlock()
	if !open || client == nil {
		return nil, ErrNotConnected
	}
	return client.Groups(ctx)
}

// RefreshGroups reloads the enabled-group set from stored preferences.
// Called on connect and after the preferences API mutates them.
func (s *Session) RefreshGroups(ctx context.Context) error {
	return s.refreshEnabledGroups(ctx)
}

func (s *Session) refreshEnabledGroups(ctx context.Context) error {
	ids, err := repo.EnabledGroupIDs(ctx, s.db, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.enabled = ids
	s.mu.Unlock()
	return nil
}

// Logout invalidates the session server-side and purges all credentials.
// When no client is attached (never connected), the purge still runs so the
// API contract holds for half-provisioned tenants.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	auth := s.auth
	s.mu.Unlock()

	if client != nil {
		if err := client.Logout(ctx); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		return nil // LoggedOut event finishes the teardown
	}

	if auth == nil {
		auth = LoadAuthState(ctx, s.db, s.userID, s.log)
	}
	if err := auth.Purge(ctx); err != nil {
		return err
	}
	s.handleEvent(LoggedOutEvent{Reason: "requested"})
	return nil
}

// shutdown tears the session down without touching credentials. Idempotent;
// used by registry eviction and process shutdown. In-flight pipeline writes
// finish naturally; only future scheduling is cancelled.
func (s *Session) shutdown() {
	s.mu.Lock()
	if s.evicted {
		s.mu.Unlock()
		return
	}
	s.evicted = true
	s.stopRetryLocked()
	client := s.client
	s.client = nil
	s.setStateLocked(StateClosed, "session closed")
	s.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}
