// Session registry: the single authoritative map from tenant id to Session,
// with lifecycle, activity tracking, and idle eviction.
package wa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

// Config holds the session-layer tunables.
type Config struct {
	// ReconnectDelay is the fixed wait between transient reconnect attempts.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts caps automatic retries before a session surfaces
	// as needing a manual reconnect.
	MaxReconnectAttempts int
	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration
	// IdleTimeout evicts sessions that are inactive, not connected, and have
	// no pending login challenge, abandoned onboarding attempts.
	IdleTimeout time.Duration
	// HardIdleTimeout additionally evicts connected sessions with no owner
	// activity, bounding total concurrent connections under load.
	HardIdleTimeout time.Duration
}

// DefaultConfig returns the production defaults for the session layer.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:       15 * time.Second,
		MaxReconnectAttempts: 5,
		SweepInterval:        time.Minute,
		IdleTimeout:          10 * time.Minute,
		HardIdleTimeout:      6 * time.Hour,
	}
}

type entry struct {
	sess       *Session
	lastActive time.Time
}

// Registry creates, looks up, and evicts tenant sessions. It implements
// Notifier so sessions can report terminal logouts back to it.
type Registry struct {
	db     *gorm.DB
	dialer Dialer
	cfg    Config
	log    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	cron    *cron.Cron
	sweepID cron.EntryID
}

// NewRegistry constructs a Registry. Call StartSweeper to arm idle eviction.
func NewRegistry(db *gorm.DB, dialer Dialer, cfg Config, log zerolog.Logger) *Registry {
	return &Registry{
		db:       db,
		dialer:   dialer,
		cfg:      cfg,
		log:      log.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*entry),
	}
}

// GetOrCreate returns the tenant's session, constructing one on first
// access. Construction registers the registry as the logout notifier,
// records activity, and, when persisted credentials exist, starts an
// opportunistic background reconnect without blocking the caller.
func (r *Registry) GetOrCreate(userID string) *Session {
	r.mu.Lock()
	if e, ok := r.sessions[userID]; ok {
		e.lastActive = time.Now()
		sess := e.sess
		r.mu.Unlock()
		return sess
	}

	sess := newSession(userID, r.db, r.dialer, r, r.cfg, r.log)
	r.sessions[userID] = &entry{sess: sess, lastActive: time.Now()}
	sessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	r.log.Info().Str("user", userID).Msg("session created")

	// Auto-reconnect when the tenant already completed a login before.
	go func() {
		if _, err := repo.GetCredential(context.Background(), r.db, userID); err == nil {
			sess.Connect()
		}
	}()

	return sess
}

// Get is a read-only lookup that refreshes the activity timestamp when the
// session exists. It never constructs a session.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	e.lastActive = time.Now()
	return e.sess, true
}

// Touch refreshes a tenant's activity timestamp without returning the
// session.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[userID]; ok {
		e.lastActive = time.Now()
	}
}

// Evict tears down and removes a tenant's session. Evicting an absent
// tenant is a no-op.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	e, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
		sessionsActive.Set(float64(len(r.sessions)))
	}
	r.mu.Unlock()

	if ok {
		e.sess.shutdown()
		r.log.Info().Str("user", userID).Msg("session evicted")
	}
}

// HandleLogout implements Notifier. The session has already purged its
// credentials by the time this fires; the registry only has to evict.
func (r *Registry) HandleLogout(userID string) {
	r.log.Info().Str("user", userID).Msg("logout notification")
	r.Evict(userID)
}

// StartSweeper arms the periodic idle sweep.
func (r *Registry) StartSweeper() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(fmt.Sprintf("@every %s", r.cfg.SweepInterval), r.sweep)
	if err != nil {
		return fmt.Errorf("schedule idle sweep: %w", err)
	}
	r.cron = c
	r.sweepID = id
	c.Start()
	return nil
}

// sweep applies the two idle thresholds. The connection state is re-checked
// at sweep time, so a session that reconnected moments earlier is spared
// and simply picked up on a later pass.
func (r *Registry) sweep() {
	now := time.Now()

	r.mu.Lock()
	var victims []string
	for userID, e := range r.sessions {
		idle := now.Sub(e.lastActive)
		switch {
		case idle > r.cfg.HardIdleTimeout:
			victims = append(victims, userID)
		case idle > r.cfg.IdleTimeout &&
			e.sess.State() != StateOpen &&
			!e.sess.QRPending():
			victims = append(victims, userID)
		}
	}
	r.mu.Unlock()

	for _, userID := range victims {
		r.log.Info().Str("user", userID).Msg("idle eviction")
		r.Evict(userID)
	}
}

// ShutdownAll cancels the sweep timer and concurrently tears down every
// session. It returns once all sessions closed or the context expired, so
// process shutdown never leaves dangling external connections silently.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	if r.cron != nil {
		r.cron.Stop()
	}
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.sess)
	}
	r.sessions = make(map[string]*entry)
	sessionsActive.Set(0)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.shutdown()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session shutdown: %w", ctx.Err())
	}
}
