package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:wa_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeClient is a scripted connection: Connect replays the configured
// events through the registered handler.
type fakeClient struct {
	mu         sync.Mutex
	handler    func(Event)
	onConnect  []Event
	groups     []GroupInfo
	connectErr error

	disconnects int
	logouts     int
}

func (c *fakeClient) SetEventHandler(h func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeClient) Connect(ctx context.Context) error {
	if c.connectErr != nil {
		return c.connectErr
	}
	for _, evt := range c.onConnect {
		c.emit(evt)
	}
	return nil
}

func (c *fakeClient) emit(evt Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (c *fakeClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.logouts++
	c.mu.Unlock()
	c.emit(LoggedOutEvent{Reason: "requested"})
	return nil
}

func (c *fakeClient) Groups(ctx context.Context) ([]GroupInfo, error) {
	return c.groups, nil
}

func (c *fakeClient) GroupMetadata(ctx context.Context, groupID string) (GroupInfo, error) {
	for _, g := range c.groups {
		if g.ID == groupID {
			return g, nil
		}
	}
	return GroupInfo{}, errors.New("no such group")
}

// fakeDialer hands out preconfigured clients, one per Dial call.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dials   int
	err     error
}

func (d *fakeDialer) Dial(ctx context.Context, auth *AuthState) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var c *fakeClient
	if d.dials < len(d.clients) {
		c = d.clients[d.dials]
	} else if len(d.clients) > 0 {
		c = d.clients[len(d.clients)-1]
	} else {
		c = &fakeClient{}
	}
	d.dials++
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func testConfig() Config {
	return Config{
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: 2,
		SweepInterval:        time.Minute,
		IdleTimeout:          10 * time.Minute,
		HardIdleTimeout:      time.Hour,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
