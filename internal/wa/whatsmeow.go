package wa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the whatsmeow device store
)

// WhatsmeowDialer is the production Dialer. Each tenant gets its own device
// store file under dir; the signal/device state whatsmeow manages there is
// mirrored into the tenant's AuthState via CredentialsEvent.
type WhatsmeowDialer struct {
	dir string
	log zerolog.Logger
}

// NewWhatsmeowDialer constructs a dialer that keeps per-tenant device stores
// under dir, creating it if needed.
func NewWhatsmeowDialer(dir string, log zerolog.Logger) (*WhatsmeowDialer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wa: create session dir: %w", err)
	}
	return &WhatsmeowDialer{dir: dir, log: log.With().Str("component", "whatsmeow").Logger()}, nil
}

// devicePath is the tenant's device-store file.
func (d *WhatsmeowDialer) devicePath(userID string) string {
	return filepath.Join(d.dir, sanitizeFileName(userID)+".db")
}

// PurgeDevice deletes the tenant's device store, including SQLite WAL
// sidecar files. Terminal logout calls this so a server-invalidated device
// cannot linger and shortcut the next login challenge.
func (d *WhatsmeowDialer) PurgeDevice(userID string) error {
	base := d.devicePath(userID)
	for _, p := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wa: purge device store: %w", err)
		}
	}
	d.log.Info().Str("user", userID).Msg("device store purged")
	return nil
}

// Dial opens (or creates) the tenant's device store and wraps a whatsmeow
// client around it. The returned Client is not yet connected.
func (d *WhatsmeowDialer) Dial(ctx context.Context, auth *AuthState) (Client, error) {
	path := d.devicePath(auth.UserID())
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", path), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("wa: open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("wa: load device: %w", err)
	}

	c := &meowClient{
		cli:        whatsmeow.NewClient(device, waLog.Noop),
		store:      container,
		log:        d.log.With().Str("user", auth.UserID()).Logger(),
		groupNames: make(map[string]string),
	}
	c.cli.AddEventHandler(c.dispatch)
	return c, nil
}

// meowClient adapts one *whatsmeow.Client to the Client interface.
type meowClient struct {
	cli   *whatsmeow.Client
	store *sqlstore.Container
	log   zerolog.Logger

	mu         sync.Mutex
	handler    func(Event)
	groupNames map[string]string

	qrCancel context.CancelFunc
}

// storedCreds is the credential blob persisted per tenant. The device state
// proper lives in the whatsmeow store; the blob records which device the
// tenant paired so restarts can tell a logged-in tenant from a fresh one.
type storedCreds struct {
	JID string `json:"jid"`
}

func (c *meowClient) SetEventHandler(h func(Event)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *meowClient) emit(e Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(e)
	}
}

// Connect starts the handshake. Without a paired device it requests a QR
// channel first and pumps login codes to the session as QREvents.
func (c *meowClient) Connect(ctx context.Context) error {
	if c.cli.Store.ID != nil {
		return c.cli.Connect()
	}

	qrCtx, cancel := context.WithCancel(context.Background())
	qrChan, err := c.cli.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("wa: qr channel: %w", err)
	}
	c.mu.Lock()
	c.qrCancel = cancel
	c.mu.Unlock()

	if err := c.cli.Connect(); err != nil {
		cancel()
		return fmt.Errorf("wa: connect: %w", err)
	}

	go func() {
		for item := range qrChan {
			if item.Event == "code" {
				c.emit(QREvent{Code: item.Code})
			}
		}
	}()
	return nil
}

func (c *meowClient) Disconnect() {
	c.stopQR()
	c.cli.Disconnect()
	if err := c.store.Close(); err != nil {
		c.log.Warn().Err(err).Msg("device store close failed")
	}
}

// Logout invalidates the device server-side, wipes the whatsmeow store
// entry, and reports the terminal state through a LoggedOutEvent.
func (c *meowClient) Logout(ctx context.Context) error {
	c.stopQR()
	if err := c.cli.Logout(ctx); err != nil && !errors.Is(err, whatsmeow.ErrNotLoggedIn) {
		return fmt.Errorf("wa: logout: %w", err)
	}
	c.emit(LoggedOutEvent{Reason: "user requested logout"})
	return nil
}

func (c *meowClient) Groups(ctx context.Context) ([]GroupInfo, error) {
	groups, err := c.cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("wa: list groups: %w", err)
	}
	out := make([]GroupInfo, 0, len(groups))
	c.mu.Lock()
	for _, g := range groups {
		id := g.JID.String()
		c.groupNames[id] = g.Name
		out = append(out, GroupInfo{
			ID:           id,
			Name:         g.Name,
			Participants: len(g.Participants),
		})
	}
	c.mu.Unlock()
	return out, nil
}

func (c *meowClient) GroupMetadata(ctx context.Context, groupID string) (GroupInfo, error) {
	jid, err := types.ParseJID(groupID)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("wa: bad group id %q: %w", groupID, err)
	}
	g, err := c.cli.GetGroupInfo(ctx, jid)
	if err != nil {
		return GroupInfo{}, fmt.Errorf("wa: group info: %w", err)
	}
	c.mu.Lock()
	c.groupNames[groupID] = g.Name
	c.mu.Unlock()
	return GroupInfo{ID: groupID, Name: g.Name, Participants: len(g.Participants)}, nil
}

// dispatch translates whatsmeow events into the session event union. Event
// types the session does not react to are dropped here.
func (c *meowClient) dispatch(raw interface{}) {
	switch v := raw.(type) {
	case *events.PairSuccess:
		c.emitCredentials(v.ID)

	case *events.Connected:
		if id := c.cli.Store.ID; id != nil {
			c.emitCredentials(*id)
		}
		c.emit(ConnectedEvent{})

	case *events.Disconnected:
		c.emit(DisconnectedEvent{Reason: errors.New("stream closed")})

	case *events.StreamReplaced:
		c.emit(LoggedOutEvent{Reason: "stream replaced by another client"})

	case *events.LoggedOut:
		c.emit(LoggedOutEvent{Reason: fmt.Sprint(v.Reason)})

	case *events.Message:
		c.dispatchMessage(v)
	}
}

func (c *meowClient) emitCredentials(id types.JID) {
	blob, err := json.Marshal(storedCreds{JID: id.String()})
	if err != nil {
		c.log.Error().Err(err).Msg("marshal credentials")
		return
	}
	c.emit(CredentialsEvent{Creds: blob})
}

func (c *meowClient) dispatchMessage(evt *events.Message) {
	if !evt.Info.IsGroup || evt.Info.Chat.Server == "broadcast" {
		return
	}

	var text string
	kind := KindUnknown
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
		kind = KindText
	case evt.Message.GetExtendedTextMessage() != nil:
		text = evt.Message.GetExtendedTextMessage().GetText()
		kind = KindText
	case evt.Message.GetImageMessage() != nil:
		text = evt.Message.GetImageMessage().GetCaption()
		kind = KindImage
	case evt.Message.GetDocumentMessage() != nil:
		text = evt.Message.GetDocumentMessage().GetCaption()
		kind = KindDocument
	}
	if text == "" {
		return
	}

	groupID := evt.Info.Chat.String()
	c.mu.Lock()
	name := c.groupNames[groupID]
	c.mu.Unlock()

	c.emit(MessageEvent{
		ID:        evt.Info.ID,
		GroupID:   groupID,
		GroupName: name,
		Sender:    evt.Info.Sender.User,
		Text:      text,
		Kind:      kind,
		Timestamp: evt.Info.Timestamp,
		Metadata: map[string]any{
			"message_id": evt.Info.ID,
			"push_name":  evt.Info.PushName,
			"sender_jid": evt.Info.Sender.String(),
		},
	})
}

func (c *meowClient) stopQR() {
	c.mu.Lock()
	cancel := c.qrCancel
	c.qrCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// sanitizeFileName keeps tenant ids safe to use as file names.
func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "tenant"
	}
	return b.String()
}
