// Package wa implements the multi-tenant WhatsApp session layer: the
// per-tenant connection state machine, the credential/key synchronizer that
// keeps the connection library's signal store consistent with the database,
// and the session registry that supervises lifecycle and idle eviction.
//
// The wire protocol itself lives behind the Client interface; this package
// never touches encryption or framing. A production Dialer wraps the actual
// connection library, tests substitute a scripted fake.
package wa

import (
	"context"
	"time"
)

// Client is the capability interface over one live WhatsApp connection.
// Implementations deliver events through the handler registered with
// SetEventHandler before Connect is called; events for one connection are
// delivered strictly in order.
type Client interface {
	// SetEventHandler registers the single event callback. Must be called
	// before Connect.
	SetEventHandler(h func(Event))

	// Connect performs the handshake asynchronously. Progress (QR codes,
	// success, failure) is reported through events.
	Connect(ctx context.Context) error

	// Disconnect closes the connection without invalidating credentials.
	Disconnect()

	// Logout invalidates the server-side session. The client emits a
	// LoggedOut event before returning.
	Logout(ctx context.Context) error

	// Groups lists the groups this account participates in.
	Groups(ctx context.Context) ([]GroupInfo, error)

	// GroupMetadata fetches display metadata for one group.
	GroupMetadata(ctx context.Context, groupID string) (GroupInfo, error)
}

// Dialer constructs a Client bound to a tenant's credential/key state.
// The client reads and writes credentials and keys through the AuthState,
// which persists them behind the scenes.
type Dialer interface {
	Dial(ctx context.Context, auth *AuthState) (Client, error)
}

// DevicePurger is implemented by dialers that keep per-tenant device state
// of their own, outside the credential store. PurgeDevice removes that
// state so the next dial starts a fresh pairing; the session calls it as
// part of the terminal-logout purge.
type DevicePurger interface {
	PurgeDevice(userID string) error
}

// GroupInfo is display metadata for one WhatsApp group.
type GroupInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants,omitempty"`
}

// Event is the tagged union of connection events. The known variants below
// cover everything the session state machine reacts to; unrecognized event
// types from the underlying library are dropped by the adapter before they
// reach this layer.
type Event interface{ isEvent() }

// ConnectedEvent signals a successful handshake.
type ConnectedEvent struct{}

// QREvent carries a login challenge the tenant must scan to authorize a new
// device. Emitted while connecting without valid credentials.
type QREvent struct {
	Code string
}

// CredentialsEvent signals that the connection library rotated its
// credential material; the new blob must be persisted before proceeding.
type CredentialsEvent struct {
	Creds []byte
}

// MessageEvent is one inbound message.
type MessageEvent struct {
	ID        string
	GroupID   string
	GroupName string
	Sender    string
	Text      string
	Kind      MessageKind
	Timestamp time.Time
	// Metadata is the raw structured payload, preserved opaquely.
	Metadata map[string]any
}

// DisconnectedEvent signals a transient connection loss. The session will
// retry with a fixed delay up to its attempt cap.
type DisconnectedEvent struct {
	Reason error
}

// LoggedOutEvent signals a terminal session failure: an explicit logout or
// another client superseding this one. Credentials are purged and the
// session is evicted; no reconnect is attempted.
type LoggedOutEvent struct {
	Reason string
}

func (ConnectedEvent) isEvent()    {}
func (QREvent) isEvent()           {}
func (CredentialsEvent) isEvent()  {}
func (MessageEvent) isEvent()      {}
func (DisconnectedEvent) isEvent() {}
func (LoggedOutEvent) isEvent()    {}

// MessageKind classifies the payload shape of an inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindDocument MessageKind = "document"
	KindUnknown  MessageKind = "unknown"
)
