package wa

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

type recordingNotifier struct {
	ch chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan string, 4)}
}

func (n *recordingNotifier) HandleLogout(userID string) { n.ch <- userID }

func newTestSession(t *testing.T, db *gorm.DB, d Dialer, n Notifier) *Session {
	t.Helper()
	return newSession("u1", db, d, n, testConfig(), testLogger())
}

func enableGroup(t *testing.T, db *gorm.DB, userID, groupID string) {
	t.Helper()
	if err := repo.UpsertGroupPreference(context.Background(), db, userID, groupID, groupID, true); err != nil {
		t.Fatalf("enable group: %v", err)
	}
}

func TestSessionConnectReachesOpen(t *testing.T) {
	db := newTestDB(t)
	client := &fakeClient{onConnect: []Event{QREvent{Code: "qr-1"}, ConnectedEvent{}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	if st := s.Status(); st.Connected || st.Status != "closed" {
		t.Fatalf("initial status = %+v", st)
	}

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	st := s.Status()
	if !st.Connected || st.Status != "open" {
		t.Errorf("status after connect = %+v", st)
	}
	// The login challenge is cleared the moment the state reaches open.
	if st.QRPending || s.QR() != "" {
		t.Errorf("QR still pending after open: %+v", st)
	}
}

func TestSessionQRPendingWhileConnecting(t *testing.T) {
	db := newTestDB(t)
	client := &fakeClient{onConnect: []Event{QREvent{Code: "qr-login-1"}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.QRPending() })

	st := s.Status()
	if st.Connected || !st.QRPending || st.Status != "connecting" {
		t.Errorf("status = %+v", st)
	}
	if s.QR() != "qr-login-1" {
		t.Errorf("QR() = %q", s.QR())
	}
}

func TestSessionTransientDisconnectReconnects(t *testing.T) {
	db := newTestDB(t)
	client := &fakeClient{onConnect: []Event{ConnectedEvent{}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	client.emit(DisconnectedEvent{Reason: errors.New("stream error")})
	// The fixed-delay retry dials again and the scripted client reconnects.
	waitFor(t, time.Second, func() bool { return dialer.dialCount() >= 2 })
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })
}

func TestSessionReconnectCapSurfacesManualState(t *testing.T) {
	db := newTestDB(t)
	dialer := &fakeDialer{err: errors.New("network down")}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, 2*time.Second, func() bool {
		return s.Status().Message == "reconnect required"
	})
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

func TestSessionLogoutPurgesAndNotifies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Seed persisted credentials and keys as if a login had completed.
	a := LoadAuthState(ctx, db, "u1", testLogger())
	a.SetCredentials([]byte(`{"k":"v"}`))
	if err := a.SaveCredentials(ctx); err != nil {
		t.Fatalf("seed creds: %v", err)
	}
	if err := a.SetKeys(ctx, map[KeyRef]*string{{Type: "pre-key", ID: "1"}: strptr("x")}); err != nil {
		t.Fatalf("seed keys: %v", err)
	}

	client := &fakeClient{onConnect: []Event{ConnectedEvent{}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	notifier := newRecordingNotifier()
	s := newTestSession(t, db, dialer, notifier)

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	client.emit(LoggedOutEvent{Reason: "superseded by another client"})

	select {
	case uid := <-notifier.ch:
		if uid != "u1" {
			t.Errorf("notified user = %q", uid)
		}
	case <-time.After(time.Second):
		t.Fatal("logout never notified the registry")
	}

	if _, err := repo.GetCredential(ctx, db, "u1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("credentials survived logout purge: %v", err)
	}
	if refs, _ := repo.ListSignalKeyRefs(ctx, db, "u1"); len(refs) != 0 {
		t.Errorf("keys survived logout purge: %v", refs)
	}
	if s.State() != StateClosed {
		t.Errorf("state after logout = %v", s.State())
	}
}

// purgingDialer records PurgeDevice calls on top of the scripted dialer.
type purgingDialer struct {
	fakeDialer
	purged chan string
}

func (d *purgingDialer) PurgeDevice(userID string) error {
	d.purged <- userID
	return nil
}

func TestSessionLogoutPurgesDeviceState(t *testing.T) {
	db := newTestDB(t)

	client := &fakeClient{onConnect: []Event{ConnectedEvent{}}}
	dialer := &purgingDialer{
		fakeDialer: fakeDialer{clients: []*fakeClient{client}},
		purged:     make(chan string, 1),
	}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	// Server-initiated logout must wipe the dialer's device state too, or
	// the next connect would resume a stale pairing instead of issuing a
	// fresh login challenge.
	client.emit(LoggedOutEvent{Reason: "device removed"})

	select {
	case uid := <-dialer.purged:
		if uid != "u1" {
			t.Errorf("purged device for user %q, want u1", uid)
		}
	case <-time.After(time.Second):
		t.Fatal("terminal logout never purged the device state")
	}
}

func TestSessionMessagePipelineStoresAndDedupes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	enableGroup(t, db, "u1", "group-1")

	client := &fakeClient{onConnect: []Event{ConnectedEvent{}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	listing := MessageEvent{
		ID:        "m1",
		GroupID:   "group-1",
		GroupName: "Mumbai Flats",
		Sender:    "broker",
		Text:      "3BHK flat for rent, 15000/month, near metro, contact 9876543210",
		Kind:      KindText,
		Timestamp: time.Now().UTC(),
	}
	client.emit(listing)

	// Same content, cosmetic differences: must dedupe.
	dup := listing
	dup.ID = "m2"
	dup.Text = "3bhk FLAT for rent,  15000/month, near metro, contact 9876543210"
	client.emit(dup)

	// Irrelevant chatter: filtered before storage.
	client.emit(MessageEvent{
		ID: "m3", GroupID: "group-1", Sender: "someone",
		Text: "good morning", Timestamp: time.Now().UTC(),
	})

	// Unmonitored group: ignored entirely.
	client.emit(MessageEvent{
		ID: "m4", GroupID: "group-2", Sender: "broker",
		Text:      "2BHK flat for sale, 95 lakhs, contact 9876500000",
		Timestamp: time.Now().UTC(),
	})

	total, err := repo.CountMessages(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Errorf("stored messages = %d, want 1", total)
	}
}

func TestSessionShutdownIdempotent(t *testing.T) {
	db := newTestDB(t)
	client := &fakeClient{onConnect: []Event{ConnectedEvent{}}}
	dialer := &fakeDialer{clients: []*fakeClient{client}}
	s := newTestSession(t, db, dialer, newRecordingNotifier())

	s.Connect()
	waitFor(t, time.Second, func() bool { return s.State() == StateOpen })

	s.shutdown()
	s.shutdown()

	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", client.disconnects)
	}
}
