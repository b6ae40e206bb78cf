package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
)

// newTestDB opens a throwaway in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustCreateMessage(t *testing.T, db *gorm.DB, userID, text, sender string) *domain.GroupMessage {
	t.Helper()
	m := &domain.GroupMessage{
		UserID:      userID,
		GroupID:     "group-1",
		GroupName:   "Testing Flats",
		Sender:      sender,
		MessageText: text,
		ContentHash: domain.ContentHash(sender, text),
		Timestamp:   time.Now().UTC(),
	}
	if err := CreateGroupMessage(context.Background(), db, m); err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func TestUpsertCredentialCreateThenUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertCredential(ctx, db, "u1", `{"a":1}`); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Second upsert for the same user must take the conflict fallback path.
	if err := UpsertCredential(ctx, db, "u1", `{"a":2}`); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	c, err := GetCredential(ctx, db, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if c.Creds != `{"a":2}` {
		t.Errorf("creds = %q, want updated blob", c.Creds)
	}

	var count int64
	db.Model(&domain.Credential{}).Where("user_id = ?", "u1").Count(&count)
	if count != 1 {
		t.Errorf("expected a single credential row, got %d", count)
	}
}

func TestGetCredentialMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetCredential(context.Background(), db, "nobody"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSignalKeyUpsertAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	keys := []domain.SignalKey{
		{UserID: "u1", KeyType: "pre-key", KeyID: "1", KeyData: "aaa"},
		{UserID: "u1", KeyType: "pre-key", KeyID: "2", KeyData: "bbb"},
		{UserID: "u1", KeyType: "session", KeyID: "peer@s", KeyData: "ccc"},
	}
	if err := UpsertSignalKeys(ctx, db, keys); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Replacing data for an existing (type,id) must not add a row.
	if err := UpsertSignalKeys(ctx, db, []domain.SignalKey{
		{UserID: "u1", KeyType: "pre-key", KeyID: "1", KeyData: "zzz"},
	}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	all, err := ListSignalKeys(ctx, db, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(all))
	}
	for _, k := range all {
		if k.KeyType == "pre-key" && k.KeyID == "1" && k.KeyData != "zzz" {
			t.Errorf("key data not replaced: %q", k.KeyData)
		}
	}

	if err := DeleteSignalKeys(ctx, db, "u1", []KeyRef{{Type: "pre-key", ID: "2"}}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	refs, err := ListSignalKeyRefs(ctx, db, "u1")
	if err != nil {
		t.Fatalf("list refs: %v", err)
	}
	if len(refs) != 2 {
		t.Errorf("expected 2 refs after delete, got %d", len(refs))
	}

	if err := DeleteAllSignalKeys(ctx, db, "u1"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	refs, _ = ListSignalKeyRefs(ctx, db, "u1")
	if len(refs) != 0 {
		t.Errorf("expected no refs after purge, got %d", len(refs))
	}
}

func TestCreateGroupMessageDeduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mustCreateMessage(t, db, "u1", "Flat available!!", "owner")

	dup := &domain.GroupMessage{
		UserID:      "u1",
		GroupID:     "group-1",
		Sender:      "owner",
		MessageText: "flat available",
		ContentHash: domain.ContentHash("owner", "flat available"),
		Timestamp:   time.Now().UTC(),
	}
	if err := CreateGroupMessage(ctx, db, dup); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	// Same hash for a different tenant is allowed.
	other := &domain.GroupMessage{
		UserID:      "u2",
		GroupID:     "group-1",
		Sender:      "owner",
		MessageText: "flat available",
		ContentHash: domain.ContentHash("owner", "flat available"),
		Timestamp:   time.Now().UTC(),
	}
	if err := CreateGroupMessage(ctx, db, other); err != nil {
		t.Fatalf("cross-tenant insert: %v", err)
	}

	total, err := CountMessages(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 stored messages, got %d", total)
	}
}

func TestUnprocessedQueueOrderAndMark(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := mustCreateMessage(t, db, "u1", "2bhk rent 15000", "a")
	db.Model(old).Update("timestamp", time.Now().UTC().Add(-time.Hour))
	newer := mustCreateMessage(t, db, "u1", "3bhk sale 95 lakh", "b")

	got, err := ListUnprocessedMessages(ctx, db, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != old.ID {
		t.Fatalf("expected oldest-first order, got %d rows", len(got))
	}

	if err := MarkMessagesProcessed(ctx, db, []string{old.ID, newer.ID}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, _ = ListUnprocessedMessages(ctx, db, 10)
	if len(got) != 0 {
		t.Errorf("expected empty queue, got %d", len(got))
	}
	processed, _ := CountProcessedMessages(ctx, db)
	if processed != 2 {
		t.Errorf("expected 2 processed, got %d", processed)
	}
}

func TestGroupPreferenceUpsertAndToggle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := UpsertGroupPreference(ctx, db, "u1", "g1", "Flats Mumbai", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := UpsertGroupPreference(ctx, db, "u1", "g2", "Rentals Pune", true); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Toggling must update in place, not add a row.
	if err := UpsertGroupPreference(ctx, db, "u1", "g1", "Flats Mumbai", false); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	prefs, err := ListGroupPreferences(ctx, db, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(prefs) != 2 {
		t.Fatalf("expected 2 prefs, got %d", len(prefs))
	}

	ids, err := EnabledGroupIDs(ctx, db, "u1")
	if err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if _, ok := ids["g2"]; !ok || len(ids) != 1 {
		t.Errorf("expected only g2 enabled, got %v", ids)
	}
}

func TestSearchListingsFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := mustCreateMessage(t, db, "u1", "3bhk andheri west 45000/month", "broker")

	mk := func(lt, pt, loc string, price int64, beds, parking int, conf float64) {
		t.Helper()
		l := &domain.PropertyListing{
			MessageID:    msg.ID,
			UserID:       "u1",
			ListingType:  lt,
			PropertyType: pt,
			Location:     loc,
			Price:        &price,
			Bedrooms:     &beds,
			HasParking:   parking > 0,
			Confidence:   conf,
		}
		if parking > 0 {
			l.ParkingCount = &parking
		}
		if err := CreateListing(ctx, db, l); err != nil {
			t.Fatalf("create listing: %v", err)
		}
	}

	mk("rental", "apartment", "Andheri West", 45000, 3, 1, 0.9)
	mk("rental", "apartment", "Bandra", 80000, 2, 0, 0.8)
	mk("sale", "villa", "Andheri East", 25000000, 4, 2, 0.95)

	minConf := 0.85
	items, total, err := SearchListings(ctx, db, ListingFilter{
		UserID:        "u1",
		Location:      "andheri",
		MinConfidence: &minConf,
	}, 0, 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 andheri matches with conf >= 0.85, got %d", total)
	}

	beds := 3
	maxPrice := int64(50000)
	items, total, err = SearchListings(ctx, db, ListingFilter{
		UserID:      "u1",
		ListingType: "rental",
		Bedrooms:    &beds,
		MaxPrice:    &maxPrice,
	}, 0, 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || items[0].Location != "Andheri West" {
		t.Fatalf("expected the 3bhk rental, got total=%d", total)
	}

	avg, err := AvgListingConfidence(ctx, db)
	if err != nil {
		t.Fatalf("avg: %v", err)
	}
	if avg < 0.88 || avg > 0.89 {
		t.Errorf("avg confidence = %v, want ~0.8833", avg)
	}
}
