package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
	"github.com/realestate9x/whatsapp-listings/internal/repo"
	"github.com/realestate9x/whatsapp-listings/internal/wa"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Credential{},
		&domain.SignalKey{},
		&domain.GroupPreference{},
		&domain.GroupMessage{},
		&domain.PropertyListing{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeGroupSource scripts the live roster of a connected session.
type fakeGroupSource struct {
	groups    []wa.GroupInfo
	err       error
	refreshed int
}

func (f *fakeGroupSource) Groups(context.Context) ([]wa.GroupInfo, error) {
	return f.groups, f.err
}

func (f *fakeGroupSource) RefreshGroups(context.Context) error {
	f.refreshed++
	return nil
}

// fakeDirectory serves one source for one user.
type fakeDirectory struct {
	userID string
	src    GroupSource
}

func (d *fakeDirectory) Lookup(userID string) (GroupSource, bool) {
	if d.src != nil && userID == d.userID {
		return d.src, true
	}
	return nil, false
}

func seedListing(t *testing.T, db *gorm.DB, userID, listingType, location string, price int64, bedrooms int, conf float64) {
	t.Helper()
	m := &domain.GroupMessage{
		ID:          uuid.NewString(),
		UserID:      userID,
		GroupID:     "g1",
		Sender:      "911234567890",
		MessageText: location,
		ContentHash: domain.ContentHash("911234567890", uuid.NewString()),
		Processed:   true,
		Timestamp:   time.Now(),
	}
	if err := repo.CreateGroupMessage(context.Background(), db, m); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	l := &domain.PropertyListing{
		ID:          uuid.NewString(),
		MessageID:   m.ID,
		UserID:      userID,
		ListingType: listingType,
		Location:    location,
		Price:       &price,
		Bedrooms:    &bedrooms,
		Confidence:  conf,
	}
	if err := repo.CreateListing(context.Background(), db, l); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
}

func TestListingSearchDefaultsAndPaging(t *testing.T) {
	db := newTestDB(t)
	for i := 0; i < 25; i++ {
		seedListing(t, db, "u1", "rental", "Andheri", 30000, 2, 0.9)
	}
	seedListing(t, db, "other", "rental", "Andheri", 30000, 2, 0.9)

	svc := &ListingService{DB: db}
	page, err := svc.Search(context.Background(), "u1", ListingSearch{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 25 {
		t.Errorf("total = %d, want 25 (tenant scoped)", page.Total)
	}
	if len(page.Items) != defaultPageSize || page.PageSize != defaultPageSize {
		t.Errorf("page size = %d/%d, want %d", len(page.Items), page.PageSize, defaultPageSize)
	}
	if page.TotalPages != 2 {
		t.Errorf("total pages = %d, want 2", page.TotalPages)
	}

	page, err = svc.Search(context.Background(), "u1", ListingSearch{Page: 2})
	if err != nil {
		t.Fatalf("Search page 2: %v", err)
	}
	if len(page.Items) != 5 {
		t.Errorf("page 2 items = %d, want 5", len(page.Items))
	}
}

func TestListingSearchFilters(t *testing.T) {
	db := newTestDB(t)
	seedListing(t, db, "u1", "rental", "Andheri West", 30000, 2, 0.9)
	seedListing(t, db, "u1", "sale", "Powai", 21000000, 3, 0.8)
	seedListing(t, db, "u1", "rental", "Bandra", 60000, 3, 0.5)

	svc := &ListingService{DB: db}

	page, err := svc.Search(context.Background(), "u1", ListingSearch{ListingType: "Rental"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 2 {
		t.Errorf("rental total = %d, want 2", page.Total)
	}

	three := 3
	maxPrice := int64(100000)
	page, err = svc.Search(context.Background(), "u1", ListingSearch{Bedrooms: &three, MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.Total != 1 || page.Items[0].Location != "Bandra" {
		t.Errorf("filtered = %+v", page.Items)
	}
}

func TestListingSearchValidation(t *testing.T) {
	svc := &ListingService{DB: newTestDB(t)}
	if _, err := svc.Search(context.Background(), "", ListingSearch{}); err != ErrMissingUserID {
		t.Errorf("missing user = %v, want ErrMissingUserID", err)
	}
	if _, err := svc.Search(context.Background(), "u1", ListingSearch{ListingType: "swap"}); err != ErrInvalidListingType {
		t.Errorf("bad type = %v, want ErrInvalidListingType", err)
	}
}

func TestGroupListMergesLiveRoster(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := repo.UpsertGroupPreference(ctx, db, "u1", "g1", "Mumbai Flats", true); err != nil {
		t.Fatalf("seed pref: %v", err)
	}

	src := &fakeGroupSource{groups: []wa.GroupInfo{
		{ID: "g1", Name: "Mumbai Flats 2.0"},
		{ID: "g2", Name: "Pune Rentals"},
	}}
	svc := &GroupService{DB: db, Sessions: &fakeDirectory{userID: "u1", src: src}}

	out, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("groups = %d, want 2", len(out))
	}
	byID := map[string]GroupView{}
	for _, g := range out {
		byID[g.GroupID] = g
	}
	if g := byID["g1"]; !g.IsEnabled || !g.Live || g.GroupName != "Mumbai Flats 2.0" {
		t.Errorf("g1 = %+v", g)
	}
	if g := byID["g2"]; g.IsEnabled || !g.Live {
		t.Errorf("g2 = %+v", g)
	}
}

func TestGroupListWithoutSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := repo.UpsertGroupPreference(ctx, db, "u1", "g1", "Mumbai Flats", true); err != nil {
		t.Fatalf("seed pref: %v", err)
	}

	svc := &GroupService{DB: db, Sessions: &fakeDirectory{}}
	out, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 || out[0].Live {
		t.Errorf("groups = %+v", out)
	}
}

func TestGroupUpdateRefreshesSession(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	src := &fakeGroupSource{}
	svc := &GroupService{DB: db, Sessions: &fakeDirectory{userID: "u1", src: src}}

	err := svc.Update(ctx, "u1", []GroupUpdate{
		{GroupID: "g1", GroupName: "Mumbai Flats", IsEnabled: true},
		{GroupID: "g2", GroupName: "Pune Rentals", IsEnabled: false},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if src.refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", src.refreshed)
	}

	enabled, err := repo.EnabledGroupIDs(ctx, db, "u1")
	if err != nil {
		t.Fatalf("EnabledGroupIDs: %v", err)
	}
	if _, ok := enabled["g1"]; !ok {
		t.Error("g1 not enabled")
	}
	if _, ok := enabled["g2"]; ok {
		t.Error("g2 enabled")
	}
}

func TestGroupUpdateValidation(t *testing.T) {
	svc := &GroupService{DB: newTestDB(t)}
	if err := svc.Update(context.Background(), "", nil); err != ErrMissingUserID {
		t.Errorf("missing user = %v", err)
	}
	if err := svc.Update(context.Background(), "u1", []GroupUpdate{{GroupID: " "}}); err != ErrEmptyGroupID {
		t.Errorf("empty group = %v", err)
	}
}
