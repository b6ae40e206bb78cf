// Package domain defines the persistence models for WhatsApp credentials,
// signal keys, group preferences, captured group messages, and extracted
// property listings. These types are mapped with GORM and form the core data
// layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Credential stores the serialized WhatsApp connection credentials for one
// tenant. There is exactly one row per user; it is upserted every time the
// connection library rotates its credential material.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: tenant identifier; unique, one credential blob per tenant.
//   - Creds: opaque serialized credential material (JSON blob).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Credential struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_cred_user"`
	Creds     string    `json:"-"          gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Credential.
func (Credential) TableName() string { return "whatsapp_credentials" }

// SignalKey stores one piece of cryptographic key material required by the
// connection library (pre-keys, sessions, sender keys, app state keys, …).
// Keys are synchronized as a set per tenant: the in-memory cache owned by the
// tenant session is authoritative while connected, and rows here are
// reconciled to match it on every mutation batch.
type SignalKey struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_key_user_type_id,priority:1"`
	KeyType   string    `json:"key_type" gorm:"type:varchar(32);not null;uniqueIndex:ux_key_user_type_id,priority:2"`
	KeyID     string    `json:"key_id"   gorm:"type:varchar(128);not null;uniqueIndex:ux_key_user_type_id,priority:3"`
	KeyData   string    `json:"-"        gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for SignalKey.
func (SignalKey) TableName() string { return "whatsapp_signal_keys" }

// GroupPreference records whether a tenant monitors a given WhatsApp group.
// Only messages from enabled groups enter the intake pipeline.
type GroupPreference struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_group_user_group,priority:1"`
	GroupID   string    `json:"group_id"   gorm:"type:varchar(128);not null;uniqueIndex:ux_group_user_group,priority:2"`
	GroupName string    `json:"group_name" gorm:"type:varchar(255)"`
	IsEnabled bool      `json:"is_enabled" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for GroupPreference.
func (GroupPreference) TableName() string { return "group_preferences" }

// GroupMessage is one inbound group message that passed the relevance filter.
// ContentHash is a digest over normalized text + sender and is unique per
// tenant, giving at-most-once storage for reposts and forwarded duplicates.
// Processed flips to true once the extraction job has attempted enrichment,
// regardless of whether any listing was extracted.
type GroupMessage struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string    `json:"user_id"      gorm:"type:varchar(64);not null;index;uniqueIndex:ux_msg_user_hash,priority:1"`
	GroupID     string    `json:"group_id"     gorm:"type:varchar(128);not null;index"`
	GroupName   string    `json:"group_name"   gorm:"type:varchar(255)"`
	Sender      string    `json:"sender"       gorm:"type:varchar(128);not null"`
	MessageText string    `json:"message_text" gorm:"type:text;not null"`
	Metadata    string    `json:"-"            gorm:"type:text"` // opaque structured payload (JSON)
	ContentHash string    `json:"content_hash" gorm:"type:char(64);not null;uniqueIndex:ux_msg_user_hash,priority:2"`
	Processed   bool      `json:"processed"    gorm:"not null;default:false;index"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for GroupMessage.
func (GroupMessage) TableName() string { return "group_messages" }

// PropertyListing is one structured real-estate record extracted from a
// group message. A single message may yield zero, one, or several listings
// (e.g. a posting that offers both sale and rental terms).
//
// Confidence is clamped into [0,1] at normalization time; rows are only ever
// created with a recognized ListingType and Confidence above the extraction
// job's minimum threshold.
type PropertyListing struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	MessageID    string         `json:"message_id"    gorm:"type:char(36);not null;index"`
	UserID       string         `json:"user_id"       gorm:"type:varchar(64);not null;index"`
	ListingType  string         `json:"listing_type"  gorm:"type:varchar(16);not null;check:listing_type IN ('sale','rental','lease')"`
	PropertyType string         `json:"property_type" gorm:"type:varchar(32)"`
	Location     string         `json:"location"      gorm:"type:varchar(255);index"`
	Price        *int64         `json:"price,omitempty"`
	Bedrooms     *int           `json:"bedrooms,omitempty"`
	Bathrooms    *int           `json:"bathrooms,omitempty"`
	AreaSqft     *int           `json:"area_sqft,omitempty"`
	Floor        *int           `json:"floor,omitempty"`
	Furnishing   *string        `json:"furnishing,omitempty" gorm:"type:varchar(20)"`
	HasParking   bool           `json:"has_parking"`
	ParkingCount *int           `json:"parking_count,omitempty"`
	ContactPhone string         `json:"contact_phone" gorm:"type:varchar(32)"`
	Confidence   float64        `json:"confidence"    gorm:"not null"`
	RawResponse  string         `json:"-"             gorm:"type:text"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`

	// Message is the owning group message. Listings are cascade-deleted
	// if the underlying message is removed.
	Message GroupMessage `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for PropertyListing.
func (PropertyListing) TableName() string { return "property_listings" }
