// Package services – GroupService
//
// This file implements GroupService, which merges the tenant's live WhatsApp
// group list (when a session is connected) with the stored monitoring
// preferences, and applies preference updates back to the running session.
package services

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/repo"
	"github.com/realestate9x/whatsapp-listings/internal/wa"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GroupSource is the slice of a live session the group service consumes:
// the current group roster and a way to reload monitoring preferences.
type GroupSource interface {
	Groups(ctx context.Context) ([]wa.GroupInfo, error)
	RefreshGroups(ctx context.Context) error
}

// SessionDirectory looks up a tenant's live session without constructing
// one. The second return is false when no session exists.
type SessionDirectory interface {
	Lookup(userID string) (GroupSource, bool)
}

// GroupView is one group as presented to the caller. Live marks groups seen
// on the connected session right now; stored-only groups (e.g. from a past
// connection) have Live false.
type GroupView struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	IsEnabled bool   `json:"is_enabled"`
	Live      bool   `json:"live"`
}

// GroupUpdate is one preference change from the caller.
type GroupUpdate struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	IsEnabled bool   `json:"is_enabled"`
}

// GroupService reads and writes per-tenant group monitoring preferences.
type GroupService struct {
	DB       *gorm.DB
	Sessions SessionDirectory
}

// List returns the union of the tenant's stored preferences and, when the
// session is connected, the live group roster. Groups never seen before
// default to disabled. Results are sorted by name for stable output.
func (s *GroupService) List(ctx context.Context, userID string) ([]GroupView, error) {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}

	prefs, err := repo.ListGroupPreferences(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*GroupView, len(prefs))
	out := make([]GroupView, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, GroupView{
			GroupID:   p.GroupID,
			GroupName: p.GroupName,
			IsEnabled: p.IsEnabled,
		})
		byID[p.GroupID] = &out[len(out)-1]
	}

	// Overlay the live roster when the session can serve it. A closed or
	// absent session is not an error; stored preferences still answer.
	if s.Sessions != nil {
		if sess, ok := s.Sessions.Lookup(userID); ok {
			if live, err := sess.Groups(ctx); err == nil {
				for _, g := range live {
					if v, seen := byID[g.ID]; seen {
						v.Live = true
						if g.Name != "" {
							v.GroupName = g.Name
						}
						continue
					}
					out = append(out, GroupView{
						GroupID:   g.ID,
						GroupName: g.Name,
						Live:      true,
					})
					byID[g.ID] = &out[len(out)-1]
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupName != out[j].GroupName {
			return out[i].GroupName < out[j].GroupName
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out, nil
}

// Update upserts the given preferences and refreshes the running session's
// monitored-group set so changes take effect without a reconnect.
func (s *GroupService) Update(ctx context.Context, userID string, updates []GroupUpdate) error {
	tr := otel.Tracer("services/GroupService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("updates", len(updates)),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrMissingUserID
	}
	for _, u := range updates {
		if strings.TrimSpace(u.GroupID) == "" {
			return ErrEmptyGroupID
		}
	}

	for _, u := range updates {
		if err := repo.UpsertGroupPreference(ctx, s.DB, userID, u.GroupID, u.GroupName, u.IsEnabled); err != nil {
			return err
		}
	}

	if s.Sessions != nil {
		if sess, ok := s.Sessions.Lookup(userID); ok {
			// Best effort: a closed session reloads preferences on connect.
			_ = sess.RefreshGroups(ctx)
		}
	}
	return nil
}
