// Credential/key synchronizer.
//
// AuthState keeps the connection library's credential blob and signal key
// material consistent between an in-memory cache (hot path, read on every
// cryptographic key lookup) and the database (cold path, survives process
// restarts). The cache is owned exclusively by one tenant session; all
// mutation happens from that session's event handler, so there is a single
// writer at a time.
package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/domain"
	"github.com/realestate9x/whatsapp-listings/internal/repo"
)

// defaultKeyFlushChunk bounds how many key rows one upsert statement carries.
const defaultKeyFlushChunk = 50

// KeyRef identifies one signal key in the cache.
type KeyRef = repo.KeyRef

// AuthState is the per-tenant credential/key store handed to the Dialer.
type AuthState struct {
	userID string
	db     *gorm.DB
	log    zerolog.Logger

	creds []byte
	keys  map[KeyRef]string
	chunk int
}

// LoadAuthState builds a tenant's AuthState from the database. A missing
// credential row means a first-time login and yields fresh empty
// credentials; a failed load also falls back to fresh state (logged) rather
// than blocking startup. All stored keys are bulk-loaded into the cache.
func LoadAuthState(ctx context.Context, db *gorm.DB, userID string, log zerolog.Logger) *AuthState {
	a := &AuthState{
		userID: userID,
		db:     db,
		log:    log.With().Str("component", "authstate").Logger(),
		keys:   make(map[KeyRef]string),
		chunk:  defaultKeyFlushChunk,
	}

	cred, err := repo.GetCredential(ctx, db, userID)
	switch {
	case err == nil:
		a.creds = []byte(cred.Creds)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// normal first-time-login path
	default:
		a.log.Warn().Err(err).Msg("credential load failed, starting fresh")
	}

	keys, err := repo.ListSignalKeys(ctx, db, userID)
	if err != nil {
		a.log.Warn().Err(err).Msg("signal key load failed, starting with empty key set")
		return a
	}
	for _, k := range keys {
		a.keys[KeyRef{Type: k.KeyType, ID: k.KeyID}] = k.KeyData
	}
	return a
}

// UserID returns the owning tenant id.
func (a *AuthState) UserID() string { return a.userID }

// Credentials returns the current credential blob, or nil when the tenant
// has never completed a login.
func (a *AuthState) Credentials() []byte { return a.creds }

// HasCredentials reports whether a usable credential blob is cached.
func (a *AuthState) HasCredentials() bool { return len(a.creds) > 0 }

// SetCredentials replaces the cached credential blob. Callers follow up with
// SaveCredentials; the two are separate so the connection library can batch
// a rotation with other work.
func (a *AuthState) SetCredentials(creds []byte) { a.creds = creds }

// SaveCredentials upserts the cached blob. Uniqueness conflicts from a
// racing create are resolved by the repository's update-by-key fallback.
func (a *AuthState) SaveCredentials(ctx context.Context) error {
	if len(a.creds) == 0 {
		return nil
	}
	if err := repo.UpsertCredential(ctx, a.db, a.userID, string(a.creds)); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// GetKeys returns the cached entries for the requested ids. Absent ids are
// simply omitted, never an error. Purely in-memory, safe on the hot path.
func (a *AuthState) GetKeys(keyType string, ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if data, ok := a.keys[KeyRef{Type: keyType, ID: id}]; ok {
			out[id] = data
		}
	}
	return out
}

// SetKeys applies a mutation batch to the cache (a nil value deletes the
// entry) and immediately flushes to the database. The connection library's
// own retry logic may depend on keys being durable before it proceeds, so
// there is no write-behind delay. A failed flush leaves the cache intact and
// is surfaced to the caller; a later retry can still succeed.
func (a *AuthState) SetKeys(ctx context.Context, entries map[KeyRef]*string) error {
	for ref, data := range entries {
		if data == nil {
			delete(a.keys, ref)
		} else {
			a.keys[ref] = *data
		}
	}
	return a.Flush(ctx)
}

// Flush reconciles the stored key set with the cache: rows present remotely
// but not in the cache are deleted, and every cached entry is upserted in
// bounded-size chunks to respect statement limits.
func (a *AuthState) Flush(ctx context.Context) error {
	remote, err := repo.ListSignalKeyRefs(ctx, a.db, a.userID)
	if err != nil {
		return fmt.Errorf("flush keys: list remote: %w", err)
	}

	var stale []KeyRef
	for _, ref := range remote {
		if _, ok := a.keys[ref]; !ok {
			stale = append(stale, ref)
		}
	}
	if err := repo.DeleteSignalKeys(ctx, a.db, a.userID, stale); err != nil {
		return fmt.Errorf("flush keys: delete stale: %w", err)
	}

	batch := make([]domain.SignalKey, 0, a.chunk)
	for ref, data := range a.keys {
		batch = append(batch, domain.SignalKey{
			UserID:  a.userID,
			KeyType: ref.Type,
			KeyID:   ref.ID,
			KeyData: data,
		})
		if len(batch) == a.chunk {
			if err := repo.UpsertSignalKeys(ctx, a.db, batch); err != nil {
				return fmt.Errorf("flush keys: upsert: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := repo.UpsertSignalKeys(ctx, a.db, batch); err != nil {
		return fmt.Errorf("flush keys: upsert: %w", err)
	}
	return nil
}

// Purge wipes the tenant's credentials and keys from both the cache and the
// database. Used on terminal logout; after a purge the tenant must complete
// a fresh login challenge.
func (a *AuthState) Purge(ctx context.Context) error {
	a.creds = nil
	a.keys = make(map[KeyRef]string)
	if err := repo.DeleteAllSignalKeys(ctx, a.db, a.userID); err != nil {
		return fmt.Errorf("purge keys: %w", err)
	}
	if err := repo.DeleteCredential(ctx, a.db, a.userID); err != nil {
		return fmt.Errorf("purge credentials: %w", err)
	}
	return nil
}
