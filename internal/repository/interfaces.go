package repository

import (
	"context"
	"errors"
	"time"

	"stocktake-api/internal/model"
)

// MaxBatchSize is the provider-side ceiling for one atomic batch write
// or delete. Callers must keep batches at or under this size.
const MaxBatchSize = 500

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrBatchTooLarge indicates a batch exceeded MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// SessionStore defines stocktake session data access.
type SessionStore interface {
	// Create persists a new session document.
	Create(ctx context.Context, s *model.Session) error

	// Get retrieves a session by id. Returns ErrNotFound if missing.
	Get(ctx context.Context, id string) (*model.Session, error)

	// List returns up to limit sessions, newest first.
	List(ctx context.Context, limit int) ([]model.Session, error)

	// IncrementUpdatedCount atomically adds one to the session's
	// updated-count counter.
	IncrementUpdatedCount(ctx context.Context, id string) error

	// Delete removes the session document. Deleting an absent session
	// is a no-op.
	Delete(ctx context.Context, id string) error
}

// ItemStore defines inventory item data access, scoped to a session.
type ItemStore interface {
	// BulkPut writes one batch of items atomically. The batch must not
	// exceed MaxBatchSize.
	BulkPut(ctx context.Context, sessionID string, items []model.Item) error

	// Get retrieves an item by its identity. Returns ErrNotFound if missing.
	Get(ctx context.Context, sessionID, itemID string) (*model.Item, error)

	// FindBySKU retrieves the first item whose SKU equals the given
	// value. Returns ErrNotFound if none matches.
	FindBySKU(ctx context.Context, sessionID, sku string) (*model.Item, error)

	// List returns all items ordered by creation time.
	List(ctx context.Context, sessionID string) ([]model.Item, error)

	// ListModified returns items whose modified flag is set.
	ListModified(ctx context.Context, sessionID string) ([]model.Item, error)

	// SaveCount records a counted quantity and product barcode for an
	// item, setting the modified flag, timestamp, and operator.
	SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error

	// PageIDs returns up to limit item identities remaining in the
	// session, for batched deletion.
	PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error)

	// BulkDelete removes one batch of items atomically. Deleting absent
	// items is a no-op.
	BulkDelete(ctx context.Context, sessionID string, itemIDs []string) error
}

// UnknownBarcodeStore defines unknown-barcode log access, scoped to a session.
type UnknownBarcodeStore interface {
	// Add appends a record to the session's unknown-barcode log.
	Add(ctx context.Context, sessionID string, rec *model.UnknownBarcode) error

	// List returns all records, newest first.
	List(ctx context.Context, sessionID string) ([]model.UnknownBarcode, error)

	// PageIDs returns up to limit record ids remaining in the session.
	PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error)

	// BulkDelete removes one batch of records atomically.
	BulkDelete(ctx context.Context, sessionID string, ids []string) error
}

// PresenceStore defines advisory presence records, scoped to a session.
type PresenceStore interface {
	// Heartbeat creates or refreshes the operator's presence record.
	// Records expire after ttl without a refresh.
	Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error

	// Leave removes the operator's presence record.
	Leave(ctx context.Context, sessionID, operator string) error

	// Roster returns the operators currently present in the session.
	Roster(ctx context.Context, sessionID string) ([]model.Presence, error)

	// Clear removes all presence records for the session.
	Clear(ctx context.Context, sessionID string) error
}

// Store bundles the per-entity stores of one backend.
type Store interface {
	Sessions() SessionStore
	Items() ItemStore
	UnknownBarcodes() UnknownBarcodeStore
	Presence() PresenceStore

	// Close releases the backend connection.
	Close() error
}
