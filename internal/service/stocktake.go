package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"stocktake-api/internal/bulksync"
	"stocktake-api/internal/cache"
	"stocktake-api/internal/csvio"
	"stocktake-api/internal/model"
	"stocktake-api/internal/repository"
	"stocktake-api/internal/stream"
	"stocktake-api/pkg/uid"
)

const (
	sessionListLimit    = 10
	sessionListCacheKey = "sessions:list"
)

// StocktakeService owns all stocktake business logic: imports, lookups,
// saves, exports, presence, and session teardown. It also serves as the
// workflow controllers' backend.
type StocktakeService struct {
	store  repository.Store
	engine *bulksync.Engine
	bus    stream.Bus
	cache  cache.Cache

	sessionListTTL time.Duration
	preferenceTTL  time.Duration
}

// Config holds the service's cache TTLs.
type Config struct {
	SessionListTTL time.Duration
	PreferenceTTL  time.Duration
}

// NewStocktakeService wires the service. All dependencies are required.
func NewStocktakeService(store repository.Store, engine *bulksync.Engine, bus stream.Bus, c cache.Cache, cfg Config) *StocktakeService {
	if cfg.SessionListTTL == 0 {
		cfg.SessionListTTL = 5 * time.Second
	}
	if cfg.PreferenceTTL == 0 {
		cfg.PreferenceTTL = 30 * 24 * time.Hour
	}
	return &StocktakeService{
		store:          store,
		engine:         engine,
		bus:            bus,
		cache:          c,
		sessionListTTL: cfg.SessionListTTL,
		preferenceTTL:  cfg.PreferenceTTL,
	}
}

// ImportResult reports a completed CSV import.
type ImportResult struct {
	Session *model.Session         `json:"session"`
	Batches []bulksync.UploadProgress `json:"-"`
}

// Import parses a CSV stream, creates a session, and bulk-uploads the
// parsed items in batches. Validation failures reject before any side
// effect; an upload failure after some batches committed leaves the
// session in place so the import can be inspected or deleted.
func (s *StocktakeService) Import(ctx context.Context, r io.Reader, fileName, operator string) (*ImportResult, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, fmt.Errorf("operator name is required")
	}

	parsed, err := csvio.Parse(r)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        uid.New(),
		FileName:  fileName,
		Columns:   parsed.Columns,
		ItemCount: len(parsed.Items),
		CreatedAt: time.Now(),
		CreatedBy: operator,
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	result := &ImportResult{Session: session}
	write := func(ctx context.Context, lo, hi int) error {
		return s.store.Items().BulkPut(ctx, session.ID, parsed.Items[lo:hi])
	}
	onProgress := func(p bulksync.UploadProgress) {
		log.Printf("[Stocktake] Upload %s: batch %d/%d (%.0f%%)", session.ID, p.Batch, p.TotalBatches, p.Percent)
		result.Batches = append(result.Batches, p)
	}

	if err := s.engine.Upload(ctx, len(parsed.Items), write, onProgress); err != nil {
		return nil, fmt.Errorf("upload for session %s failed: %w", session.ID, err)
	}

	s.invalidateSessionList(ctx)
	log.Printf("[Stocktake] Imported %s: %d items from %s by %s", session.ID, session.ItemCount, fileName, operator)
	return result, nil
}

// Sessions returns the latest sessions, newest first, briefly cached.
func (s *StocktakeService) Sessions(ctx context.Context) ([]model.Session, error) {
	data, err := s.cache.GetOrSet(ctx, sessionListCacheKey, s.sessionListTTL, func() ([]byte, error) {
		sessions, err := s.store.Sessions().List(ctx, sessionListLimit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(sessions)
	})
	if err != nil {
		return nil, err
	}

	var sessions []model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Session returns one session by id.
func (s *StocktakeService) Session(ctx context.Context, id string) (*model.Session, error) {
	return s.store.Sessions().Get(ctx, id)
}

// DeleteSession drains the session's child collections in fixed order
// (items, unknown barcodes, presence) before removing the session
// document. A failure partway leaves the session document in place so
// the delete can be re-run; draining an already-empty collection is a
// no-op, making the whole operation idempotent.
func (s *StocktakeService) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.store.Sessions().Get(ctx, id); err != nil {
		return err
	}

	items := s.store.Items()
	err := s.engine.Drain(ctx,
		func(ctx context.Context, limit int) ([]string, error) { return items.PageIDs(ctx, id, limit) },
		func(ctx context.Context, ids []string) error { return items.BulkDelete(ctx, id, ids) },
		func(p bulksync.DrainProgress) {
			log.Printf("[Stocktake] Delete %s: %d items removed", id, p.Removed)
		})
	if err != nil {
		return fmt.Errorf("failed to drain items: %w", err)
	}

	unknown := s.store.UnknownBarcodes()
	err = s.engine.Drain(ctx,
		func(ctx context.Context, limit int) ([]string, error) { return unknown.PageIDs(ctx, id, limit) },
		func(ctx context.Context, ids []string) error { return unknown.BulkDelete(ctx, id, ids) },
		nil)
	if err != nil {
		return fmt.Errorf("failed to drain unknown barcodes: %w", err)
	}

	if err := s.store.Presence().Clear(ctx, id); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}

	if err := s.store.Sessions().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.invalidateSessionList(ctx)
	s.publish(ctx, stream.Event{Type: stream.EventSessionDeleted, SessionID: id})
	log.Printf("[Stocktake] Deleted session %s", id)
	return nil
}

// FindItem resolves a scanned token to an item: by identity first, then
// by SKU. Returns repository.ErrNotFound when neither matches.
func (s *StocktakeService) FindItem(ctx context.Context, sessionID, token string) (*model.Item, error) {
	item, err := s.store.Items().Get(ctx, sessionID, token)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	return s.store.Items().FindBySKU(ctx, sessionID, token)
}

// LogUnknownBarcode appends a scanned-but-unresolved token to the
// session's unknown-barcode log.
func (s *StocktakeService) LogUnknownBarcode(ctx context.Context, sessionID, barcode, operator string) error {
	rec := &model.UnknownBarcode{
		ID:        uid.New(),
		Barcode:   barcode,
		ScannedAt: time.Now(),
		ScannedBy: operator,
	}
	if err := s.store.UnknownBarcodes().Add(ctx, sessionID, rec); err != nil {
		return err
	}

	s.publish(ctx, stream.Event{Type: stream.EventUnknownBarcode, SessionID: sessionID, Payload: rec})
	log.Printf("[Stocktake] Unknown barcode %s in session %s by %s", barcode, sessionID, operator)
	return nil
}

// SaveCount commits a counted quantity and product barcode for one
// item and bumps the session's updated-count. The counter is
// independent of the per-item modified flags; retried or double saves
// may push it past the number of distinct modified items.
func (s *StocktakeService) SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error {
	if err := s.store.Items().SaveCount(ctx, sessionID, itemID, productBarcode, quantity, operator); err != nil {
		return err
	}

	if err := s.store.Sessions().IncrementUpdatedCount(ctx, sessionID); err != nil {
		log.Printf("[Stocktake] Failed to bump updated count for %s: %v", sessionID, err)
	}

	s.publish(ctx, stream.Event{
		Type:      stream.EventSessionUpdated,
		SessionID: sessionID,
		Payload:   map[string]interface{}{"item_id": itemID, "quantity": quantity, "operator": operator},
	})
	return nil
}

// Items returns all of a session's items in import order.
func (s *StocktakeService) Items(ctx context.Context, sessionID string) ([]model.Item, error) {
	return s.store.Items().List(ctx, sessionID)
}

// ModifiedItems returns only the items counted so far.
func (s *StocktakeService) ModifiedItems(ctx context.Context, sessionID string) ([]model.Item, error) {
	return s.store.Items().ListModified(ctx, sessionID)
}

// UnknownBarcodes returns the session's unknown-barcode log, newest
// first.
func (s *StocktakeService) UnknownBarcodes(ctx context.Context, sessionID string) ([]model.UnknownBarcode, error) {
	return s.store.UnknownBarcodes().List(ctx, sessionID)
}

// ExportCSV writes the session's items as CSV in the original column
// order plus the counted quantity column.
func (s *StocktakeService) ExportCSV(ctx context.Context, sessionID string, w io.Writer) error {
	session, err := s.store.Sessions().Get(ctx, sessionID)
	if err != nil {
		return err
	}
	items, err := s.store.Items().List(ctx, sessionID)
	if err != nil {
		return err
	}
	return csvio.Export(w, session.Columns, items)
}

// ExportUnknownCSV writes the unknown-barcode log as CSV.
func (s *StocktakeService) ExportUnknownCSV(ctx context.Context, sessionID string, w io.Writer) error {
	if _, err := s.store.Sessions().Get(ctx, sessionID); err != nil {
		return err
	}
	recs, err := s.store.UnknownBarcodes().List(ctx, sessionID)
	if err != nil {
		return err
	}
	return csvio.ExportUnknown(w, recs)
}

// Heartbeat refreshes an operator's advisory presence record.
func (s *StocktakeService) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return fmt.Errorf("operator name is required")
	}
	if err := s.store.Presence().Heartbeat(ctx, sessionID, operator, ttl); err != nil {
		return err
	}
	s.publish(ctx, stream.Event{Type: stream.EventPresenceChanged, SessionID: sessionID, Payload: operator})
	return nil
}

// Leave removes an operator from the roster.
func (s *StocktakeService) Leave(ctx context.Context, sessionID, operator string) error {
	if err := s.store.Presence().Leave(ctx, sessionID, operator); err != nil {
		return err
	}
	s.publish(ctx, stream.Event{Type: stream.EventPresenceChanged, SessionID: sessionID, Payload: operator})
	return nil
}

// Roster returns the operators currently present in a session.
func (s *StocktakeService) Roster(ctx context.Context, sessionID string) ([]model.Presence, error) {
	return s.store.Presence().Roster(ctx, sessionID)
}

// Subscribe registers an event handler for one session.
func (s *StocktakeService) Subscribe(sessionID string, fn stream.HandlerFunc) (*stream.Subscription, error) {
	return s.bus.Subscribe(sessionID, fn)
}

// Preferences returns an operator's stored preferences, or an empty map
// if none are stored yet.
func (s *StocktakeService) Preferences(ctx context.Context, operator string) (map[string]string, error) {
	data, err := s.cache.Get(ctx, preferenceKey(operator))
	if errors.Is(err, cache.ErrCacheMiss) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}

	prefs := map[string]string{}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetPreferences replaces an operator's stored preferences.
func (s *StocktakeService) SetPreferences(ctx context.Context, operator string, prefs map[string]string) error {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return fmt.Errorf("operator name is required")
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, preferenceKey(operator), data, s.preferenceTTL)
}

func preferenceKey(operator string) string {
	return "prefs:" + operator
}

func (s *StocktakeService) invalidateSessionList(ctx context.Context) {
	if err := s.cache.Delete(ctx, sessionListCacheKey); err != nil {
		log.Printf("[Stocktake] Failed to invalidate session list cache: %v", err)
	}
}

// publish is best effort; a bus failure never fails the operation that
// produced the event.
func (s *StocktakeService) publish(ctx context.Context, ev stream.Event) {
	ev.At = time.Now()
	if err := s.bus.Publish(ctx, ev); err != nil {
		log.Printf("[Stocktake] Failed to publish %s for %s: %v", ev.Type, ev.SessionID, err)
	}
}
