package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stocktake-api/internal/model"

	"stocktake-api/pkg/uid"
)

// MemoryStore is an in-memory Store implementation for development and
// testing. Thread-safe; all data is lost on process exit.
type MemoryStore struct {
	mu sync.RWMutex

	sessions map[string]*model.Session
	items    map[string]map[string]*model.Item           // sessionID -> itemID -> item
	order    map[string][]string                         // sessionID -> itemIDs in insert order
	unknown  map[string][]*model.UnknownBarcode          // sessionID -> records, oldest first
	presence map[string]map[string]presenceEntry         // sessionID -> operator -> entry
}

type presenceEntry struct {
	seenAt    time.Time
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		items:    make(map[string]map[string]*model.Item),
		order:    make(map[string][]string),
		unknown:  make(map[string][]*model.UnknownBarcode),
		presence: make(map[string]map[string]presenceEntry),
	}
}

func (m *MemoryStore) Sessions() SessionStore               { return (*memorySessions)(m) }
func (m *MemoryStore) Items() ItemStore                     { return (*memoryItems)(m) }
func (m *MemoryStore) UnknownBarcodes() UnknownBarcodeStore { return (*memoryUnknown)(m) }
func (m *MemoryStore) Presence() PresenceStore              { return (*memoryPresence)(m) }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }

type memorySessions MemoryStore

func (m *memorySessions) Create(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memorySessions) Get(ctx context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memorySessions) List(ctx context.Context, limit int) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memorySessions) IncrementUpdatedCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.UpdatedCount++
	return nil
}

func (m *memorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

type memoryItems MemoryStore

func (m *memoryItems) BulkPut(ctx context.Context, sessionID string, items []model.Item) error {
	if len(items) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byID := m.items[sessionID]
	if byID == nil {
		byID = make(map[string]*model.Item)
		m.items[sessionID] = byID
	}
	for i := range items {
		cp := items[i]
		if _, exists := byID[cp.ID]; !exists {
			m.order[sessionID] = append(m.order[sessionID], cp.ID)
		}
		byID[cp.ID] = &cp
	}
	return nil
}

func (m *memoryItems) Get(ctx context.Context, sessionID, itemID string) (*model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[sessionID][itemID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memoryItems) FindBySKU(ctx context.Context, sessionID, sku string) (*model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order[sessionID] {
		it := m.items[sessionID][id]
		if it != nil && it.SKU == sku {
			cp := *it
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryItems) List(ctx context.Context, sessionID string) ([]model.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Item, 0, len(m.order[sessionID]))
	for _, id := range m.order[sessionID] {
		if it := m.items[sessionID][id]; it != nil {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memoryItems) ListModified(ctx context.Context, sessionID string) ([]model.Item, error) {
	all, err := m.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Item, 0)
	for _, it := range all {
		if it.Modified {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memoryItems) SaveCount(ctx context.Context, sessionID, itemID, productBarcode string, quantity int, operator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[sessionID][itemID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	qty := quantity
	it.ProductBarcode = productBarcode
	it.Quantity = &qty
	it.Modified = true
	it.ModifiedAt = &now
	it.ModifiedBy = operator
	return nil
}

func (m *memoryItems) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, limit)
	for _, id := range m.order[sessionID] {
		if _, ok := m.items[sessionID][id]; !ok {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memoryItems) BulkDelete(ctx context.Context, sessionID string, itemIDs []string) error {
	if len(itemIDs) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range itemIDs {
		delete(m.items[sessionID], id)
	}
	return nil
}

type memoryUnknown MemoryStore

func (m *memoryUnknown) Add(ctx context.Context, sessionID string, rec *model.UnknownBarcode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.ID == "" {
		cp.ID = uid.New()
	}
	rec.ID = cp.ID
	m.unknown[sessionID] = append(m.unknown[sessionID], &cp)
	return nil
}

func (m *memoryUnknown) List(ctx context.Context, sessionID string) ([]model.UnknownBarcode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.unknown[sessionID]
	out := make([]model.UnknownBarcode, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- { // newest first
		out = append(out, *recs[i])
	}
	return out, nil
}

func (m *memoryUnknown) PageIDs(ctx context.Context, sessionID string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, limit)
	for _, rec := range m.unknown[sessionID] {
		ids = append(ids, rec.ID)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (m *memoryUnknown) BulkDelete(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.unknown[sessionID][:0]
	for _, rec := range m.unknown[sessionID] {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	m.unknown[sessionID] = kept
	return nil
}

type memoryPresence MemoryStore

func (m *memoryPresence) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byOp := m.presence[sessionID]
	if byOp == nil {
		byOp = make(map[string]presenceEntry)
		m.presence[sessionID] = byOp
	}
	now := time.Now()
	byOp[operator] = presenceEntry{seenAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (m *memoryPresence) Leave(ctx context.Context, sessionID, operator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.presence[sessionID], operator)
	return nil
}

func (m *memoryPresence) Roster(ctx context.Context, sessionID string) ([]model.Presence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	out := make([]model.Presence, 0)
	for op, entry := range m.presence[sessionID] {
		if entry.expiresAt.After(now) {
			out = append(out, model.Presence{Operator: op, SeenAt: entry.seenAt})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Operator) < strings.ToLower(out[j].Operator)
	})
	return out, nil
}

func (m *memoryPresence) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.presence, sessionID)
	return nil
}

// Ensure MemoryStore satisfies Store.
var _ Store = (*MemoryStore)(nil)
