package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"stocktake-api/internal/model"
)

func seedItems(t *testing.T, store Store, sessionID string, items ...model.Item) {
	t.Helper()
	if err := store.Items().BulkPut(context.Background(), sessionID, items); err != nil {
		t.Fatalf("BulkPut failed: %v", err)
	}
}

func TestMemorySessionsLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		err := store.Sessions().Create(ctx, &model.Session{
			ID:        id,
			FileName:  id + ".csv",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	list, err := store.Sessions().List(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("expected newest-first limited list, got %v", list)
	}

	if err := store.Sessions().IncrementUpdatedCount(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Sessions().IncrementUpdatedCount(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	s, err := store.Sessions().Get(ctx, "a")
	if err != nil || s.UpdatedCount != 2 {
		t.Errorf("expected updated count 2, got %+v (%v)", s, err)
	}

	if err := store.Sessions().Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Sessions().Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	// Delete of an absent session is a no-op.
	if err := store.Sessions().Delete(ctx, "a"); err != nil {
		t.Errorf("re-delete must not error: %v", err)
	}
}

func TestMemoryItemsPreserveInsertOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedItems(t, store, "s1",
		model.Item{ID: "333", Barcode: "333"},
		model.Item{ID: "111", Barcode: "111"},
		model.Item{ID: "222", Barcode: "222"},
	)

	items, err := store.Items().List(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	got := []string{items[0].ID, items[1].ID, items[2].ID}
	want := []string{"333", "111", "222"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected insert order %v, got %v", want, got)
		}
	}
}

func TestMemoryItemsBatchCeiling(t *testing.T) {
	store := NewMemoryStore()
	batch := make([]model.Item, MaxBatchSize+1)
	for i := range batch {
		batch[i] = model.Item{ID: model.PlaceholderID(i)}
	}

	err := store.Items().BulkPut(context.Background(), "s1", batch)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestMemoryItemsSaveCount(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedItems(t, store, "s1", model.Item{ID: "111", Barcode: "111"})

	if err := store.Items().SaveCount(ctx, "s1", "111", "999", 5, "alice"); err != nil {
		t.Fatalf("SaveCount failed: %v", err)
	}

	it, err := store.Items().Get(ctx, "s1", "111")
	if err != nil {
		t.Fatal(err)
	}
	if !it.Modified || it.Quantity == nil || *it.Quantity != 5 || it.ProductBarcode != "999" {
		t.Errorf("unexpected item after save: %+v", it)
	}
	if it.ModifiedBy != "alice" || it.ModifiedAt == nil {
		t.Errorf("missing modification metadata: %+v", it)
	}

	if err := store.Items().SaveCount(ctx, "s1", "nope", "x", 1, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for absent item, got %v", err)
	}

	modified, err := store.Items().ListModified(ctx, "s1")
	if err != nil || len(modified) != 1 {
		t.Errorf("expected 1 modified item, got %d (%v)", len(modified), err)
	}
}

func TestMemoryItemsFindBySKU(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedItems(t, store, "s1",
		model.Item{ID: "111", Barcode: "111", SKU: "SKU-1"},
		model.Item{ID: "222", Barcode: "222", SKU: "SKU-2"},
	)

	it, err := store.Items().FindBySKU(ctx, "s1", "SKU-2")
	if err != nil || it.ID != "222" {
		t.Errorf("expected item 222, got %+v (%v)", it, err)
	}
	if _, err := store.Items().FindBySKU(ctx, "s1", "SKU-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryItemsPagedDeletion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	batch := make([]model.Item, 5)
	for i := range batch {
		batch[i] = model.Item{ID: model.PlaceholderID(i)}
	}
	seedItems(t, store, "s1", batch...)

	removed := 0
	for {
		ids, err := store.Items().PageIDs(ctx, "s1", 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) == 0 {
			break
		}
		if len(ids) > 2 {
			t.Fatalf("page exceeded limit: %v", ids)
		}
		if err := store.Items().BulkDelete(ctx, "s1", ids); err != nil {
			t.Fatal(err)
		}
		removed += len(ids)
	}
	if removed != 5 {
		t.Errorf("expected 5 removed, got %d", removed)
	}

	items, _ := store.Items().List(ctx, "s1")
	if len(items) != 0 {
		t.Errorf("expected empty collection, got %d", len(items))
	}
}

func TestMemoryUnknownBarcodesNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, b := range []string{"first", "second", "third"} {
		err := store.UnknownBarcodes().Add(ctx, "s1", &model.UnknownBarcode{Barcode: b, ScannedAt: time.Now()})
		if err != nil {
			t.Fatal(err)
		}
	}

	recs, err := store.UnknownBarcodes().List(ctx, "s1")
	if err != nil || len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d (%v)", len(recs), err)
	}
	if recs[0].Barcode != "third" || recs[2].Barcode != "first" {
		t.Errorf("expected newest first, got %v", recs)
	}

	// Assigned ids page and delete like items do.
	ids, err := store.UnknownBarcodes().PageIDs(ctx, "s1", 10)
	if err != nil || len(ids) != 3 {
		t.Fatal(err)
	}
	if err := store.UnknownBarcodes().BulkDelete(ctx, "s1", ids); err != nil {
		t.Fatal(err)
	}
	recs, _ = store.UnknownBarcodes().List(ctx, "s1")
	if len(recs) != 0 {
		t.Errorf("expected drained log, got %d", len(recs))
	}
}

func TestMemoryPresenceTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Presence().Heartbeat(ctx, "s1", "Bob", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := store.Presence().Heartbeat(ctx, "s1", "alice", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	roster, err := store.Presence().Roster(ctx, "s1")
	if err != nil || len(roster) != 2 {
		t.Fatalf("expected 2 present, got %d (%v)", len(roster), err)
	}
	// Case-insensitive ordering.
	if roster[0].Operator != "alice" || roster[1].Operator != "Bob" {
		t.Errorf("unexpected roster order: %v", roster)
	}

	time.Sleep(30 * time.Millisecond)
	roster, _ = store.Presence().Roster(ctx, "s1")
	if len(roster) != 1 || roster[0].Operator != "Bob" {
		t.Errorf("expected expired entry dropped, got %v", roster)
	}

	if err := store.Presence().Clear(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	roster, _ = store.Presence().Roster(ctx, "s1")
	if len(roster) != 0 {
		t.Errorf("expected cleared roster, got %v", roster)
	}
}
