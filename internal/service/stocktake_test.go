package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stocktake-api/internal/bulksync"
	"stocktake-api/internal/cache"
	"stocktake-api/internal/repository"
	"stocktake-api/internal/stream"
)

func newTestService(t *testing.T) (*StocktakeService, repository.Store) {
	t.Helper()
	store := repository.NewMemoryStore()
	engine := bulksync.New(bulksync.Config{BatchSize: 2, PageSize: 2, MaxRetries: 1})
	bus := stream.NewMemoryBus()
	c := cache.NewMemoryCache()
	t.Cleanup(func() {
		c.Close()
		bus.Close()
		store.Close()
	})
	svc := NewStocktakeService(store, engine, bus, c, Config{SessionListTTL: time.Millisecond})
	return svc, store
}

const sampleCSV = "Barcode,Title,Supplier_Item_ID\n" +
	"111,Widget,SKU-1\n" +
	"222,Gadget,SKU-2\n" +
	"333,Sprocket,SKU-3\n"

func importSample(t *testing.T, svc *StocktakeService) string {
	t.Helper()
	res, err := svc.Import(context.Background(), strings.NewReader(sampleCSV), "stock.csv", "alice")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return res.Session.ID
}

func TestImportCreatesSessionAndItems(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res, err := svc.Import(ctx, strings.NewReader(sampleCSV), "stock.csv", "alice")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Session.ItemCount != 3 || res.Session.CreatedBy != "alice" {
		t.Errorf("unexpected session: %+v", res.Session)
	}
	// 3 rows with batch size 2 commit as 2 batches.
	if len(res.Batches) != 2 {
		t.Errorf("expected 2 upload batches, got %d", len(res.Batches))
	}

	items, err := store.Items().List(ctx, res.Session.ID)
	if err != nil || len(items) != 3 {
		t.Fatalf("expected 3 stored items, got %d (%v)", len(items), err)
	}
	if items[0].Quantity != nil || items[0].Modified {
		t.Errorf("fresh items must be uncounted: %+v", items[0])
	}
}

func TestImportRejectsMissingColumnsBeforeAnyWrite(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, strings.NewReader("Barcode,Price\n111,9.99\n"), "bad.csv", "alice")
	if err == nil {
		t.Fatal("expected rejection")
	}

	sessions, err := store.Sessions().List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("rejected import must not create a session, got %d", len(sessions))
	}
}

func TestImportRequiresOperator(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Import(context.Background(), strings.NewReader(sampleCSV), "stock.csv", "  "); err == nil {
		t.Fatal("expected rejection for blank operator")
	}
}

func TestFindItemFallsBackToSKU(t *testing.T) {
	svc, _ := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	item, err := svc.FindItem(ctx, id, "222")
	if err != nil || item.Title != "Gadget" {
		t.Errorf("barcode lookup failed: %+v (%v)", item, err)
	}

	item, err = svc.FindItem(ctx, id, "SKU-3")
	if err != nil || item.Title != "Sprocket" {
		t.Errorf("SKU fallback failed: %+v (%v)", item, err)
	}

	if _, err := svc.FindItem(ctx, id, "ZZZ999"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveCountMarksItemAndBumpsCounter(t *testing.T) {
	svc, store := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	events := 0
	sub, err := svc.Subscribe(id, func(ev stream.Event) {
		if ev.Type == stream.EventSessionUpdated {
			events++
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	if err := svc.SaveCount(ctx, id, "111", "999", 4, "alice"); err != nil {
		t.Fatalf("SaveCount failed: %v", err)
	}

	item, err := store.Items().Get(ctx, id, "111")
	if err != nil {
		t.Fatal(err)
	}
	if !item.Modified || item.Quantity == nil || *item.Quantity != 4 {
		t.Errorf("expected counted item, got %+v", item)
	}
	if item.ProductBarcode != "999" || item.ModifiedBy != "alice" || item.ModifiedAt == nil {
		t.Errorf("expected modification metadata, got %+v", item)
	}

	session, err := store.Sessions().Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if session.UpdatedCount != 1 {
		t.Errorf("expected updated count 1, got %d", session.UpdatedCount)
	}
	if events != 1 {
		t.Errorf("expected one session.updated event, got %d", events)
	}

	modified, err := svc.ModifiedItems(ctx, id)
	if err != nil || len(modified) != 1 || modified[0].ID != "111" {
		t.Errorf("expected one modified item, got %v (%v)", modified, err)
	}
}

func TestLogUnknownBarcode(t *testing.T) {
	svc, _ := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	if err := svc.LogUnknownBarcode(ctx, id, "ZZZ999", "alice"); err != nil {
		t.Fatalf("LogUnknownBarcode failed: %v", err)
	}

	recs, err := svc.UnknownBarcodes(ctx, id)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d (%v)", len(recs), err)
	}
	if recs[0].Barcode != "ZZZ999" || recs[0].ScannedBy != "alice" {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestDeleteSessionDrainsEverything(t *testing.T) {
	svc, store := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	if err := svc.LogUnknownBarcode(ctx, id, "ZZZ999", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Heartbeat(ctx, id, "alice", time.Minute); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	if _, err := store.Sessions().Get(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected session gone, got %v", err)
	}
	items, _ := store.Items().List(ctx, id)
	if len(items) != 0 {
		t.Errorf("expected items drained, got %d", len(items))
	}
	roster, _ := store.Presence().Roster(ctx, id)
	if len(roster) != 0 {
		t.Errorf("expected presence cleared, got %v", roster)
	}

	// Deleting again reports not found, not a partial failure.
	if err := svc.DeleteSession(ctx, id); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound on re-delete, got %v", err)
	}
}

func TestExportIncludesCountedQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	if err := svc.SaveCount(ctx, id, "222", "999", 7, "alice"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, id, &buf); err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "stocktake_quantity") {
		t.Errorf("export missing quantity column:\n%s", out)
	}
	if !strings.Contains(out, "222,Gadget,SKU-2,7") {
		t.Errorf("export missing counted row:\n%s", out)
	}
}

func TestRosterAndLeave(t *testing.T) {
	svc, _ := newTestService(t)
	id := importSample(t, svc)
	ctx := context.Background()

	if err := svc.Heartbeat(ctx, id, "alice", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := svc.Heartbeat(ctx, id, "bob", time.Minute); err != nil {
		t.Fatal(err)
	}

	roster, err := svc.Roster(ctx, id)
	if err != nil || len(roster) != 2 {
		t.Fatalf("expected 2 present, got %d (%v)", len(roster), err)
	}

	if err := svc.Leave(ctx, id, "alice"); err != nil {
		t.Fatal(err)
	}
	roster, _ = svc.Roster(ctx, id)
	if len(roster) != 1 || roster[0].Operator != "bob" {
		t.Errorf("expected only bob, got %v", roster)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	prefs, err := svc.Preferences(ctx, "alice")
	if err != nil || len(prefs) != 0 {
		t.Fatalf("expected empty prefs, got %v (%v)", prefs, err)
	}

	want := map[string]string{"last_session": "sess-1", "operator": "alice"}
	if err := svc.SetPreferences(ctx, "alice", want); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}

	prefs, err = svc.Preferences(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if prefs["last_session"] != "sess-1" || prefs["operator"] != "alice" {
		t.Errorf("unexpected prefs: %v", prefs)
	}
}
