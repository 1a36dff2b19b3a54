package csvio

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"stocktake-api/internal/model"
)

func TestParseRejectsMissingRequiredColumns(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing Title", "Barcode,Price\n111,9.99\n", "Title"},
		{"missing Barcode", "Title,Price\nWidget,9.99\n", "Barcode"},
		{"missing both", "Price,Color\n9.99,red\n", "Barcode, Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.header))
			if err == nil {
				t.Fatal("expected rejection, got nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error naming %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseMinimalFileWithZeroRows(t *testing.T) {
	res, err := Parse(strings.NewReader("Barcode,Title\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("expected 0 items, got %d", len(res.Items))
	}
	if len(res.Columns) != 2 {
		t.Errorf("expected 2 columns, got %v", res.Columns)
	}
}

func TestParsePreservesPassthroughColumns(t *testing.T) {
	input := "Barcode,Title,Supplier_Item_ID,Bin Location,Price\n" +
		"111,Widget,SKU-1,A-04,9.99\n" +
		",Gadget,SKU-2,B-12,4.50\n"

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}

	first := res.Items[0]
	if first.ID != "111" || first.Barcode != "111" || first.Title != "Widget" || first.SKU != "SKU-1" {
		t.Errorf("unexpected reserved fields: %+v", first)
	}
	if first.Extra["Bin Location"] != "A-04" || first.Extra["Price"] != "9.99" {
		t.Errorf("unexpected passthrough columns: %v", first.Extra)
	}

	// Row without a barcode gets a positional placeholder identity,
	// but its Barcode column stays empty for export.
	second := res.Items[1]
	if second.ID != "NO_BARCODE_1" {
		t.Errorf("expected placeholder identity NO_BARCODE_1, got %q", second.ID)
	}
	if second.Barcode != "" {
		t.Errorf("expected empty barcode value, got %q", second.Barcode)
	}
}

func TestParseTrimsHeaders(t *testing.T) {
	res, err := Parse(strings.NewReader(" Barcode , Title \n111,Widget\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if res.Columns[0] != "Barcode" || res.Columns[1] != "Title" {
		t.Errorf("expected trimmed headers, got %v", res.Columns)
	}
}

func TestExportSortsBySKUCaseInsensitive(t *testing.T) {
	qty := 4
	items := []model.Item{
		{ID: "3", Barcode: "3", Title: "Cymbal", SKU: "zz-1"},
		{ID: "1", Barcode: "1", Title: "Amp", SKU: "AA-2", Quantity: &qty},
		{ID: "2", Barcode: "2", Title: "Bass", SKU: "Mm-3"},
	}

	var buf bytes.Buffer
	columns := []string{"Barcode", "Title", "Supplier_Item_ID"}
	if err := Export(&buf, columns, items); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to re-read export: %v", err)
	}

	wantHeader := []string{"Barcode", "Title", "Supplier_Item_ID", "stocktake_quantity"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("unexpected header: %v", rows[0])
		}
	}

	order := []string{"AA-2", "Mm-3", "zz-1"}
	for i, sku := range order {
		if rows[i+1][2] != sku {
			t.Errorf("row %d: expected SKU %s, got %s", i+1, sku, rows[i+1][2])
		}
	}

	// Counted quantity renders as a number, unset as empty.
	if rows[1][3] != "4" {
		t.Errorf("expected quantity 4, got %q", rows[1][3])
	}
	if rows[2][3] != "" || rows[3][3] != "" {
		t.Errorf("expected empty quantity for uncounted items")
	}
}

func TestRoundTripPreservesColumnsAndQuantities(t *testing.T) {
	input := "Barcode,Title,Supplier_Item_ID,Bin Location\n" +
		"111,Widget,SKU-1,A-04\n" +
		"222,Gadget,SKU-2,B-12\n"

	res, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	qty := 7
	res.Items[0].Quantity = &qty

	var buf bytes.Buffer
	if err := Export(&buf, res.Columns, res.Items); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// Re-import the export; every original column value must survive.
	again, err := Parse(&buf)
	if err != nil {
		t.Fatalf("re-import failed: %v", err)
	}
	if len(again.Items) != 2 {
		t.Fatalf("expected 2 items after round trip, got %d", len(again.Items))
	}

	byID := map[string]model.Item{}
	for _, it := range again.Items {
		byID[it.ID] = it
	}

	widget := byID["111"]
	if widget.Title != "Widget" || widget.SKU != "SKU-1" || widget.Extra["Bin Location"] != "A-04" {
		t.Errorf("original columns not preserved: %+v", widget)
	}

	// The appended stocktake_quantity column comes back as a
	// passthrough value on re-import.
	if widget.Extra["stocktake_quantity"] != "7" {
		t.Errorf("expected counted quantity preserved, got %q", widget.Extra["stocktake_quantity"])
	}
	if byID["222"].Extra["stocktake_quantity"] != "" {
		t.Errorf("expected uncounted quantity to stay empty")
	}
}
