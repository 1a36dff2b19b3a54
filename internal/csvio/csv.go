// Package csvio parses stocktake CSV imports and renders exports.
// Imports require Barcode and Title columns; everything else passes
// through opaquely and survives a round trip.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"stocktake-api/internal/model"
)

// ImportResult holds one parsed CSV file.
type ImportResult struct {
	// Columns is the header row, trimmed, in file order.
	Columns []string

	// Items are the parsed rows in file order.
	Items []model.Item
}

// requiredColumns must be present in the header row; absence of any is
// a hard rejection before a single row is processed.
var requiredColumns = []string{model.ColumnBarcode, model.ColumnTitle}

// Parse reads a delimited file with a header row and builds items.
// Rows without a barcode get a synthesized placeholder identity from
// their position, so identities never collide within one import.
func Parse(r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make([]string, len(header))
	index := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		columns[i] = col
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	reserved := map[string]bool{
		model.ColumnBarcode:        true,
		model.ColumnTitle:          true,
		model.ColumnSKU:            true,
		model.ColumnProductBarcode: true,
	}

	now := time.Now()
	items := []model.Item{}
	rowIndex := 0

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", rowIndex+1, err)
		}

		field := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}

		it := model.Item{
			Barcode:        strings.TrimSpace(field(model.ColumnBarcode)),
			Title:          field(model.ColumnTitle),
			SKU:            field(model.ColumnSKU),
			ProductBarcode: field(model.ColumnProductBarcode),
			CreatedAt:      now,
		}

		it.ID = it.Barcode
		if it.ID == "" {
			it.ID = model.PlaceholderID(rowIndex)
		}

		for i, col := range columns {
			if reserved[col] || i >= len(record) {
				continue
			}
			if it.Extra == nil {
				it.Extra = make(map[string]string)
			}
			it.Extra[col] = record[i]
		}

		items = append(items, it)
		rowIndex++
	}

	return &ImportResult{Columns: columns, Items: items}, nil
}

// Export writes items as CSV: the original imported columns in order,
// plus an appended stocktake_quantity column. Rows are sorted by SKU,
// case-insensitively. An unset quantity exports as an empty field.
func Export(w io.Writer, columns []string, items []model.Item) error {
	sorted := make([]model.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].SKU) < strings.ToLower(sorted[j].SKU)
	})

	cw := csv.NewWriter(w)

	header := append(append([]string{}, columns...), model.ColumnQuantity)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i := range sorted {
		it := &sorted[i]
		row := make([]string, 0, len(header))
		for _, col := range columns {
			row = append(row, it.ColumnValue(col))
		}

		quantity := ""
		if it.Quantity != nil {
			quantity = strconv.Itoa(*it.Quantity)
		}
		row = append(row, quantity)

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportUnknown writes the unknown-barcode log as CSV.
func ExportUnknown(w io.Writer, recs []model.UnknownBarcode) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"barcode", "scanned_at", "scanned_by"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, rec := range recs {
		row := []string{rec.Barcode, rec.ScannedAt.UTC().Format(time.RFC3339), rec.ScannedBy}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
