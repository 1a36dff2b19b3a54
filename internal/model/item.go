package model

import (
	"fmt"
	"time"
)

// Reserved CSV column names. Barcode and Title are mandatory on import;
// the others are recognized when present and mapped onto typed fields.
const (
	ColumnBarcode        = "Barcode"
	ColumnTitle          = "Title"
	ColumnSKU            = "Supplier_Item_ID"
	ColumnProductBarcode = "Product_Barcode"

	// ColumnQuantity is appended to exports; it is never imported as a
	// passthrough column.
	ColumnQuantity = "stocktake_quantity"
)

// Item is one inventory row being counted, scoped to a session.
//
// ID is the item's identity within the session: the imported barcode, or
// a synthesized placeholder for rows without one. Barcode holds the
// original CSV value verbatim (possibly empty) so export round-trips.
type Item struct {
	ID             string `bson:"item_id" json:"id"`
	Barcode        string `bson:"barcode" json:"barcode"`
	Title          string `bson:"title" json:"title"`
	SKU            string `bson:"sku" json:"sku"`
	ProductBarcode string `bson:"product_barcode" json:"product_barcode"`

	// Extra holds all non-reserved CSV columns verbatim. Column order is
	// not kept here; the owning session records the header order.
	Extra map[string]string `bson:"extra" json:"extra,omitempty"`

	Modified bool `bson:"modified" json:"modified"`

	// Quantity is nil until the first save, then holds the last-saved
	// count. Re-saves overwrite, they do not accumulate.
	Quantity *int `bson:"quantity" json:"quantity"`

	ModifiedAt *time.Time `bson:"modified_at" json:"modified_at,omitempty"`
	ModifiedBy string     `bson:"modified_by" json:"modified_by,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}

// PlaceholderID synthesizes an identity for a row that had no barcode.
// Index is the row's position in the imported file, which guarantees
// uniqueness within one import.
func PlaceholderID(index int) string {
	return fmt.Sprintf("NO_BARCODE_%d", index)
}

// ColumnValue returns the item's value for an imported CSV column,
// resolving reserved columns to their typed fields.
func (it *Item) ColumnValue(column string) string {
	switch column {
	case ColumnBarcode:
		return it.Barcode
	case ColumnTitle:
		return it.Title
	case ColumnSKU:
		return it.SKU
	case ColumnProductBarcode:
		return it.ProductBarcode
	default:
		return it.Extra[column]
	}
}
