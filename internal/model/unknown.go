package model

import "time"

// UnknownBarcode records a scanned token that did not resolve to any
// item in the session. Append-only; listed newest first.
type UnknownBarcode struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Barcode   string    `bson:"barcode" json:"barcode"`
	ScannedAt time.Time `bson:"scanned_at" json:"scanned_at"`
	ScannedBy string    `bson:"scanned_by" json:"scanned_by"`
}
