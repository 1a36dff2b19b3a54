package model

import "time"

// Session represents one stocktake run over one imported item set.
type Session struct {
	ID       string `bson:"_id" json:"id"`
	FileName string `bson:"file_name" json:"file_name"`

	// Columns preserves the imported CSV header order so export is
	// deterministic regardless of which backend stored the items.
	Columns []string `bson:"columns" json:"columns"`

	ItemCount int `bson:"item_count" json:"item_count"`

	// UpdatedCount is an independent counter incremented once per
	// successful item save. It is never recomputed from item state and
	// can drift from the true number of modified items if a save is
	// retried or double-applied.
	UpdatedCount int `bson:"updated_count" json:"updated_count"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	CreatedBy string    `bson:"created_by" json:"created_by"`
}
