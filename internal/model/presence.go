package model

import "time"

// Presence is an advisory record that an operator currently has a
// session open. It carries no mutual-exclusion guarantee: two operators
// may process the same item and the last write wins.
type Presence struct {
	Operator string    `bson:"operator" json:"operator"`
	SeenAt   time.Time `bson:"seen_at" json:"seen_at"`
}
