package domain

import "time"

// BadRecipient is a destination confirmed as permanently undeliverable.
// It is the row model of the SQLite ledger store; the JSON ledger stores
// only the Destination values.
//
// Fields:
//   - Destination: E.164 number (primary key, so the set stays deduplicated).
//   - Position: insertion order, preserved when the ledger is loaded.
//   - CreatedAt: when the destination first entered the ledger.
type BadRecipient struct {
	Destination string    `gorm:"type:varchar(32);primaryKey"`
	Position    int       `gorm:"not null;index"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the database table name for BadRecipient.
func (BadRecipient) TableName() string { return "bad_recipients" }
