// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// InboundReceipt records that an inbound message ID has been processed,
// making "process inbound reply" idempotent by message id. Replays within the
// TTL are dropped without producing new SchedulingActions; expired receipts
// are purged opportunistically by the automation sweep.
type InboundReceipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	MessageID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_inbound_message"`
	RequestID string    `gorm:"type:TEXT NOT NULL;index"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (InboundReceipt) TableName() string { return "inbound_receipts" }
