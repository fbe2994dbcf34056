package model

import "time"

// SyncDirection is the direction of an external call.
type SyncDirection string

// Sync directions.
const (
	DirectionOutbound SyncDirection = "outbound"
	DirectionInbound  SyncDirection = "inbound"
)

// SyncStatus is the outcome of an external call.
type SyncStatus string

// Sync statuses.
const (
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// SyncLogEntry is an append-only audit record of one external API call attempt.
type SyncLogEntry struct {
	CreatedAt       time.Time
	ErrorMessage    *string
	ID              string
	EntityType      string
	EntityID        string
	RequestPayload  string
	ResponsePayload string
	Direction       SyncDirection
	Status          SyncStatus
	Environment     Environment
	DurationMs      int64
}
