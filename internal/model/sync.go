package model

import (
	"encoding/json"
	"time"
)

// Sync statuses of a lead/card link.
const (
	SyncStatusPending   = "pending"
	SyncStatusSynced    = "synced"
	SyncStatusError     = "error"
	SyncStatusCompleted = "completed"
)

// SyncLink ties one Kommo lead to one Trello card. At most one card per
// lead; links are never deleted, they carry the sync history of the pair.
type SyncLink struct {
	LeadID     int64     `json:"lead_id"`
	CardID     string    `json:"card_id"`
	SyncStatus string    `json:"sync_status"`
	SyncError  string    `json:"sync_error,omitempty"`
	LastSyncAt time.Time `json:"last_sync_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Card history action types.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionMoved   = "moved"
	ActionDeleted = "deleted"
)

// CardTransition is one append-only history row for a card.
type CardTransition struct {
	ID            int64           `json:"id"`
	CardID        string          `json:"card_id"`
	ActionType    string          `json:"action_type"`
	FromList      string          `json:"from_list,omitempty"`
	ToList        string          `json:"to_list,omitempty"`
	ChangedFields json.RawMessage `json:"changed_fields,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
