package types

import "time"

// ChangeType classifies a change event.
type ChangeType string

const (
	// ChangeAdded records an asset appearing in the registry for the first
	// time (or reappearing after removal).
	ChangeAdded ChangeType = "added"

	// ChangeUpdated records one or more field-level changes to a live asset.
	ChangeUpdated ChangeType = "updated"

	// ChangeRemoved records an asset disappearing from the registry.
	ChangeRemoved ChangeType = "removed"
)

// ChangeEvent is one append-only change log entry. Events are never mutated
// or deleted. ChangedFields is populated for updates only and preserves the
// deterministic field comparison order used by the differ.
type ChangeEvent struct {
	ID            string     `json:"id"`
	UniqueID      string     `json:"unique_id"`
	Type          ChangeType `json:"change_type"`
	ChangeDate    time.Time  `json:"change_date"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
