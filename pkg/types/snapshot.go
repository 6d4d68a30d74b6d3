package types

import "time"

// SnapshotSource identifies how a snapshot's raw records were produced.
type SnapshotSource string

const (
	// SourceHarvest marks a snapshot produced by the live harvester.
	SourceHarvest SnapshotSource = "harvest"

	// SourceImport marks a snapshot loaded from a historical download file.
	SourceImport SnapshotSource = "import"
)

// SnapshotRun records one completed reconciliation pass. At most one run may
// exist per snapshot date; its presence is the idempotency guard preventing
// the same date from being processed twice.
type SnapshotRun struct {
	SnapshotDate time.Time      `json:"snapshot_date"`
	Source       SnapshotSource `json:"source"`
	SourceFile   string         `json:"source_file,omitempty"`
	RecordCount  int            `json:"record_count"`
	AddedCount   int            `json:"added_count"`
	UpdatedCount int            `json:"updated_count"`
	RemovedCount int            `json:"removed_count"`
	CreatedAt    time.Time      `json:"created_at"`
}

// EntitySummary is one row from the registry's listing page.
type EntitySummary struct {
	UniqueID    string `json:"unique_id"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Category    string `json:"category"`
}

// EntityDetails holds the labelled fields extracted from one detail page.
// Absent labels yield empty strings, never errors.
type EntityDetails struct {
	UniqueID       string `json:"unique_id"`
	OwnerID        string `json:"owner_id"`
	AccessDetails  string `json:"access_details"`
	ContactName    string `json:"contact_name"`
	ContactAddress string `json:"contact_address"`
	ContactRef     string `json:"contact_reference"`
	TelephoneNo    string `json:"telephone_no"`
	FaxNo          string `json:"fax_no"`
	Email          string `json:"email"`
	Website        string `json:"website"`
}
