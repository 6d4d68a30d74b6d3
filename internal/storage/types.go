package storage

import (
	"errors"
	"time"

	"github.com/scrypster/lineage/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateSnapshot indicates a reconciliation pass was already
	// committed for the snapshot date.
	ErrDuplicateSnapshot = errors.New("snapshot date already processed")
)

// Pass is one reconciliation pass ready to be committed atomically.
type Pass struct {
	// Run is the snapshot run metadata row. Its date doubles as the
	// idempotency key.
	Run types.SnapshotRun

	// NewVersions are the versions to open (added and updated entities).
	NewVersions []*types.AssetVersion

	// CloseVersionIDs are the row ids of live versions whose valid_until
	// must be set to the pass date (updated and removed entities).
	CloseVersionIDs []int64

	// Events are the change events to append.
	Events []types.ChangeEvent
}

// PaginatedResult represents a paginated result set.
type PaginatedResult[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// ListOptions provides pagination and filtering for asset list queries.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// PageSize is the number of items per page (default: 50, max: 500).
	PageSize int

	// Location filters by substring match on the location field.
	Location string

	// Category filters by substring match on the category field.
	Category string

	// OwnerID filters by exact owner id match.
	OwnerID string
}

// Normalize applies defaults and bounds to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 50
	}
	if o.PageSize > 500 {
		o.PageSize = 500
	}
}

// Offset calculates the SQL offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// ChangeFilter provides pagination and filtering for change event queries.
type ChangeFilter struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// PageSize is the number of items per page (default: 50, max: 500).
	PageSize int

	// Type filters by change type; empty means all types.
	Type types.ChangeType

	// UniqueID filters to one entity's events; empty means all entities.
	UniqueID string
}

// Normalize applies defaults and bounds to the ChangeFilter.
func (f *ChangeFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 50
	}
	if f.PageSize > 500 {
		f.PageSize = 500
	}
}

// Offset calculates the SQL offset for the current page.
func (f *ChangeFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Stats holds aggregate database statistics for the stats endpoint.
type Stats struct {
	LiveAssets       int            `json:"total_assets_current"`
	TotalVersions    int            `json:"total_asset_versions"`
	TotalRawRecords  int            `json:"total_raw_records"`
	TotalChanges     int            `json:"total_change_events"`
	SnapshotRuns     int            `json:"snapshot_runs"`
	OldestSnapshot   *time.Time     `json:"oldest_snapshot,omitempty"`
	NewestSnapshot   *time.Time     `json:"newest_snapshot,omitempty"`
	AssetsByLocation map[string]int `json:"assets_by_location"`
	AssetsByCategory map[string]int `json:"assets_by_category"`
}
