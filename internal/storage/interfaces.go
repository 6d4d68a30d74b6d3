// Package storage provides the storage interfaces for the Lineage system.
//
// The interfaces are split by concern: RawStore holds immutable harvested
// snapshots, VersionStore owns the SCD Type 2 asset history and its atomic
// pass commit, and QueryStore serves the read models used by the web layer.
// AssetStore composes all three; both the sqlite and postgres backends
// implement it.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/lineage/pkg/types"
)

// RawStore persists raw harvested records. Records are immutable and keyed
// by (snapshot date, unique id); re-appending an existing key is a no-op so
// interrupted harvests can be resumed safely.
type RawStore interface {
	// AppendRawRecord stores a single raw record immediately. The harvester
	// calls this per fetched entity so an interruption loses at most the
	// in-flight item.
	AppendRawRecord(ctx context.Context, rec types.RawRecord) error

	// AppendRawRecords stores a batch of raw records.
	AppendRawRecords(ctx context.Context, recs []types.RawRecord) error

	// RawRecordsForDate returns all raw records stored for one snapshot date.
	RawRecordsForDate(ctx context.Context, date time.Time) ([]types.RawRecord, error)

	// RecentlyHarvestedIDs returns the unique ids of entities with a raw
	// record on or after the cutoff date. Used by incremental harvesting to
	// skip entities refreshed recently.
	RecentlyHarvestedIDs(ctx context.Context, cutoff time.Time) (map[string]bool, error)

	// RawHistory returns all raw records stored for one entity across all
	// snapshot dates, oldest first.
	RawHistory(ctx context.Context, uniqueID string) ([]types.RawRecord, error)
}

// VersionStore owns the versioned asset history. Only the reconciler writes
// through it; valid_until transitions and new version rows never happen
// anywhere else.
type VersionStore interface {
	// LiveAssets returns every currently live version (valid_until IS NULL).
	LiveAssets(ctx context.Context) ([]*types.AssetVersion, error)

	// HasSnapshotRun reports whether a reconciliation pass was already
	// committed for the given date.
	HasSnapshotRun(ctx context.Context, date time.Time) (bool, error)

	// CommitPass atomically applies one reconciliation pass: closes the
	// listed versions, inserts the new ones, appends change events and
	// records the snapshot run. Either everything lands or nothing does.
	// Returns ErrDuplicateSnapshot if a run already exists for the date.
	CommitPass(ctx context.Context, pass *Pass) error
}

// QueryStore serves the read models consumed by the HTTP API.
type QueryStore interface {
	// ListAssets returns live asset versions with pagination and filtering.
	ListAssets(ctx context.Context, opts ListOptions) (*PaginatedResult[types.AssetVersion], error)

	// GetLiveAsset returns the live version for an entity.
	// Returns ErrNotFound when the entity has no live version.
	GetLiveAsset(ctx context.Context, uniqueID string) (*types.AssetVersion, error)

	// AssetHistory returns every version of an entity, oldest first.
	AssetHistory(ctx context.Context, uniqueID string) ([]*types.AssetVersion, error)

	// AssetsAsOf returns the versions that were valid on the given date.
	AssetsAsOf(ctx context.Context, date time.Time, opts ListOptions) (*PaginatedResult[types.AssetVersion], error)

	// ListChanges returns change events, newest first.
	ListChanges(ctx context.Context, filter ChangeFilter) (*PaginatedResult[types.ChangeEvent], error)

	// ChangesBetween returns change events with change_date in [from, to],
	// oldest first.
	ChangesBetween(ctx context.Context, from, to time.Time) ([]types.ChangeEvent, error)

	// ListSnapshotRuns returns all snapshot run metadata, newest first.
	ListSnapshotRuns(ctx context.Context) ([]types.SnapshotRun, error)

	// Search performs full-text search over live assets.
	Search(ctx context.Context, query string, opts ListOptions) (*PaginatedResult[types.AssetVersion], error)

	// Stats returns aggregate database statistics.
	Stats(ctx context.Context) (*Stats, error)
}

// AssetStore is the full storage contract implemented by each backend.
type AssetStore interface {
	RawStore
	VersionStore
	QueryStore

	// Close releases any resources held by the store.
	Close() error
}
