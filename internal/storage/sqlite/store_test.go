package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. New initialises
// the full Schema so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testAsset(id string) types.Asset {
	return types.Asset{
		UniqueID:    id,
		OwnerID:     "42",
		Description: "Town Hall " + id,
		Location:    "Westminster",
		Category:    "Civic",
		Contact: types.Contact{
			Name:      "The Keeper",
			Line1:     "1 High Street",
			City:      "LONDON",
			Postcode:  "SW1A 1AA",
			Telephone: "02071234567",
		},
	}
}

// commitAddition opens a new live version for the asset on the given date.
func commitAddition(t *testing.T, store *Store, asset types.Asset, date time.Time) *types.AssetVersion {
	t.Helper()
	version := types.NewVersion(asset, date)
	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: date,
			Source:       types.SourceHarvest,
			RecordCount:  1,
			AddedCount:   1,
		},
		NewVersions: []*types.AssetVersion{version},
		Events: []types.ChangeEvent{{
			ID:         uuid.NewString(),
			UniqueID:   asset.UniqueID,
			Type:       types.ChangeAdded,
			ChangeDate: date,
		}},
	}
	if err := store.CommitPass(context.Background(), pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}
	return version
}

func TestCommitPass_Addition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	live, err := store.LiveAssets(ctx)
	if err != nil {
		t.Fatalf("LiveAssets failed: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("expected 1 live asset, got %d", len(live))
	}
	if live[0].UniqueID != "1001" || !live[0].IsLive() {
		t.Errorf("unexpected live version: %+v", live[0])
	}
	if live[0].ID == 0 {
		t.Error("expected row id to be assigned on commit")
	}
	if !live[0].ValidFrom.Equal(day("2024-01-01")) {
		t.Errorf("valid_from = %v, want 2024-01-01", live[0].ValidFrom)
	}

	has, err := store.HasSnapshotRun(ctx, day("2024-01-01"))
	if err != nil {
		t.Fatalf("HasSnapshotRun failed: %v", err)
	}
	if !has {
		t.Error("expected snapshot run to be recorded")
	}
}

func TestCommitPass_UpdateClosesOldVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	updated := testAsset("1001")
	updated.Category = "Museum"
	second := types.NewVersion(updated, day("2024-02-01"))

	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-02-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
			UpdatedCount: 1,
		},
		NewVersions:     []*types.AssetVersion{second},
		CloseVersionIDs: []int64{first.ID},
		Events: []types.ChangeEvent{{
			ID:            uuid.NewString(),
			UniqueID:      "1001",
			Type:          types.ChangeUpdated,
			ChangeDate:    day("2024-02-01"),
			ChangedFields: []string{"category"},
		}},
	}
	if err := store.CommitPass(ctx, pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	history, err := store.AssetHistory(ctx, "1001")
	if err != nil {
		t.Fatalf("AssetHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].ValidUntil == nil || !history[0].ValidUntil.Equal(day("2024-02-01")) {
		t.Errorf("old version valid_until = %v, want 2024-02-01", history[0].ValidUntil)
	}
	if !history[1].IsLive() {
		t.Error("new version should be live")
	}
	if history[1].Category != "Museum" {
		t.Errorf("new version category = %q, want Museum", history[1].Category)
	}
}

func TestCommitPass_DuplicateSnapshotDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-01-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
		},
	}
	err := store.CommitPass(ctx, pass)
	if !errors.Is(err, storage.ErrDuplicateSnapshot) {
		t.Errorf("expected ErrDuplicateSnapshot, got %v", err)
	}

	// The failed commit must not leave partial state behind.
	runs, err := store.ListSnapshotRuns(ctx)
	if err != nil {
		t.Fatalf("ListSnapshotRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 snapshot run, got %d", len(runs))
	}
}

func TestCommitPass_ClosingNonLiveVersionFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-02-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
		},
		CloseVersionIDs: []int64{9999},
	}
	err := store.CommitPass(ctx, pass)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown version id, got %v", err)
	}

	// Rolled back: the run for 2024-02-01 must not exist.
	has, err := store.HasSnapshotRun(ctx, day("2024-02-01"))
	if err != nil {
		t.Fatalf("HasSnapshotRun failed: %v", err)
	}
	if has {
		t.Error("failed pass should not record a snapshot run")
	}
}

func TestAppendRawRecord_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := types.RawRecord{
		SnapshotDate: day("2024-01-01"),
		UniqueID:     "1001",
		Fields:       map[string]string{"description": "Town Hall"},
	}
	for i := 0; i < 3; i++ {
		if err := store.AppendRawRecord(ctx, rec); err != nil {
			t.Fatalf("AppendRawRecord failed: %v", err)
		}
	}

	records, err := store.RawRecordsForDate(ctx, day("2024-01-01"))
	if err != nil {
		t.Fatalf("RawRecordsForDate failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after repeated appends, got %d", len(records))
	}
	if records[0].Fields["description"] != "Town Hall" {
		t.Errorf("fields did not round-trip: %+v", records[0].Fields)
	}
}

func TestRawHistory_OldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []types.RawRecord{
		{SnapshotDate: day("2024-02-01"), UniqueID: "1001", Fields: map[string]string{"description": "Town Hall (revised)"}},
		{SnapshotDate: day("2024-01-01"), UniqueID: "1001", Fields: map[string]string{"description": "Town Hall"}},
		{SnapshotDate: day("2024-01-01"), UniqueID: "2002", Fields: map[string]string{"description": "Pier"}},
	}
	for _, rec := range recs {
		if err := store.AppendRawRecord(ctx, rec); err != nil {
			t.Fatalf("AppendRawRecord failed: %v", err)
		}
	}

	history, err := store.RawHistory(ctx, "1001")
	if err != nil {
		t.Fatalf("RawHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if !history[0].SnapshotDate.Before(history[1].SnapshotDate) {
		t.Error("records not ordered oldest first")
	}
	if history[0].Fields["description"] != "Town Hall" {
		t.Errorf("unexpected first record: %+v", history[0])
	}
}

func TestAppendRawRecord_RejectsEmptyID(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendRawRecord(context.Background(), types.RawRecord{
		SnapshotDate: day("2024-01-01"),
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecentlyHarvestedIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []types.RawRecord{
		{SnapshotDate: day("2024-01-01"), UniqueID: "old", Fields: map[string]string{}},
		{SnapshotDate: day("2024-03-01"), UniqueID: "recent", Fields: map[string]string{}},
	}
	if err := store.AppendRawRecords(ctx, recs); err != nil {
		t.Fatalf("AppendRawRecords failed: %v", err)
	}

	ids, err := store.RecentlyHarvestedIDs(ctx, day("2024-02-01"))
	if err != nil {
		t.Fatalf("RecentlyHarvestedIDs failed: %v", err)
	}
	if len(ids) != 1 || !ids["recent"] {
		t.Errorf("expected only the recent id, got %v", ids)
	}
}

func TestGetLiveAsset_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetLiveAsset(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAssets_FilterAndPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testAsset("1001")
	b := testAsset("1002")
	b.Location = "Camden"
	c := testAsset("1003")

	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-01-01"),
			Source:       types.SourceHarvest,
			RecordCount:  3,
			AddedCount:   3,
		},
		NewVersions: []*types.AssetVersion{
			types.NewVersion(a, day("2024-01-01")),
			types.NewVersion(b, day("2024-01-01")),
			types.NewVersion(c, day("2024-01-01")),
		},
	}
	if err := store.CommitPass(ctx, pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	result, err := store.ListAssets(ctx, storage.ListOptions{Location: "Westminster"})
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("expected 2 Westminster assets, got %d", result.Total)
	}

	page, err := store.ListAssets(ctx, storage.ListOptions{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListAssets page 2 failed: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Errorf("expected final page with 1 item, got %d items, hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestAssetsAsOf(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	updated := testAsset("1001")
	updated.Category = "Museum"
	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-03-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
			UpdatedCount: 1,
		},
		NewVersions:     []*types.AssetVersion{types.NewVersion(updated, day("2024-03-01"))},
		CloseVersionIDs: []int64{first.ID},
	}
	if err := store.CommitPass(ctx, pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	// Before the asset existed.
	before, err := store.AssetsAsOf(ctx, day("2023-12-01"), storage.ListOptions{})
	if err != nil {
		t.Fatalf("AssetsAsOf failed: %v", err)
	}
	if before.Total != 0 {
		t.Errorf("expected no assets before first snapshot, got %d", before.Total)
	}

	// Between the two versions.
	mid, err := store.AssetsAsOf(ctx, day("2024-02-01"), storage.ListOptions{})
	if err != nil {
		t.Fatalf("AssetsAsOf failed: %v", err)
	}
	if mid.Total != 1 || mid.Items[0].Category != "Civic" {
		t.Errorf("expected original Civic version mid-interval, got %+v", mid.Items)
	}

	// Exactly on the transition date the new version applies.
	after, err := store.AssetsAsOf(ctx, day("2024-03-01"), storage.ListOptions{})
	if err != nil {
		t.Fatalf("AssetsAsOf failed: %v", err)
	}
	if after.Total != 1 || after.Items[0].Category != "Museum" {
		t.Errorf("expected Museum version on transition date, got %+v", after.Items)
	}
}

func TestListChanges_Filtering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-02-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
			AddedCount:   1,
		},
		NewVersions: []*types.AssetVersion{types.NewVersion(testAsset("1002"), day("2024-02-01"))},
		Events: []types.ChangeEvent{{
			ID:         uuid.NewString(),
			UniqueID:   "1002",
			Type:       types.ChangeAdded,
			ChangeDate: day("2024-02-01"),
		}},
	}
	if err := store.CommitPass(ctx, pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	all, err := store.ListChanges(ctx, storage.ChangeFilter{})
	if err != nil {
		t.Fatalf("ListChanges failed: %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected 2 events, got %d", all.Total)
	}
	// Newest first.
	if !all.Items[0].ChangeDate.After(all.Items[1].ChangeDate) {
		t.Errorf("expected newest-first ordering, got %v then %v",
			all.Items[0].ChangeDate, all.Items[1].ChangeDate)
	}

	one, err := store.ListChanges(ctx, storage.ChangeFilter{UniqueID: "1001"})
	if err != nil {
		t.Fatalf("ListChanges by id failed: %v", err)
	}
	if one.Total != 1 || one.Items[0].UniqueID != "1001" {
		t.Errorf("unexpected filtered events: %+v", one.Items)
	}

	between, err := store.ChangesBetween(ctx, day("2024-01-15"), day("2024-02-15"))
	if err != nil {
		t.Fatalf("ChangesBetween failed: %v", err)
	}
	if len(between) != 1 || between[0].UniqueID != "1002" {
		t.Errorf("unexpected events in range: %+v", between)
	}
}

func TestSearch_MatchesLiveVersionOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	renamed := testAsset("1001")
	renamed.Description = "Victoria Gardens"
	pass := &storage.Pass{
		Run: types.SnapshotRun{
			SnapshotDate: day("2024-02-01"),
			Source:       types.SourceHarvest,
			RecordCount:  1,
			UpdatedCount: 1,
		},
		NewVersions:     []*types.AssetVersion{types.NewVersion(renamed, day("2024-02-01"))},
		CloseVersionIDs: []int64{first.ID},
		Events: []types.ChangeEvent{{
			ID:            uuid.NewString(),
			UniqueID:      "1001",
			Type:          types.ChangeUpdated,
			ChangeDate:    day("2024-02-01"),
			ChangedFields: []string{"description"},
		}},
	}
	if err := store.CommitPass(ctx, pass); err != nil {
		t.Fatalf("CommitPass failed: %v", err)
	}

	hits, err := store.Search(ctx, "victoria", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if hits.Total != 1 || hits.Items[0].Description != "Victoria Gardens" {
		t.Errorf("expected the live renamed version, got %+v", hits.Items)
	}

	// The superseded description must no longer match.
	stale, err := store.Search(ctx, "town hall", storage.ListOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if stale.Total != 0 {
		t.Errorf("expected no matches for superseded text, got %d", stale.Total)
	}

	// FTS5 operator characters must not break the query.
	if _, err := store.Search(ctx, `"unbalanced (quote* AND`, storage.ListOptions{}); err != nil {
		t.Errorf("sanitised search should not error: %v", err)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AppendRawRecord(ctx, types.RawRecord{
		SnapshotDate: day("2024-01-01"),
		UniqueID:     "1001",
		Fields:       map[string]string{},
	}); err != nil {
		t.Fatalf("AppendRawRecord failed: %v", err)
	}
	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.LiveAssets != 1 || stats.TotalVersions != 1 {
		t.Errorf("unexpected version counts: %+v", stats)
	}
	if stats.TotalRawRecords != 1 || stats.TotalChanges != 1 || stats.SnapshotRuns != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.AssetsByLocation["Westminster"] != 1 {
		t.Errorf("unexpected location grouping: %v", stats.AssetsByLocation)
	}
	if stats.OldestSnapshot == nil || !stats.OldestSnapshot.Equal(day("2024-01-01")) {
		t.Errorf("unexpected oldest snapshot: %v", stats.OldestSnapshot)
	}
}

func TestListSnapshotRuns_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commitAddition(t, store, testAsset("1001"), day("2024-01-01"))
	commitAddition(t, store, testAsset("1002"), day("2024-02-01"))

	runs, err := store.ListSnapshotRuns(ctx)
	if err != nil {
		t.Fatalf("ListSnapshotRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].SnapshotDate.After(runs[1].SnapshotDate) {
		t.Errorf("expected newest-first ordering, got %v then %v",
			runs[0].SnapshotDate, runs[1].SnapshotDate)
	}
	if runs[0].Source != types.SourceHarvest {
		t.Errorf("unexpected source: %v", runs[0].Source)
	}
}
