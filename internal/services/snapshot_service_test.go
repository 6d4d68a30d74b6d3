package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/lineage/internal/harvest"
	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/storage/sqlite"
	"github.com/scrypster/lineage/pkg/types"
)

// newTestService backs a SnapshotService with an in-memory store and an
// httptest registry serving the given entity ids. The returned setIDs swaps
// the listing contents, for tests spanning several registry states.
func newTestService(t *testing.T, ids []string) (*SnapshotService, *sqlite.Store, func([]string)) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var mu sync.Mutex
	setIDs := func(next []string) {
		mu.Lock()
		defer mu.Unlock()
		ids = next
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		listed := ids
		mu.Unlock()
		fmt.Fprint(w, "<html><body><table>")
		for _, id := range listed {
			fmt.Fprintf(w, `<tr align="left" valign="top">
				<td><a href="detail.cfm?ID=%s">view</a></td>
				<td>Asset %s</td><td>Greenwich</td><td>Paintings</td>
			</tr>`, id, id)
		}
		fmt.Fprint(w, "</table></body></html>")
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="listing.cfm?Owner=42&x=1">owner</a>
			<table><tr><td>Access Details:</td><td>By appointment</td></tr></table>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	fetcher := harvest.NewFetcher(harvest.FetcherConfig{
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
	})
	harvester := harvest.New(fetcher, store, harvest.HarvesterConfig{
		SummaryURL:        server.URL + "/listing",
		DetailURLTemplate: server.URL + "/detail?ID=%s",
		Concurrency:       3,
		DetailDelay:       time.Millisecond,
	})

	return NewSnapshotService(store, harvester, reconcile.New(store, nil)), store, setIDs
}

func TestHarvestSnapshot_FullPass(t *testing.T) {
	service, store, _ := newTestService(t, []string{"1", "2", "3"})
	ctx := context.Background()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	report, err := service.HarvestSnapshot(ctx, HarvestOptions{SnapshotDate: date})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Harvest.DetailsFetched)
	assert.Equal(t, 3, report.Reconcile.Added)
	assert.False(t, report.DryRun)

	live, err := store.LiveAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 3)

	runs, err := store.ListSnapshotRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, types.SourceHarvest, runs[0].Source)
}

func TestHarvestSnapshot_IncrementalSkipsRecentIDs(t *testing.T) {
	service, store, _ := newTestService(t, []string{"1", "2"})
	ctx := context.Background()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// Entity 2 was harvested ten days ago, inside the skip window.
	earlier := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendRawRecord(ctx, types.NewRawRecord(earlier, map[string]string{
		types.FieldUniqueID:    "2",
		types.FieldDescription: "Asset 2",
	})))

	report, err := service.HarvestSnapshot(ctx, HarvestOptions{
		SnapshotDate: date,
		SkipDays:     30,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Harvest.Skipped)
	assert.Equal(t, 1, report.Harvest.DetailsFetched)
	// An incremental pass persists raw records without reconciling.
	assert.Nil(t, report.Reconcile)

	records, err := store.RawRecordsForDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].UniqueID)
}

func TestHarvestSnapshot_IncrementalKeepsSkippedEntitiesLive(t *testing.T) {
	service, store, setIDs := newTestService(t, []string{"1", "2"})
	ctx := context.Background()
	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	report, err := service.HarvestSnapshot(ctx, HarvestOptions{SnapshotDate: day1})
	require.NoError(t, err)
	require.Equal(t, 2, report.Reconcile.Added)

	// A new entity appears, and yesterday's two fall inside the skip
	// window. The incremental pass must not read their absence from the
	// fetched subset as removal.
	setIDs([]string{"1", "2", "3"})
	report, err = service.HarvestSnapshot(ctx, HarvestOptions{
		SnapshotDate: day2,
		SkipDays:     7,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Harvest.Skipped)
	assert.Equal(t, 1, report.Harvest.DetailsFetched)
	assert.Nil(t, report.Reconcile)

	live, err := store.LiveAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 2, "skipped entities must stay live")

	has, err := store.HasSnapshotRun(ctx, day2)
	require.NoError(t, err)
	assert.False(t, has, "incremental pass must not record a snapshot run")
}

func TestHarvestSnapshot_DryRunCommitsNothing(t *testing.T) {
	service, store, _ := newTestService(t, []string{"1", "2"})
	ctx := context.Background()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	report, err := service.HarvestSnapshot(ctx, HarvestOptions{SnapshotDate: date, DryRun: true})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Reconcile.Added)

	live, err := store.LiveAssets(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	// The raw records persisted during the dry run can be committed later.
	committed, err := service.ProcessDate(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, 2, committed.Reconcile.Added)
}

func TestProcessDate_ReplaysStoredRecords(t *testing.T) {
	service, store, _ := newTestService(t, nil)
	ctx := context.Background()
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendRawRecord(ctx, types.NewRawRecord(date, map[string]string{
		types.FieldUniqueID:    "7",
		types.FieldDescription: "A painting",
	})))

	report, err := service.ProcessDate(ctx, date, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reconcile.Added)

	// Replaying the same date again is rejected by the run guard.
	_, err = service.ProcessDate(ctx, date, false)
	assert.ErrorIs(t, err, reconcile.ErrAlreadyProcessed)
}

func TestProcessDate_NoRecords(t *testing.T) {
	service, _, _ := newTestService(t, nil)

	_, err := service.ProcessDate(context.Background(), time.Now(), false)
	assert.ErrorIs(t, err, reconcile.ErrEmptyBatch)
}
