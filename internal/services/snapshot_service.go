// Package services wires the harvest, tidy and reconcile stages into the
// operations the CLI commands and the web API trigger.
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/scrypster/lineage/internal/harvest"
	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// SnapshotService runs complete snapshot passes: harvest the registry into
// raw records, then reconcile the day's records into the version history.
type SnapshotService struct {
	store      storage.AssetStore
	harvester  *harvest.Harvester
	reconciler *reconcile.Reconciler
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(store storage.AssetStore, harvester *harvest.Harvester, reconciler *reconcile.Reconciler) *SnapshotService {
	return &SnapshotService{store: store, harvester: harvester, reconciler: reconciler}
}

// HarvestOptions controls one harvest pass.
type HarvestOptions struct {
	// SnapshotDate is the pass date. Zero means today.
	SnapshotDate time.Time

	// SkipDays enables incremental mode: entities with a raw record within
	// the last SkipDays days are not re-fetched, and the pass persists raw
	// records without reconciling them (the partial batch would read as
	// mass removal). Zero fetches everything and reconciles.
	SkipDays int

	// Limit caps the number of detail pages fetched. Zero means no cap.
	Limit int

	// DryRun harvests and computes the reconciliation outcome without
	// committing anything to the version history.
	DryRun bool
}

// Report is the outcome of one snapshot pass. Reconcile is nil for
// incremental passes, which persist raw records without reconciling.
type Report struct {
	SnapshotDate time.Time         `json:"snapshot_date"`
	Harvest      *harvest.Result   `json:"harvest,omitempty"`
	Reconcile    *reconcile.Result `json:"reconcile,omitempty"`
	DryRun       bool              `json:"dry_run,omitempty"`
}

// HarvestSnapshot fetches the registry and, for a full pass, reconciles
// today's records. The raw records persisted during the harvest are re-read
// from the store for the reconciliation pass, so a resumed run picks up
// records fetched by an earlier interrupted attempt on the same day.
// Incremental passes (SkipDays > 0) stop after persisting raw records.
func (s *SnapshotService) HarvestSnapshot(ctx context.Context, opts HarvestOptions) (*Report, error) {
	date := types.DateOf(opts.SnapshotDate)
	if opts.SnapshotDate.IsZero() {
		date = types.DateOf(time.Now())
	}

	var skip map[string]bool
	if opts.SkipDays > 0 {
		cutoff := date.AddDate(0, 0, -opts.SkipDays)
		recent, err := s.store.RecentlyHarvestedIDs(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("services: failed to load recent ids: %w", err)
		}
		skip = recent
		// Entities fetched earlier today still count as this pass's records,
		// so only exclude ids from strictly earlier dates.
		today, err := s.store.RawRecordsForDate(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("services: failed to load today's records: %w", err)
		}
		for _, rec := range today {
			delete(skip, rec.UniqueID)
		}
	}

	harvestResult, err := s.harvester.Run(ctx, date, skip, opts.Limit)
	if err != nil {
		return nil, err
	}

	report := &Report{SnapshotDate: date, Harvest: harvestResult, DryRun: opts.DryRun}

	// An incremental pass fetches only a subset of the registry, so its
	// records are not a complete batch: reconciling them would close the
	// skipped entities' live versions as removed. Persist raw only; a full
	// pass or lineage-process reconciles once a complete day exists.
	if opts.SkipDays > 0 {
		log.Printf("services: incremental snapshot %s: %d details persisted, %d skipped, reconciliation deferred",
			date.Format(time.DateOnly), harvestResult.DetailsFetched, harvestResult.Skipped)
		return report, nil
	}

	records, err := s.store.RawRecordsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("services: failed to load raw records: %w", err)
	}

	if opts.DryRun {
		report.Reconcile, err = s.reconciler.DryRun(ctx, date, records)
	} else {
		report.Reconcile, err = s.reconciler.Reconcile(ctx, date, types.SourceHarvest, "", records)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("services: snapshot %s complete: +%d ~%d -%d (dry_run=%v)",
		date.Format(time.DateOnly), report.Reconcile.Added, report.Reconcile.Updated,
		report.Reconcile.Removed, opts.DryRun)
	return report, nil
}

// ProcessDate reconciles the raw records already stored for a date, without
// harvesting. Used to replay a day whose harvest completed but whose
// reconciliation did not.
func (s *SnapshotService) ProcessDate(ctx context.Context, date time.Time, dryRun bool) (*Report, error) {
	date = types.DateOf(date)

	records, err := s.store.RawRecordsForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("services: failed to load raw records: %w", err)
	}

	report := &Report{SnapshotDate: date, DryRun: dryRun}
	if dryRun {
		report.Reconcile, err = s.reconciler.DryRun(ctx, date, records)
	} else {
		report.Reconcile, err = s.reconciler.Reconcile(ctx, date, types.SourceHarvest, "", records)
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}
