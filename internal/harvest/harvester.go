package harvest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scrypster/lineage/pkg/types"
)

// RawSink receives harvested records one at a time, as soon as each detail
// page lands. storage.RawStore satisfies it.
type RawSink interface {
	AppendRawRecord(ctx context.Context, rec types.RawRecord) error
}

// HarvesterConfig holds the endpoints and pacing for a Harvester.
type HarvesterConfig struct {
	// SummaryURL is the registry listing page.
	SummaryURL string

	// DetailURLTemplate is the detail page URL with a %s placeholder for
	// the entity id.
	DetailURLTemplate string

	// Concurrency is the number of detail page workers. Default: 5.
	Concurrency int

	// DetailDelay is the pause each worker takes before fetching a detail
	// page. Default: 500ms.
	DetailDelay time.Duration
}

func (c *HarvesterConfig) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.DetailDelay <= 0 {
		c.DetailDelay = 500 * time.Millisecond
	}
}

// Result tallies one harvest run.
type Result struct {
	SummariesFound int
	Skipped        int
	DetailsFetched int
	Errors         int
}

// Harvester walks the remote registry: one listing page fetch, then a
// bounded pool of workers fetching detail pages. Each merged record is
// persisted through the sink immediately, so an interrupted run loses at
// most the in-flight items and can be resumed (the raw store ignores
// re-appends of the same key).
type Harvester struct {
	fetcher *Fetcher
	sink    RawSink
	config  HarvesterConfig
}

// New creates a Harvester.
func New(fetcher *Fetcher, sink RawSink, config HarvesterConfig) *Harvester {
	config.applyDefaults()
	return &Harvester{fetcher: fetcher, sink: sink, config: config}
}

// HarvestSummaries fetches and parses the listing page.
func (h *Harvester) HarvestSummaries(ctx context.Context) ([]types.EntitySummary, error) {
	body, err := h.fetcher.Fetch(ctx, h.config.SummaryURL)
	if err != nil {
		return nil, fmt.Errorf("harvest: summary page: %w", err)
	}

	summaries, err := ParseSummaries(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	log.Printf("harvest: extracted %d entity summaries", len(summaries))
	return summaries, nil
}

// HarvestDetails fetches and parses one detail page.
func (h *Harvester) HarvestDetails(ctx context.Context, uniqueID string) (types.EntityDetails, error) {
	url := fmt.Sprintf(h.config.DetailURLTemplate, uniqueID)
	body, err := h.fetcher.Fetch(ctx, url)
	if err != nil {
		return types.EntityDetails{}, fmt.Errorf("harvest: detail page for %s: %w", uniqueID, err)
	}
	return ParseDetails(bytes.NewReader(body), uniqueID)
}

// Run performs a full harvest for the snapshot date: listing page, then
// detail pages for every summary not in the skip set, persisting each merged
// record as it lands. Per-entity detail failures are tallied, not fatal: the
// entity's listing fields are persisted without the detail fields, and the
// run only errors when the listing page itself cannot be fetched.
func (h *Harvester) Run(ctx context.Context, snapshotDate time.Time, skip map[string]bool, limit int) (*Result, error) {
	summaries, err := h.HarvestSummaries(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{SummariesFound: len(summaries)}

	var pending []types.EntitySummary
	for _, s := range summaries {
		if skip[s.UniqueID] {
			result.Skipped++
			continue
		}
		pending = append(pending, s)
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	if result.Skipped > 0 {
		log.Printf("harvest: skipping %d recently harvested entities", result.Skipped)
	}

	var (
		fetched atomic.Int64
		failed  atomic.Int64
		wg      sync.WaitGroup
		jobs    = make(chan types.EntitySummary)
	)

	for i := 0; i < h.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for summary := range jobs {
				if err := h.harvestOne(ctx, snapshotDate, summary); err != nil {
					if ctx.Err() != nil {
						return
					}
					failed.Add(1)
					log.Printf("harvest: entity %s: %v", summary.UniqueID, err)
					continue
				}
				fetched.Add(1)
			}
		}()
	}

	for _, summary := range pending {
		select {
		case jobs <- summary:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return result, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	result.DetailsFetched = int(fetched.Load())
	result.Errors = int(failed.Load())
	log.Printf("harvest: run complete: %d summaries, %d details fetched, %d skipped, %d errors",
		result.SummariesFound, result.DetailsFetched, result.Skipped, result.Errors)

	return result, nil
}

func (h *Harvester) harvestOne(ctx context.Context, snapshotDate time.Time, summary types.EntitySummary) error {
	select {
	case <-time.After(h.config.DetailDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	details, detailErr := h.HarvestDetails(ctx, summary.UniqueID)
	if detailErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Persist the listing fields anyway; a failed detail page must not
		// make the entity disappear from the day's batch.
		details = types.EntityDetails{UniqueID: summary.UniqueID}
	}

	rec := types.NewRawRecord(snapshotDate, RawFields(summary, details))
	if err := h.sink.AppendRawRecord(ctx, rec); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return detailErr
}
