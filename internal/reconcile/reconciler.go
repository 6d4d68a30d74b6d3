// Package reconcile implements the SCD Type 2 reconciliation engine.
//
// One reconciliation pass takes a dated batch of raw records, tidies them,
// compares the result against a single consistent snapshot of the current
// live state and computes additions, removals and updates. The engine owns
// every versioning invariant: it is the only component that opens version
// rows, closes valid_until intervals or emits change events.
//
// Passes are single-writer: concurrent passes against the same store must be
// serialized by the caller.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/internal/tidy"
	"github.com/scrypster/lineage/pkg/types"
)

var (
	// ErrEmptyBatch is returned when a pass receives zero input records.
	// An empty batch almost always means the harvest failed upstream, so
	// the pass aborts instead of treating it as mass removal.
	ErrEmptyBatch = errors.New("reconcile: empty batch")

	// ErrAlreadyProcessed is returned when the snapshot date already has a
	// committed run. Reprocessing a date is not supported.
	ErrAlreadyProcessed = errors.New("reconcile: snapshot date already processed")

	// ErrIntegrity is returned when the stored history violates an SCD2
	// invariant (more than one live version for an entity). The engine
	// never attempts to repair corrupt history silently.
	ErrIntegrity = errors.New("reconcile: data integrity violation")
)

// EventSink receives change events as a pass commits. Used to feed the live
// change event broadcast; may be nil.
type EventSink interface {
	PublishChange(event types.ChangeEvent)
}

// Reconciler computes and commits SCD Type 2 passes against a version store.
type Reconciler struct {
	store storage.VersionStore
	sink  EventSink
}

// New creates a Reconciler. sink may be nil when no live event feed is wired.
func New(store storage.VersionStore, sink EventSink) *Reconciler {
	return &Reconciler{store: store, sink: sink}
}

// Result summarises one reconciliation pass.
type Result struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
}

// Reconcile runs one pass for the given snapshot date and commits it
// atomically. It fails fast with ErrAlreadyProcessed if the date already has
// a run, with ErrEmptyBatch on empty input and with ErrIntegrity when the
// stored live state is corrupt. No state is mutated on any failure path.
func (r *Reconciler) Reconcile(ctx context.Context, date time.Time, source types.SnapshotSource, sourceFile string, records []types.RawRecord) (*Result, error) {
	date = types.DateOf(date)

	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	done, err := r.store.HasSnapshotRun(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("reconcile: checking snapshot run: %w", err)
	}
	if done {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, date.Format(time.DateOnly))
	}

	live, err := r.liveState(ctx)
	if err != nil {
		return nil, err
	}

	pass, result := ComputePass(live, records, date)
	pass.Run.Source = source
	pass.Run.SourceFile = sourceFile

	if err := r.store.CommitPass(ctx, pass); err != nil {
		if errors.Is(err, storage.ErrDuplicateSnapshot) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, date.Format(time.DateOnly))
		}
		return nil, fmt.Errorf("reconcile: committing pass: %w", err)
	}

	if r.sink != nil {
		for _, event := range pass.Events {
			r.sink.PublishChange(event)
		}
	}

	log.Printf("reconcile: pass %s committed: %d added, %d updated, %d removed, %d unchanged",
		date.Format(time.DateOnly), result.Added, result.Updated, result.Removed, result.Unchanged)
	return result, nil
}

// DryRun computes the pass for the given records without committing
// anything. The date guard is skipped; dry runs are previews, not passes.
func (r *Reconciler) DryRun(ctx context.Context, date time.Time, records []types.RawRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	live, err := r.liveState(ctx)
	if err != nil {
		return nil, err
	}

	_, result := ComputePass(live, records, types.DateOf(date))
	return result, nil
}

// liveState loads the live versions into a map keyed by unique id and
// verifies the at-most-one-live invariant.
func (r *Reconciler) liveState(ctx context.Context) (map[string]*types.AssetVersion, error) {
	versions, err := r.store.LiveAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: loading live state: %w", err)
	}

	live := make(map[string]*types.AssetVersion, len(versions))
	for _, v := range versions {
		if _, dup := live[v.UniqueID]; dup {
			return nil, fmt.Errorf("%w: multiple live versions for %s", ErrIntegrity, v.UniqueID)
		}
		live[v.UniqueID] = v
	}
	return live, nil
}

// ComputePass is the pure core of the engine: given the live state and a
// dated batch of raw records, it tidies the batch and computes the full set
// of transitions. Per-entity decisions depend only on that entity's old/new
// pair, so the iteration order affects only the order of the emitted rows;
// ids are processed sorted to keep output deterministic.
func ComputePass(live map[string]*types.AssetVersion, records []types.RawRecord, date time.Time) (*storage.Pass, *Result) {
	tidied := make(map[string]types.Asset, len(records))
	for _, raw := range records {
		asset := tidy.Tidy(raw)
		if asset.UniqueID == "" {
			continue
		}
		tidied[asset.UniqueID] = asset
	}

	var (
		result Result
		pass   = &storage.Pass{
			Run: types.SnapshotRun{
				SnapshotDate: date,
				RecordCount:  len(records),
			},
		}
	)

	// Additions: present in the batch, no live version.
	for _, id := range sortedKeys(tidied) {
		if _, ok := live[id]; ok {
			continue
		}
		asset := tidied[id]
		pass.NewVersions = append(pass.NewVersions, types.NewVersion(asset, date))
		pass.Events = append(pass.Events, newEvent(id, types.ChangeAdded, date, nil,
			"Asset added: "+truncate(asset.Description, 100)))
		result.Added++
	}

	// Removals: live version exists, missing from the batch.
	for _, id := range sortedKeys(live) {
		if _, ok := tidied[id]; ok {
			continue
		}
		pass.CloseVersionIDs = append(pass.CloseVersionIDs, live[id].ID)
		pass.Events = append(pass.Events, newEvent(id, types.ChangeRemoved, date, nil,
			"Asset removed: "+truncate(live[id].Description, 100)))
		result.Removed++
	}

	// Updates: present in both; version only when the diff is non-empty.
	for _, id := range sortedKeys(tidied) {
		old, ok := live[id]
		if !ok {
			continue
		}
		next := tidied[id]
		changed := tidy.Diff(old.Asset, next)
		if len(changed) == 0 {
			result.Unchanged++
			continue
		}
		pass.CloseVersionIDs = append(pass.CloseVersionIDs, old.ID)
		pass.NewVersions = append(pass.NewVersions, types.NewVersion(next, date))
		pass.Events = append(pass.Events, newEvent(id, types.ChangeUpdated, date, changed,
			"Fields changed: "+strings.Join(head(changed, 5), ", ")))
		result.Updated++
	}

	pass.Run.AddedCount = result.Added
	pass.Run.UpdatedCount = result.Updated
	pass.Run.RemovedCount = result.Removed

	return pass, &result
}

func newEvent(uniqueID string, changeType types.ChangeType, date time.Time, changedFields []string, summary string) types.ChangeEvent {
	return types.ChangeEvent{
		ID:            uuid.NewString(),
		UniqueID:      uniqueID,
		Type:          changeType,
		ChangeDate:    date,
		ChangedFields: changedFields,
		Summary:       summary,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate caps a summary string at max runes, never splitting a multi-byte
// sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
