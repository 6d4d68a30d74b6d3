package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/scrypster/lineage/internal/config"
	"github.com/scrypster/lineage/internal/lookup"
	"github.com/scrypster/lineage/internal/services"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// Version is the reported API version.
const Version = "1.0.0"

// SnapshotRunner triggers harvest passes. *services.SnapshotService satisfies it.
type SnapshotRunner interface {
	HarvestSnapshot(ctx context.Context, opts services.HarvestOptions) (*services.Report, error)
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	store       storage.AssetStore
	collections *lookup.Collections
	config      *config.Config
	runner      SnapshotRunner

	harvestRunning atomic.Bool
}

// NewAPIHandlers creates a new APIHandlers instance. runner may be nil when
// the deployment has no harvest trigger (read-only instances).
func NewAPIHandlers(store storage.AssetStore, collections *lookup.Collections, cfg *config.Config, runner SnapshotRunner) *APIHandlers {
	return &APIHandlers{
		store:       store,
		collections: collections,
		config:      cfg,
		runner:      runner,
	}
}

// ListAssets handles GET /api/assets - list live assets with pagination and
// filtering. A non-empty "q" parameter switches to full-text search.
func (h *APIHandlers) ListAssets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOptions(r)
	query := r.URL.Query().Get("q")

	var (
		result *storage.PaginatedResult[types.AssetVersion]
		err    error
	)
	if query != "" {
		result, err = h.store.Search(r.Context(), query, opts)
	} else {
		result, err = h.store.ListAssets(r.Context(), opts)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list assets", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetAsset handles GET /api/assets/{id} - get the live version of one asset.
func (h *APIHandlers) GetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "asset ID is required", nil)
		return
	}

	asset, err := h.store.GetLiveAsset(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "asset not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get asset", err)
		return
	}

	respondJSON(w, http.StatusOK, asset)
}

// GetAssetHistory handles GET /api/assets/{id}/history - the full version
// chain for one asset, oldest first.
func (h *APIHandlers) GetAssetHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "asset ID is required", nil)
		return
	}

	history, err := h.store.AssetHistory(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "asset not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get asset history", err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// GetAssetChanges handles GET /api/assets/{id}/changes - the change events
// recorded for one asset, newest first.
func (h *APIHandlers) GetAssetChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "asset ID is required", nil)
		return
	}

	filter := storage.ChangeFilter{
		Page:     parseInt(r.URL.Query().Get("page"), 1),
		PageSize: parseInt(r.URL.Query().Get("page_size"), 0),
		UniqueID: id,
	}
	filter.Normalize()

	result, err := h.store.ListChanges(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get asset changes", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetAssetsAsOf handles GET /api/assets/as-of/{date} - the registry as it
// stood on a historical date.
func (h *APIHandlers) GetAssetsAsOf(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, r.PathValue("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", err)
		return
	}

	result, err := h.store.AssetsAsOf(r.Context(), date, parseListOptions(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query assets as of date", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ListChanges handles GET /api/changes - change events newest first, with
// optional type and unique_id filters.
func (h *APIHandlers) ListChanges(w http.ResponseWriter, r *http.Request) {
	filter := storage.ChangeFilter{
		Page:     parseInt(r.URL.Query().Get("page"), 1),
		PageSize: parseInt(r.URL.Query().Get("page_size"), 0),
		Type:     types.ChangeType(r.URL.Query().Get("type")),
		UniqueID: r.URL.Query().Get("unique_id"),
	}
	filter.Normalize()

	result, err := h.store.ListChanges(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list changes", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetChangesBetween handles GET /api/changes/{from}/{to} - change events with
// a change date inside the inclusive range, oldest first.
func (h *APIHandlers) GetChangesBetween(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.DateOnly, r.PathValue("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD", err)
		return
	}
	to, err := time.Parse(time.DateOnly, r.PathValue("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD", err)
		return
	}
	if to.Before(from) {
		respondError(w, http.StatusBadRequest, "to date is before from date", nil)
		return
	}

	events, err := h.store.ChangesBetween(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list changes", err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

// ListSnapshots handles GET /api/snapshots - snapshot run metadata, newest first.
func (h *APIHandlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListSnapshotRuns(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list snapshot runs", err)
		return
	}

	respondJSON(w, http.StatusOK, runs)
}

// GetStats handles GET /api/stats - aggregate database statistics.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// GetCollections handles GET /api/collections - the full owner id to
// collection name mapping.
func (h *APIHandlers) GetCollections(w http.ResponseWriter, r *http.Request) {
	all := h.collections.All()
	respondJSON(w, http.StatusOK, CollectionsResponse{Collections: all, Total: len(all)})
}

// GetCollection handles GET /api/collections/{owner} - resolve one owner id.
func (h *APIHandlers) GetCollection(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	name, ok := h.collections.Name(owner)
	if !ok {
		respondError(w, http.StatusNotFound, "no collection for owner", nil)
		return
	}
	respondJSON(w, http.StatusOK, CollectionResponse{OwnerID: owner, Name: name})
}

// ReloadCollections handles POST /api/collections/reload - re-read the
// collections file from disk.
func (h *APIHandlers) ReloadCollections(w http.ResponseWriter, r *http.Request) {
	if err := h.collections.Reload(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload collections", err)
		return
	}
	all := h.collections.All()
	respondJSON(w, http.StatusOK, CollectionsResponse{Collections: all, Total: len(all)})
}

// TriggerHarvest handles POST /api/harvest - start an asynchronous harvest
// pass. At most one pass runs at a time; a second trigger while one is in
// flight returns 409.
func (h *APIHandlers) TriggerHarvest(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "harvesting is not enabled on this instance", nil)
		return
	}

	var req HarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}

	if !h.harvestRunning.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "a harvest is already running", nil)
		return
	}

	// The pass outlives the request; run it on a background context.
	go func() {
		defer h.harvestRunning.Store(false)
		report, err := h.runner.HarvestSnapshot(context.Background(), services.HarvestOptions{
			SkipDays: req.SkipDays,
			Limit:    req.Limit,
			DryRun:   req.DryRun,
		})
		if err != nil {
			log.Printf("handlers: harvest trigger failed: %v", err)
			return
		}
		if report.Reconcile == nil {
			log.Printf("handlers: triggered incremental harvest finished: %d details persisted",
				report.Harvest.DetailsFetched)
			return
		}
		log.Printf("handlers: triggered harvest finished: +%d ~%d -%d",
			report.Reconcile.Added, report.Reconcile.Updated, report.Reconcile.Removed)
	}()

	respondJSON(w, http.StatusAccepted, HarvestResponse{
		Status:  "accepted",
		Message: "harvest started",
	})
}

// Health handles GET /api/health.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// Helper functions

// parseListOptions reads the shared pagination and filter parameters.
func parseListOptions(r *http.Request) storage.ListOptions {
	opts := storage.ListOptions{
		Page:     parseInt(r.URL.Query().Get("page"), 1),
		PageSize: parseInt(r.URL.Query().Get("page_size"), 0),
		Location: r.URL.Query().Get("location"),
		Category: r.URL.Query().Get("category"),
		OwnerID:  r.URL.Query().Get("owner"),
	}
	opts.Normalize()
	return opts
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so just log the failure
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
