package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/scrypster/lineage/internal/config"
	"github.com/scrypster/lineage/internal/harvest"
	"github.com/scrypster/lineage/internal/lookup"
	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/server"
	"github.com/scrypster/lineage/internal/services"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/internal/storage/postgres"
	"github.com/scrypster/lineage/internal/storage/sqlite"
	"github.com/scrypster/lineage/pkg/types"
	"github.com/scrypster/lineage/web/handlers"
)

// hubSink forwards change events to the websocket hub once the server has
// created it. The reconciler is wired before the hub exists, so the pointer
// is bound late.
type hubSink struct {
	hub atomic.Pointer[handlers.WebSocketHub]
}

func (s *hubSink) PublishChange(event types.ChangeEvent) {
	if h := s.hub.Load(); h != nil {
		h.PublishChange(event)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	collections, err := lookup.New(cfg.Storage.CollectionsFile)
	if err != nil {
		log.Fatalf("Failed to load collections: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &hubSink{}
	fetcher := harvest.NewFetcher(harvest.FetcherConfig{
		RequestsPerSecond: cfg.Harvest.RequestsPerSecond,
		MaxRetries:        cfg.Harvest.MaxRetries,
		BaseDelay:         cfg.Harvest.BaseDelay,
	})
	harvester := harvest.New(fetcher, store, harvest.HarvesterConfig{
		SummaryURL:        cfg.Harvest.SummaryURL,
		DetailURLTemplate: cfg.Harvest.DetailURLTemplate,
		Concurrency:       cfg.Harvest.Concurrency,
		DetailDelay:       cfg.Harvest.DetailDelay,
	})
	snapshotService := services.NewSnapshotService(store, harvester, reconcile.New(store, sink))

	addr, hub := server.Start(ctx, cfg, store, collections, snapshotService)
	sink.hub.Store(hub)
	log.Printf("Lineage API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.AssetStore, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath + "/lineage.db")
}
