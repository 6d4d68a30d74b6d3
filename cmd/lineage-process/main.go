package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/scrypster/lineage/internal/config"
	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/services"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/internal/storage/postgres"
	"github.com/scrypster/lineage/internal/storage/sqlite"
)

func main() {
	var (
		dateStr = flag.String("date", "", "Snapshot date to reconcile (YYYY-MM-DD, required)")
		dryRun  = flag.Bool("dry-run", false, "Compute the pass without committing")
	)
	flag.Parse()

	if *dateStr == "" {
		log.Fatal("the -date flag is required")
	}
	date, err := time.Parse(time.DateOnly, *dateStr)
	if err != nil {
		log.Fatalf("Invalid -date %q: %v", *dateStr, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	service := services.NewSnapshotService(store, nil, reconcile.New(store, nil))
	report, err := service.ProcessDate(context.Background(), date, *dryRun)
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}

	log.Printf("Processed %s: %d added, %d updated, %d removed, %d unchanged (dry-run: %v)",
		report.SnapshotDate.Format(time.DateOnly), report.Reconcile.Added,
		report.Reconcile.Updated, report.Reconcile.Removed, report.Reconcile.Unchanged, report.DryRun)
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.AssetStore, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath + "/lineage.db")
}
