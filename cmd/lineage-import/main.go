package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrypster/lineage/internal/config"
	"github.com/scrypster/lineage/internal/importer"
	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/internal/storage/postgres"
	"github.com/scrypster/lineage/internal/storage/sqlite"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] path [path ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Imports historical snapshot downloads into the version history.\n")
		fmt.Fprintf(os.Stderr, "Each path is a .csv or .xlsx download, or a directory of them.\n")
		fmt.Fprintf(os.Stderr, "Files are processed in chronological order of their filename dates.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	paths, err := expandPaths(flag.Args())
	if err != nil {
		log.Fatalf("Failed to resolve import paths: %v", err)
	}
	if len(paths) == 0 {
		log.Fatal("No .csv or .xlsx files found in the given paths")
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

	im := importer.New(store, reconcile.New(store, nil))
	results, err := im.ImportFiles(context.Background(), paths)
	for _, res := range results {
		log.Printf("Imported %s (snapshot %s): %d records, %d added, %d updated, %d removed",
			res.Path, res.SnapshotDate.Format(time.DateOnly), res.Records,
			res.Result.Added, res.Result.Updated, res.Result.Removed)
	}
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
}

// expandPaths resolves directory arguments to the snapshot files they
// contain. Plain file arguments pass through untouched.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".csv", ".xlsx":
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return paths, nil
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (storage.AssetStore, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	return sqlite.New(cfg.Storage.DataPath + "/lineage.db")
}
