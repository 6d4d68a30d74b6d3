// Package importer loads historical snapshot download files (CSV or XLSX)
// into raw records and replays them through the reconciler in chronological
// order, building the version history the same way a live harvest would.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/scrypster/lineage/internal/reconcile"
	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("importer: unsupported file format")

// Reconciler is the slice of the reconcile API the importer drives.
type Reconciler interface {
	Reconcile(ctx context.Context, date time.Time, source types.SnapshotSource, sourceFile string, records []types.RawRecord) (*reconcile.Result, error)
}

// Importer replays snapshot files into the raw store and version history.
type Importer struct {
	raw        storage.RawStore
	reconciler Reconciler
}

// New creates an Importer.
func New(raw storage.RawStore, reconciler Reconciler) *Importer {
	return &Importer{raw: raw, reconciler: reconciler}
}

// FileResult reports one imported file.
type FileResult struct {
	Path         string
	SnapshotDate time.Time
	Records      int
	Result       *reconcile.Result
}

// ImportFile loads one snapshot file, stores its raw records and runs a
// reconciliation pass dated by the filename.
func (im *Importer) ImportFile(ctx context.Context, path string) (*FileResult, error) {
	snapshotDate, err := ParseFilenameDate(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	records, err := loadFile(path, snapshotDate)
	if err != nil {
		return nil, err
	}
	log.Printf("importer: loaded %d records from %s (snapshot %s)",
		len(records), filepath.Base(path), snapshotDate.Format(time.DateOnly))

	if err := im.raw.AppendRawRecords(ctx, records); err != nil {
		return nil, fmt.Errorf("importer: failed to store raw records: %w", err)
	}

	result, err := im.reconciler.Reconcile(ctx, snapshotDate, types.SourceImport, filepath.Base(path), records)
	if err != nil {
		return nil, err
	}

	return &FileResult{
		Path:         path,
		SnapshotDate: snapshotDate,
		Records:      len(records),
		Result:       result,
	}, nil
}

// ImportFiles imports several snapshot files in chronological order of their
// filename dates, regardless of the order given. Import stops at the first
// failing file so history is never built on a gap.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) ([]*FileResult, error) {
	type dated struct {
		path string
		date time.Time
	}
	files := make([]dated, 0, len(paths))
	for _, p := range paths {
		d, err := ParseFilenameDate(filepath.Base(p))
		if err != nil {
			return nil, err
		}
		files = append(files, dated{path: p, date: d})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].date.Before(files[j].date) })

	var results []*FileResult
	for _, f := range files {
		res, err := im.ImportFile(ctx, f.path)
		if err != nil {
			return results, fmt.Errorf("importer: %s: %w", filepath.Base(f.path), err)
		}
		results = append(results, res)
	}
	return results, nil
}

func loadFile(path string, snapshotDate time.Time) ([]types.RawRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, snapshotDate)
	case ".xlsx":
		return LoadXLSX(path, snapshotDate)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// ParseFilenameDate extracts the snapshot date from a download filename like
// "Heritage_assets_downloaded_25_January_2023.csv".
func ParseFilenameDate(filename string) (time.Time, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("importer: cannot parse date from filename %q", filename)
	}

	// The date is the trailing day_MonthName_year triple.
	dayStr, monthStr, yearStr := parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1]

	month, ok := monthsByName[strings.ToLower(monthStr)]
	if !ok {
		return time.Time{}, fmt.Errorf("importer: unknown month %q in filename %q", monthStr, filename)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("importer: invalid day %q in filename %q", dayStr, filename)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil || len(yearStr) != 4 {
		return time.Time{}, fmt.Errorf("importer: invalid year %q in filename %q", yearStr, filename)
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
