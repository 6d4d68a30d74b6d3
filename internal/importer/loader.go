package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/scrypster/lineage/pkg/types"
)

// LoadCSV reads a snapshot CSV into raw records. The first row is the
// header; rows without a unique id are skipped.
func LoadCSV(path string, snapshotDate time.Time) ([]types.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("importer: failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read header of %s: %w", path, err)
	}

	var records []types.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: failed to read row of %s: %w", path, err)
		}
		if rec, ok := rowToRecord(header, row, snapshotDate); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// LoadXLSX reads the first sheet of a snapshot workbook into raw records.
// The first row is the header; rows without a unique id are skipped.
func LoadXLSX(path string, snapshotDate time.Time) ([]types.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: failed to open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("importer: failed to close %s: %v", path, err)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("importer: %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read sheet %q of %s: %w", sheets[0], path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("importer: %s sheet %q is empty", path, sheets[0])
	}

	header := rows[0]
	var records []types.RawRecord
	for _, row := range rows[1:] {
		if rec, ok := rowToRecord(header, row, snapshotDate); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// rowToRecord zips a header and data row into a raw record. Short rows leave
// trailing fields absent.
func rowToRecord(header, row []string, snapshotDate time.Time) (types.RawRecord, bool) {
	fields := make(map[string]string, len(header))
	for i, key := range header {
		if key == "" {
			continue
		}
		if i < len(row) {
			fields[key] = row[i]
		}
	}

	rec := types.NewRawRecord(snapshotDate, fields)
	if rec.UniqueID == "" {
		return types.RawRecord{}, false
	}
	return rec, true
}
