package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// AppendRawRecord stores a single raw record. Re-appending an existing
// (snapshot_date, unique_id) pair is a no-op.
func (s *Store) AppendRawRecord(ctx context.Context, rec types.RawRecord) error {
	if rec.UniqueID == "" {
		return fmt.Errorf("%w: raw record has no unique id", storage.ErrInvalidInput)
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal raw fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_records (snapshot_date, unique_id, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (snapshot_date, unique_id) DO NOTHING
	`, types.DateOf(rec.SnapshotDate), rec.UniqueID, string(fieldsJSON))
	if err != nil {
		return fmt.Errorf("postgres: failed to append raw record: %w", err)
	}
	return nil
}

// AppendRawRecords stores a batch of raw records in one transaction.
func (s *Store) AppendRawRecords(ctx context.Context, recs []types.RawRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (snapshot_date, unique_id, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (snapshot_date, unique_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare raw insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.UniqueID == "" {
			continue
		}
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("postgres: failed to marshal raw fields for %s: %w", rec.UniqueID, err)
		}
		if _, err := stmt.ExecContext(ctx, types.DateOf(rec.SnapshotDate), rec.UniqueID, string(fieldsJSON)); err != nil {
			return fmt.Errorf("postgres: failed to append raw record %s: %w", rec.UniqueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit raw batch: %w", err)
	}
	return nil
}

// RawRecordsForDate returns all raw records stored for one snapshot date.
func (s *Store) RawRecordsForDate(ctx context.Context, date time.Time) ([]types.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_date, unique_id, fields
		FROM raw_records
		WHERE snapshot_date = $1
		ORDER BY unique_id
	`, types.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query raw records: %w", err)
	}
	defer rows.Close()

	return scanRawRecords(rows)
}

// RawHistory returns all raw records for one entity, oldest first.
func (s *Store) RawHistory(ctx context.Context, uniqueID string) ([]types.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_date, unique_id, fields
		FROM raw_records
		WHERE unique_id = $1
		ORDER BY snapshot_date
	`, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query raw history: %w", err)
	}
	defer rows.Close()

	return scanRawRecords(rows)
}

// RecentlyHarvestedIDs returns the ids of entities with a raw record on or
// after the cutoff date.
func (s *Store) RecentlyHarvestedIDs(ctx context.Context, cutoff time.Time) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT unique_id
		FROM raw_records
		WHERE snapshot_date >= $1
	`, types.DateOf(cutoff))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query recent ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan recent id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func scanRawRecords(rows *sql.Rows) ([]types.RawRecord, error) {
	var records []types.RawRecord
	for rows.Next() {
		var (
			date       time.Time
			uniqueID   string
			fieldsJSON string
		)
		if err := rows.Scan(&date, &uniqueID, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan raw record: %w", err)
		}

		fields := make(map[string]string)
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("postgres: failed to unmarshal raw fields for %s: %w", uniqueID, err)
		}

		records = append(records, types.RawRecord{
			SnapshotDate: dateOf(date),
			UniqueID:     uniqueID,
			Fields:       fields,
		})
	}
	return records, rows.Err()
}
