package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// versionColumns is the shared column list for asset_versions queries.
const versionColumns = `
	id, unique_id, owner_id, description, location, category, access_details,
	contact_name, address_line1, address_line2, address_city, address_postcode,
	telephone, fax, email, website,
	valid_from, valid_until, created_at
`

// LiveAssets returns every currently live version.
func (s *Store) LiveAssets(ctx context.Context) ([]*types.AssetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM asset_versions
		WHERE valid_until IS NULL
		ORDER BY unique_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query live assets: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// HasSnapshotRun reports whether a pass was already committed for the date.
func (s *Store) HasSnapshotRun(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshot_runs WHERE snapshot_date = ?",
		dateString(date),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to check snapshot run: %w", err)
	}
	return count > 0, nil
}

// CommitPass atomically applies one reconciliation pass. The snapshot run
// insert happens first so the UNIQUE constraint on snapshot_date acts as a
// transactional idempotency check, not an afterthought query.
func (s *Store) CommitPass(ctx context.Context, pass *storage.Pass) error {
	if pass == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin pass transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	passDate := dateString(pass.Run.SnapshotDate)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_runs
			(snapshot_date, source, source_file, record_count, added_count, updated_count, removed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, passDate, string(pass.Run.Source), pass.Run.SourceFile,
		pass.Run.RecordCount, pass.Run.AddedCount, pass.Run.UpdatedCount, pass.Run.RemovedCount)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateSnapshot, passDate)
		}
		return fmt.Errorf("sqlite: failed to insert snapshot run: %w", err)
	}

	// Close superseded and removed versions.
	for _, versionID := range pass.CloseVersionIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE asset_versions SET valid_until = ?
			WHERE id = ? AND valid_until IS NULL
		`, passDate, versionID)
		if err != nil {
			return fmt.Errorf("sqlite: failed to close version %d: %w", versionID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: failed to check close of version %d: %w", versionID, err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: version %d is not live", storage.ErrInvalidInput, versionID)
		}
	}

	// Open the new versions.
	insertVersion, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_versions
			(unique_id, owner_id, description, location, category, access_details,
			 contact_name, address_line1, address_line2, address_city, address_postcode,
			 telephone, fax, email, website, valid_from)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare version insert: %w", err)
	}
	defer insertVersion.Close()

	for _, v := range pass.NewVersions {
		res, err := insertVersion.ExecContext(ctx,
			v.UniqueID, v.OwnerID, v.Description, v.Location, v.Category, v.AccessDetails,
			v.Contact.Name, v.Contact.Line1, v.Contact.Line2, v.Contact.City, v.Contact.Postcode,
			v.Contact.Telephone, v.Contact.Fax, v.Contact.Email, v.Contact.Website,
			dateString(v.ValidFrom))
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert version for %s: %w", v.UniqueID, err)
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("sqlite: failed to read version id for %s: %w", v.UniqueID, err)
		}
	}

	// Append change events.
	insertEvent, err := tx.PrepareContext(ctx, `
		INSERT INTO change_events (id, unique_id, change_type, change_date, changed_fields, summary)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare event insert: %w", err)
	}
	defer insertEvent.Close()

	for _, e := range pass.Events {
		_, err := insertEvent.ExecContext(ctx,
			e.ID, e.UniqueID, string(e.Type), dateString(e.ChangeDate),
			strings.Join(e.ChangedFields, ","), e.Summary)
		if err != nil {
			return fmt.Errorf("sqlite: failed to insert change event for %s: %w", e.UniqueID, err)
		}
	}

	// Keep the FTS index in line with the live set: drop entries for every
	// entity touched by this pass, then re-add the ones that are now live.
	if err := s.syncSearchIndex(ctx, tx, pass); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit pass: %w", err)
	}
	return nil
}

// syncSearchIndex updates assets_fts inside the pass transaction.
func (s *Store) syncSearchIndex(ctx context.Context, tx *sql.Tx, pass *storage.Pass) error {
	touched := make(map[string]bool)
	for _, e := range pass.Events {
		touched[e.UniqueID] = true
	}

	deleteRow, err := tx.PrepareContext(ctx, "DELETE FROM assets_fts WHERE unique_id = ?")
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare fts delete: %w", err)
	}
	defer deleteRow.Close()

	for id := range touched {
		if _, err := deleteRow.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("sqlite: failed to delete fts row for %s: %w", id, err)
		}
	}

	insertRow, err := tx.PrepareContext(ctx, `
		INSERT INTO assets_fts (unique_id, description, contact_name, location, category)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare fts insert: %w", err)
	}
	defer insertRow.Close()

	for _, v := range pass.NewVersions {
		if _, err := insertRow.ExecContext(ctx, v.UniqueID, v.Description, v.Contact.Name, v.Location, v.Category); err != nil {
			return fmt.Errorf("sqlite: failed to insert fts row for %s: %w", v.UniqueID, err)
		}
	}
	return nil
}

// RebuildSearchIndex repopulates assets_fts from the live versions. Useful
// after bulk imports or manual surgery on the history.
func (s *Store) RebuildSearchIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin fts rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM assets_fts"); err != nil {
		return fmt.Errorf("sqlite: failed to clear fts index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO assets_fts (unique_id, description, contact_name, location, category)
		SELECT unique_id, description, contact_name, location, category
		FROM asset_versions
		WHERE valid_until IS NULL
	`); err != nil {
		return fmt.Errorf("sqlite: failed to rebuild fts index: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit fts rebuild: %w", err)
	}
	return nil
}

func scanVersions(rows *sql.Rows) ([]*types.AssetVersion, error) {
	var versions []*types.AssetVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*types.AssetVersion, error) {
	var (
		v          types.AssetVersion
		validFrom  string
		validUntil sql.NullString
		createdAt  time.Time
	)
	err := row.Scan(
		&v.ID, &v.UniqueID, &v.OwnerID, &v.Description, &v.Location, &v.Category, &v.AccessDetails,
		&v.Contact.Name, &v.Contact.Line1, &v.Contact.Line2, &v.Contact.City, &v.Contact.Postcode,
		&v.Contact.Telephone, &v.Contact.Fax, &v.Contact.Email, &v.Contact.Website,
		&validFrom, &validUntil, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if v.ValidFrom, err = parseDate(validFrom); err != nil {
		return nil, err
	}
	if validUntil.Valid {
		until, err := parseDate(validUntil.String)
		if err != nil {
			return nil, err
		}
		v.ValidUntil = &until
	}
	v.CreatedAt = createdAt

	return &v, nil
}
