package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

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

// pqUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pqUniqueViolation = "23505"

// LiveAssets returns every currently live version.
func (s *Store) LiveAssets(ctx context.Context) ([]*types.AssetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM asset_versions
		WHERE valid_until IS NULL
		ORDER BY unique_id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query live assets: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows)
}

// HasSnapshotRun reports whether a pass was already committed for the date.
func (s *Store) HasSnapshotRun(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshot_runs WHERE snapshot_date = $1",
		types.DateOf(date),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to check snapshot run: %w", err)
	}
	return count > 0, nil
}

// CommitPass atomically applies one reconciliation pass. The snapshot run
// insert happens first so the UNIQUE constraint on snapshot_date acts as a
// transactional idempotency check.
func (s *Store) CommitPass(ctx context.Context, pass *storage.Pass) error {
	if pass == nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin pass transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	passDate := types.DateOf(pass.Run.SnapshotDate)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_runs
			(snapshot_date, source, source_file, record_count, added_count, updated_count, removed_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, passDate, string(pass.Run.Source), pass.Run.SourceFile,
		pass.Run.RecordCount, pass.Run.AddedCount, pass.Run.UpdatedCount, pass.Run.RemovedCount)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateSnapshot, passDate.Format(time.DateOnly))
		}
		return fmt.Errorf("postgres: failed to insert snapshot run: %w", err)
	}

	for _, versionID := range pass.CloseVersionIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE asset_versions SET valid_until = $1
			WHERE id = $2 AND valid_until IS NULL
		`, passDate, versionID)
		if err != nil {
			return fmt.Errorf("postgres: failed to close version %d: %w", versionID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("postgres: failed to check close of version %d: %w", versionID, err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: version %d is not live", storage.ErrInvalidInput, versionID)
		}
	}

	insertVersion, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_versions
			(unique_id, owner_id, description, location, category, access_details,
			 contact_name, address_line1, address_line2, address_city, address_postcode,
			 telephone, fax, email, website, valid_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare version insert: %w", err)
	}
	defer insertVersion.Close()

	for _, v := range pass.NewVersions {
		err := insertVersion.QueryRowContext(ctx,
			v.UniqueID, v.OwnerID, v.Description, v.Location, v.Category, v.AccessDetails,
			v.Contact.Name, v.Contact.Line1, v.Contact.Line2, v.Contact.City, v.Contact.Postcode,
			v.Contact.Telephone, v.Contact.Fax, v.Contact.Email, v.Contact.Website,
			types.DateOf(v.ValidFrom)).Scan(&v.ID)
		if err != nil {
			return fmt.Errorf("postgres: failed to insert version for %s: %w", v.UniqueID, err)
		}
	}

	insertEvent, err := tx.PrepareContext(ctx, `
		INSERT INTO change_events (id, unique_id, change_type, change_date, changed_fields, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to prepare event insert: %w", err)
	}
	defer insertEvent.Close()

	for _, e := range pass.Events {
		_, err := insertEvent.ExecContext(ctx,
			e.ID, e.UniqueID, string(e.Type), types.DateOf(e.ChangeDate),
			strings.Join(e.ChangedFields, ","), e.Summary)
		if err != nil {
			return fmt.Errorf("postgres: failed to insert change event for %s: %w", e.UniqueID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit pass: %w", err)
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
		validFrom  time.Time
		validUntil sql.NullTime
	)
	err := row.Scan(
		&v.ID, &v.UniqueID, &v.OwnerID, &v.Description, &v.Location, &v.Category, &v.AccessDetails,
		&v.Contact.Name, &v.Contact.Line1, &v.Contact.Line2, &v.Contact.City, &v.Contact.Postcode,
		&v.Contact.Telephone, &v.Contact.Fax, &v.Contact.Email, &v.Contact.Website,
		&validFrom, &validUntil, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.ValidFrom = dateOf(validFrom)
	if validUntil.Valid {
		until := dateOf(validUntil.Time)
		v.ValidUntil = &until
	}

	return &v, nil
}
