package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// buildAssetFilter produces WHERE clause fragments and args for the
// ListOptions filters. Placeholders are numbered starting at start.
func buildAssetFilter(opts storage.ListOptions, start int) ([]string, []any) {
	var conditions []string
	var args []any

	n := start
	if opts.Location != "" {
		conditions = append(conditions, fmt.Sprintf("location ILIKE $%d", n))
		args = append(args, "%"+opts.Location+"%")
		n++
	}
	if opts.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category ILIKE $%d", n))
		args = append(args, "%"+opts.Category+"%")
		n++
	}
	if opts.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", n))
		args = append(args, opts.OwnerID)
	}

	return conditions, args
}

// ListAssets returns live asset versions with pagination and filtering.
func (s *Store) ListAssets(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.AssetVersion], error) {
	opts.Normalize()

	conditions, args := buildAssetFilter(opts, 1)
	conditions = append([]string{"valid_until IS NULL"}, conditions...)
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM asset_versions "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count assets: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM asset_versions
		%s
		ORDER BY unique_id
		LIMIT $%d OFFSET $%d
	`, versionColumns, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, opts.PageSize, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list assets: %w", err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan assets: %w", err)
	}

	return paginate(versions, total, opts), nil
}

// GetLiveAsset returns the live version for an entity.
func (s *Store) GetLiveAsset(ctx context.Context, uniqueID string) (*types.AssetVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM asset_versions
		WHERE unique_id = $1 AND valid_until IS NULL
	`, uniqueID)

	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: asset %s", storage.ErrNotFound, uniqueID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get asset %s: %w", uniqueID, err)
	}
	return v, nil
}

// AssetHistory returns every version of an entity, oldest first.
func (s *Store) AssetHistory(ctx context.Context, uniqueID string) ([]*types.AssetVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM asset_versions
		WHERE unique_id = $1
		ORDER BY valid_from, id
	`, uniqueID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query history for %s: %w", uniqueID, err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan history for %s: %w", uniqueID, err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: asset %s", storage.ErrNotFound, uniqueID)
	}
	return versions, nil
}

// AssetsAsOf returns the versions that were valid on the given date.
func (s *Store) AssetsAsOf(ctx context.Context, date time.Time, opts storage.ListOptions) (*storage.PaginatedResult[types.AssetVersion], error) {
	opts.Normalize()
	day := types.DateOf(date)

	conditions, args := buildAssetFilter(opts, 3)
	conditions = append([]string{
		"valid_from <= $1",
		"(valid_until IS NULL OR valid_until > $2)",
	}, conditions...)
	args = append([]any{day, day}, args...)
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM asset_versions "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count assets as of %s: %w", day.Format(time.DateOnly), err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM asset_versions
		%s
		ORDER BY unique_id
		LIMIT $%d OFFSET $%d
	`, versionColumns, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, opts.PageSize, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query assets as of %s: %w", day.Format(time.DateOnly), err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan assets as of %s: %w", day.Format(time.DateOnly), err)
	}

	return paginate(versions, total, opts), nil
}

// ListChanges returns change events, newest first.
func (s *Store) ListChanges(ctx context.Context, filter storage.ChangeFilter) (*storage.PaginatedResult[types.ChangeEvent], error) {
	filter.Normalize()

	conditions := []string{"1=1"}
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("change_type = $%d", len(args)))
	}
	if filter.UniqueID != "" {
		args = append(args, filter.UniqueID)
		conditions = append(conditions, fmt.Sprintf("unique_id = $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM change_events "+where, args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: failed to count changes: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, unique_id, change_type, change_date, changed_fields, summary, created_at
		FROM change_events
		%s
		ORDER BY change_date DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list changes: %w", err)
	}
	defer rows.Close()

	events, err := scanChangeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan changes: %w", err)
	}

	return &storage.PaginatedResult[types.ChangeEvent]{
		Items:    events,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		HasMore:  filter.Offset()+len(events) < total,
	}, nil
}

// ChangesBetween returns change events with change_date in [from, to],
// oldest first.
func (s *Store) ChangesBetween(ctx context.Context, from, to time.Time) ([]types.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, unique_id, change_type, change_date, changed_fields, summary, created_at
		FROM change_events
		WHERE change_date >= $1 AND change_date <= $2
		ORDER BY change_date, created_at
	`, types.DateOf(from), types.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query changes between dates: %w", err)
	}
	defer rows.Close()

	events, err := scanChangeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan changes between dates: %w", err)
	}
	return events, nil
}

// ListSnapshotRuns returns all snapshot run metadata, newest first.
func (s *Store) ListSnapshotRuns(ctx context.Context) ([]types.SnapshotRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_date, source, source_file, record_count,
		       added_count, updated_count, removed_count, created_at
		FROM snapshot_runs
		ORDER BY snapshot_date DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query snapshot runs: %w", err)
	}
	defer rows.Close()

	var runs []types.SnapshotRun
	for rows.Next() {
		var (
			run  types.SnapshotRun
			date time.Time
			src  string
		)
		if err := rows.Scan(&date, &src, &run.SourceFile, &run.RecordCount,
			&run.AddedCount, &run.UpdatedCount, &run.RemovedCount, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan snapshot run: %w", err)
		}
		run.SnapshotDate = dateOf(date)
		run.Source = types.SnapshotSource(src)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats returns aggregate database statistics.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		AssetsByLocation: make(map[string]int),
		AssetsByCategory: make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM asset_versions WHERE valid_until IS NULL", &stats.LiveAssets},
		{"SELECT COUNT(*) FROM asset_versions", &stats.TotalVersions},
		{"SELECT COUNT(*) FROM raw_records", &stats.TotalRawRecords},
		{"SELECT COUNT(*) FROM change_events", &stats.TotalChanges},
		{"SELECT COUNT(*) FROM snapshot_runs", &stats.SnapshotRuns},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("postgres: failed to compute stats: %w", err)
		}
	}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(snapshot_date), MAX(snapshot_date) FROM snapshot_runs",
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to compute snapshot range: %w", err)
	}
	if oldest.Valid {
		t := dateOf(oldest.Time)
		stats.OldestSnapshot = &t
	}
	if newest.Valid {
		t := dateOf(newest.Time)
		stats.NewestSnapshot = &t
	}

	groups := []struct {
		column string
		dest   map[string]int
	}{
		{"location", stats.AssetsByLocation},
		{"category", stats.AssetsByCategory},
	}
	for _, g := range groups {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s, COUNT(*) FROM asset_versions
			WHERE valid_until IS NULL AND %s != ''
			GROUP BY %s
		`, g.column, g.column, g.column))
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to group stats by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("postgres: failed to scan %s stats: %w", g.column, err)
			}
			g.dest[key] = count
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: failed to read %s stats: %w", g.column, err)
		}
		rows.Close()
	}

	return stats, nil
}

// paginate wraps scanned versions in a PaginatedResult.
func paginate(versions []*types.AssetVersion, total int, opts storage.ListOptions) *storage.PaginatedResult[types.AssetVersion] {
	items := make([]types.AssetVersion, len(versions))
	for i, v := range versions {
		items[i] = *v
	}
	return &storage.PaginatedResult[types.AssetVersion]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
		HasMore:  opts.Offset()+len(items) < total,
	}
}

func scanChangeEvents(rows *sql.Rows) ([]types.ChangeEvent, error) {
	var events []types.ChangeEvent
	for rows.Next() {
		var (
			e      types.ChangeEvent
			date   time.Time
			ctype  string
			fields string
		)
		if err := rows.Scan(&e.ID, &e.UniqueID, &ctype, &date, &fields, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ChangeDate = dateOf(date)
		e.Type = types.ChangeType(ctype)
		if fields != "" {
			e.ChangedFields = strings.Split(fields, ",")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
