package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// Search performs tsvector full-text search over the live asset set.
//
// plainto_tsquery parses free-form input itself, so no query sanitisation is
// needed here. An empty query falls back to a plain listing.
func (s *Store) Search(ctx context.Context, query string, opts storage.ListOptions) (*storage.PaginatedResult[types.AssetVersion], error) {
	opts.Normalize()

	if strings.TrimSpace(query) == "" {
		return s.ListAssets(ctx, opts)
	}

	conditions, args := buildAssetFilter(opts, 2)
	extra := ""
	if len(conditions) > 0 {
		extra = " AND " + strings.Join(conditions, " AND ")
	}
	args = append([]any{query}, args...)

	countSQL := `
		SELECT COUNT(*)
		FROM asset_versions
		WHERE valid_until IS NULL
		  AND search_tsv @@ plainto_tsquery('english', $1)` + extra

	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: search count for %q: %w", query, err)
	}

	querySQL := fmt.Sprintf(`
		SELECT %s
		FROM asset_versions
		WHERE valid_until IS NULL
		  AND search_tsv @@ plainto_tsquery('english', $1)%s
		ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $1)) DESC, unique_id
		LIMIT $%d OFFSET $%d
	`, versionColumns, extra, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, querySQL, append(args, opts.PageSize, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search query %q: %w", query, err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: search scan: %w", err)
	}

	return paginate(versions, total, opts), nil
}
