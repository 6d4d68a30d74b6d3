package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/lineage/internal/storage"
	"github.com/scrypster/lineage/pkg/types"
)

// Search performs FTS5-backed full-text search over the live asset set.
//
// The assets_fts virtual table holds one row per live asset, maintained by
// CommitPass, so a match join on unique_id always lands on the live version.
// An empty query falls back to a plain listing.
//
// FTS5 rank values are negative (more negative == better match), so ordering
// by rank ASC gives the best results first.
func (s *Store) Search(ctx context.Context, query string, opts storage.ListOptions) (*storage.PaginatedResult[types.AssetVersion], error) {
	opts.Normalize()

	if strings.TrimSpace(query) == "" {
		return s.ListAssets(ctx, opts)
	}

	// Sanitise the raw query string so it is safe to pass to FTS5's MATCH
	// operator. FTS5 syntax is fragile: an unbalanced quote or stray
	// operator keyword causes SQLite to return "fts5: syntax error". The
	// free-form input becomes a prefix query matching each word (OR).
	ftsQuery := sanitiseFTSQuery(query)

	conditions, args := buildAssetFilter(opts)
	extra := ""
	if len(conditions) > 0 {
		extra = " AND " + strings.Join(prefixColumns(conditions, "v."), " AND ")
	}

	countSQL := `
		SELECT COUNT(*)
		FROM assets_fts fts
		JOIN asset_versions v ON v.unique_id = fts.unique_id AND v.valid_until IS NULL
		WHERE assets_fts MATCH ?` + extra

	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, append([]any{ftsQuery}, args...)...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: search count for %q: %w", query, err)
	}

	querySQL := fmt.Sprintf(`
		SELECT %s
		FROM assets_fts fts
		JOIN asset_versions v ON v.unique_id = fts.unique_id AND v.valid_until IS NULL
		WHERE assets_fts MATCH ?%s
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, prefixVersionColumns("v."), extra)

	rows, err := s.db.QueryContext(ctx, querySQL,
		append(append([]any{ftsQuery}, args...), opts.PageSize, opts.Offset())...)
	if err != nil {
		// FTS5 can still error on malformed input that slipped past
		// sanitisation.
		return nil, fmt.Errorf("sqlite: search MATCH %q: %w", query, err)
	}
	defer rows.Close()

	versions, err := scanVersions(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search scan: %w", err)
	}

	return paginate(versions, total, opts), nil
}

// prefixVersionColumns qualifies the shared version column list with a table
// alias for use in joined queries.
func prefixVersionColumns(alias string) string {
	cols := strings.Split(versionColumns, ",")
	for i, c := range cols {
		cols[i] = alias + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func prefixColumns(conditions []string, alias string) []string {
	out := make([]string, len(conditions))
	for i, c := range conditions {
		out[i] = alias + c
	}
	return out
}

func sanitiseFTSQuery(query string) string {
	// Strip FTS5 special characters.
	replacer := strings.NewReplacer(
		`"`, ` `,
		`'`, ` `,
		`(`, ` `,
		`)`, ` `,
		`*`, ` `,
		`-`, ` `,
		`^`, ` `,
		`?`, ` `,
		`:`, ` `,
	)
	cleaned := replacer.Replace(query)

	words := strings.Fields(strings.ToLower(cleaned))

	var terms []string
	for _, w := range words {
		if len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}

	if len(terms) == 0 {
		// Everything was stripped; lowercase the remainder so FTS5 does not
		// interpret uppercase AND/OR/NOT as operators.
		return strings.ToLower(strings.TrimSpace(cleaned))
	}

	return strings.Join(terms, " OR ")
}
