// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every table. It is defined in the
// postgres package (not postgres_test) so it has access to the unexported db
// field, and exported so the external test package can call it.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE TABLE raw_records, asset_versions, change_events, snapshot_runs
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
