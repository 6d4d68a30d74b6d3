// Package postgres provides the PostgreSQL implementation of the storage
// interfaces, intended for shared deployments where several processes read
// the registry concurrently. Full-text search uses a stored tsvector column
// instead of SQLite's FTS5 table.
package postgres

// Schema contains the SQL statements to create the database schema.
// Dates are stored as DATE columns; a NULL valid_until marks the live
// version of an asset. The search_tsv column is generated from the
// searchable fields so it never drifts from the row contents.
const Schema = `
-- Raw snapshots: exact harvested data, one row per asset per snapshot date.
CREATE TABLE IF NOT EXISTS raw_records (
    id BIGSERIAL PRIMARY KEY,
    snapshot_date DATE NOT NULL,
    unique_id TEXT NOT NULL,
    fields JSONB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    UNIQUE (snapshot_date, unique_id)
);

CREATE INDEX IF NOT EXISTS idx_raw_records_date ON raw_records(snapshot_date);
CREATE INDEX IF NOT EXISTS idx_raw_records_unique_id ON raw_records(unique_id);

-- Asset versions: tidied data with SCD Type 2 validity intervals.
CREATE TABLE IF NOT EXISTS asset_versions (
    id BIGSERIAL PRIMARY KEY,
    unique_id TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    access_details TEXT NOT NULL DEFAULT '',

    contact_name TEXT NOT NULL DEFAULT '',
    address_line1 TEXT NOT NULL DEFAULT '',
    address_line2 TEXT NOT NULL DEFAULT '',
    address_city TEXT NOT NULL DEFAULT '',
    address_postcode TEXT NOT NULL DEFAULT '',
    telephone TEXT NOT NULL DEFAULT '',
    fax TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    website TEXT NOT NULL DEFAULT '',

    valid_from DATE NOT NULL,
    valid_until DATE,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,

    search_tsv tsvector GENERATED ALWAYS AS (
        to_tsvector('english',
            description || ' ' || contact_name || ' ' || location || ' ' || category)
    ) STORED
);

CREATE INDEX IF NOT EXISTS idx_asset_versions_unique_id ON asset_versions(unique_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_asset_versions_live
    ON asset_versions(unique_id) WHERE valid_until IS NULL;
CREATE INDEX IF NOT EXISTS idx_asset_versions_interval ON asset_versions(valid_from, valid_until);
CREATE INDEX IF NOT EXISTS idx_asset_versions_tsv
    ON asset_versions USING GIN (search_tsv) WHERE valid_until IS NULL;

-- Change events: append-only change log.
CREATE TABLE IF NOT EXISTS change_events (
    id TEXT PRIMARY KEY,
    unique_id TEXT NOT NULL,
    change_type TEXT NOT NULL,
    change_date DATE NOT NULL,
    changed_fields TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_change_events_unique_id ON change_events(unique_id);
CREATE INDEX IF NOT EXISTS idx_change_events_date ON change_events(change_date);
CREATE INDEX IF NOT EXISTS idx_change_events_type ON change_events(change_type);

-- Snapshot runs: one row per committed reconciliation pass.
-- The UNIQUE constraint on snapshot_date is the idempotency guard.
CREATE TABLE IF NOT EXISTS snapshot_runs (
    id BIGSERIAL PRIMARY KEY,
    snapshot_date DATE NOT NULL UNIQUE,
    source TEXT NOT NULL,
    source_file TEXT NOT NULL DEFAULT '',
    record_count INTEGER NOT NULL,
    added_count INTEGER NOT NULL DEFAULT 0,
    updated_count INTEGER NOT NULL DEFAULT 0,
    removed_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
