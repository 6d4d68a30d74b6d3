// Package types defines the core data types shared across the Lineage system:
// raw harvested records, tidied (canonical) assets, SCD Type 2 asset versions,
// change events, and snapshot run metadata.
package types

import "time"

// Contact holds the tidied contact information for an asset.
// Empty string means the field was absent from the source record;
// there is no null-vs-empty distinction.
type Contact struct {
	Name      string `json:"name,omitempty"`
	Line1     string `json:"address_line1,omitempty"`
	Line2     string `json:"address_line2,omitempty"`
	City      string `json:"address_city,omitempty"`
	Postcode  string `json:"address_postcode,omitempty"`
	Telephone string `json:"telephone,omitempty"`
	Fax       string `json:"fax,omitempty"`
	Email     string `json:"email,omitempty"`
	Website   string `json:"website,omitempty"`
}

// Asset is the canonical (tidied) projection of one raw registry record.
// UniqueID, Description, Location and Category always carry a value
// (possibly ""); the remaining fields are optional.
type Asset struct {
	UniqueID      string  `json:"unique_id"`
	OwnerID       string  `json:"owner_id,omitempty"`
	Description   string  `json:"description"`
	Location      string  `json:"location"`
	Category      string  `json:"category"`
	AccessDetails string  `json:"access_details,omitempty"`
	Contact       Contact `json:"contact"`
}

// AssetVersion is one historical state of an asset under SCD Type 2
// versioning. ValidFrom is inclusive; ValidUntil is exclusive and nil for
// the currently live version. For a given UniqueID at most one version is
// live, and the closed intervals of its versions never overlap.
type AssetVersion struct {
	ID    int64 `json:"id"`
	Asset

	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsLive reports whether this version is the currently valid one.
func (v *AssetVersion) IsLive() bool {
	return v.ValidUntil == nil
}

// NewVersion creates a live AssetVersion for the given asset, opening its
// validity interval at validFrom.
func NewVersion(a Asset, validFrom time.Time) *AssetVersion {
	return &AssetVersion{
		Asset:     a,
		ValidFrom: DateOf(validFrom),
	}
}

// DateOf truncates t to a calendar date in UTC. Snapshot dates, validity
// bounds and change dates are all stored at day granularity.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
