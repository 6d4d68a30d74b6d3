package types

import "time"

// RawRecord is one registry entity exactly as harvested, at one snapshot
// date. Fields is schema-on-read: defined keys are listed below, but unknown
// keys are preserved for audit. A RawRecord is immutable once stored and is
// keyed by (SnapshotDate, UniqueID).
type RawRecord struct {
	SnapshotDate time.Time         `json:"snapshot_date"`
	UniqueID     string            `json:"unique_id"`
	Fields       map[string]string `json:"fields"`
}

// Well-known raw field keys. The remote source provides these; importers of
// historical spreadsheet snapshots produce the same key set.
const (
	FieldUniqueID       = "uniqueID"
	FieldDescription    = "description"
	FieldLocation       = "location"
	FieldCategory       = "category"
	FieldOwnerID        = "owner_id"
	FieldAccessDetails  = "access_details"
	FieldAccessPhone    = "access_phone"
	FieldContactName    = "contact_name"
	FieldContactAddress = "contact_address"
	FieldContactRef     = "contact_reference"
	FieldTelephoneNo    = "telephone_no"
	FieldFaxNo          = "fax_no"
	FieldEmail          = "email"
	FieldWebsite        = "website"
)

// NewRawRecord builds a RawRecord for the given snapshot date. The unique id
// is taken from the "uniqueID" field (falling back to "unique_id" for
// spreadsheet-sourced input).
func NewRawRecord(snapshotDate time.Time, fields map[string]string) RawRecord {
	id := fields[FieldUniqueID]
	if id == "" {
		id = fields["unique_id"]
	}
	return RawRecord{
		SnapshotDate: DateOf(snapshotDate),
		UniqueID:     id,
		Fields:       fields,
	}
}

// Get returns the value for key, or "" when the key is absent.
func (r RawRecord) Get(key string) string {
	return r.Fields[key]
}
