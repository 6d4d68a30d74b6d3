// Package tidy converts noisy raw registry records into canonical assets.
//
// The pipeline is pure and deterministic: no I/O, no clocks, no shared
// state. Tidy and Diff are safe to run concurrently across independent
// records, and are exposed as standalone utilities so callers can preview
// normalization or diffs without committing anything.
package tidy

import (
	"strconv"
	"strings"

	"github.com/scrypster/lineage/pkg/types"
)

// Tidy transforms one raw record into a canonical asset: the contact
// address has any trailing phone extracted and is split into components,
// phone numbers from the three candidate sources are normalized and
// deduplicated, and every scalar field is cleaned.
func Tidy(raw types.RawRecord) types.Asset {
	contactAddress := raw.Get(types.FieldContactAddress)
	cleanAddress, addressPhone := ExtractPhoneFromAddress(contactAddress)
	parsed := ParseAddress(cleanAddress)

	telephone := dedupePhone(
		raw.Get(types.FieldTelephoneNo),
		raw.Get(types.FieldAccessPhone),
		addressPhone,
	)

	uniqueID := raw.UniqueID
	if uniqueID == "" {
		uniqueID = cleanString(raw.Get(types.FieldUniqueID))
	}

	return types.Asset{
		UniqueID:      uniqueID,
		OwnerID:       cleanString(raw.Get(types.FieldOwnerID)),
		Description:   cleanString(raw.Get(types.FieldDescription)),
		Location:      cleanString(raw.Get(types.FieldLocation)),
		Category:      cleanString(raw.Get(types.FieldCategory)),
		AccessDetails: cleanString(raw.Get(types.FieldAccessDetails)),
		Contact: types.Contact{
			Name:      cleanString(raw.Get(types.FieldContactName)),
			Line1:     parsed.Line1,
			Line2:     parsed.Line2,
			City:      parsed.City,
			Postcode:  parsed.Postcode,
			Telephone: telephone,
			Fax:       NormalizePhone(raw.Get(types.FieldFaxNo)),
			Email:     cleanString(raw.Get(types.FieldEmail)),
			Website:   cleanString(raw.Get(types.FieldWebsite)),
		},
	}
}

// cleanString trims whitespace and collapses spreadsheet float artifacts:
// a numeric value that represents a whole number keeps integer formatting
// ("1234.0" becomes "1234"). Empty input stays empty.
func cleanString(value string) string {
	s := strings.TrimSpace(value)
	if s == "" {
		return ""
	}

	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10)
		}
	}

	return s
}
