package tidy

import "github.com/scrypster/lineage/pkg/types"

// assetFields is the fixed comparison order for Diff. The order is not
// significant for correctness but keeps change summaries deterministic.
var assetFields = []struct {
	name string
	get  func(*types.Asset) string
}{
	{"owner_id", func(a *types.Asset) string { return a.OwnerID }},
	{"description", func(a *types.Asset) string { return a.Description }},
	{"location", func(a *types.Asset) string { return a.Location }},
	{"category", func(a *types.Asset) string { return a.Category }},
	{"access_details", func(a *types.Asset) string { return a.AccessDetails }},
	{"contact_name", func(a *types.Asset) string { return a.Contact.Name }},
	{"address_line1", func(a *types.Asset) string { return a.Contact.Line1 }},
	{"address_line2", func(a *types.Asset) string { return a.Contact.Line2 }},
	{"address_city", func(a *types.Asset) string { return a.Contact.City }},
	{"address_postcode", func(a *types.Asset) string { return a.Contact.Postcode }},
	{"telephone", func(a *types.Asset) string { return a.Contact.Telephone }},
	{"fax", func(a *types.Asset) string { return a.Contact.Fax }},
	{"email", func(a *types.Asset) string { return a.Contact.Email }},
	{"website", func(a *types.Asset) string { return a.Contact.Website }},
}

// Diff compares two canonical assets field by field and returns the names
// of fields whose values differ, in the fixed comparison order. Comparison
// is case-sensitive; whitespace is assumed to be normalized upstream.
// An empty result means the assets are equivalent.
func Diff(old, cur types.Asset) []string {
	var changed []string
	for _, f := range assetFields {
		if f.get(&old) != f.get(&cur) {
			changed = append(changed, f.name)
		}
	}
	return changed
}
