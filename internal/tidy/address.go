package tidy

import "strings"

// countyIndicators are substrings that identify the last comma-separated
// address part as a UK county rather than a city. Counties are discarded
// during parsing; the preceding part becomes the city. Best-effort only:
// behaviour for non-UK address formats is undefined.
var countyIndicators = []string{
	"SHIRE",
	"YORKSHIRE",
	"LANCASHIRE",
	"CORNWALL",
	"DEVON",
	"DORSET",
	"SUFFOLK",
	"NORFOLK",
	"SUSSEX",
	"KENT",
	"ESSEX",
	"SURREY",
	"BERKSHIRE",
	"HAMPSHIRE",
	"WILTSHIRE",
	"SOMERSET",
	"GLOUCESTERSHIRE",
}

// ParsedAddress holds the components of a parsed UK address. Empty string
// means the component could not be determined.
type ParsedAddress struct {
	Line1    string
	Line2    string
	City     string
	Postcode string
}

// ParseAddress splits a free-text UK address of the typical form
// "ORG, BUILDING, STREET, CITY, COUNTY, POSTCODE" into components.
//
// The postcode is extracted first and removed. The remainder is split on
// commas into trimmed non-empty parts:
//
//	1 part  -> line1
//	2 parts -> line1, city
//	3 parts -> line1, line2, city
//	4+      -> line1 = first; if the last part names a county it is dropped
//	           and the second-to-last becomes the city, otherwise the last
//	           part is the city; everything between joins into line2.
func ParseAddress(address string) ParsedAddress {
	var result ParsedAddress
	if address == "" {
		return result
	}

	if loc := ukPostcodePattern.FindStringIndex(address); loc != nil {
		result.Postcode = strings.TrimSpace(strings.ToUpper(address[loc[0]:loc[1]]))
		address = strings.TrimRight(address[:loc[0]], ", ")
	}

	var parts []string
	for _, p := range strings.Split(address, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
	case 1:
		result.Line1 = parts[0]
	case 2:
		result.Line1 = parts[0]
		result.City = parts[1]
	case 3:
		result.Line1 = parts[0]
		result.Line2 = parts[1]
		result.City = parts[2]
	default:
		result.Line1 = parts[0]
		if isCounty(parts[len(parts)-1]) {
			result.Line2 = strings.Join(parts[1:len(parts)-2], ", ")
			result.City = parts[len(parts)-2]
		} else {
			result.Line2 = strings.Join(parts[1:len(parts)-1], ", ")
			result.City = parts[len(parts)-1]
		}
	}

	return result
}

func isCounty(part string) bool {
	upper := strings.ToUpper(part)
	for _, county := range countyIndicators {
		if strings.Contains(upper, county) {
			return true
		}
	}
	return false
}
