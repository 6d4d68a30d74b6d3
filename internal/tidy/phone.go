package tidy

import (
	"regexp"
	"strings"
)

// ukPostcodePattern matches UK postcodes such as "EC4A 1LT" or "RG21 4EQ".
var ukPostcodePattern = regexp.MustCompile(`(?i)[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}`)

// phonePattern matches UK landline/mobile numbers in the forms seen in the
// registry: "0207 123 4567", "01256 406300", "07123 456789", "+44 207 ...".
var phonePattern = regexp.MustCompile(`(?:(?:\+44|0044)\s*)?0?\d{2,5}[\s\-]?\d{3,4}[\s\-]?\d{3,4}`)

var (
	phoneSeparators = regexp.MustCompile(`[\s\-]`)
	nonDigits       = regexp.MustCompile(`[^\d]`)
)

// NormalizePhone normalizes a phone number to a digits-only form:
// whitespace and hyphens are stripped, a leading +44 or 0044 collapses to 0,
// and any remaining non-digit characters are removed.
//
//	NormalizePhone("+44 207 123 4567") == "02071234567"
//	NormalizePhone("0207 1234567")     == "02071234567"
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}

	phone = phoneSeparators.ReplaceAllString(phone, "")

	// The international prefix replaces the leading 0.
	if rest, ok := strings.CutPrefix(phone, "+44"); ok {
		phone = "0" + rest
	}
	if rest, ok := strings.CutPrefix(phone, "0044"); ok {
		phone = "0" + rest
	}

	return nonDigits.ReplaceAllString(phone, "")
}

// ExtractPhoneFromAddress extracts a trailing phone number from a free-text
// address. The last UK postcode occurrence anchors the search: any
// phone-shaped token after it is taken as the phone and stripped from the
// address. When no postcode is present a phone at the very end of the string
// is still extracted. When several candidates follow the postcode (e.g.
// "01256 406300 or 0207 236 4232") only the first is kept.
//
// Returns the cleaned address and the normalized phone ("" when none found).
func ExtractPhoneFromAddress(address string) (string, string) {
	if address == "" {
		return address, ""
	}

	postcodes := ukPostcodePattern.FindAllStringIndex(address, -1)
	if postcodes == nil {
		// No postcode. Only trust a phone that terminates the string.
		loc := phonePattern.FindStringIndex(address)
		if loc != nil && loc[1] == len(address) {
			phone := NormalizePhone(address[loc[0]:loc[1]])
			clean := strings.TrimRight(address[:loc[0]], ", ")
			return clean, phone
		}
		return address, ""
	}

	last := postcodes[len(postcodes)-1]
	afterPostcode := address[last[1]:]

	if loc := phonePattern.FindStringIndex(afterPostcode); loc != nil {
		phone := NormalizePhone(afterPostcode[loc[0]:loc[1]])
		clean := strings.TrimRight(address[:last[1]], ", ")
		return clean, phone
	}

	return address, ""
}

// minValidPhoneDigits is the minimum length of a plausible UK number.
// Valid UK phones are 10-11 digits.
const minValidPhoneDigits = 10

// dedupePhone picks one phone number from the three candidate sources.
// Priority order is the explicit telephone field, then the access-details
// phone, then the phone extracted from the address. The first normalized
// candidate of plausible length wins; when none reaches that length the
// first non-empty normalized candidate is used.
func dedupePhone(telephoneField, accessPhone, addressPhone string) string {
	var normalized []string
	for _, candidate := range []string{telephoneField, accessPhone, addressPhone} {
		if candidate == "" {
			continue
		}
		normalized = append(normalized, NormalizePhone(candidate))
	}

	if len(normalized) == 0 {
		return ""
	}

	for _, phone := range normalized {
		if len(phone) >= minValidPhoneDigits {
			return phone
		}
	}

	return normalized[0]
}
