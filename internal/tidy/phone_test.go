package tidy

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"already normalized", "02071234567", "02071234567"},
		{"spaces", "0207 123 4567", "02071234567"},
		{"hyphens", "0207-123-4567", "02071234567"},
		{"plus44 prefix", "+44 207 123 4567", "02071234567"},
		{"0044 prefix", "0044 207 123 4567", "02071234567"},
		{"mixed separators", "01256 406-300", "01256406300"},
		{"stray punctuation", "(0207) 123.4567", "02071234567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestNormalizePhoneEquivalentForms verifies that the common ways of writing
// the same number all normalize identically.
func TestNormalizePhoneEquivalentForms(t *testing.T) {
	forms := []string{"+44 207 123 4567", "0207 1234567", "0207 123 4567", "0044 207 1234567"}
	for _, form := range forms {
		if got := NormalizePhone(form); got != "02071234567" {
			t.Errorf("NormalizePhone(%q) = %q, want 02071234567", form, got)
		}
	}
}

func TestExtractPhoneFromAddress(t *testing.T) {
	tests := []struct {
		name        string
		address     string
		wantAddress string
		wantPhone   string
	}{
		{
			name:        "phone after postcode",
			address:     "LONDON, EC4A 1LT, 0207 831 9222",
			wantAddress: "LONDON, EC4A 1LT",
			wantPhone:   "02078319222",
		},
		{
			name:        "two phones joined by or keeps first",
			address:     "BASINGSTOKE, RG21 4EQ, 01256 406300 or 0207 236 4232",
			wantAddress: "BASINGSTOKE, RG21 4EQ",
			wantPhone:   "01256406300",
		},
		{
			name:        "no phone after postcode",
			address:     "10 HIGH STREET, YORK, YO1 7HH",
			wantAddress: "10 HIGH STREET, YORK, YO1 7HH",
			wantPhone:   "",
		},
		{
			name:        "no postcode but trailing phone",
			address:     "THE OLD RECTORY, NORWICH, 01603 123456",
			wantAddress: "THE OLD RECTORY, NORWICH",
			wantPhone:   "01603123456",
		},
		{
			name:        "no postcode and no phone",
			address:     "THE OLD RECTORY, NORWICH",
			wantAddress: "THE OLD RECTORY, NORWICH",
			wantPhone:   "",
		},
		{
			name:        "empty",
			address:     "",
			wantAddress: "",
			wantPhone:   "",
		},
		{
			name:        "last postcode anchors the search",
			address:     "BOX EC1A 1AA, LONDON, EC4A 1LT, 0207 831 9222",
			wantAddress: "BOX EC1A 1AA, LONDON, EC4A 1LT",
			wantPhone:   "02078319222",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAddress, gotPhone := ExtractPhoneFromAddress(tt.address)
			if gotAddress != tt.wantAddress {
				t.Errorf("address = %q, want %q", gotAddress, tt.wantAddress)
			}
			if gotPhone != tt.wantPhone {
				t.Errorf("phone = %q, want %q", gotPhone, tt.wantPhone)
			}
		})
	}
}

func TestDedupePhone(t *testing.T) {
	tests := []struct {
		name                                   string
		telephoneField, accessPhone, addressPhone string
		want                                   string
	}{
		{"telephone field wins", "0207 831 9222", "01603 123456", "01256406300", "02078319222"},
		{"access phone when field empty", "", "01603 123456", "01256406300", "01603123456"},
		{"address phone as last resort", "", "", "01256406300", "01256406300"},
		{"short candidates fall through to longer one", "12345", "", "01256 406300", "01256406300"},
		{"all short keeps first non-empty", "12345", "67890", "", "12345"},
		{"all empty", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupePhone(tt.telephoneField, tt.accessPhone, tt.addressPhone)
			if got != tt.want {
				t.Errorf("dedupePhone(%q, %q, %q) = %q, want %q",
					tt.telephoneField, tt.accessPhone, tt.addressPhone, got, tt.want)
			}
		})
	}
}
