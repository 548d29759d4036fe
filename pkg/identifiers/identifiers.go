package identifiers

import (
	"strings"
	"unicode"
)

// Type represents the type of identifier.
type Type string

const (
	TypeISBN10  Type = "isbn_10"
	TypeISBN13  Type = "isbn_13"
	TypeUnknown Type = ""
)

// EditionPrefixLength is the number of leading ISBN-13 digits shared by
// editions that are grouped into the same work cluster.
const EditionPrefixLength = 11

// DetectType determines whether the value is a valid ISBN-10 or ISBN-13 after
// sanitizing it.
func DetectType(value string) Type {
	normalized := NormalizeISBN(value)
	if len(normalized) == 13 && ValidateISBN13(normalized) {
		return TypeISBN13
	}
	if len(normalized) == 10 && ValidateISBN10(normalized) {
		return TypeISBN10
	}
	return TypeUnknown
}

// NormalizeISBN removes hyphens, spaces, and common prefixes from an ISBN.
// "978-0-545-01022-1" and "9780545010221" normalize to the same value.
func NormalizeISBN(value string) string {
	value = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(value)), "ISBN:")
	value = strings.TrimPrefix(value, "ISBN")
	value = strings.TrimSpace(value)

	// Keep only digits and X (for ISBN-10 checksum)
	var result strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) || r == 'X' || r == 'x' {
			result.WriteRune(r)
		}
	}
	return strings.ToUpper(result.String())
}

// SanitizeISBN13 returns the normalized ISBN-13, or an empty string when the
// value isn't 13 digits long. Checksums aren't enforced because providers
// regularly publish ISBNs with bad check digits that are still the only
// identifier for the edition.
func SanitizeISBN13(value string) string {
	normalized := NormalizeISBN(value)
	if len(normalized) != 13 || strings.ContainsRune(normalized, 'X') {
		return ""
	}
	return normalized
}

// SanitizeISBN10 returns the normalized ISBN-10, or an empty string when the
// value isn't a 10 character ISBN.
func SanitizeISBN10(value string) string {
	normalized := NormalizeISBN(value)
	if len(normalized) != 10 {
		return ""
	}
	if i := strings.IndexRune(normalized, 'X'); i >= 0 && i != 9 {
		return ""
	}
	return normalized
}

// ISBN10To13 converts an ISBN-10 into its 978-prefixed ISBN-13 form.
func ISBN10To13(isbn10 string) string {
	isbn10 = SanitizeISBN10(isbn10)
	if isbn10 == "" {
		return ""
	}
	body := "978" + isbn10[:9]
	return body + string(rune('0'+isbn13CheckDigit(body)))
}

// ISBN13To10 converts a 978-prefixed ISBN-13 into an ISBN-10. ISBNs in the 979
// range have no ISBN-10 form.
func ISBN13To10(isbn13 string) string {
	isbn13 = SanitizeISBN13(isbn13)
	if isbn13 == "" || !strings.HasPrefix(isbn13, "978") {
		return ""
	}
	body := isbn13[3:12]
	sum := 0
	for i, r := range body {
		sum += int(r-'0') * (10 - i)
	}
	check := (11 - sum%11) % 11
	if check == 10 {
		return body + "X"
	}
	return body + string(rune('0'+check))
}

// EditionPrefix returns the leading digits of an ISBN-13 used to group
// editions of the same work. An ISBN-10 is converted first.
func EditionPrefix(isbn13, isbn10 string) string {
	isbn := SanitizeISBN13(isbn13)
	if isbn == "" {
		isbn = ISBN10To13(isbn10)
	}
	if isbn == "" {
		return ""
	}
	return isbn[:EditionPrefixLength]
}

func isbn13CheckDigit(body string) int {
	sum := 0
	for i, r := range body {
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return (10 - sum%10) % 10
}

// ValidateISBN10 validates an ISBN-10 checksum.
// ISBN-10 uses modulo 11 with weights 10,9,8,7,6,5,4,3,2,1.
func ValidateISBN10(isbn string) bool {
	if len(isbn) != 10 {
		return false
	}

	var sum int
	for i, r := range isbn {
		var digit int
		if r == 'X' || r == 'x' {
			if i != 9 {
				return false // X only valid as last digit
			}
			digit = 10
		} else if unicode.IsDigit(r) {
			digit = int(r - '0')
		} else {
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

// ValidateISBN13 validates an ISBN-13 checksum.
// ISBN-13 uses alternating weights of 1 and 3.
func ValidateISBN13(isbn string) bool {
	if len(isbn) != 13 {
		return false
	}

	var sum int
	for i, r := range isbn {
		if !unicode.IsDigit(r) {
			return false
		}
		digit := int(r - '0')
		if i%2 == 0 {
			sum += digit
		} else {
			sum += digit * 3
		}
	}
	return sum%10 == 0
}
