package binder

import (
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/go-playground/validator/v10"
)

// isbnValidator accepts an ISBN-10 or ISBN-13 in any common formatting, or the
// empty string. Add `required` to the tag when the value can't be empty.
func isbnValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return identifiers.SanitizeISBN13(value) != "" || identifiers.SanitizeISBN10(value) != ""
}

// sourceValidator accepts the names of the providers a record can come from.
func sourceValidator(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", models.SourceGoogleBooks, models.SourceOpenLibrary, models.SourceNYTimes:
		return true
	}
	return false
}
