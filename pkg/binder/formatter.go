package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/canonbooks/canon/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

const (
	hex      = "hexadecimal"
	isbn     = "isbn"
	length   = "len"
	mx       = "max"
	mn       = "min"
	oneof    = "oneof"
	required = "required"
	source   = "source"
)

var knownSources = []string{models.SourceGoogleBooks, models.SourceOpenLibrary, models.SourceNYTimes}

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func quoteAll(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return strings.Join(quoted, ", ")
}

// formatBound words min and max failures. Numbers compare by value, strings
// and slices by length.
func formatBound(err validator.FieldError, comparison string) string {
	field, param := err.Field(), err.Param()

	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s %s", field, comparison, param)
	}

	unit := "character"
	if err.Kind() == reflect.Slice {
		unit = "element"
	}
	if param != "1" {
		unit += "s"
	}
	return fmt.Sprintf("%q length must be %s %s %s", field, comparison, param, unit)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case hex:
		return fmt.Sprintf("%q must be hexadecimal", field)
	case isbn:
		return fmt.Sprintf("%q is not a valid ISBN", field)
	case length:
		return fmt.Sprintf("%q length must be exactly %s", field, err.Param())
	case mx:
		return formatBound(err, "less than or equal to")
	case mn:
		return formatBound(err, "greater than or equal to")
	case oneof:
		return fmt.Sprintf("%q must be one of the following: %s", field, quoteAll(strings.Fields(err.Param())))
	case required:
		return fmt.Sprintf("%q is required", field)
	case source:
		return fmt.Sprintf("%q must be one of the following: %s", field, quoteAll(knownSources))
	default:
		return fmt.Sprintf("%q failed %q validation", field, err.Tag())
	}
}
