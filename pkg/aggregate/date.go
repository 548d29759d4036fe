package aggregate

import (
	"strings"
	"time"
)

var publishedDateLayouts = []string{
	"2006-01-02",
	"2006-01",
	"2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2006",
	"Jan 2006",
	"2 January 2006",
}

// ParsePublishedDate parses the partial dates providers publish. A year or
// year-month resolves to the first day of that period. Unparseable values
// return nil.
func ParsePublishedDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	// Some providers append a time, e.g. "2007-07-21T00:00:00Z".
	if len(value) > 10 && value[4] == '-' && value[10] == 'T' {
		value = value[:10]
	}
	for _, layout := range publishedDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
