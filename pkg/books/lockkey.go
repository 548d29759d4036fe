package books

import (
	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/identifiers"
)

// LockKey returns the identity string writes for the aggregate serialize on.
// Both ISBN forms collapse to the ISBN-13 so that "0-545-01022-5" and
// "9780545010221" contend for the same lock. The second return value is false
// when the payload carries nothing but a title.
func LockKey(agg aggregate.Aggregate) (string, bool) {
	if agg.ISBN13 != "" {
		return "isbn13:" + agg.ISBN13, true
	}
	if agg.ISBN10 != "" {
		if isbn13 := identifiers.ISBN10To13(agg.ISBN10); isbn13 != "" {
			return "isbn13:" + isbn13, true
		}
		return "isbn10:" + agg.ISBN10, true
	}
	if agg.External.Source != "" && agg.External.ExternalID != "" {
		return agg.External.Source + ":" + agg.External.ExternalID, true
	}
	return "", false
}
