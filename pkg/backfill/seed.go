package backfill

import (
	"github.com/canonbooks/canon/pkg/models"
)

// SeedFor picks the task that would best enrich a book: its Google Books
// volume when known, otherwise a Google Books ISBN lookup, otherwise an Open
// Library lookup by ISBN-10.
func SeedFor(book *models.Book) (source, sourceID string, ok bool) {
	if ext := book.ExternalID(models.SourceGoogleBooks); ext != nil && ext.ExternalID != "" {
		return models.SourceGoogleBooks, ext.ExternalID, true
	}
	if book.ISBN13 != nil && *book.ISBN13 != "" {
		return models.SourceGoogleBooks, isbnPrefix + *book.ISBN13, true
	}
	if book.ISBN10 != nil && *book.ISBN10 != "" {
		return models.SourceOpenLibrary, *book.ISBN10, true
	}
	return "", "", false
}

// EnqueueBook seeds a task for a thin book. Books that aren't thin, or that
// have nothing to look them up by, are skipped.
func (q *Queue) EnqueueBook(book *models.Book, priority int) bool {
	if book == nil || !book.IsThin() {
		return false
	}
	source, id, ok := SeedFor(book)
	if !ok {
		return false
	}
	return q.Enqueue(source, id, priority)
}
