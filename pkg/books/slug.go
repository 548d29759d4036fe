package books

import (
	"context"
	"fmt"
	"strings"

	"github.com/canonbooks/canon/pkg/models"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const (
	maxSlugLength = 120
	maxSlugSuffix = 100
)

// baseSlug builds the slug stem from the title and the first author.
func baseSlug(title string, authors []string) string {
	text := title
	if len(authors) > 0 {
		text += " " + authors[0]
	}
	s := slug.Make(text)
	if len(s) > maxSlugLength {
		s = s[:maxSlugLength]
		if i := strings.LastIndexByte(s, '-'); i > 0 {
			s = s[:i]
		}
	}
	if s == "" {
		s = "book"
	}
	return s
}

// ensureSlug assigns a unique slug to a book that doesn't have one yet. A slug
// is never regenerated once assigned since it's used in public URLs.
func ensureSlug(ctx context.Context, idb bun.IDB, book *models.Book, authors []string) error {
	if book.Slug != "" {
		return nil
	}

	base := baseSlug(book.Title, authors)
	for i := 1; i <= maxSlugSuffix; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		taken, err := idb.NewSelect().
			Model((*models.Book)(nil)).
			Where("slug = ?", candidate).
			Where("id != ?", book.ID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !taken {
			book.Slug = candidate
			return nil
		}
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return errors.WithStack(err)
	}
	book.Slug = base + "-" + strings.ReplaceAll(id.String(), "-", "")[:8]
	return nil
}
