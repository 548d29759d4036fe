package books

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Merging never downgrades a record: a stored value is only replaced by a
// non-blank incoming one.

func mergePtr[T comparable](dst **T, v *T) bool {
	if v == nil {
		return false
	}
	if *dst != nil && **dst == *v {
		return false
	}
	c := *v
	*dst = &c
	return true
}

func mergeString(dst **string, v string) bool {
	if v == "" {
		return false
	}
	return mergePtr(dst, &v)
}

type columns []string

func (c *columns) track(changed bool, name string) {
	if changed {
		*c = append(*c, name)
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return id.String(), nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newBook(agg aggregate.Aggregate, now time.Time) (*models.Book, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	book := &models.Book{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		Title:         agg.Title,
		Subtitle:      strPtr(agg.Subtitle),
		Description:   strPtr(agg.Description),
		ISBN13:        strPtr(agg.ISBN13),
		ISBN10:        strPtr(agg.ISBN10),
		Language:      strPtr(agg.Language),
		Publisher:     strPtr(agg.Publisher),
		PublishedDate: agg.PublishedDate,
	}
	if agg.PageCount > 0 {
		pc := agg.PageCount
		book.PageCount = &pc
	}
	return book, nil
}

// mergeBook applies the aggregate's descriptive fields to a stored book and
// returns the columns that changed. The title and ISBNs are identity and are
// handled separately. A description only gets replaced by a longer one.
func mergeBook(book *models.Book, agg aggregate.Aggregate) columns {
	var cols columns
	cols.track(mergeString(&book.Subtitle, agg.Subtitle), "subtitle")
	if agg.Description != "" && (book.Description == nil || len(agg.Description) > len(*book.Description)) {
		cols.track(mergeString(&book.Description, agg.Description), "description")
	}
	cols.track(mergeString(&book.Language, agg.Language), "language")
	cols.track(mergeString(&book.Publisher, agg.Publisher), "publisher")
	if agg.PageCount > 0 {
		pc := agg.PageCount
		cols.track(mergePtr(&book.PageCount, &pc), "page_count")
	}
	if agg.PublishedDate != nil && (book.PublishedDate == nil || !book.PublishedDate.Equal(*agg.PublishedDate)) {
		d := *agg.PublishedDate
		book.PublishedDate = &d
		cols = append(cols, "published_date")
	}
	return cols
}

// mergeExternalIdentifier copies the provider fields onto the record. The
// external id itself is kept as first seen.
func mergeExternalIdentifier(rec *models.ExternalIdentifier, ext aggregate.ExternalIdentifiers) columns {
	var cols columns
	cols.track(mergeString(&rec.CanonicalExternalID, ext.CanonicalID()), "canonical_external_id")
	cols.track(mergeString(&rec.ProviderISBN10, ext.ProviderISBN10), "provider_isbn10")
	cols.track(mergeString(&rec.ProviderISBN13, ext.ProviderISBN13), "provider_isbn13")
	cols.track(mergeString(&rec.InfoLink, ext.InfoLink), "info_link")
	cols.track(mergeString(&rec.PreviewLink, ext.PreviewLink), "preview_link")
	cols.track(mergeString(&rec.CanonicalVolumeLink, ext.CanonicalVolumeLink), "canonical_volume_link")
	cols.track(mergeString(&rec.WebReaderLink, ext.WebReaderLink), "web_reader_link")
	cols.track(mergePtr(&rec.AverageRating, ext.AverageRating), "average_rating")
	cols.track(mergePtr(&rec.RatingsCount, ext.RatingsCount), "ratings_count")
	cols.track(mergePtr(&rec.IsEbook, ext.IsEbook), "is_ebook")
	cols.track(mergePtr(&rec.PDFAvailable, ext.PDFAvailable), "pdf_available")
	cols.track(mergePtr(&rec.EPUBAvailable, ext.EPUBAvailable), "epub_available")
	cols.track(mergePtr(&rec.Embeddable, ext.Embeddable), "embeddable")
	cols.track(mergePtr(&rec.PublicDomain, ext.PublicDomain), "public_domain")
	cols.track(mergeString(&rec.Viewability, ext.Viewability), "viewability")
	cols.track(mergeString(&rec.Saleability, ext.Saleability), "saleability")
	cols.track(mergePtr(&rec.ListPrice, ext.ListPrice), "list_price")
	cols.track(mergePtr(&rec.RetailPrice, ext.RetailPrice), "retail_price")
	cols.track(mergeString(&rec.CurrencyCode, ext.CurrencyCode), "currency_code")
	return cols
}

func writeExternalIdentifier(ctx context.Context, tx bun.Tx, bookID string, ext aggregate.ExternalIdentifiers, now time.Time) error {
	if ext.Source == "" || ext.ExternalID == "" {
		return nil
	}

	rec := &models.ExternalIdentifier{}
	err := tx.NewSelect().
		Model(rec).
		Where("bei.book_id = ?", bookID).
		Where("bei.source = ?", ext.Source).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		id, err := newID()
		if err != nil {
			return err
		}
		rec = &models.ExternalIdentifier{
			ID:         id,
			CreatedAt:  now,
			UpdatedAt:  now,
			BookID:     bookID,
			Source:     ext.Source,
			ExternalID: ext.ExternalID,
		}
		mergeExternalIdentifier(rec, ext)
		_, err = tx.NewInsert().Model(rec).Exec(ctx)
		return errors.WithStack(err)
	}

	cols := mergeExternalIdentifier(rec, ext)
	if len(cols) == 0 {
		return nil
	}
	rec.UpdatedAt = now
	cols = append(cols, "updated_at")
	_, err = tx.NewUpdate().Model(rec).Column(cols...).WherePK().Exec(ctx)
	return errors.WithStack(err)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func ensureAuthor(ctx context.Context, tx bun.Tx, name string, now time.Time) (*models.Author, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	author := &models.Author{
		ID:             id,
		CreatedAt:      now,
		UpdatedAt:      now,
		Name:           name,
		NormalizedName: normalizeName(name),
	}
	_, err = tx.NewInsert().
		Model(author).
		On("CONFLICT (normalized_name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = tx.NewSelect().
		Model(author).
		Where("a.normalized_name = ?", author.NormalizedName).
		Scan(ctx)
	return author, errors.WithStack(err)
}

// writeAuthors replaces the book's author list when the incoming list is at
// least as long as the stored one and differs from it.
func writeAuthors(ctx context.Context, tx bun.Tx, bookID string, names []string, now time.Time) error {
	if len(names) == 0 {
		return nil
	}

	var existing []*models.BookAuthor
	err := tx.NewSelect().
		Model(&existing).
		Relation("Author").
		Where("ba.book_id = ?", bookID).
		Order("ba.position ASC").
		Scan(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(names) < len(existing) {
		return nil
	}
	if len(names) == len(existing) {
		same := true
		for i, ba := range existing {
			if ba.Author == nil || ba.Author.NormalizedName != normalizeName(names[i]) {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}

	if len(existing) > 0 {
		_, err := tx.NewDelete().
			Model((*models.BookAuthor)(nil)).
			Where("book_id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	links := make([]*models.BookAuthor, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		author, err := ensureAuthor(ctx, tx, name, now)
		if err != nil {
			return err
		}
		if seen[author.ID] {
			continue
		}
		seen[author.ID] = true
		links = append(links, &models.BookAuthor{
			BookID:   bookID,
			AuthorID: author.ID,
			Position: len(links) + 1,
		})
	}

	_, err = tx.NewInsert().Model(&links).Exec(ctx)
	return errors.WithStack(err)
}

// writeCategories adds any categories the book doesn't have yet.
func writeCategories(ctx context.Context, tx bun.Tx, bookID string, names []string, now time.Time) error {
	for _, name := range names {
		id, err := newID()
		if err != nil {
			return err
		}
		category := &models.Category{
			ID:             id,
			CreatedAt:      now,
			Name:           name,
			NormalizedName: normalizeName(name),
		}
		_, err = tx.NewInsert().
			Model(category).
			On("CONFLICT (normalized_name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		err = tx.NewSelect().
			Model(category).
			Where("c.normalized_name = ?", category.NormalizedName).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.NewInsert().
			Model(&models.BookCategory{BookID: bookID, CategoryID: category.ID}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// writeImages stores the incoming image links, replacing a stored image of
// the same size only when the incoming one scores strictly higher. It returns
// the book's resulting image links.
func writeImages(ctx context.Context, tx bun.Tx, bookID, source string, links map[string]string, now time.Time) ([]*models.ImageLink, error) {
	var existing []*models.ImageLink
	err := tx.NewSelect().
		Model(&existing).
		Where("bil.book_id = ?", bookID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(links) == 0 {
		return existing, nil
	}

	bySize := make(map[string]*models.ImageLink, len(existing))
	for _, img := range existing {
		bySize[img.Size] = img
	}

	sizes := make([]string, 0, len(links))
	for size := range links {
		sizes = append(sizes, size)
	}
	sort.Strings(sizes)

	for _, size := range sizes {
		incoming := &models.ImageLink{
			CreatedAt:        now,
			UpdatedAt:        now,
			BookID:           bookID,
			Size:             size,
			URL:              links[size],
			Source:           source,
			IsHighResolution: isHighResolutionSize(size),
		}

		current, ok := bySize[size]
		if !ok {
			id, err := newID()
			if err != nil {
				return nil, err
			}
			incoming.ID = id
			if _, err := tx.NewInsert().Model(incoming).Exec(ctx); err != nil {
				return nil, errors.WithStack(err)
			}
			existing = append(existing, incoming)
			bySize[size] = incoming
			continue
		}

		if imageQuality(incoming) <= imageQuality(current) {
			continue
		}
		current.URL = incoming.URL
		current.Source = incoming.Source
		current.Width = nil
		current.Height = nil
		current.IsHighResolution = incoming.IsHighResolution
		current.StoragePath = nil
		current.UpdatedAt = now
		_, err := tx.NewUpdate().
			Model(current).
			Column("url", "source", "width", "height", "is_high_resolution", "storage_path", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return existing, nil
}

func writeDimensions(ctx context.Context, tx bun.Tx, bookID string, in aggregate.Dimensions, now time.Time) error {
	if in.Height == "" && in.Width == "" && in.Thickness == "" {
		return nil
	}

	dims := &models.Dimensions{}
	err := tx.NewSelect().Model(dims).Where("bd.book_id = ?", bookID).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(err)
	}
	isNew := errors.Is(err, sql.ErrNoRows)

	var cols columns
	cols.track(mergeString(&dims.Height, in.Height), "height")
	cols.track(mergeString(&dims.Width, in.Width), "width")
	cols.track(mergeString(&dims.Thickness, in.Thickness), "thickness")
	if len(cols) == 0 {
		return nil
	}

	dims.BookID = bookID
	dims.UpdatedAt = now
	if dims.Height != nil {
		dims.HeightCM = parseCentimetres(*dims.Height)
	}
	if dims.Width != nil {
		dims.WidthCM = parseCentimetres(*dims.Width)
	}
	if dims.Thickness != nil {
		dims.ThicknessCM = parseCentimetres(*dims.Thickness)
	}

	if isNew {
		_, err = tx.NewInsert().Model(dims).Exec(ctx)
		return errors.WithStack(err)
	}
	cols = append(cols, "height_cm", "width_cm", "thickness_cm", "updated_at")
	_, err = tx.NewUpdate().Model(dims).Column(cols...).WherePK().Exec(ctx)
	return errors.WithStack(err)
}
