package books

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// ErrValidation is returned for aggregates that can't become a book.
var ErrValidation = errcodes.ValidationError("Title is required.")

// Clusterer groups a newly created book with its other editions.
type Clusterer interface {
	ClusterBook(ctx context.Context, book *models.Book) error
}

type UpsertResult struct {
	BookID string `json:"book_id"`
	Slug   string `json:"slug"`
	IsNew  bool   `json:"is_new"`
	Match  Match  `json:"match"`
	// IdentityConflict is set when an incoming ISBN already belongs to a
	// different book and was therefore not applied.
	IdentityConflict bool `json:"identity_conflict,omitempty"`
}

// UpsertEngine is the single write path for book data coming from providers.
type UpsertEngine struct {
	db        *bun.DB
	locker    *database.Locker
	resolver  *Resolver
	clusterer Clusterer
	sink      events.Sink
	now       func() time.Time
}

func NewUpsertEngine(db *bun.DB, locker *database.Locker, clusterer Clusterer, sink events.Sink) *UpsertEngine {
	if sink == nil {
		sink = events.Nop{}
	}
	return &UpsertEngine{
		db:        db,
		locker:    locker,
		resolver:  NewResolver(),
		clusterer: clusterer,
		sink:      sink,
		now:       time.Now,
	}
}

// Upsert resolves the aggregate to an existing book or creates one, merging
// everything in a single transaction held under the identity lock.
func (e *UpsertEngine) Upsert(ctx context.Context, in aggregate.Aggregate) (*UpsertResult, error) {
	agg := in.Normalize()
	if agg.Title == "" {
		return nil, errors.WithStack(ErrValidation)
	}

	log := logger.FromContext(ctx)
	fields := logger.Data{
		"source":      agg.External.Source,
		"external_id": agg.External.ExternalID,
		"isbn13":      agg.ISBN13,
		"isbn10":      agg.ISBN10,
	}

	var (
		book   *models.Book
		images []*models.ImageLink
		result *UpsertResult
	)
	write := func(ctx context.Context, tx bun.Tx) error {
		var err error
		book, images, result, err = e.write(ctx, tx, agg)
		return err
	}

	key, locked := LockKey(agg)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if locked {
			err = e.locker.RunInTx(ctx, database.LockKey(key), write)
		} else {
			log.Debug("upserting title-only aggregate without a lock", fields)
			err = e.db.RunInTx(ctx, &sql.TxOptions{}, write)
		}
		// A unique violation means a writer under a different key (or no key)
		// committed the same identity or slug first. The retry sees it.
		if err == nil || !database.IsUniqueViolation(err) {
			break
		}
		log.Warn("unique violation during upsert, retrying", fields)
	}
	if err != nil {
		if database.IsSystemicFailure(err) {
			log.Err(err).Error("store unavailable during upsert", fields)
		} else {
			log.Err(err).Error("book upsert failed", fields)
		}
		return nil, errors.WithStack(err)
	}

	if result.IdentityConflict {
		log.Warn("identity conflict: isbn belongs to another book", logger.Data{
			"book_id": book.ID,
			"isbn13":  agg.ISBN13,
			"isbn10":  agg.ISBN10,
			"match":   string(result.Match),
		})
	}

	if result.IsNew && e.clusterer != nil {
		if err := e.clusterer.ClusterBook(ctx, book); err != nil {
			log.Warn("clustering failed", logger.Data{"book_id": book.ID, "error": err.Error()})
		}
	}

	evt := events.BookChanged{
		BookID:            book.ID,
		Slug:              book.Slug,
		Title:             book.Title,
		IsNew:             result.IsNew,
		Source:            agg.External.Source,
		CanonicalImageURL: bestImage(images),
	}
	if len(images) > 0 {
		evt.ImageLinks = make(map[string]string, len(images))
		for _, img := range images {
			evt.ImageLinks[img.Size] = img.URL
		}
	}
	e.sink.BookChanged(ctx, evt)

	return result, nil
}

func (e *UpsertEngine) write(ctx context.Context, tx bun.Tx, agg aggregate.Aggregate) (*models.Book, []*models.ImageLink, *UpsertResult, error) {
	res, err := e.resolver.Resolve(ctx, tx, agg)
	if err != nil {
		return nil, nil, nil, err
	}

	now := e.now()
	result := &UpsertResult{Match: res.Match}
	book := res.Book

	if book == nil {
		book, err = newBook(agg, now)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := ensureSlug(ctx, tx, book, agg.Authors); err != nil {
			return nil, nil, nil, err
		}
		if _, err := tx.NewInsert().Model(book).Exec(ctx); err != nil {
			return nil, nil, nil, errors.WithStack(err)
		}
		result.IsNew = true
	} else {
		cols := mergeBook(book, agg)
		isbnCols, conflict, err := assignISBNs(ctx, tx, book, agg)
		if err != nil {
			return nil, nil, nil, err
		}
		cols = append(cols, isbnCols...)
		result.IdentityConflict = conflict
		if book.Slug == "" {
			if err := ensureSlug(ctx, tx, book, agg.Authors); err != nil {
				return nil, nil, nil, err
			}
			cols = append(cols, "slug")
		}
		book.UpdatedAt = now
		cols = append(cols, "updated_at")
		_, err = tx.NewUpdate().Model(book).Column(cols...).WherePK().Exec(ctx)
		if err != nil {
			return nil, nil, nil, errors.WithStack(err)
		}
	}

	if err := writeAuthors(ctx, tx, book.ID, agg.Authors, now); err != nil {
		return nil, nil, nil, err
	}
	if err := writeExternalIdentifier(ctx, tx, book.ID, agg.External, now); err != nil {
		return nil, nil, nil, err
	}
	images, err := writeImages(ctx, tx, book.ID, agg.External.Source, agg.External.ImageLinks, now)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := writeCategories(ctx, tx, book.ID, agg.Categories, now); err != nil {
		return nil, nil, nil, err
	}
	if err := writeDimensions(ctx, tx, book.ID, agg.Dimensions, now); err != nil {
		return nil, nil, nil, err
	}

	result.BookID = book.ID
	result.Slug = book.Slug
	return book, images, result, nil
}

// assignISBNs fills in ISBNs the book is missing. An ISBN that already
// belongs to another book is left alone and reported as a conflict.
func assignISBNs(ctx context.Context, tx bun.Tx, book *models.Book, agg aggregate.Aggregate) (columns, bool, error) {
	var cols columns
	conflict := false

	assign := func(dst **string, column, value string) error {
		if value == "" || *dst != nil {
			return nil
		}
		taken, err := tx.NewSelect().
			Model((*models.Book)(nil)).
			Where("? = ?", bun.Ident(column), value).
			Where("id != ?", book.ID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if taken {
			conflict = true
			return nil
		}
		v := value
		*dst = &v
		cols = append(cols, column)
		return nil
	}

	if err := assign(&book.ISBN13, "isbn13", agg.ISBN13); err != nil {
		return nil, false, err
	}
	if err := assign(&book.ISBN10, "isbn10", agg.ISBN10); err != nil {
		return nil, false, err
	}
	return cols, conflict, nil
}
