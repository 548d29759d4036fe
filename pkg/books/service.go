package books

import (
	"context"
	"database/sql"

	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID   *string
	Slug *string
	ISBN *string
}

type ListBooksOptions struct {
	Limit  *int
	Offset *int
	IDs    []string

	includeTotal bool
}

// Service is the read side of the book store.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func withRelations(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Authors", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("ba.position ASC")
		}).
		Relation("Authors.Author").
		Relation("Categories").
		Relation("Categories.Category").
		Relation("ExternalIDs").
		Relation("ImageLinks").
		Relation("Dimensions")
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := withRelations(svc.db.NewSelect().Model(book))

	switch {
	case opts.ID != nil:
		q = q.Where("b.id = ?", *opts.ID)
	case opts.Slug != nil:
		q = q.Where("b.slug = ?", *opts.Slug)
	case opts.ISBN != nil:
		isbn13 := identifiers.SanitizeISBN13(*opts.ISBN)
		isbn10 := identifiers.SanitizeISBN10(*opts.ISBN)
		switch {
		case isbn13 != "":
			q = q.Where("b.isbn13 = ?", isbn13)
		case isbn10 != "":
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("b.isbn10 = ?", isbn10).WhereOr("b.isbn13 = ?", identifiers.ISBN10To13(isbn10))
			})
		default:
			return nil, errcodes.NotFound("Book")
		}
	default:
		return nil, errcodes.NotFound("Book")
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

// LookupBook finds a book by id, slug or ISBN, in that order.
func (svc *Service) LookupBook(ctx context.Context, key string) (*models.Book, error) {
	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{ID: &key})
	if err == nil || !isNotFound(err) {
		return book, err
	}
	book, err = svc.RetrieveBook(ctx, RetrieveBookOptions{Slug: &key})
	if err == nil || !isNotFound(err) {
		return book, err
	}
	return svc.RetrieveBook(ctx, RetrieveBookOptions{ISBN: &key})
}

func isNotFound(err error) bool {
	return errors.Is(err, errcodes.NotFound("Book"))
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	b, _, err := svc.listBooksWithTotal(ctx, opts)
	return b, errors.WithStack(err)
}

func (svc *Service) ListBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	opts.includeTotal = true
	return svc.listBooksWithTotal(ctx, opts)
}

func (svc *Service) listBooksWithTotal(ctx context.Context, opts ListBooksOptions) ([]*models.Book, int, error) {
	books := []*models.Book{}
	var total int
	var err error

	q := withRelations(svc.db.NewSelect().Model(&books)).
		Order("b.updated_at DESC", "b.id ASC")

	if len(opts.IDs) > 0 {
		q = q.Where("b.id IN (?)", bun.In(opts.IDs))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return books, total, nil
}

// BooksByID loads the given books with relations, in the order of ids.
// Unknown ids are skipped.
func (svc *Service) BooksByID(ctx context.Context, ids []string) ([]*models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	books, err := svc.ListBooks(ctx, ListBooksOptions{IDs: ids})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]*models.Book, 0, len(books))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
			delete(byID, id)
		}
	}
	return ordered, nil
}
