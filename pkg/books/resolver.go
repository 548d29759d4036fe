package books

import (
	"context"
	"database/sql"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Match names the strategy that resolved an aggregate to a stored book.
type Match string

const (
	MatchExternalID Match = "external_id"
	MatchISBN13     Match = "isbn13"
	MatchISBN10     Match = "isbn10"
	MatchCluster    Match = "cluster"
	MatchNone       Match = "none"
)

type Resolution struct {
	Book  *models.Book
	Match Match
}

// Resolver maps an incoming aggregate to the canonical book it describes.
// Strategies run in a fixed order and the first one that finds a book wins.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve must run inside the transaction that will write the result so that
// a concurrent writer holding the same lock can't slip in between.
func (r *Resolver) Resolve(ctx context.Context, idb bun.IDB, agg aggregate.Aggregate) (*Resolution, error) {
	ext := agg.External

	if ext.Source != "" && ext.ExternalID != "" {
		sub := idb.NewSelect().
			Model((*models.ExternalIdentifier)(nil)).
			Column("book_id").
			Where("source = ?", ext.Source).
			Where("external_id = ?", ext.ExternalID)
		book, err := r.findOne(ctx, idb.NewSelect().Where("b.id IN (?)", sub))
		if err != nil || book != nil {
			return resolution(book, MatchExternalID), err
		}
	}

	if agg.ISBN13 != "" {
		book, err := r.findOne(ctx, idb.NewSelect().Where("b.isbn13 = ?", agg.ISBN13))
		if err != nil || book != nil {
			return resolution(book, MatchISBN13), err
		}
	}

	if agg.ISBN10 != "" {
		book, err := r.findOne(ctx, idb.NewSelect().Where("b.isbn10 = ?", agg.ISBN10))
		if err != nil || book != nil {
			return resolution(book, MatchISBN10), err
		}
	}

	if prefix := identifiers.EditionPrefix(agg.ISBN13, agg.ISBN10); prefix != "" {
		q := idb.NewSelect().
			Join("JOIN work_cluster_members AS wcm ON wcm.book_id = b.id").
			Join("JOIN work_clusters AS wc ON wc.id = wcm.cluster_id").
			Where("wc.method = ?", models.ClusterMethodISBNPrefix).
			Where("wc.cluster_key = ?", prefix).
			OrderExpr("wcm.is_primary DESC, b.created_at ASC")
		if ext.Source != "" {
			// A member that already has a record from this source is a
			// distinct edition as far as that provider is concerned.
			q = q.Where("NOT EXISTS (SELECT 1 FROM book_external_ids AS x WHERE x.book_id = b.id AND x.source = ?)", ext.Source)
		}
		book, err := r.findOne(ctx, q)
		if err != nil || book != nil {
			return resolution(book, MatchCluster), err
		}
	}

	return &Resolution{Match: MatchNone}, nil
}

func (r *Resolver) findOne(ctx context.Context, q *bun.SelectQuery) (*models.Book, error) {
	book := &models.Book{}
	err := q.Model(book).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

func resolution(book *models.Book, match Match) *Resolution {
	if book == nil {
		return nil
	}
	return &Resolution{Book: book, Match: match}
}
