package search

import (
	"context"
	"strings"

	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/clusters"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const (
	rankExactTitle = iota
	rankTitlePrefix
	rankContains
)

// Service searches the local store.
type Service struct {
	db             *bun.DB
	bookService    *books.Service
	clusterService *clusters.Service
}

func NewService(db *bun.DB, bookService *books.Service, clusterService *clusters.Service) *Service {
	return &Service{db, bookService, clusterService}
}

// SearchBooks returns up to limit books for the query. An ISBN query matches
// identifiers exactly; anything else matches title, subtitle and author names.
// Editions are collapsed onto their cluster's primary.
func (svc *Service) SearchBooks(ctx context.Context, query string, limit int) ([]*models.Book, error) {
	query = SanitizeQuery(query)
	if query == "" || limit <= 0 {
		return []*models.Book{}, nil
	}

	ids, err := svc.searchByIdentifier(ctx, query)
	if err != nil {
		return nil, err
	}

	// Fetch extra rows since collapsing editions can shrink the page.
	more, err := svc.searchByText(ctx, query, limit*2)
	if err != nil {
		return nil, err
	}
	ids = append(ids, more...)

	primaries, err := svc.clusterService.PrimaryFor(ctx, ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	seen := make(map[string]struct{}, len(ids))
	ordered := make([]string, 0, limit)
	for _, id := range ids {
		if primary, ok := primaries[id]; ok {
			id = primary
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
		if len(ordered) == limit {
			break
		}
	}

	results, err := svc.bookService.BooksByID(ctx, ordered)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if results == nil {
		results = []*models.Book{}
	}
	return results, nil
}

// searchByIdentifier matches a query that looks like an ISBN exactly.
func (svc *Service) searchByIdentifier(ctx context.Context, query string) ([]string, error) {
	isbn13 := identifiers.SanitizeISBN13(query)
	isbn10 := identifiers.SanitizeISBN10(query)
	if isbn13 == "" && isbn10 != "" {
		isbn13 = identifiers.ISBN10To13(isbn10)
	}
	if isbn13 == "" && isbn10 == "" {
		return nil, nil
	}

	var ids []string
	err := svc.db.NewSelect().
		TableExpr("books AS b").
		Column("b.id").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if isbn13 != "" {
				q = q.WhereOr("b.isbn13 = ?", isbn13)
			}
			if isbn10 != "" {
				q = q.WhereOr("b.isbn10 = ?", isbn10)
			}
			return q
		}).
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

// searchByText ranks exact title matches first, then title prefixes, then
// anything containing the query, with ties broken by recency.
func (svc *Service) searchByText(ctx context.Context, query string, limit int) ([]string, error) {
	lowered := strings.ToLower(query)
	escaped := EscapeLike(lowered)
	contains := "%" + escaped + "%"
	prefix := escaped + "%"

	var rows []struct {
		ID        string `bun:"id"`
		MatchRank int    `bun:"match_rank"`
	}
	err := svc.db.NewSelect().
		TableExpr("books AS b").
		Column("b.id").
		ColumnExpr(`CASE WHEN LOWER(b.title) = ? THEN ? WHEN LOWER(b.title) LIKE ? ESCAPE '\' THEN ? ELSE ? END AS match_rank`,
			lowered, rankExactTitle, prefix, rankTitlePrefix, rankContains).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`LOWER(b.title) LIKE ? ESCAPE '\'`, contains).
				WhereOr(`LOWER(COALESCE(b.subtitle, '')) LIKE ? ESCAPE '\'`, contains).
				WhereOr(`EXISTS (SELECT 1 FROM book_authors AS ba JOIN authors AS a ON a.id = ba.author_id WHERE ba.book_id = b.id AND LOWER(a.name) LIKE ? ESCAPE '\')`, contains)
		}).
		OrderExpr("match_rank ASC").
		OrderExpr("b.updated_at DESC").
		OrderExpr("b.id ASC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}
