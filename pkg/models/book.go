package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID            string                `bun:",pk" json:"id"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Slug          string                `bun:",notnull" json:"slug"`
	Title         string                `bun:",notnull" json:"title"`
	Subtitle      *string               `json:"subtitle,omitempty"`
	Description   *string               `json:"description,omitempty"`
	ISBN13        *string               `bun:"isbn13" json:"isbn13,omitempty"`
	ISBN10        *string               `bun:"isbn10" json:"isbn10,omitempty"`
	Language      *string               `json:"language,omitempty"`
	Publisher     *string               `json:"publisher,omitempty"`
	PageCount     *int                  `json:"page_count,omitempty"`
	PublishedDate *time.Time            `json:"published_date,omitempty"`
	Authors       []*BookAuthor         `bun:"rel:has-many,join:id=book_id" json:"authors,omitempty"`
	Categories    []*BookCategory       `bun:"rel:has-many,join:id=book_id" json:"categories,omitempty"`
	ExternalIDs   []*ExternalIdentifier `bun:"rel:has-many,join:id=book_id" json:"external_ids,omitempty"`
	ImageLinks    []*ImageLink          `bun:"rel:has-many,join:id=book_id" json:"image_links,omitempty"`
	Dimensions    *Dimensions           `bun:"rel:has-one,join:id=book_id" json:"dimensions,omitempty"`
}

// IsThin reports whether the record is missing enrichment data that a later
// provider fetch could fill in. Relations must be loaded for the cover check.
func (b *Book) IsThin() bool {
	if b.Description == nil || *b.Description == "" {
		return true
	}
	if b.PageCount == nil || *b.PageCount == 0 {
		return true
	}
	return len(b.ImageLinks) == 0
}

// AuthorNames returns the author names in order.
func (b *Book) AuthorNames() []string {
	names := make([]string, 0, len(b.Authors))
	for _, ba := range b.Authors {
		if ba.Author != nil {
			names = append(names, ba.Author.Name)
		}
	}
	return names
}

// ExternalID returns the book's identifier record for the given source.
func (b *Book) ExternalID(source string) *ExternalIdentifier {
	for _, e := range b.ExternalIDs {
		if e.Source == source {
			return e
		}
	}
	return nil
}
