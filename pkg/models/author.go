package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:a"`

	ID             string    `bun:",pk" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Name           string    `bun:",notnull" json:"name"`
	NormalizedName string    `bun:",notnull" json:"-"`
}

// BookAuthor links a book to an author, ordered by Position.
type BookAuthor struct {
	bun.BaseModel `bun:"table:book_authors,alias:ba"`

	BookID   string  `bun:",pk" json:"-"`
	AuthorID string  `bun:",pk" json:"author_id"`
	Position int     `bun:",notnull" json:"position"`
	Author   *Author `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
}
