package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BestsellerEntry records a book's position on a published bestseller list.
type BestsellerEntry struct {
	bun.BaseModel `bun:"table:bestseller_list_entries,alias:ble"`

	ListCode      string    `bun:",pk" json:"list_code"`
	PublishedDate string    `bun:",pk" json:"published_date"`
	BookID        string    `bun:",pk" json:"book_id"`
	CreatedAt     time.Time `json:"created_at"`
	Rank          int       `bun:",notnull" json:"rank"`
	WeeksOnList   int       `bun:",notnull" json:"weeks_on_list"`
	Book          *Book     `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
}
