package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Category struct {
	bun.BaseModel `bun:"table:categories,alias:c"`

	ID             string    `bun:",pk" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Name           string    `bun:",notnull" json:"name"`
	NormalizedName string    `bun:",notnull" json:"-"`
}

type BookCategory struct {
	bun.BaseModel `bun:"table:book_categories,alias:bc"`

	BookID     string    `bun:",pk" json:"-"`
	CategoryID string    `bun:",pk" json:"category_id"`
	Category   *Category `bun:"rel:belongs-to,join:category_id=id" json:"category,omitempty"`
}
