package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	SourceGoogleBooks = "GOOGLE_BOOKS"
	SourceOpenLibrary = "OPEN_LIBRARY"
	SourceNYTimes     = "NYTIMES"
)

// ExternalIdentifier is a provider's record of a book. There is at most one
// per (source, book) and per (source, external id).
type ExternalIdentifier struct {
	bun.BaseModel `bun:"table:book_external_ids,alias:bei"`

	ID                  string    `bun:",pk" json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	BookID              string    `bun:",notnull" json:"book_id"`
	Source              string    `bun:",notnull" json:"source"`
	ExternalID          string    `bun:",notnull" json:"external_id"`
	CanonicalExternalID *string   `json:"canonical_external_id,omitempty"`
	ProviderISBN10      *string   `bun:"provider_isbn10" json:"provider_isbn10,omitempty"`
	ProviderISBN13      *string   `bun:"provider_isbn13" json:"provider_isbn13,omitempty"`
	InfoLink            *string   `json:"info_link,omitempty"`
	PreviewLink         *string   `json:"preview_link,omitempty"`
	CanonicalVolumeLink *string   `json:"canonical_volume_link,omitempty"`
	WebReaderLink       *string   `json:"web_reader_link,omitempty"`
	AverageRating       *float64  `json:"average_rating,omitempty"`
	RatingsCount        *int      `json:"ratings_count,omitempty"`
	IsEbook             *bool     `json:"is_ebook,omitempty"`
	PDFAvailable        *bool     `bun:"pdf_available" json:"pdf_available,omitempty"`
	EPUBAvailable       *bool     `bun:"epub_available" json:"epub_available,omitempty"`
	Embeddable          *bool     `json:"embeddable,omitempty"`
	PublicDomain        *bool     `json:"public_domain,omitempty"`
	Viewability         *string   `json:"viewability,omitempty"`
	Saleability         *string   `json:"saleability,omitempty"`
	ListPrice           *float64  `json:"list_price,omitempty"`
	RetailPrice         *float64  `json:"retail_price,omitempty"`
	CurrencyCode        *string   `json:"currency_code,omitempty"`
}
