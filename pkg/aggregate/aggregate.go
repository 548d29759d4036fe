// Package aggregate defines the provider-agnostic payload that every provider
// mapper produces and the upsert engine consumes.
package aggregate

import (
	"net/url"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/identifiers"
)

// Aggregate is a normalized book payload. Values are treated as immutable once
// constructed: consumers never modify an Aggregate they were handed.
type Aggregate struct {
	Title         string              `json:"title" mod:"trim" validate:"required,max=1000"`
	Subtitle      string              `json:"subtitle,omitempty"`
	Description   string              `json:"description,omitempty"`
	ISBN10        string              `json:"isbn10,omitempty" validate:"isbn"`
	ISBN13        string              `json:"isbn13,omitempty" validate:"isbn"`
	Language      string              `json:"language,omitempty"`
	Publisher     string              `json:"publisher,omitempty"`
	PageCount     int                 `json:"page_count,omitempty"`
	PublishedDate *time.Time          `json:"published_date,omitempty"`
	Authors       []string            `json:"authors,omitempty"`
	Categories    []string            `json:"categories,omitempty"`
	Dimensions    Dimensions          `json:"dimensions"`
	External      ExternalIdentifiers `json:"external"`
}

// Dimensions are free text as published by the provider, e.g. "24.00 cm".
type Dimensions struct {
	Height    string `json:"height,omitempty"`
	Width     string `json:"width,omitempty"`
	Thickness string `json:"thickness,omitempty"`
}

// ExternalIdentifiers is the provider-specific block of an aggregate.
type ExternalIdentifiers struct {
	Source              string            `json:"source" validate:"source"`
	ExternalID          string            `json:"external_id"`
	ProviderISBN10      string            `json:"provider_isbn10,omitempty"`
	ProviderISBN13      string            `json:"provider_isbn13,omitempty"`
	InfoLink            string            `json:"info_link,omitempty"`
	PreviewLink         string            `json:"preview_link,omitempty"`
	CanonicalVolumeLink string            `json:"canonical_volume_link,omitempty"`
	CanonicalExternalID string            `json:"canonical_external_id,omitempty"`
	WebReaderLink       string            `json:"web_reader_link,omitempty"`
	AverageRating       *float64          `json:"average_rating,omitempty"`
	RatingsCount        *int              `json:"ratings_count,omitempty"`
	IsEbook             *bool             `json:"is_ebook,omitempty"`
	PDFAvailable        *bool             `json:"pdf_available,omitempty"`
	EPUBAvailable       *bool             `json:"epub_available,omitempty"`
	Embeddable          *bool             `json:"embeddable,omitempty"`
	PublicDomain        *bool             `json:"public_domain,omitempty"`
	Viewability         string            `json:"viewability,omitempty"`
	Saleability         string            `json:"saleability,omitempty"`
	ListPrice           *float64          `json:"list_price,omitempty"`
	RetailPrice         *float64          `json:"retail_price,omitempty"`
	CurrencyCode        string            `json:"currency_code,omitempty"`
	ImageLinks          map[string]string `json:"image_links,omitempty"`
}

// Normalize returns a sanitized copy: strings trimmed, ISBNs reduced to digits
// (invalid lengths dropped), blank authors and categories removed, and ISBNs
// backfilled from each other or from the provider ISBN fields.
func (a Aggregate) Normalize() Aggregate {
	out := a
	out.Title = strings.TrimSpace(a.Title)
	out.Subtitle = strings.TrimSpace(a.Subtitle)
	out.Description = strings.TrimSpace(a.Description)
	out.Language = strings.TrimSpace(a.Language)
	out.Publisher = strings.TrimSpace(a.Publisher)
	if out.PageCount < 0 {
		out.PageCount = 0
	}

	out.ISBN13 = identifiers.SanitizeISBN13(a.ISBN13)
	if out.ISBN13 == "" {
		out.ISBN13 = identifiers.SanitizeISBN13(a.External.ProviderISBN13)
	}
	out.ISBN10 = identifiers.SanitizeISBN10(a.ISBN10)
	if out.ISBN10 == "" {
		out.ISBN10 = identifiers.SanitizeISBN10(a.External.ProviderISBN10)
	}
	if out.ISBN13 == "" && out.ISBN10 != "" {
		out.ISBN13 = identifiers.ISBN10To13(out.ISBN10)
	}
	if out.ISBN10 == "" && out.ISBN13 != "" {
		// Only 978-prefixed ISBN-13s have an ISBN-10 form.
		out.ISBN10 = identifiers.ISBN13To10(out.ISBN13)
	}

	out.Authors = compact(a.Authors)
	out.Categories = compact(a.Categories)
	out.Dimensions = Dimensions{
		Height:    strings.TrimSpace(a.Dimensions.Height),
		Width:     strings.TrimSpace(a.Dimensions.Width),
		Thickness: strings.TrimSpace(a.Dimensions.Thickness),
	}

	ext := a.External
	ext.Source = strings.TrimSpace(ext.Source)
	ext.ExternalID = strings.TrimSpace(ext.ExternalID)
	ext.ProviderISBN10 = identifiers.SanitizeISBN10(ext.ProviderISBN10)
	ext.ProviderISBN13 = identifiers.SanitizeISBN13(ext.ProviderISBN13)
	if len(a.External.ImageLinks) > 0 {
		ext.ImageLinks = make(map[string]string, len(a.External.ImageLinks))
		for size, link := range a.External.ImageLinks {
			if link = strings.TrimSpace(link); link != "" {
				ext.ImageLinks[size] = secureURL(link)
			}
		}
	}
	out.External = ext

	return out
}

// HasIdentifier reports whether the aggregate carries anything stronger than a
// title to resolve identity with.
func (a Aggregate) HasIdentifier() bool {
	return a.ISBN13 != "" || a.ISBN10 != "" || (a.External.Source != "" && a.External.ExternalID != "")
}

// CanonicalID returns the provider's canonical work id: the explicit one when
// the provider has it, otherwise the id in the canonical volume link.
func (e ExternalIdentifiers) CanonicalID() string {
	if e.CanonicalExternalID != "" {
		return e.CanonicalExternalID
	}
	if e.CanonicalVolumeLink == "" {
		return ""
	}
	u, err := url.Parse(e.CanonicalVolumeLink)
	if err != nil {
		return ""
	}
	return u.Query().Get("id")
}

func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// secureURL upgrades plain http image links, which providers still hand out
// for covers that are also served over https.
func secureURL(link string) string {
	if strings.HasPrefix(link, "http://") {
		return "https://" + strings.TrimPrefix(link, "http://")
	}
	return link
}
