package googlebooks

import (
	"strings"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/htmlutil"
	"github.com/canonbooks/canon/pkg/models"
)

// MapVolume converts a volume into an aggregate. It returns nil for volumes
// without an id or title since those can't be stored.
func MapVolume(v *Volume) *aggregate.Aggregate {
	if v == nil || v.ID == "" || strings.TrimSpace(v.VolumeInfo.Title) == "" {
		return nil
	}
	info := v.VolumeInfo

	agg := &aggregate.Aggregate{
		Title:         info.Title,
		Subtitle:      info.Subtitle,
		Description:   htmlutil.StripTags(info.Description),
		Language:      info.Language,
		Publisher:     info.Publisher,
		PageCount:     info.PageCount,
		PublishedDate: aggregate.ParsePublishedDate(info.PublishedDate),
		Authors:       info.Authors,
		Categories:    splitCategories(info.Categories),
		Dimensions: aggregate.Dimensions{
			Height:    info.Dimensions.Height,
			Width:     info.Dimensions.Width,
			Thickness: info.Dimensions.Thickness,
		},
	}
	if agg.PageCount == 0 {
		agg.PageCount = info.PrintedPageCount
	}

	ext := aggregate.ExternalIdentifiers{
		Source:              models.SourceGoogleBooks,
		ExternalID:          v.ID,
		InfoLink:            info.InfoLink,
		PreviewLink:         info.PreviewLink,
		CanonicalVolumeLink: info.CanonicalVolumeLink,
		WebReaderLink:       v.AccessInfo.WebReaderLink,
		AverageRating:       info.AverageRating,
		RatingsCount:        info.RatingsCount,
		IsEbook:             v.SaleInfo.IsEbook,
		Embeddable:          v.AccessInfo.Embeddable,
		PublicDomain:        v.AccessInfo.PublicDomain,
		Viewability:         v.AccessInfo.Viewability,
		Saleability:         v.SaleInfo.Saleability,
		ImageLinks:          info.ImageLinks,
	}
	if v.AccessInfo.EPUB != nil {
		ext.EPUBAvailable = v.AccessInfo.EPUB.IsAvailable
	}
	if v.AccessInfo.PDF != nil {
		ext.PDFAvailable = v.AccessInfo.PDF.IsAvailable
	}
	if p := v.SaleInfo.ListPrice; p != nil {
		ext.ListPrice = p.Amount
		ext.CurrencyCode = p.CurrencyCode
	}
	if p := v.SaleInfo.RetailPrice; p != nil {
		ext.RetailPrice = p.Amount
		if ext.CurrencyCode == "" {
			ext.CurrencyCode = p.CurrencyCode
		}
	}

	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			agg.ISBN13 = id.Identifier
			ext.ProviderISBN13 = id.Identifier
		case "ISBN_10":
			agg.ISBN10 = id.Identifier
			ext.ProviderISBN10 = id.Identifier
		}
	}

	agg.External = ext
	normalized := agg.Normalize()
	return &normalized
}

// splitCategories flattens hierarchical categories such as
// "Fiction / Fantasy / Epic" into their parts.
func splitCategories(categories []string) []string {
	var out []string
	for _, c := range categories {
		for _, part := range strings.Split(c, "/") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
