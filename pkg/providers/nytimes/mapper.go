package nytimes

import (
	"strings"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// MapEntry converts a list entry into an aggregate. Lists publish titles in
// capitals, so those are title cased.
func MapEntry(b *rawBook) *aggregate.Aggregate {
	if b == nil || strings.TrimSpace(b.Title) == "" {
		return nil
	}

	agg := &aggregate.Aggregate{
		Title:       titleCase(b.Title),
		Description: b.Description,
		Publisher:   b.Publisher,
		ISBN13:      b.PrimaryISBN13,
		ISBN10:      b.PrimaryISBN10,
		Authors:     splitAuthors(b.Author),
	}
	normalized := agg.Normalize()
	if normalized.ISBN13 == "" {
		// Without an ISBN the entry can only be matched by title, and the
		// NYT record has no other stable id.
		return &normalized
	}

	normalized.External = aggregate.ExternalIdentifiers{
		Source:         models.SourceNYTimes,
		ExternalID:     normalized.ISBN13,
		ProviderISBN13: normalized.ISBN13,
		ProviderISBN10: normalized.ISBN10,
		InfoLink:       b.AmazonURL,
	}
	if b.BookImage != "" {
		normalized.External.ImageLinks = map[string]string{models.ImageSizeSmall: b.BookImage}
	}
	normalized = normalized.Normalize()
	return &normalized
}

func titleCase(title string) string {
	title = strings.TrimSpace(title)
	if title != strings.ToUpper(title) {
		return title
	}
	return titleCaser.String(strings.ToLower(title))
}

// splitAuthors splits bylines such as "Nora Roberts and J.D. Robb" or
// "James Patterson, Mike Lupica".
func splitAuthors(byline string) []string {
	byline = strings.ReplaceAll(byline, " with ", ",")
	byline = strings.ReplaceAll(byline, " and ", ",")
	var out []string
	for _, name := range strings.Split(byline, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
