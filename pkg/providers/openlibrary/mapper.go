package openlibrary

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/htmlutil"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
)

const (
	siteURL   = "https://openlibrary.org"
	coversURL = "https://covers.openlibrary.org/b/id/%d-%s.jpg"
)

// maxCategories keeps the long tail of Open Library subjects out of the
// category table.
const maxCategories = 10

func coverLinks(coverID int) map[string]string {
	if coverID <= 0 {
		return nil
	}
	return map[string]string{
		models.ImageSizeThumbnail: fmt.Sprintf(coversURL, coverID, "S"),
		models.ImageSizeMedium:    fmt.Sprintf(coversURL, coverID, "M"),
		models.ImageSizeLarge:     fmt.Sprintf(coversURL, coverID, "L"),
	}
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

// MapDoc converts a search result into an aggregate keyed by its cover
// edition. Docs without a title or edition are dropped.
func MapDoc(doc *Doc) *aggregate.Aggregate {
	if doc == nil || strings.TrimSpace(doc.Title) == "" {
		return nil
	}
	edition := doc.CoverEditionKey
	if edition == "" && len(doc.EditionKey) > 0 {
		edition = doc.EditionKey[0]
	}
	if edition == "" {
		return nil
	}

	agg := &aggregate.Aggregate{
		Title:      doc.Title,
		Subtitle:   doc.Subtitle,
		PageCount:  doc.NumberOfPagesMedian,
		Authors:    doc.AuthorName,
		Categories: firstN(doc.Subject, maxCategories),
	}
	if doc.FirstPublishYear > 0 {
		agg.PublishedDate = aggregate.ParsePublishedDate(strconv.Itoa(doc.FirstPublishYear))
	}
	if len(doc.Publisher) > 0 {
		agg.Publisher = doc.Publisher[0]
	}
	if len(doc.Language) > 0 {
		agg.Language = languageCode(doc.Language[0])
	}
	for _, isbn := range doc.ISBN {
		if agg.ISBN13 == "" {
			agg.ISBN13 = identifiers.SanitizeISBN13(isbn)
		}
		if agg.ISBN10 == "" {
			agg.ISBN10 = identifiers.SanitizeISBN10(isbn)
		}
	}

	agg.External = aggregate.ExternalIdentifiers{
		Source:              models.SourceOpenLibrary,
		ExternalID:          edition,
		CanonicalExternalID: keyID(doc.Key),
		InfoLink:            siteURL + "/books/" + edition,
		ImageLinks:          coverLinks(doc.CoverID),
	}

	normalized := agg.Normalize()
	return &normalized
}

// MapEdition converts an edition record into an aggregate.
func MapEdition(e *Edition) *aggregate.Aggregate {
	if e == nil || e.Key == "" || strings.TrimSpace(e.Title) == "" {
		return nil
	}
	id := keyID(e.Key)

	agg := &aggregate.Aggregate{
		Title:         e.Title,
		Subtitle:      e.Subtitle,
		Description:   htmlutil.StripTags(string(e.Description)),
		PageCount:     e.NumberOfPages,
		PublishedDate: aggregate.ParsePublishedDate(e.PublishDate),
		Authors:       e.AuthorNames,
		Categories:    firstN(e.Subjects, maxCategories),
		Dimensions:    parsePhysicalDimensions(e.PhysicalDimensions),
	}
	if len(e.Publishers) > 0 {
		agg.Publisher = e.Publishers[0]
	}
	if len(e.Languages) > 0 {
		agg.Language = languageCode(keyID(e.Languages[0].Key))
	}
	if len(e.ISBN13) > 0 {
		agg.ISBN13 = e.ISBN13[0]
	}
	if len(e.ISBN10) > 0 {
		agg.ISBN10 = e.ISBN10[0]
	}

	ext := aggregate.ExternalIdentifiers{
		Source:         models.SourceOpenLibrary,
		ExternalID:     id,
		ProviderISBN13: agg.ISBN13,
		ProviderISBN10: agg.ISBN10,
		InfoLink:       siteURL + e.Key,
	}
	if len(e.Works) > 0 {
		ext.CanonicalExternalID = keyID(e.Works[0].Key)
	}
	if len(e.Covers) > 0 {
		ext.ImageLinks = coverLinks(e.Covers[0])
	}
	agg.External = ext

	normalized := agg.Normalize()
	return &normalized
}

// languageCodes maps the MARC codes Open Library uses to the ISO 639-1 codes
// the other providers use.
var languageCodes = map[string]string{
	"eng": "en",
	"fre": "fr",
	"ger": "de",
	"spa": "es",
	"ita": "it",
	"por": "pt",
	"jpn": "ja",
	"chi": "zh",
	"rus": "ru",
	"dut": "nl",
}

func languageCode(marc string) string {
	if code, ok := languageCodes[marc]; ok {
		return code
	}
	return marc
}

var physicalDimensionsRE = regexp.MustCompile(`(?i)^\s*([0-9.]+)\s*x\s*([0-9.]+)\s*(?:x\s*([0-9.]+))?\s*(centimeters|centimetres|cm|inches|inch|in|mm)\b`)

// parsePhysicalDimensions splits "24 x 16 x 3 centimeters" into height, width
// and thickness, each with its unit attached.
func parsePhysicalDimensions(value string) aggregate.Dimensions {
	m := physicalDimensionsRE.FindStringSubmatch(value)
	if m == nil {
		return aggregate.Dimensions{}
	}
	unit := strings.ToLower(m[4])
	dims := aggregate.Dimensions{
		Height: m[1] + " " + unit,
		Width:  m[2] + " " + unit,
	}
	if m[3] != "" {
		dims.Thickness = m[3] + " " + unit
	}
	return dims
}
