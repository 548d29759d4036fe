package openlibrary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canonbooks/canon/pkg/models"
	"github.com/canonbooks/canon/pkg/providers"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const editionJSON = `{
  "key": "/books/OL7353617M",
  "title": "Fantastic Mr. Fox",
  "publishers": ["Puffin"],
  "publish_date": "October 1, 1988",
  "number_of_pages": 96,
  "isbn_10": ["0140328726"],
  "isbn_13": ["9780140328721"],
  "authors": [{"key": "/authors/OL34184A"}, {"key": "/authors/OL_MISSING"}],
  "works": [{"key": "/works/OL45883W"}],
  "covers": [8739161],
  "languages": [{"key": "/languages/eng"}],
  "subjects": ["Animals", "Foxes"],
  "physical_dimensions": "19.6 x 12.9 x 0.8 centimeters",
  "description": {"type": "/type/text", "value": "Mr. Fox outwits <i>three</i> farmers."}
}`

const searchJSON = `{
  "numFound": 1,
  "docs": [{
    "key": "/works/OL45883W",
    "title": "Fantastic Mr Fox",
    "author_name": ["Roald Dahl"],
    "isbn": ["0140328726", "9780140328721"],
    "publisher": ["Puffin"],
    "first_publish_year": 1970,
    "number_of_pages_median": 96,
    "language": ["eng"],
    "subject": ["Animals"],
    "cover_i": 8739161,
    "cover_edition_key": "OL7353617M",
    "edition_key": ["OL7353617M", "OL1M"]
  }]
}`

func testContext() context.Context {
	return logger.New().WithContext(context.Background())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fantastic mr fox", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(searchJSON))
	})
	mux.HandleFunc("/isbn/9780140328721.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(editionJSON))
	})
	mux.HandleFunc("/authors/OL34184A.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "Roald Dahl"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)

	docs, err := c.Search(testContext(), "fantastic mr fox", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "OL7353617M", docs[0].CoverEditionKey)
}

func TestByISBN(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)

	edition, err := c.ByISBN(testContext(), "9780140328721")
	require.NoError(t, err)
	assert.Equal(t, "Fantastic Mr. Fox", edition.Title)
	assert.Equal(t, "Mr. Fox outwits <i>three</i> farmers.", string(edition.Description))
	// The second author lookup 404s and is skipped.
	assert.Equal(t, []string{"Roald Dahl"}, edition.AuthorNames)

	_, err = c.ByISBN(testContext(), "9780000000002")
	assert.True(t, providers.IsNotFound(err))
}

func TestMapEdition(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)
	edition, err := c.ByISBN(testContext(), "9780140328721")
	require.NoError(t, err)

	agg := MapEdition(edition)
	require.NotNil(t, agg)

	assert.Equal(t, "Fantastic Mr. Fox", agg.Title)
	assert.Equal(t, "Mr. Fox outwits three farmers.", agg.Description)
	assert.Equal(t, "9780140328721", agg.ISBN13)
	assert.Equal(t, "0140328726", agg.ISBN10)
	assert.Equal(t, "Puffin", agg.Publisher)
	assert.Equal(t, "en", agg.Language)
	assert.Equal(t, 96, agg.PageCount)
	require.NotNil(t, agg.PublishedDate)
	assert.Equal(t, 1988, agg.PublishedDate.Year())
	assert.Equal(t, "19.6 centimeters", agg.Dimensions.Height)
	assert.Equal(t, "12.9 centimeters", agg.Dimensions.Width)
	assert.Equal(t, "0.8 centimeters", agg.Dimensions.Thickness)

	assert.Equal(t, models.SourceOpenLibrary, agg.External.Source)
	assert.Equal(t, "OL7353617M", agg.External.ExternalID)
	assert.Equal(t, "OL45883W", agg.External.CanonicalID())
	assert.Equal(t, "https://covers.openlibrary.org/b/id/8739161-L.jpg", agg.External.ImageLinks[models.ImageSizeLarge])
	assert.Len(t, agg.External.ImageLinks, 3)
}

func TestMapDoc(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second, nil)
	docs, err := c.Search(testContext(), "fantastic mr fox", 5)
	require.NoError(t, err)

	agg := MapDoc(docs[0])
	require.NotNil(t, agg)
	assert.Equal(t, "OL7353617M", agg.External.ExternalID)
	assert.Equal(t, "OL45883W", agg.External.CanonicalID())
	assert.Equal(t, "9780140328721", agg.ISBN13)
	assert.Equal(t, "0140328726", agg.ISBN10)
	assert.Equal(t, []string{"Roald Dahl"}, agg.Authors)
	require.NotNil(t, agg.PublishedDate)
	assert.Equal(t, 1970, agg.PublishedDate.Year())

	assert.Nil(t, MapDoc(&Doc{Title: "No editions"}))
	assert.Nil(t, MapDoc(&Doc{CoverEditionKey: "OL1M"}))
	assert.Equal(t, "OL9M", MapDoc(&Doc{Title: "T", EditionKey: []string{"OL9M"}}).External.ExternalID)
}

func TestParsePhysicalDimensions(t *testing.T) {
	t.Parallel()

	dims := parsePhysicalDimensions("24 x 16 x 3 centimeters")
	assert.Equal(t, "24 centimeters", dims.Height)
	assert.Equal(t, "16 centimeters", dims.Width)
	assert.Equal(t, "3 centimeters", dims.Thickness)

	dims = parsePhysicalDimensions("9 x 6 inches")
	assert.Equal(t, "9 inches", dims.Height)
	assert.Equal(t, "6 inches", dims.Width)
	assert.Empty(t, dims.Thickness)

	assert.Empty(t, parsePhysicalDimensions("large").Height)
}
