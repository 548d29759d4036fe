package googlebooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/providers"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const volumeJSON = `{
  "id": "GZAoAQAAIAAJ",
  "volumeInfo": {
    "title": "Harry Potter and the Deathly Hallows",
    "authors": ["J. K. Rowling"],
    "publisher": "Arthur A. Levine Books",
    "publishedDate": "2007",
    "description": "<p>The <b>final</b> adventure.</p>",
    "industryIdentifiers": [
      {"type": "ISBN_10", "identifier": "0545010225"},
      {"type": "ISBN_13", "identifier": "9780545010221"}
    ],
    "pageCount": 759,
    "dimensions": {"height": "24.00 cm"},
    "categories": ["Juvenile Fiction / Fantasy & Magic"],
    "averageRating": 4.5,
    "ratingsCount": 2580,
    "imageLinks": {
      "smallThumbnail": "http://books.google.com/books/content?id=GZAoAQAAIAAJ&zoom=5",
      "thumbnail": "http://books.google.com/books/content?id=GZAoAQAAIAAJ&zoom=1"
    },
    "language": "en",
    "infoLink": "https://books.google.com/books?id=GZAoAQAAIAAJ",
    "canonicalVolumeLink": "https://books.google.com/books/about/Harry_Potter.html?id=GZAoAQAAIAAJ"
  },
  "saleInfo": {"saleability": "NOT_FOR_SALE", "isEbook": false},
  "accessInfo": {"viewability": "NO_PAGES", "embeddable": false, "publicDomain": false, "epub": {"isAvailable": false}}
}`

func testContext() context.Context {
	return logger.New().WithContext(context.Background())
}

func TestSearch(t *testing.T) {
	t.Parallel()

	var seenKey, seenQuery, seenMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = r.URL.Query().Get("key")
		seenQuery = r.URL.Query().Get("q")
		seenMax = r.URL.Query().Get("maxResults")
		_, _ = w.Write([]byte(`{"totalItems": 1, "items": [` + volumeJSON + `]}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "secret", time.Second, nil)

	vols, err := c.Search(testContext(), "deathly hallows", 100, Authenticated)
	require.NoError(t, err)
	require.Len(t, vols, 1)
	assert.Equal(t, "GZAoAQAAIAAJ", vols[0].ID)
	assert.Equal(t, "secret", seenKey)
	assert.Equal(t, "deathly hallows", seenQuery)
	assert.Equal(t, "40", seenMax)

	_, err = c.Search(testContext(), "deathly hallows", 5, Unauthenticated)
	require.NoError(t, err)
	assert.Empty(t, seenKey)
	assert.Equal(t, "5", seenMax)
}

func TestAuthenticatedWithoutKey(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", "", time.Second, nil)
	assert.False(t, c.HasAPIKey())

	_, err := c.Search(testContext(), "dune", 10, Authenticated)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestByISBN(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "isbn:9780545010221" {
			_, _ = w.Write([]byte(`{"totalItems": 1, "items": [` + volumeJSON + `]}`))
			return
		}
		_, _ = w.Write([]byte(`{"totalItems": 0}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", time.Second, nil)

	vol, err := c.ByISBN(testContext(), "9780545010221", Unauthenticated)
	require.NoError(t, err)
	assert.Equal(t, "GZAoAQAAIAAJ", vol.ID)

	_, err = c.ByISBN(testContext(), "9780000000002", Unauthenticated)
	assert.True(t, providers.IsNotFound(err))
}

func TestVolume(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/volumes/GZAoAQAAIAAJ" {
			_, _ = w.Write([]byte(volumeJSON))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", time.Second, nil)

	vol, err := c.Volume(testContext(), "GZAoAQAAIAAJ", Unauthenticated)
	require.NoError(t, err)
	assert.Equal(t, "Harry Potter and the Deathly Hallows", vol.VolumeInfo.Title)

	_, err = c.Volume(testContext(), "missing", Unauthenticated)
	assert.True(t, providers.IsNotFound(err))
}

func TestModeRail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, circuit.RailAuthenticated, Authenticated.Rail())
	assert.Equal(t, circuit.RailUnauthenticated, Unauthenticated.Rail())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
}
