// Package openlibrary is a client for the Open Library search and edition
// APIs.
package openlibrary

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/providers"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/robinjoseph08/golib/logger"
)

const ProviderName = "open_library"

// maxEditionAuthors bounds the extra author lookups made per edition.
const maxEditionAuthors = 5

type Client struct {
	http    *providers.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		http:    providers.NewClient(ProviderName, timeout, limiter),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Search runs a full text search over works.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]*Doc, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", searchFields)

	resp := &searchResponse{}
	if err := c.http.GetJSON(ctx, c.baseURL+"/search.json", q, resp); err != nil {
		return nil, err
	}
	return resp.Docs, nil
}

// ByISBN fetches the edition for an ISBN along with its author names.
func (c *Client) ByISBN(ctx context.Context, isbn string) (*Edition, error) {
	edition := &Edition{}
	if err := c.http.GetJSON(ctx, c.baseURL+"/isbn/"+url.PathEscape(isbn)+".json", nil, edition); err != nil {
		return nil, err
	}

	// Author names live on separate records. Missing names only make the
	// result thinner, so failures here aren't fatal.
	for i, ref := range edition.Authors {
		if i >= maxEditionAuthors {
			break
		}
		author := &authorRecord{}
		if err := c.http.GetJSON(ctx, c.baseURL+ref.Key+".json", nil, author); err != nil {
			logger.FromContext(ctx).Warn("open library author lookup failed", logger.Data{"key": ref.Key, "error": err.Error()})
			continue
		}
		edition.AuthorNames = append(edition.AuthorNames, author.Name)
	}

	return edition, nil
}
