// Package googlebooks is a client for the Google Books volumes API.
package googlebooks

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/circuit"
	"github.com/canonbooks/canon/pkg/providers"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/pkg/errors"
)

const ProviderName = "google_books"

// maxResultsLimit is the largest page the volumes API serves.
const maxResultsLimit = 40

// Mode selects whether a request carries the API key. The two modes have
// separate quotas and are tracked as separate circuit breaker rails.
type Mode int

const (
	Authenticated Mode = iota
	Unauthenticated
)

func (m Mode) Rail() circuit.Rail {
	if m == Authenticated {
		return circuit.RailAuthenticated
	}
	return circuit.RailUnauthenticated
}

func (m Mode) String() string {
	return m.Rail().String()
}

// ErrNoAPIKey is returned for authenticated requests when no key is set.
var ErrNoAPIKey = errors.New("google books api key is not configured")

type Client struct {
	http    *providers.Client
	baseURL string
	apiKey  string
}

func NewClient(baseURL, apiKey string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		http:    providers.NewClient(ProviderName, timeout, limiter),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// HasAPIKey reports whether authenticated requests can be made at all.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

func (c *Client) params(mode Mode) (url.Values, error) {
	q := url.Values{}
	if mode == Authenticated {
		if c.apiKey == "" {
			return nil, ErrNoAPIKey
		}
		q.Set("key", c.apiKey)
	}
	return q, nil
}

// Search runs a full text volume search.
func (c *Client) Search(ctx context.Context, query string, max int, mode Mode) ([]*Volume, error) {
	q, err := c.params(mode)
	if err != nil {
		return nil, err
	}
	if max <= 0 || max > maxResultsLimit {
		max = maxResultsLimit
	}
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(max))
	q.Set("printType", "books")

	resp := &volumesResponse{}
	if err := c.http.GetJSON(ctx, c.baseURL+"/volumes", q, resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Volume fetches a single volume by its id.
func (c *Client) Volume(ctx context.Context, id string, mode Mode) (*Volume, error) {
	q, err := c.params(mode)
	if err != nil {
		return nil, err
	}

	vol := &Volume{}
	if err := c.http.GetJSON(ctx, c.baseURL+"/volumes/"+url.PathEscape(id), q, vol); err != nil {
		return nil, err
	}
	return vol, nil
}

// ByISBN finds the volume for an ISBN. The API answers an unknown ISBN with an
// empty result set, which is reported as providers.ErrNotFound.
func (c *Client) ByISBN(ctx context.Context, isbn string, mode Mode) (*Volume, error) {
	items, err := c.Search(ctx, "isbn:"+isbn, 1, mode)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.WithStack(providers.ErrNotFound)
	}
	return items[0], nil
}
