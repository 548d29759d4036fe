// Package nytimes is a client for the New York Times Books API bestseller
// lists.
package nytimes

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/providers"
	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/pkg/errors"
)

const ProviderName = "nytimes"

// ErrNoAPIKey is returned when no API key is configured. The API rejects
// anonymous requests.
var ErrNoAPIKey = errors.New("nytimes api key is not configured")

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

// CurrentList fetches the most recent edition of a bestseller list such as
// "hardcover-fiction".
func (c *Client) CurrentList(ctx context.Context, list string) (*List, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("api-key", c.apiKey)

	resp := &listResponse{}
	if err := c.http.GetJSON(ctx, c.baseURL+"/lists/current/"+url.PathEscape(list)+".json", q, resp); err != nil {
		return nil, err
	}
	return resp.toList(list), nil
}
