// Package providers holds the HTTP plumbing shared by the external metadata
// provider clients, including how provider responses are classified into
// rate limits, transient failures and not-found.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/canonbooks/canon/pkg/ratelimit"
	"github.com/canonbooks/canon/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

// ErrNotFound is returned when a provider has no record for the request.
var ErrNotFound = errors.New("not found at provider")

// RateLimitError is a quota or throttling response. The caller must not retry
// before the provider's quota resets.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return e.Provider + " rate limited"
}

// TransientError is a failure that may succeed on retry: a 5xx response, a
// timeout, or a network error.
type TransientError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StatusError is any other unexpected status. It is permanent.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// quotaReasons are the error reasons that come back with a 403 when a daily
// quota is exhausted rather than a 429.
var quotaReasons = []string{"rateLimitExceeded", "dailyLimitExceeded", "quotaExceeded", "userRateLimitExceeded"}

// Client performs rate limited JSON GETs against one provider.
type Client struct {
	name    string
	http    *http.Client
	limiter *ratelimit.Limiter
}

func NewClient(name string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches rawURL with the query applied and decodes a 200 response
// into out. Failures are classified into the error types of this package.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "canon/"+version.Version)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// The caller gave up; that isn't the provider's fault.
		if ctx.Err() == context.Canceled {
			return errors.WithStack(ctx.Err())
		}
		return errors.WithStack(&TransientError{Provider: c.name, Err: err})
	}
	defer func() { _ = resp.Body.Close() }()

	logger.FromContext(ctx).Debug("provider request", logger.Data{
		"provider":    c.name,
		"path":        u.Path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if err := c.classify(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s response", c.name)
	}
	return nil
}

func (c *Client) classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.WithStack(&RateLimitError{Provider: c.name, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))})
	case resp.StatusCode == http.StatusNotFound:
		return errors.WithStack(ErrNotFound)
	case resp.StatusCode >= 500:
		return errors.WithStack(&TransientError{Provider: c.name, StatusCode: resp.StatusCode})
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode == http.StatusForbidden {
		for _, reason := range quotaReasons {
			if strings.Contains(string(body), reason) {
				return errors.WithStack(&RateLimitError{Provider: c.name})
			}
		}
	}
	return errors.WithStack(&StatusError{Provider: c.name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
}

func retryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
