package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	ctx := logger.New().WithContext(context.Background())

	t.Run("decodes a successful response and applies the query", func(t *testing.T) {
		t.Parallel()
		var gotQuery url.Values
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()
			assert.Contains(t, r.Header.Get("User-Agent"), "canon/")
			_, _ = w.Write([]byte(`{"name":"ok"}`))
		})

		c := NewClient("test", time.Second, nil)
		out := struct {
			Name string `json:"name"`
		}{}
		err := c.GetJSON(ctx, srv.URL+"/thing", url.Values{"q": {"dune"}}, &out)
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Name)
		assert.Equal(t, "dune", gotQuery.Get("q"))
	})

	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "429 is a rate limit with retry after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				require.True(t, IsRateLimit(err))
				var rl *RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 30*time.Second, rl.RetryAfter)
			},
		},
		{
			name:   "404 is not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
				assert.False(t, IsTransient(err))
			},
		},
		{
			name:   "503 is transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				assert.True(t, IsTransient(err))
				assert.False(t, IsRateLimit(err))
			},
		},
		{
			name:   "403 with a quota reason is a rate limit",
			status: http.StatusForbidden,
			body:   `{"error":{"errors":[{"reason":"dailyLimitExceeded"}]}}`,
			check: func(t *testing.T, err error) {
				assert.True(t, IsRateLimit(err))
			},
		},
		{
			name:   "plain 403 is a permanent status error",
			status: http.StatusForbidden,
			body:   `{"error":"forbidden"}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusForbidden, se.StatusCode)
				assert.False(t, IsRateLimit(err))
				assert.False(t, IsTransient(err))
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c := NewClient("test", time.Second, nil)
			err := c.GetJSON(ctx, srv.URL, nil, &struct{}{})
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	t.Run("network failure is transient", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		addr := srv.URL
		srv.Close()

		c := NewClient("test", time.Second, nil)
		err := c.GetJSON(ctx, addr, nil, &struct{}{})
		assert.True(t, IsTransient(err))
	})

	t.Run("caller cancellation is not transient", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		c := NewClient("test", time.Second, nil)
		err := c.GetJSON(cctx, srv.URL, nil, &struct{}{})
		require.Error(t, err)
		assert.False(t, IsTransient(err))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, 5*time.Second, retryAfter("5"))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	assert.Greater(t, retryAfter(future), 30*time.Second)
}
