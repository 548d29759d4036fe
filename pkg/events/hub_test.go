package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHubServer serves a minimal subscribe endpoint that doesn't depend on
// echo so the hub can be tested in isolation.
func newTestHubServer(t *testing.T, hub *Hub, topic string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Subscribe(topic, ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unsubscribe(topic, ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Stats().Subscribers == n
	}, time.Second, 5*time.Millisecond)
}

func TestHub_BookChangedReachesBookSubscribers(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestHubServer(t, hub, TopicBooks)
	ws := dial(t, srv)
	waitForSubscribers(t, hub, 1)

	hub.BookChanged(context.Background(), BookChanged{BookID: "b1", Slug: "dune-frank-herbert", Title: "Dune", IsNew: true})

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type string      `json:"type"`
		Data BookChanged `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, TypeBookChanged, env.Type)
	assert.Equal(t, "b1", env.Data.BookID)
	assert.True(t, env.Data.IsNew)
}

func TestHub_SearchEventsAreScopedByQueryHash(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	hash := QueryHash("Dune")
	srv := newTestHubServer(t, hub, SearchTopic(hash))
	ws := dial(t, srv)
	waitForSubscribers(t, hub, 1)

	ctx := context.Background()
	// A different query must not reach this subscriber.
	hub.SearchProgress(ctx, SearchProgress{QueryHash: QueryHash("Emma"), Status: ProgressStarting})
	hub.SearchProgress(ctx, SearchProgress{QueryHash: hash, Status: ProgressComplete})

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), ProgressComplete)
	assert.NotContains(t, string(msg), ProgressStarting)
}

func TestHub_UnsubscribeRemovesEmptyTopics(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestHubServer(t, hub, TopicBooks)
	ws := dial(t, srv)
	waitForSubscribers(t, hub, 1)

	ws.Close()
	waitForSubscribers(t, hub, 0)
	assert.Equal(t, 0, hub.Stats().Topics)
}

func TestHub_StalledSubscriberDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestHubServer(t, hub, TopicBooks)
	// This client never reads, so the server side write eventually blocks.
	dial(t, srv)
	waitForSubscribers(t, hub, 1)

	title := strings.Repeat("x", 512*1024)
	start := time.Now()
	for i := 0; i < 128; i++ {
		hub.BookChanged(context.Background(), BookChanged{BookID: "b1", Title: title})
	}
	assert.Less(t, time.Since(start), writeTimeout)

	waitForSubscribers(t, hub, 0)
}

func TestQueryHash_NormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	assert.Equal(t, QueryHash("the  Hobbit"), QueryHash(" The Hobbit "))
	assert.NotEqual(t, QueryHash("The Hobbit"), QueryHash("The Hobbits"))
	assert.Len(t, QueryHash("x"), 16)
}
