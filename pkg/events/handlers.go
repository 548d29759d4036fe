package events

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	echologger "github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is consumed cross-origin by the web layer, same as the CORS
	// middleware allows for plain requests.
	CheckOrigin: func(*http.Request) bool { return true },
}

type handler struct {
	hub *Hub
}

// subscribe upgrades the request and streams events for one topic. The topic
// is either "books" or derived from a search query (q) or query hash (hash).
func (h *handler) subscribe(c echo.Context) error {
	params := SubscribeQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	topic := TopicBooks
	switch {
	case params.Hash != "":
		topic = SearchTopic(params.Hash)
	case params.Query != "":
		topic = SearchTopic(QueryHash(params.Query))
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written an error response.
		return nil
	}

	log := echologger.FromEchoContext(c)
	log.Info("subscriber connected", logger.Data{"topic": topic})

	_ = ws.WriteJSON(envelope{Type: "welcome", Data: map[string]string{"topic": topic}})
	h.hub.Subscribe(topic, ws)

	// Incoming messages are ignored; reading detects disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unsubscribe(topic, ws)
	log.Info("subscriber disconnected", logger.Data{"topic": topic})
	return nil
}

func (h *handler) stats(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.hub.Stats()))
}
