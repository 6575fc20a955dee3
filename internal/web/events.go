package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"rosary-audio/internal/media"
	"rosary-audio/internal/session"
)

const (
	eventBuffer  = 32
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait / 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The presentation layer is served from the device itself or a local
	// webview.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamedEvents are forwarded from the coordinator bus to every client.
var streamedEvents = []string{
	session.EventState,
	media.EventChannelActivated,
	media.EventChannelReleased,
}

// Event is one message on the /events stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// HandleEvents handles GET /events. The first message is the current
// session state.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	out := make(chan Event, eventBuffer)
	send := func(ev Event) {
		select {
		case out <- ev:
		default:
			slog.Debug("dropping event for slow client", "type", ev.Type)
		}
	}

	subs := make(map[string]uint64, len(streamedEvents))
	for _, name := range streamedEvents {
		subs[name] = s.coord.Subscribe(name, func(payload any) {
			send(Event{Type: name, Data: payload})
		})
	}
	defer func() {
		for name, id := range subs {
			s.coord.Unsubscribe(name, id)
		}
	}()

	send(Event{Type: session.EventState, Data: s.ctl.State()})

	// The server's read deadline survives the hijack; pongs extend it.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reads only detect the close; clients send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
