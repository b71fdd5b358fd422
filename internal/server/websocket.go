package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/events"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin admits clients without an Origin header, same-host pages and
// the configured origins. Anything else could push events from a foreign
// page in the user's browser.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.ContainsFunc(s.origins, func(o string) bool {
		return o == "*" || strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
	})
}

// StreamMessage is one websocket frame. Hosts send events; the server
// answers each with an ack or an error.
type StreamMessage struct {
	Type     string      `json:"type"`
	Kind     events.Kind `json:"kind,omitempty"`
	Handlers int         `json:"handlers,omitempty"`
	Bridged  bool        `json:"bridged,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// handleEventStream keeps a websocket open for a host that pushes its
// lifecycle events as they happen.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "origin", r.Header.Get("Origin"), "err", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("event stream opened", "remote", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("event stream closed", "err", err)
			}
			return
		}

		reply := StreamMessage{Type: "ack"}
		e, err := events.Decode(msg)
		if err == nil {
			var resp publishResponse
			resp, err = s.publish(ctx, e)
			reply.Kind, reply.Handlers, reply.Bridged = resp.Kind, resp.Handlers, resp.Bridged
		}
		if err != nil {
			reply = StreamMessage{Type: "error", Error: errors.UserMessage(err)}
		}

		data, _ := json.Marshal(reply)
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
