package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-tracking/internal/auth"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/ride"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2048
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Subscriber is one realtime connection. A connection can hold several ride
// subscriptions, each individually gated.
type Subscriber struct {
	identity  models.Identity
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	// channels is guarded by hub.mu.
	channels map[string]struct{}
	hub      *Hub
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Handler upgrades HTTP to the realtime transport. The token comes from the
// Authorization header or a "token" query parameter (browser WebSocket
// clients cannot set headers).
type Handler struct {
	Hub    *Hub
	Gate   Authorizer
	Tokens auth.TokenValidator
	Log    *slog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := h.Tokens.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.Hub.NewSubscriber(identity)
	sub.conn = conn
	go h.writePump(sub)
	go h.readPump(sub)
}

type inboundFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// readPump handles subscribe/unsubscribe frames. A rejected subscription
// gets an explicit error frame; it is never admitted and later dropped.
func (h *Handler) readPump(sub *Subscriber) {
	defer func() {
		sub.close()
		h.Hub.removeAll(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Log.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg inboundFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(sub, frame{Type: "error", Error: "invalid frame"})
			continue
		}

		switch msg.Type {
		case "subscribe":
			h.subscribe(sub, msg.Channel)
		case "unsubscribe":
			if rideID, err := ParseChannel(msg.Channel); err == nil {
				h.Hub.Unsubscribe(sub, rideID)
				h.reply(sub, frame{Type: "unsubscribed", Channel: msg.Channel})
			}
		case "ping":
			h.reply(sub, frame{Type: "pong"})
		default:
			h.reply(sub, frame{Type: "error", Error: "unknown frame type"})
		}
	}
}

func (h *Handler) subscribe(sub *Subscriber, channel string) {
	rideID, err := ParseChannel(channel)
	if err != nil {
		h.reply(sub, frame{Type: "error", Channel: channel, Error: "malformed channel address"})
		return
	}

	if err := h.Gate.Authorize(context.Background(), rideID, sub.identity); err != nil {
		h.reply(sub, frame{Type: "error", Channel: channel, Error: gateError(err)})
		h.Log.Info("subscription refused",
			"channel", channel, "identity", sub.identity.Email, "reason", err)
		return
	}

	h.Hub.Subscribe(sub, rideID)
	h.reply(sub, frame{Type: "subscribed", Channel: channel})
}

func gateError(err error) string {
	switch {
	case errors.Is(err, ride.ErrForbidden):
		return "forbidden"
	case errors.Is(err, ride.ErrNotFound):
		return "not found"
	default:
		return "subscription refused"
	}
}

func (h *Handler) reply(sub *Subscriber, f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	select {
	case sub.send <- payload:
	default:
		sub.close()
	}
}

func (h *Handler) writePump(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sub.done:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
