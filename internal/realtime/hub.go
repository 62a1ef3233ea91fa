package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/observability"
	"github.com/example/ride-tracking/internal/track"
)

// frame is the envelope for every message on the realtime transport.
type frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Hub maintains the per-ride fan-out lists. Publishing never blocks: a
// subscriber whose queue is full is disconnected rather than stalling the
// writer path.
type Hub struct {
	mu        sync.RWMutex
	rides     map[string]map[*Subscriber]struct{}
	queueSize int
	log       *slog.Logger
}

func NewHub(queueSize int, log *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		rides:     make(map[string]map[*Subscriber]struct{}),
		queueSize: queueSize,
		log:       log,
	}
}

// Subscribe admits sub to the ride's stream. Authorization has already
// happened at the gate; the hub only does bookkeeping.
func (h *Hub) Subscribe(sub *Subscriber, rideID string) {
	h.mu.Lock()
	set, ok := h.rides[rideID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.rides[rideID] = set
	}
	set[sub] = struct{}{}
	sub.channels[rideID] = struct{}{}
	h.mu.Unlock()
	observability.TrackingSubscribers.Inc()
}

// Unsubscribe removes sub from one ride's stream; idempotent.
func (h *Hub) Unsubscribe(sub *Subscriber, rideID string) {
	h.mu.Lock()
	removed := h.detach(sub, rideID)
	h.mu.Unlock()
	if removed {
		observability.TrackingSubscribers.Dec()
	}
}

// detach must run with h.mu held.
func (h *Hub) detach(sub *Subscriber, rideID string) bool {
	set, ok := h.rides[rideID]
	if !ok {
		return false
	}
	if _, ok := set[sub]; !ok {
		return false
	}
	delete(set, sub)
	delete(sub.channels, rideID)
	if len(set) == 0 {
		delete(h.rides, rideID)
	}
	return true
}

// removeAll drops sub from every ride it is subscribed to, typically on
// disconnect. Idempotent.
func (h *Hub) removeAll(sub *Subscriber) {
	h.mu.Lock()
	n := 0
	for rideID := range sub.channels {
		if h.detach(sub, rideID) {
			n++
		}
	}
	h.mu.Unlock()
	observability.TrackingSubscribers.Sub(float64(n))
}

// Publish delivers e to every admitted subscriber of the ride, at most once
// each. Slow subscribers are disconnected instead of blocking the caller.
func (h *Hub) Publish(rideID string, e track.Entry) {
	payload, err := json.Marshal(frame{
		Type:    "location_update",
		Channel: RideChannel(rideID),
		Data:    e,
	})
	if err != nil {
		h.log.Error("marshal location update", "ride_id", rideID, "error", err)
		return
	}

	var overflowed []*Subscriber
	h.mu.RLock()
	for sub := range h.rides[rideID] {
		select {
		case sub.send <- payload:
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		observability.PublishDropsTotal.Inc()
		h.log.Warn("subscriber queue full, disconnecting",
			"ride_id", rideID, "subscriber", sub.identity.Email)
		sub.close()
		h.removeAll(sub)
	}
}

// CloseRide tells every subscriber the stream ended and removes the ride's
// fan-out list. Connections stay open; only the ride channel closes.
func (h *Hub) CloseRide(rideID string) {
	payload, _ := json.Marshal(frame{
		Type:    "channel_closed",
		Channel: RideChannel(rideID),
	})

	h.mu.Lock()
	set := h.rides[rideID]
	delete(h.rides, rideID)
	n := 0
	for sub := range set {
		delete(sub.channels, rideID)
		n++
		select {
		case sub.send <- payload:
		default:
		}
	}
	h.mu.Unlock()
	observability.TrackingSubscribers.Sub(float64(n))
}

// SubscriberCount reports the ride's current fan-out size.
func (h *Hub) SubscriberCount(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rides[rideID])
}

// NewSubscriber creates an unadmitted subscriber owned by the transport
// layer; tests use it directly.
func (h *Hub) NewSubscriber(id models.Identity) *Subscriber {
	return &Subscriber{
		identity: id,
		send:     make(chan []byte, h.queueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
		hub:      h,
	}
}
