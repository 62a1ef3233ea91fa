package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/ride-tracking/internal/ride"
)

// PushNotifier posts ride events to a push gateway as JSON. Delivery is
// best-effort; a failed post is logged and never surfaces to the caller.
type PushNotifier struct {
	Endpoint string
	Key      string
	Client   *http.Client
	Log      *slog.Logger
}

func NewPushNotifier(endpoint, key string, log *slog.Logger) *PushNotifier {
	return &PushNotifier{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}, Log: log}
}

func (n *PushNotifier) RideOrdered(ctx context.Context, r *ride.Ride) {
	recipients := append([]string{}, r.PassengerEmails...)
	if r.DriverEmail != "" {
		recipients = append(recipients, r.DriverEmail)
	}
	n.post(ctx, map[string]interface{}{
		"event":      "ride_ordered",
		"ride_id":    r.ID,
		"status":     r.Status,
		"recipients": recipients,
	})
}

func (n *PushNotifier) RideRejected(ctx context.Context, email, reason string) {
	n.post(ctx, map[string]interface{}{
		"event":      "ride_rejected",
		"reason":     reason,
		"recipients": []string{email},
	})
}

func (n *PushNotifier) RideCancelled(ctx context.Context, r *ride.Ride, cancelledBy, reason string) {
	recipients := append([]string{}, r.PassengerEmails...)
	if r.DriverEmail != "" {
		recipients = append(recipients, r.DriverEmail)
	}
	n.post(ctx, map[string]interface{}{
		"event":        "ride_cancelled",
		"ride_id":      r.ID,
		"cancelled_by": cancelledBy,
		"reason":       reason,
		"recipients":   recipients,
	})
}

func (n *PushNotifier) post(ctx context.Context, payload map[string]interface{}) {
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.Key != "" {
		req.Header.Set("Authorization", "Bearer "+n.Key)
	}
	resp, err := n.Client.Do(req)
	if err != nil {
		if n.Log != nil {
			n.Log.Warn("push delivery failed", "event", payload["event"], "error", err)
		}
		return
	}
	resp.Body.Close()
}

var _ ride.Notifier = (*PushNotifier)(nil)
