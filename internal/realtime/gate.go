package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/track"
)

// RideChannel builds the canonical channel address for a ride's tracking
// stream.
func RideChannel(rideID string) string {
	return "rides/" + rideID + "/tracking"
}

// ParseChannel extracts the ride id from a "rides/{rideId}/tracking"
// address. Anything else is malformed.
func ParseChannel(channel string) (string, error) {
	parts := strings.Split(channel, "/")
	if len(parts) != 3 || parts[0] != "rides" || parts[2] != "tracking" || parts[1] == "" {
		return "", fmt.Errorf("malformed channel address %q", channel)
	}
	return parts[1], nil
}

// Authorizer decides whether an identity may receive a ride's stream.
type Authorizer interface {
	Authorize(ctx context.Context, rideID string, id models.Identity) error
}

// Gate authorizes subscriptions by running the same check a tracking query
// performs: a subscribe attempt fails exactly when GetTracking would.
type Gate struct {
	Tracking *track.Service
}

func (g *Gate) Authorize(ctx context.Context, rideID string, id models.Identity) error {
	_, err := g.Tracking.GetTracking(ctx, rideID, id)
	return err
}
