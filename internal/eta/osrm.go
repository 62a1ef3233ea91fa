package eta

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-tracking/internal/models"
)

// OSRMClient implements RoutePlanner against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
}

// Route queries /route/v1/driving with the full waypoint list and returns
// distance, duration and the route geometry.
func (o *OSRMClient) Route(ctx context.Context, points []models.Coord) (Route, error) {
	if len(points) < 2 {
		return Route{}, fmt.Errorf("osrm: need at least 2 points, got %d", len(points))
	}
	var coords strings.Builder
	for i, p := range points {
		if i > 0 {
			coords.WriteByte(';')
		}
		fmt.Fprintf(&coords, "%.6f,%.6f", p.Lon, p.Lat)
	}
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", o.Endpoint, coords.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Routes []struct {
			Distance float64 `json:"distance"` // meters
			Duration float64 `json:"duration"` // seconds
			Geometry struct {
				Coordinates [][2]float64 `json:"coordinates"` // lon,lat
			} `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, err
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm no route: %v", out.Code)
	}

	best := out.Routes[0]
	polyline := make([]models.Coord, 0, len(best.Geometry.Coordinates))
	for _, c := range best.Geometry.Coordinates {
		polyline = append(polyline, models.Coord{Lat: c[1], Lon: c[0]})
	}
	return Route{
		DistanceKm:      best.Distance / 1000,
		DurationMinutes: int(math.Ceil(best.Duration / 60)),
		Polyline:        polyline,
	}, nil
}
