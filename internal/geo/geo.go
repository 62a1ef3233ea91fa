package geo

import (
	"sync"
	"time"

	"github.com/example/ride-tracking/internal/eta"
	"github.com/example/ride-tracking/internal/models"
)

// Geo is the online-vehicle index: fed by accepted location reports, read by
// the operator endpoint and the default matcher adapter.
type Geo interface {
	Upsert(v models.Vehicle)
	Nearby(lat, lon float64, limit int) []models.Vehicle
}

// Index is the in-memory implementation, used when Redis is not configured.
type Index struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
}

func NewIndex() *Index {
	return &Index{vehicles: make(map[string]models.Vehicle)}
}

func (g *Index) Upsert(v models.Vehicle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v.Updated.IsZero() {
		v.Updated = time.Now()
	}
	g.vehicles[v.DriverID] = v
}

// Nearby returns up to limit online vehicles ordered by distance. Naive
// scan; fleet sizes here do not justify a geo-hash.
func (g *Index) Nearby(lat, lon float64, limit int) []models.Vehicle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		v    models.Vehicle
		dist float64
	}
	arr := make([]pair, 0, len(g.vehicles))
	for _, v := range g.vehicles {
		if !v.Online {
			continue
		}
		arr = append(arr, pair{v, eta.Haversine(lat, lon, v.Loc.Lat, v.Loc.Lon)})
	}
	n := limit
	if n > len(arr) {
		n = len(arr)
	}
	// partial selection sort for top-N
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].dist < arr[minIdx].dist {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	out := make([]models.Vehicle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].v)
	}
	return out
}
