package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-tracking/internal/models"
)

// RedisGeo implements Geo on Redis GEO commands so several server instances
// share one vehicle index (the Kafka consumer writes the same keys).
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	return &RedisGeo{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		key:    key,
	}
}

func (r *RedisGeo) Upsert(v models.Vehicle) {
	ctx := context.Background()
	_, _ = r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: v.Loc.Lon, Latitude: v.Loc.Lat, Name: v.DriverID,
	}).Result()
	_ = r.client.HSet(ctx, metaKey(v.DriverID), map[string]any{
		"email":         v.DriverEmail,
		"license_plate": v.LicensePlate,
		"vehicle_type":  v.VehicleType,
		"online":        strconv.FormatBool(v.Online),
		"updated":       v.Updated.Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) Nearby(lat, lon float64, limit int) []models.Vehicle {
	ctx := context.Background()
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: 5000, Unit: "m", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]models.Vehicle, 0, len(res))
	for _, g := range res {
		v := models.Vehicle{DriverID: g.Name, Loc: models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			v.DriverEmail = m["email"]
			v.LicensePlate = m["license_plate"]
			v.VehicleType = m["vehicle_type"]
			v.Online = m["online"] == "true"
			if t, err := time.Parse(time.RFC3339, m["updated"]); err == nil {
				v.Updated = t
			}
		}
		if !v.Online {
			continue
		}
		out = append(out, v)
	}
	return out
}

func metaKey(driverID string) string { return "vehicle:meta:" + driverID }
