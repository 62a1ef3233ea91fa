package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_tracking", Name: "transitions_total", Help: "Ride lifecycle transitions applied"},
		[]string{"from", "event", "to"},
	)
	RidesOrderedTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "rides_ordered_total", Help: "Total rides ordered"})
	LocationReportsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "location_reports_total", Help: "Total accepted driver location reports"})
	TrackedRides         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_tracking", Name: "tracked_rides", Help: "Rides currently present in the tracking cache"})
	TrackingSubscribers  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_tracking", Name: "tracking_subscribers", Help: "Active tracking channel subscriptions"})
	PublishDropsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_tracking", Name: "publish_drops_total", Help: "Subscribers disconnected for falling behind"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
