package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/ride-tracking/internal/auth"
	"github.com/example/ride-tracking/internal/config"
	"github.com/example/ride-tracking/internal/eta"
	"github.com/example/ride-tracking/internal/geo"
	httpapi "github.com/example/ride-tracking/internal/http"
	"github.com/example/ride-tracking/internal/ingest"
	"github.com/example/ride-tracking/internal/logging"
	"github.com/example/ride-tracking/internal/notify"
	"github.com/example/ride-tracking/internal/payments"
	"github.com/example/ride-tracking/internal/realtime"
	"github.com/example/ride-tracking/internal/ride"
	"github.com/example/ride-tracking/internal/storage"
	"github.com/example/ride-tracking/internal/track"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	if cfg.RunMigrations && cfg.PGDSN != "" {
		if err := runMigrations(cfg.PGDSN); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	var store ride.Store
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		store = storage.NewMemoryStore()
		log.Warn("PG_DSN not set, using in-memory ride store")
	}

	var vehicles geo.Geo
	if cfg.RedisAddr != "" {
		vehicles = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		vehicles = geo.NewIndex()
	}

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	estimator := &eta.Estimator{
		DefaultSpeedMps: cfg.DefaultSpeedMps,
		PlannerTimeout:  cfg.PlannerTimeout,
	}
	if cfg.PlannerEndpoint != "" {
		estimator.Planner = eta.NewOSRMClient(cfg.PlannerEndpoint)
		estimator.Cache = eta.NewCache(cfg.ETACacheTTL)
	}

	locks := ride.NewKeyedMutex()
	cache := track.NewCache()
	hub := realtime.NewHub(cfg.SubscriberQueueSize, log)

	tracking := &track.Service{
		Store:     store,
		Locks:     locks,
		Cache:     cache,
		Estimator: estimator,
		Hub:       hub,
		Vehicles:  vehicles,
		Log:       log,
	}
	if producer != nil {
		tracking.Producer = producer
	}

	lifecycle := &ride.Lifecycle{
		Store:          store,
		Locks:          locks,
		Hooks:          tracking,
		FareCurrency:   cfg.FareCurrency,
		FareBaseCents:  cfg.FareBaseCents,
		FarePerKmCents: cfg.FarePerKmCents,
		Matcher:        &nearestMatcher{vehicles: vehicles},
		Estimator:      estimator,
		ScheduleWindow: cfg.ScheduleWindow,
		Log:            log,
	}
	if cfg.StripeAPIKey != "" {
		lifecycle.Fares = payments.NewStripeClient(cfg.StripeAPIKey)
	}
	if cfg.NotifyEndpoint != "" {
		lifecycle.Notify = notify.NewPushNotifier(cfg.NotifyEndpoint, cfg.NotifyAPIKey, log)
	}

	tokens := auth.NewJWTValidator(cfg.JWTSecret)
	ws := &realtime.Handler{
		Hub:    hub,
		Gate:   &realtime.Gate{Tracking: tracking},
		Tokens: tokens,
		Log:    log,
	}

	api := httpapi.NewServer(lifecycle, tracking, cache, vehicles, ws, tokens, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("ride-tracking listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}

// nearestMatcher assigns the closest online vehicle to the pickup. It stands
// in for the external matching service behind the DriverMatcher seam.
type nearestMatcher struct {
	vehicles geo.Geo
}

func (m *nearestMatcher) Match(ctx context.Context, req ride.OrderRequest) (*ride.DriverAssignment, error) {
	candidates := m.vehicles.Nearby(req.Pickup.Lat, req.Pickup.Lon, 8)
	for _, v := range candidates {
		if req.VehicleType != "" && v.VehicleType != "" && v.VehicleType != req.VehicleType {
			continue
		}
		return &ride.DriverAssignment{
			DriverID:     v.DriverID,
			DriverEmail:  v.DriverEmail,
			LicensePlate: v.LicensePlate,
		}, nil
	}
	return nil, nil
}

var _ ride.DriverMatcher = (*nearestMatcher)(nil)

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
