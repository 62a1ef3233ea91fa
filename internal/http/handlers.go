package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-tracking/internal/auth"
	"github.com/example/ride-tracking/internal/geo"
	"github.com/example/ride-tracking/internal/models"
	"github.com/example/ride-tracking/internal/ride"
	"github.com/example/ride-tracking/internal/track"
)

// Server is the HTTP API surface. All collaborators are injected; the only
// thing built here is the router.
type Server struct {
	Lifecycle *ride.Lifecycle
	Tracking  *track.Service
	Cache     *track.Cache
	Geo       geo.Geo
	WS        http.Handler
	Tokens    auth.TokenValidator

	logger   *slog.Logger
	validate *validator.Validate
	mux      *mux.Router
}

func NewServer(lc *ride.Lifecycle, ts *track.Service, cache *track.Cache, g geo.Geo, ws http.Handler, tokens auth.TokenValidator, logger *slog.Logger) *Server {
	s := &Server{
		Lifecycle: lc,
		Tracking:  ts,
		Cache:     cache,
		Geo:       g,
		WS:        ws,
		Tokens:    tokens,
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.mux.Handle("/ws", s.WS)

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware(s.Tokens))
	api.HandleFunc("/rides", s.handleOrderRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/estimate", s.handleEstimate).Methods(http.MethodPost)
	api.HandleFunc("/rides/active", s.handleActiveRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{ride_id}", s.handleGetRide).Methods(http.MethodGet)
	api.HandleFunc("/rides/{ride_id}/start", s.transitionHandler(ride.EventDriverConfirm)).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}/stop-request", s.transitionHandler(ride.EventStopRequest)).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}/stop-confirm", s.transitionHandler(ride.EventStopConfirm)).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}/complete", s.transitionHandler(ride.EventComplete)).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{ride_id}/location", s.handleReportLocation).Methods(http.MethodPut)
	api.HandleFunc("/rides/{ride_id}/tracking", s.handleGetTracking).Methods(http.MethodGet)

	internal := s.mux.PathPrefix("/internal").Subrouter()
	internal.Use(auth.Middleware(s.Tokens))
	internal.HandleFunc("/tracking/snapshot", s.handleTrackingSnapshot).Methods(http.MethodGet)
	internal.HandleFunc("/vehicles/online", s.handleVehiclesOnline).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleOrderRide(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	var req orderRideRequest
	if !s.decode(w, r, &req) {
		return
	}
	created, err := s.Lifecycle.Order(r.Context(), id, req.model())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !s.decode(w, r, &req) {
		return
	}
	km, min, err := s.Lifecycle.Estimator.EstimateRoute(r.Context(), req.coords())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"distance_km":            km,
		"estimated_duration_min": min,
	})
}

func (s *Server) handleActiveRide(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	active, err := s.Lifecycle.ActiveFor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	rd, err := s.Lifecycle.Get(r.Context(), mux.Vars(r)["ride_id"], id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rd)
}

// transitionHandler builds a handler that applies one lifecycle event to the
// path ride. Authorization is the lifecycle's job, not the router's.
func (s *Server) transitionHandler(ev ride.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			s.writeError(w, r, ride.ErrForbidden)
			return
		}
		rd, err := s.Lifecycle.Apply(r.Context(), mux.Vars(r)["ride_id"], ev, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, rd)
	}
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	rd, err := s.Lifecycle.Cancel(r.Context(), mux.Vars(r)["ride_id"], req.Reason, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rd)
}

func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	var req locationReportRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Tracking.ReportLocation(r.Context(), mux.Vars(r)["ride_id"], id, req.model()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	entry, err := s.Tracking.GetTracking(r.Context(), mux.Vars(r)["ride_id"], id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleTrackingSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.Role != models.RoleAdmin {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	entries := make([]track.Entry, 0, s.Cache.Len())
	for e := range s.Cache.Snapshot() {
		entries = append(entries, e)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tracked_rides": len(entries), "entries": entries})
}

func (s *Server) handleVehiclesOnline(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.Role != models.RoleAdmin {
		s.writeError(w, r, ride.ErrForbidden)
		return
	}
	lat, lon, err := coordQuery(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, s.Geo.Nearby(lat, lon, 50))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *ride.InvalidTransitionError
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, ride.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, ride.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.As(err, &invalid), errors.Is(err, ride.ErrInvalidState), errors.Is(err, ride.ErrActiveRideConflict):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, ride.ErrInvalidSchedule), errors.Is(err, track.ErrInvalidCoordinates):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, ride.ErrNoDriversAvailable):
		status, msg = http.StatusServiceUnavailable, err.Error()
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func coordQuery(r *http.Request) (lat, lon float64, err error) {
	q := r.URL.Query()
	if lat, err = strconv.ParseFloat(q.Get("lat"), 64); err != nil {
		return 0, 0, errors.New("invalid lat")
	}
	if lon, err = strconv.ParseFloat(q.Get("lon"), 64); err != nil {
		return 0, 0, errors.New("invalid lon")
	}
	return lat, lon, nil
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
