package registry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haroldsh/fulcrum/infrastructure/ratelimit"
	"github.com/haroldsh/fulcrum/internal/metrics"
)

// StatusServer exposes the registry's liveness and server directory over
// HTTP for operators and load balancers, admission-paced by RateLimiter
// so a misbehaving poller cannot starve registration traffic on the bus.
type StatusServer struct {
	registry *Registry
	limiter  *ratelimit.RateLimiter
	metrics  *metrics.Metrics
}

// NewStatusServer builds a StatusServer with the default admission rate.
func NewStatusServer(reg *Registry) *StatusServer {
	return &StatusServer{registry: reg, limiter: ratelimit.New(ratelimit.DefaultConfig()), metrics: metrics.Global()}
}

// Handler returns the chi router mounting /healthz, /servers,
// /servers/{id}, and /metrics.
func (s *StatusServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(s.instrument)
	r.Use(s.throttle)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/servers", s.handleListServers)
	r.Get("/servers/{id}", s.handleGetServer)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *StatusServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.IncrementInFlight()
		defer s.metrics.DecrementInFlight()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest("registry", r.Method, r.URL.Path, http.StatusText(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *StatusServer) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter.LimitExceeded() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleListServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *StatusServer) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.registry.Get(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
