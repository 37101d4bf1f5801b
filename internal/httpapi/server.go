package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/analytics"
	"github.com/hamed0406/pulsewatch/internal/domain"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const (
	defaultStatsRange   = 24 * time.Hour
	defaultStatsBuckets = 24
	maxStatsBuckets     = 1000
	defaultOutageRange  = 30 * 24 * time.Hour
)

// FleetSource returns the current fleet snapshot.
type FleetSource interface {
	Current() *domain.Fleet
}

type Server struct {
	Logger  *zap.Logger
	Fleet   FleetSource
	Hits    repo.HitStore
	States  repo.StateStore // optional
	Metrics http.Handler
	Now     func() time.Time
}

func NewServer(l *zap.Logger, fleet FleetSource, hits repo.HitStore, states repo.StateStore) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Fleet: fleet, Hits: hits, States: states, Metrics: promhttp.Handler(), Now: time.Now}
}

// Router wires the read API. Public routes accept public or admin keys;
// destructive routes need an admin key. Empty key sets leave routes open.
func (s *Server) Router(keys apimw.Keys, corsOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	if len(corsOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/api/services", s.handleListServices)
		r.Get("/api/services/{id}/hits", s.handleHits)
		r.Get("/api/services/{id}/stats", s.handleStats)
		r.Get("/api/services/{id}/outages", s.handleOutages)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Delete("/api/services/{id}/hits", s.handleDeleteHits)
	})

	return r
}

type serviceView struct {
	ID         domain.ServiceID          `json:"id"`
	Name       string                    `json:"name"`
	Type       domain.ServiceType        `json:"type"`
	IntervalMs int64                     `json:"intervalMs"`
	TimeoutMs  int64                     `json:"timeoutMs"`
	Retention  int64                     `json:"retention"`
	State      *domain.NotificationState `json:"state,omitempty"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	fleet := s.Fleet.Current()
	out := make([]serviceView, 0, len(fleet.Services))
	for _, svc := range fleet.Services {
		v := serviceView{
			ID:         svc.ID,
			Name:       svc.Name,
			Type:       probe.EffectiveType(svc, fleet.Defaults),
			IntervalMs: svc.EffectiveInterval(fleet.Defaults),
			TimeoutMs:  svc.EffectiveTimeout(fleet.Defaults),
			Retention:  svc.EffectiveRetention(fleet.Defaults),
		}
		if s.States != nil {
			st, err := s.States.GetState(r.Context(), svc.ID)
			if err != nil {
				s.Logger.Warn("api_state_lookup_failed", zap.String("service_id", string(svc.ID)), zap.Error(err))
			} else {
				v.State = &st
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// service resolves {id} against the current fleet and writes 404 if absent.
func (s *Server) service(w http.ResponseWriter, r *http.Request) (*domain.Fleet, domain.Service, bool) {
	fleet := s.Fleet.Current()
	svc, ok := fleet.Service(domain.ServiceID(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service")
	}
	return fleet, svc, ok
}

func (s *Server) handleHits(w http.ResponseWriter, r *http.Request) {
	_, svc, ok := s.service(w, r)
	if !ok {
		return
	}
	now := s.Now().UnixMilli()
	end, err := queryInt(r, "end", now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad end")
		return
	}
	start, err := queryInt(r, "start", end-defaultStatsRange.Milliseconds())
	if err != nil || start > end {
		writeError(w, http.StatusBadRequest, "bad start")
		return
	}
	hits, err := s.Hits.FetchHits(r.Context(), svc.ID, start, end)
	if err != nil {
		s.Logger.Error("api_fetch_hits_failed", zap.String("service_id", string(svc.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fetch error")
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	_, svc, ok := s.service(w, r)
	if !ok {
		return
	}
	rng, err := queryDuration(r, "range", defaultStatsRange)
	if err != nil || rng <= 0 {
		writeError(w, http.StatusBadRequest, "bad range")
		return
	}
	buckets, err := queryInt(r, "buckets", defaultStatsBuckets)
	if err != nil || buckets < 1 || buckets > maxStatsBuckets {
		writeError(w, http.StatusBadRequest, "bad buckets")
		return
	}
	end := s.Now().UnixMilli()
	hits, err := s.Hits.FetchHits(r.Context(), svc.ID, end-rng.Milliseconds(), end)
	if err != nil {
		s.Logger.Error("api_fetch_hits_failed", zap.String("service_id", string(svc.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fetch error")
		return
	}
	writeJSON(w, http.StatusOK, analytics.Bucketize(hits, int(buckets), rng.Milliseconds(), end))
}

func (s *Server) handleOutages(w http.ResponseWriter, r *http.Request) {
	fleet, svc, ok := s.service(w, r)
	if !ok {
		return
	}
	rng, err := queryDuration(r, "range", defaultOutageRange)
	if err != nil || rng <= 0 {
		writeError(w, http.StatusBadRequest, "bad range")
		return
	}
	now := s.Now()
	hits, err := s.Hits.FetchHits(r.Context(), svc.ID, now.Add(-rng).UnixMilli(), now.UnixMilli())
	if err != nil {
		s.Logger.Error("api_fetch_hits_failed", zap.String("service_id", string(svc.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fetch error")
		return
	}
	outages := analytics.BuildOutages(hits, svc.ID, svc.Outages, fleet.Defaults.MinOutageMs, now)
	writeJSON(w, http.StatusOK, analytics.NewestFirst(outages))
}

func (s *Server) handleDeleteHits(w http.ResponseWriter, r *http.Request) {
	id := domain.ServiceID(chi.URLParam(r, "id"))
	n, err := s.Hits.DeleteServiceHits(r.Context(), id)
	if err != nil {
		s.Logger.Error("api_delete_hits_failed", zap.String("service_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete error")
		return
	}
	s.Logger.Info("deleted_service_hits", zap.String("service_id", string(id)), zap.Int("keys", n))
	writeJSON(w, http.StatusOK, map[string]any{"serviceId": id, "deletedKeys": n})
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func queryDuration(r *http.Request, key string, def time.Duration) (time.Duration, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
