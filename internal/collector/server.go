package collector

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/faultline/internal/core/domain"
	"github.com/vietddude/faultline/internal/infra/storage"
	"github.com/vietddude/faultline/internal/metrics"
	"github.com/vietddude/faultline/internal/telemetry"
)

// DefaultMaxBodyBytes caps an ingest request body.
const DefaultMaxBodyBytes = 1 << 20

// Config holds collector listen and ingest settings.
type Config struct {
	Port         int
	GRPCPort     int // 0 = disabled
	Token        string
	MaxBodyBytes int64
}

// Stores are the collector's persistence backends.
type Stores struct {
	Logs   storage.LogRepository
	Events storage.EventRepository
	Issues storage.IssueRepository
}

// Background is a long-running job stopped by ctx.
type Background func(ctx context.Context) error

// Server accepts log batches and events and serves health endpoints.
type Server struct {
	cfg     Config
	stores  Stores
	monitor *Monitor
	handler http.Handler
}

// NewServer creates a new collector server.
func NewServer(cfg Config, stores Stores, monitor *Monitor) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if monitor == nil {
		monitor = NewMonitor()
	}

	s := &Server{cfg: cfg, stores: stores, monitor: monitor}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/logs", s.authorized(s.handleLogs))
	mux.HandleFunc("POST /api/events", s.authorized(s.handleEvents))
	mux.HandleFunc("GET /api/issues", s.authorized(s.handleIssues))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.handler = mux

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP (and gRPC health when configured) plus any background jobs
// until ctx is cancelled or one of them fails.
func (s *Server) Run(ctx context.Context, jobs ...Background) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.Info("Collector listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if s.cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer := grpc.NewServer()
		hs := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

		g.Go(func() error {
			slog.Info("Collector gRPC health listening", "addr", lis.Addr().String())
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			hs.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	for _, job := range jobs {
		g.Go(func() error { return job(ctx) })
	}

	return g.Wait()
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	var records []domain.LogRecord
	if err := s.decode(w, r, &records); err != nil {
		metrics.CollectorRejectedTotal.WithLabelValues("logs", "decode").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 0})
		return
	}

	for i := range records {
		if records[i].Message == "" || records[i].Level == "" {
			metrics.CollectorRejectedTotal.WithLabelValues("logs", "invalid").Inc()
			writeError(w, http.StatusBadRequest, fmt.Sprintf("record %d: level and message are required", i))
			return
		}
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = time.Now().UTC()
		}
	}

	if err := s.stores.Logs.SaveBatch(r.Context(), records); err != nil {
		slog.Error("Failed to save log batch", "count", len(records), "error", err)
		metrics.CollectorRejectedTotal.WithLabelValues("logs", "storage").Inc()
		writeError(w, http.StatusInternalServerError, "failed to store logs")
		return
	}

	metrics.CollectorIngestedTotal.WithLabelValues("logs").Add(float64(len(records)))
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(records)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var ev telemetry.Event
	if err := s.decode(w, r, &ev); err != nil {
		metrics.CollectorRejectedTotal.WithLabelValues("events", "decode").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ev.Kind != telemetry.KindException && ev.Kind != telemetry.KindMessage {
		metrics.CollectorRejectedTotal.WithLabelValues("events", "invalid").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event kind %q", ev.Kind))
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	key := storage.IssueKey(&ev)
	if err := s.stores.Events.Save(r.Context(), &ev, key); err != nil {
		slog.Error("Failed to save event", "id", ev.ID, "error", err)
		metrics.CollectorRejectedTotal.WithLabelValues("events", "storage").Inc()
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	resp := map[string]any{"id": ev.ID}
	if ev.Kind == telemetry.KindException {
		issue, err := s.stores.Issues.Record(r.Context(), key, &ev)
		if err != nil {
			// The event is stored; grouping catches up on the next occurrence.
			slog.Warn("Failed to group event", "id", ev.ID, "issue", key, "error", err)
		} else {
			resp["issue"] = issue.Key
			resp["count"] = issue.Count
		}
	}

	metrics.CollectorIngestedTotal.WithLabelValues(ev.Kind).Inc()
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	issues, err := s.stores.Issues.Top(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list issues")
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
