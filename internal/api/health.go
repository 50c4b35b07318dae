package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported by the health endpoints.
const ServiceName = "listing-service"

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status       string            `json:"status"`
	ServiceName  string            `json:"serviceName"`
	Timestamp    string            `json:"timestamp"`
	Dependencies map[string]string `json:"dependencies"`
}

// RegisterHealthCheck serves GET /api/v1/healthz. It always answers 200; the
// payload carries the state of each dependency and the overall status.
func RegisterHealthCheck(r chi.Router, logger logrus.FieldLogger, checks map[string]HealthCheck) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	r.Get("/api/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:       "healthy",
			ServiceName:  ServiceName,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Dependencies: make(map[string]string, len(checks)),
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
				resp.Dependencies[name] = "unhealthy"
				resp.Status = "degraded"
				continue
			}
			resp.Dependencies[name] = "healthy"
		}
		respondWithJSON(w, http.StatusOK, resp)
	})
}

// NewGRPCServer returns a server exposing the gRPC health protocol and reflection.
// The returned health server starts as SERVING; flip it with Shutdown when stopping.
func NewGRPCServer(logger logrus.FieldLogger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer()

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, hs)
	logger.Info("gRPC health check service registered")

	reflection.Register(s)
	logger.Info("gRPC reflection service registered")
	return s, hs
}
