package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler handles GET /health: liveness probe.
// Returns 200 immediately; confirms the process is alive.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Dependencies are the backing stores the readiness probe pings. Nil entries
// are not configured and are skipped.
type Dependencies struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Database
}

// HealthDependenciesHandler handles GET /health/ready: readiness probe.
// Checks every configured store before declaring the service ready.
type HealthDependenciesHandler struct {
	deps    Dependencies
	timeout time.Duration
}

func NewHealthDependenciesHandler(deps Dependencies) *HealthDependenciesHandler {
	return &HealthDependenciesHandler{deps: deps, timeout: 3 * time.Second}
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

type check struct {
	name string
	ping func(context.Context) error
}

func (h *HealthDependenciesHandler) checks() []check {
	var out []check
	if h.deps.Postgres != nil {
		out = append(out, check{"postgres", h.deps.Postgres.PingContext})
	}
	if h.deps.Redis != nil {
		out = append(out, check{"redis", func(ctx context.Context) error {
			return h.deps.Redis.Ping(ctx).Err()
		}})
	}
	if h.deps.Mongo != nil {
		out = append(out, check{"mongodb", func(ctx context.Context) error {
			return h.deps.Mongo.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
		}})
	}
	return out
}

func (h *HealthDependenciesHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	deps := make(map[string]dependencyStatus)
	healthy := true

	for _, chk := range h.checks() {
		if err := chk.ping(ctx); err != nil {
			deps[chk.name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
			continue
		}
		deps[chk.name] = dependencyStatus{Status: "ok"}
	}

	status := "ok"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, readinessResponse{
		Status:       status,
		Dependencies: deps,
	})
}
