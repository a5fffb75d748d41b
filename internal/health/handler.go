package health

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/tierlink/internal/ratelimit"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	Healthy        = "healthy"
	Unhealthy      = "unhealthy"
)

// Checker defines the interface for checking dependency health.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// RedisChecker adapts a redis client to the Checker interface.
type RedisChecker struct {
	client redis.UniversalClient
}

// NewRedisChecker creates a new Redis health checker.
func NewRedisChecker(client redis.UniversalClient) *RedisChecker {
	return &RedisChecker{client: client}
}

// Ping checks Redis connectivity.
func (r *RedisChecker) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Dependency is a named dependency reported by the health endpoint.
type Dependency struct {
	Name    string
	Checker Checker
}

// Handler handles health check operations.
type Handler struct {
	dependencies []Dependency
}

// NewHandler creates a new health handler reporting the given dependencies.
func NewHandler(dependencies ...Dependency) *Handler {
	return &Handler{dependencies: dependencies}
}

// Response is the response for health check endpoint.
type Response struct {
	Body struct {
		Status       string            `doc:"ok, or degraded when a dependency is unhealthy" json:"status"`
		Dependencies map[string]string `doc:"Status per dependency"                           json:"dependencies"`
	}
}

// Check performs a health check of the application and its dependencies.
func (h *Handler) Check(ctx context.Context, _ *struct{}) (*Response, error) {
	resp := &Response{}
	resp.Body.Status = StatusOK
	resp.Body.Dependencies = make(map[string]string, len(h.dependencies))

	for _, dep := range h.dependencies {
		if err := dep.Checker.Ping(ctx); err != nil {
			resp.Body.Dependencies[dep.Name] = Unhealthy
			resp.Body.Status = StatusDegraded

			continue
		}

		resp.Body.Dependencies[dep.Name] = Healthy
	}

	return resp, nil
}

// RegisterRoutes registers health check routes.
func RegisterRoutes(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"Health"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Check)
}
