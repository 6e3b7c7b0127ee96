package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
)

const pingTimeout = 1 * time.Second

// Pinger is a dependency whose reachability is reported by /readyz
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

type ReadinessResponse struct {
	HealthResponse
	DB       string                 `json:"db"`
	Cache    string                 `json:"cache"`
	Breakers []reliability.Snapshot `json:"breakers,omitempty"`
}

type HealthHandler struct {
	serviceName string
	version     string
	db          Pinger
	cache       Pinger
	breakers    *reliability.Registry
}

// NewHealthHandler creates the health handler. db, cache and breakers may be
// nil; missing dependencies are reported as "disabled".
func NewHealthHandler(serviceName, version string, db, cache Pinger, breakers *reliability.Registry) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		db:          db,
		cache:       cache,
		breakers:    breakers,
	}
}

// HealthCheck is the liveness probe
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.base("healthy"))
}

// ReadyCheck pings the database and the cache store. The service stays ready
// with the cache down (it falls back to the in-process LRU) but reports
// "degraded"; an unreachable database makes it not ready.
func (h *HealthHandler) ReadyCheck(c *gin.Context) {
	dbStatus := ping(c.Request.Context(), h.db)
	cacheStatus := ping(c.Request.Context(), h.cache)

	status, code := "ready", http.StatusOK
	if cacheStatus == "down" {
		status = "degraded"
	}
	if h.breakers != nil && h.breakers.AnyOpen() {
		status = "degraded"
	}
	if dbStatus == "down" {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	resp := ReadinessResponse{
		HealthResponse: h.base(status),
		DB:             dbStatus,
		Cache:          cacheStatus,
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Snapshot()
	}
	c.JSON(code, resp)
}

func (h *HealthHandler) base(status string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
	}
}

func ping(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(pingCtx); err != nil {
		return "down"
	}
	return "up"
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
	r.GET("/readyz", h.ReadyCheck)
}
