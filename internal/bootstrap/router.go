package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stylesync/stylesync-backend/config"
	httpapi "github.com/stylesync/stylesync-backend/internal/api/http"
	"github.com/stylesync/stylesync-backend/internal/api/http/middleware"
	advicehttp "github.com/stylesync/stylesync-backend/internal/color_advice/http"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	Config      *config.Config
	Pipeline    *Pipeline
	// DB and Cache are pinged by /readyz; nil means not configured.
	DB    httpapi.Pinger
	Cache httpapi.Pinger
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(corsConfig(dep.Config.Security.AllowedOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Cache, dep.Pipeline.Breakers)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.RequestIDMiddleware())
	api.Use(middleware.APIKeyMiddleware(dep.Config.Security.APIKeys))
	api.Use(middleware.NewRateLimiter(dep.Config.Security.RateLimitRPS, dep.Config.Security.RateLimitBurst).Middleware())

	adviceHandler := advicehttp.New(dep.Pipeline.Orchestrator, dep.Config.Pipeline.MaxUploadBytes)
	adviceHandler.Register(api)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-API-Key", "X-Request-Id", "X-Idempotency-Key"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
