package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func serve(t *testing.T, h *HealthHandler, method, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.HandleMethodNotAllowed = true
	h.RegisterRoutes(router)

	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler("test-service", "1.0.0", nil, nil, nil)

	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			rr := serve(t, h, http.MethodGet, path)
			require.Equal(t, http.StatusOK, rr.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "healthy", resp.Status)
			assert.Equal(t, "test-service", resp.Service)
			assert.Equal(t, "1.0.0", resp.Version)
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		rr := serve(t, h, http.MethodPost, "/health")
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name       string
		db, cache  Pinger
		wantCode   int
		wantStatus string
		wantDB     string
		wantCache  string
	}{
		{"all up", fakePinger{}, fakePinger{}, http.StatusOK, "ready", "up", "up"},
		{"nothing configured", nil, nil, http.StatusOK, "ready", "disabled", "disabled"},
		{"cache down", fakePinger{}, fakePinger{err: errors.New("refused")}, http.StatusOK, "degraded", "up", "down"},
		{"db down", fakePinger{err: errors.New("refused")}, fakePinger{}, http.StatusServiceUnavailable, "not_ready", "down", "up"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler("svc", "v", tt.db, tt.cache, reliability.NewRegistry(nil, nil))
			rr := serve(t, h, http.MethodGet, "/readyz")
			require.Equal(t, tt.wantCode, rr.Code)

			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantDB, resp.DB)
			assert.Equal(t, tt.wantCache, resp.Cache)
			assert.Len(t, resp.Breakers, 3)
		})
	}

	t.Run("open breaker is reported", func(t *testing.T) {
		registry := reliability.NewRegistry(map[domain.PhaseName]reliability.BreakerConfig{
			domain.PhaseHarmony: {FailureThreshold: 1, FailureWindow: time.Minute, RecoveryTimeout: time.Minute},
		}, nil)
		b := registry.Get(domain.PhaseHarmony)
		permit, ok := b.Allow()
		require.True(t, ok)
		b.Record(permit, false)

		rr := serve(t, NewHealthHandler("svc", "v", nil, nil, registry), http.MethodGet, "/readyz")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "OPEN", resp.Breakers[2].State)
	})
}
