package http

import (
	"context"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// Processor runs an advice request through the pipeline
type Processor interface {
	Process(ctx context.Context, req *domain.Request) (*domain.PipelineResponse, error)
}

// Handler handles HTTP requests for color advice
type Handler struct {
	processor      Processor
	maxUploadBytes int64
}

// New creates a new Handler
func New(processor Processor, maxUploadBytes int64) *Handler {
	return &Handler{
		processor:      processor,
		maxUploadBytes: maxUploadBytes,
	}
}

// AdviceRequest is the JSON body for asset and color requests. Image uploads
// use multipart/form-data instead.
type AdviceRequest struct {
	AssetID        string         `json:"asset_id,omitempty"`
	BaseHex        string         `json:"base_hex,omitempty"`
	TargetRole     string         `json:"target_role,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	CacheOK        *bool          `json:"cache_ok,omitempty"` // default true
	ForceRecompute bool           `json:"force_recompute,omitempty"`
}

// ErrorResponse is returned for rejected requests
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
