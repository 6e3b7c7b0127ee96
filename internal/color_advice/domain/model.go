package domain

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Fingerprint is the deterministic cache identity of a phase (or of the
// whole pipeline when Phase is empty).
type Fingerprint struct {
	Phase          PhaseName
	ContentHash    []byte
	PerceptualHash []byte
	ParamHash      []byte
	PolicyVersion  string
	// NearDuplicate keys on PerceptualHash instead of ContentHash.
	NearDuplicate bool
}

// Key renders the fingerprint as a cache key:
// {scope}:{content}:{params}:{policy}
func (f Fingerprint) Key() string {
	scope := "pipeline"
	if f.Phase != "" {
		scope = string(f.Phase)
	}
	content := hex.EncodeToString(f.ContentHash)
	if f.NearDuplicate && len(f.PerceptualHash) > 0 {
		content = "p" + hex.EncodeToString(f.PerceptualHash)
	}
	return strings.Join([]string{
		scope,
		content,
		hex.EncodeToString(f.ParamHash),
		f.PolicyVersion,
	}, ":")
}

// Asset is image content stored out-of-band and referenced by id.
type Asset struct {
	AssetID     string    `json:"asset_id"`
	ContentType string    `json:"content_type"`
	Content     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// PhaseResult is the output of one phase, whether computed, cached or
// produced by the degradation policy.
type PhaseResult struct {
	PhaseName         PhaseName       `json:"phase_name"`
	Data              json.RawMessage `json:"data,omitempty"`
	Confidence        float64         `json:"confidence"`
	DurationMs        int64           `json:"duration_ms"`
	FromCache         bool            `json:"from_cache"`
	Degraded          bool            `json:"degraded"`
	DegradationReason string          `json:"degradation_reason,omitempty"`
}

// SegmentationOutput is the data payload of the segmentation phase.
type SegmentationOutput struct {
	MaskPNGB64     string  `json:"mask_png_b64,omitempty"`
	ItemRGBAPNGB64 string  `json:"item_rgba_png_b64,omitempty"`
	BBox           []int   `json:"bbox_xywh,omitempty"`
	MaskAreaRatio  float64 `json:"mask_area_ratio"`
	Engine         string  `json:"engine"`
	FallbackUsed   bool    `json:"fallback_used"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
}

// PaletteEntry is one extracted color cluster.
type PaletteEntry struct {
	Hex   string  `json:"hex"`
	Ratio float64 `json:"ratio"`
}

// BaseColor is the dominant garment color selected by extraction.
type BaseColor struct {
	Hex          string  `json:"hex"`
	ClusterIndex int     `json:"cluster_index"`
	Fallback     bool    `json:"fallback,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// ExtractionOutput is the data payload of the extraction phase.
type ExtractionOutput struct {
	Palette       []PaletteEntry `json:"palette"`
	BaseColor     BaseColor      `json:"base_color"`
	SampledPixels int            `json:"sampled_pixels"`
}

// Suggestion is a single recommended color.
type Suggestion struct {
	Hex        string   `json:"hex"`
	Category   string   `json:"category"`
	RoleTarget string   `json:"role_target"`
	Rationale  []string `json:"rationale,omitempty"`
}

// HarmonyOutput is the data payload of the harmony phase.
type HarmonyOutput struct {
	BaseHex       string       `json:"base_hex"`
	Suggestions   []Suggestion `json:"suggestions"`
	PolicyVersion string       `json:"policy_version,omitempty"`
}

// PhaseInput is everything an adapter may read. Adapters must treat it as
// read-only.
type PhaseInput struct {
	RequestID string
	Request   *Request
	// Content is the image bytes for image modes (resolved for asset
	// references); nil for DirectColor.
	Content []byte
	// Params is the phase's allow-listed parameter subset.
	Params map[string]string
	// Upstream holds the results of earlier phases in this pipeline.
	Upstream map[PhaseName]PhaseResult
	// BaseColorHex is the color harmony works from.
	BaseColorHex string
}

// CacheStatus reports how the response was served.
type CacheStatus struct {
	L1Hit  bool               `json:"l1_hit"`
	L2Hits map[PhaseName]bool `json:"l2_hits"`
}

// ResponseMeta carries per-phase and pipeline-level metadata.
type ResponseMeta struct {
	InputMode         InputMode     `json:"input_mode"`
	TargetRole        TargetRole    `json:"target_role"`
	BaseColorHex      string        `json:"base_color_hex,omitempty"`
	PerPhase          []PhaseResult `json:"per_phase"`
	CacheStatus       CacheStatus   `json:"cache_status"`
	Degraded          bool          `json:"degraded"`
	DegradationReason string        `json:"degradation_reason,omitempty"`
	PolicyVersion     string        `json:"policy_version"`
	TotalDurationMs   int64         `json:"total_duration_ms"`
}

// PipelineResponse is built once per request and not mutated after return.
type PipelineResponse struct {
	RequestID   string       `json:"request_id"`
	Suggestions []Suggestion `json:"suggestions"`
	Meta        ResponseMeta `json:"meta"`
}
