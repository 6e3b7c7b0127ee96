package phases

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// maxResponseBytes caps how much of a phase service response is read.
const maxResponseBytes = 8 << 20

// HTTPAdapter calls a remote phase service: POST {baseURL}/v1/{phase}.
type HTTPAdapter struct {
	phase      domain.PhaseName
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAdapter creates an adapter for one phase service. The per-call
// budget comes from the context; the client timeout is only a backstop.
func NewHTTPAdapter(phase domain.PhaseName, baseURL string) *HTTPAdapter {
	return &HTTPAdapter{
		phase:   phase,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *HTTPAdapter) Name() domain.PhaseName { return a.phase }

// PhaseRequest is the wire body sent to a phase service.
type PhaseRequest struct {
	InputMode   domain.InputMode                     `json:"input_mode"`
	TargetRole  domain.TargetRole                    `json:"target_role"`
	Params      map[string]string                    `json:"params"`
	ImageB64    string                               `json:"image_b64,omitempty"`
	ContentType string                               `json:"content_type,omitempty"`
	BaseHex     string                               `json:"base_hex,omitempty"`
	Upstream    map[domain.PhaseName]json.RawMessage `json:"upstream,omitempty"`
}

// PhaseResponse is the wire body returned by a phase service.
type PhaseResponse struct {
	Data       json.RawMessage `json:"data"`
	Confidence float64         `json:"confidence"`
}

// Invoke posts the phase input and decodes the result. 408 and 504 map to
// domain.ErrPhaseTimeout, every other non-2xx to domain.ErrPhaseFailed.
func (a *HTTPAdapter) Invoke(ctx context.Context, in *domain.PhaseInput) (domain.PhaseResult, error) {
	body := PhaseRequest{
		Params:  in.Params,
		BaseHex: in.BaseColorHex,
	}
	if in.Request != nil {
		body.InputMode = in.Request.Mode
		body.TargetRole = in.Request.TargetRole
		body.ContentType = in.Request.ContentType
	}
	if len(in.Content) > 0 {
		body.ImageB64 = base64.StdEncoding.EncodeToString(in.Content)
	}
	if len(in.Upstream) > 0 {
		body.Upstream = make(map[domain.PhaseName]json.RawMessage, len(in.Upstream))
		for name, r := range in.Upstream {
			body.Upstream[name] = r.Data
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return domain.PhaseResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/%s", a.baseURL, a.phase)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return domain.PhaseResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if in.RequestID != "" {
		req.Header.Set("X-Request-Id", in.RequestID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.PhaseResult{}, fmt.Errorf("%s service: %w", a.phase, domain.ErrPhaseTimeout)
		}
		return domain.PhaseResult{}, fmt.Errorf("failed to call %s service: %w: %v", a.phase, domain.ErrPhaseFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.PhaseResult{}, fmt.Errorf("%s service: %w", a.phase, domain.ErrPhaseTimeout)
		}
		return domain.PhaseResult{}, fmt.Errorf("failed to read response: %w: %v", domain.ErrPhaseFailed, err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return domain.PhaseResult{}, fmt.Errorf("%s service returned status %d: %w", a.phase, resp.StatusCode, domain.ErrPhaseTimeout)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return domain.PhaseResult{}, fmt.Errorf("%s service returned status %d: %s: %w",
			a.phase, resp.StatusCode, truncate(string(respBody), 200), domain.ErrPhaseFailed)
	}

	var out PhaseResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.PhaseResult{}, fmt.Errorf("failed to unmarshal response: %w: %v", domain.ErrPhaseFailed, err)
	}
	if len(out.Data) == 0 || string(out.Data) == "null" {
		return domain.PhaseResult{}, fmt.Errorf("%s service returned no data: %w", a.phase, domain.ErrPhaseFailed)
	}

	return domain.PhaseResult{
		PhaseName:  a.phase,
		Data:       out.Data,
		Confidence: out.Confidence,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
