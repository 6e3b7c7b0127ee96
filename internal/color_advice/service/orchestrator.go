package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stylesync/stylesync-backend/internal/api/http/middleware"
	"github.com/stylesync/stylesync-backend/internal/color_advice/cache"
	"github.com/stylesync/stylesync-backend/internal/color_advice/degradation"
	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
	"github.com/stylesync/stylesync-backend/internal/color_advice/fingerprint"
	"github.com/stylesync/stylesync-backend/internal/color_advice/phases"
	"github.com/stylesync/stylesync-backend/internal/color_advice/reliability"
)

// AssetResolver loads stored images for AssetReference requests.
type AssetResolver interface {
	Get(ctx context.Context, assetID string) (*domain.Asset, error)
}

// Config tunes the pipeline.
type Config struct {
	L1TTL          time.Duration
	IdempotencyTTL time.Duration
	PhaseTTL       map[domain.PhaseName]time.Duration
	RequestSlack   time.Duration // added to the sum of phase budgets
	MaxUploadBytes int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		L1TTL:          7 * 24 * time.Hour,
		IdempotencyTTL: 5 * time.Minute,
		PhaseTTL: map[domain.PhaseName]time.Duration{
			domain.PhaseSegmentation: 24 * time.Hour,
			domain.PhaseExtraction:   24 * time.Hour,
			domain.PhaseHarmony:      12 * time.Hour,
		},
		RequestSlack:   900 * time.Millisecond,
		MaxUploadBytes: 10 << 20,
	}
}

// Deps are the collaborators of an Orchestrator. Assets may be nil, which
// disables asset references.
type Deps struct {
	Adapters     *phases.Set
	Cache        *cache.Cache
	Fingerprints *fingerprint.Service
	Manager      *reliability.Manager
	Assets       AssetResolver
}

// Orchestrator drives a request through its phases behind the layered
// cache and the reliability manager.
type Orchestrator struct {
	adapters     *phases.Set
	cache        *cache.Cache
	fingerprints *fingerprint.Service
	manager      *reliability.Manager
	assets       AssetResolver
	cfg          Config
}

// NewOrchestrator validates deps and builds an Orchestrator. A harmony
// adapter is mandatory; image modes additionally need segmentation and
// extraction adapters.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Adapters == nil || deps.Cache == nil || deps.Fingerprints == nil || deps.Manager == nil {
		return nil, errors.New("orchestrator: adapters, cache, fingerprints and manager are required")
	}
	if err := deps.Adapters.Covers([]domain.PhaseName{domain.PhaseHarmony}); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.PhaseTTL == nil {
		cfg.PhaseTTL = defaults.PhaseTTL
	}
	return &Orchestrator{
		adapters:     deps.Adapters,
		cache:        deps.Cache,
		fingerprints: deps.Fingerprints,
		manager:      deps.Manager,
		assets:       deps.Assets,
		cfg:          cfg,
	}, nil
}

// run is the per-request state shared by the pipeline steps.
type run struct {
	requestID  string
	req        *domain.Request
	phases     []domain.PhaseName
	content    []byte
	inputs     fingerprint.Inputs
	pipeline   domain.Fingerprint
	readCache  bool
	writeCache bool
	idemKey    string
	logger     *Logger
}

// Process answers an advice request. Only validation failures (and
// catastrophic errors such as an unreachable asset store) are returned as
// errors; phase failures degrade the response instead.
func (o *Orchestrator) Process(ctx context.Context, req *domain.Request) (*domain.PipelineResponse, error) {
	start := time.Now()
	requestID := middleware.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := NewLogger(requestID)

	mode := "unknown"
	if req != nil {
		mode = string(req.Mode)
	}

	r, err := o.prepare(ctx, requestID, req)
	if err != nil {
		if domain.IsValidation(err) {
			logger.LogWarnf("validate", "mode=%s error=%v", mode, err)
			recordRequest(mode, outcomeInvalid, time.Since(start))
		} else {
			logger.LogError("resolve_content", err)
			recordRequest(mode, outcomeError, time.Since(start))
		}
		return nil, err
	}
	r.logger = logger

	if resp, ok := o.replay(ctx, r); ok {
		logger.LogInfof("idempotency", "replayed key=%s", r.req.IdempotencyKey)
		recordRequest(mode, outcomeIdempotent, time.Since(start))
		return resp, nil
	}

	if r.readCache {
		if resp, ok := o.fromL1(ctx, r, start); ok {
			logger.LogInfof("l1", "hit key=%s", r.pipeline.Key())
			recordRequest(mode, outcomeL1Hit, time.Since(start))
			return resp, nil
		}
	}

	resp := o.execute(ctx, r, start)

	outcome := outcomeOK
	if resp.Meta.Degraded {
		outcome = outcomeDegraded
	} else if r.writeCache {
		o.storeResponse(ctx, r, resp)
	}
	recordRequest(mode, outcome, time.Since(start))
	logger.LogInfof("process", "mode=%s degraded=%t suggestions=%d duration_ms=%d",
		mode, resp.Meta.Degraded, len(resp.Suggestions), resp.Meta.TotalDurationMs)
	return resp, nil
}

func (o *Orchestrator) prepare(ctx context.Context, requestID string, req *domain.Request) (*run, error) {
	if err := req.Validate(o.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}
	if req.Mode.IsImage() {
		if err := o.adapters.Covers([]domain.PhaseName{domain.PhaseSegmentation, domain.PhaseExtraction}); err != nil {
			return nil, &domain.ValidationError{Field: "mode", Reason: "image input is not enabled", Err: domain.ErrUnsupportedMode}
		}
	}

	params, err := domain.NormalizeParams(req.Params)
	if err != nil {
		return nil, err
	}

	content, err := o.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	fc, err := o.fingerprints.Content(req, content)
	if err != nil {
		return nil, err
	}

	required := domain.RequiredPhases(req.Mode)
	inputs := fingerprint.Inputs{Request: req, Content: fc, Params: params}
	r := &run{
		requestID:  requestID,
		req:        req,
		phases:     required,
		content:    content,
		inputs:     inputs,
		pipeline:   o.fingerprints.Pipeline(required, inputs),
		readCache:  req.CacheOK && !req.ForceRecompute,
		writeCache: req.CacheOK,
	}
	if req.IdempotencyKey != "" && req.CacheOK {
		r.idemKey = fingerprint.Digest([]byte(req.IdempotencyKey)) + ":" + r.pipeline.Key()
	}
	return r, nil
}

func (o *Orchestrator) resolveContent(ctx context.Context, req *domain.Request) ([]byte, error) {
	switch req.Mode {
	case domain.ModeImageUpload:
		return req.ImageBytes, nil
	case domain.ModeAssetReference:
		if o.assets == nil {
			return nil, &domain.ValidationError{Field: "asset_id", Reason: "asset references are not enabled", Err: domain.ErrUnsupportedMode}
		}
		asset, err := o.assets.Get(ctx, req.AssetID)
		if err != nil {
			if errors.Is(err, domain.ErrAssetNotFound) {
				return nil, &domain.ValidationError{Field: "asset_id", Reason: "asset " + req.AssetID + " not found", Err: domain.ErrAssetNotFound}
			}
			return nil, fmt.Errorf("resolve asset %s: %w", req.AssetID, err)
		}
		if !domain.IsSupportedContentType(asset.ContentType) {
			return nil, domain.NewValidationError("asset_id", "asset has unsupported content type %q", asset.ContentType)
		}
		if o.cfg.MaxUploadBytes > 0 && int64(len(asset.Content)) > o.cfg.MaxUploadBytes {
			return nil, domain.NewValidationError("asset_id", "asset exceeds %d bytes", o.cfg.MaxUploadBytes)
		}
		return asset.Content, nil
	}
	return nil, nil
}

func (o *Orchestrator) replay(ctx context.Context, r *run) (*domain.PipelineResponse, bool) {
	if r.idemKey == "" {
		return nil, false
	}
	data, ok := o.cache.Get(ctx, cache.TierIdempotency, r.idemKey)
	if !ok {
		return nil, false
	}
	var resp domain.PipelineResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		r.logger.LogWarnf("idempotency", "discarding unreadable entry error=%v", err)
		return nil, false
	}
	return &resp, true
}

func (o *Orchestrator) fromL1(ctx context.Context, r *run, start time.Time) (*domain.PipelineResponse, bool) {
	data, ok := o.cache.Get(ctx, cache.TierL1, r.pipeline.Key())
	if !ok {
		return nil, false
	}
	var cached domain.PipelineResponse
	if err := json.Unmarshal(data, &cached); err != nil || cached.Meta.Degraded {
		r.logger.LogWarnf("l1", "discarding unusable entry key=%s", r.pipeline.Key())
		return nil, false
	}

	perPhase := make([]domain.PhaseResult, len(cached.Meta.PerPhase))
	for i, p := range cached.Meta.PerPhase {
		p.FromCache = true
		perPhase[i] = p
	}
	l2Hits := make(map[domain.PhaseName]bool, len(r.phases))
	for _, p := range r.phases {
		l2Hits[p] = false
	}

	resp := cached
	resp.RequestID = r.requestID
	resp.Meta.PerPhase = perPhase
	resp.Meta.CacheStatus = domain.CacheStatus{L1Hit: true, L2Hits: l2Hits}
	resp.Meta.TotalDurationMs = time.Since(start).Milliseconds()
	return &resp, true
}

// requestBudget is the aggregate deadline: every required phase budget
// plus slack.
func (o *Orchestrator) requestBudget(required []domain.PhaseName) time.Duration {
	total := o.cfg.RequestSlack
	for _, p := range required {
		total += o.manager.Budget(p)
	}
	return total
}

func (o *Orchestrator) execute(ctx context.Context, r *run, start time.Time) *domain.PipelineResponse {
	rctx, cancel := context.WithTimeout(ctx, o.requestBudget(r.phases))
	defer cancel()

	upstream := make(map[domain.PhaseName]domain.PhaseResult, len(r.phases))
	perPhase := make([]domain.PhaseResult, 0, len(r.phases))
	l2Hits := make(map[domain.PhaseName]bool, len(r.phases))
	var reasons []string

	baseColor := ""
	if r.req.Mode == domain.ModeDirectColor {
		baseColor = r.req.NormalizedBaseColor()
	}

	for _, phase := range r.phases {
		res, hit, failure := o.runPhase(ctx, rctx, r, phase, upstream, baseColor)
		l2Hits[phase] = hit

		if failure != nil {
			reasons = append(reasons, failure.Reason())
			phaseDegradations.WithLabelValues(string(phase), string(failure.Kind)).Inc()
			r.logger.LogWarnf("phase", "phase=%s degraded error=%v", phase, failure)

			fallback := degradation.FallbackFor(phase, degradation.UpstreamContext{
				TargetRole:   r.req.TargetRole,
				BaseColorHex: baseColor,
				Reason:       failure.Reason(),
			})
			fallback.DurationMs = res.DurationMs
			res = fallback
		}

		if phase == domain.PhaseExtraction {
			if hex, ok := baseColorOf(res.Data); ok {
				baseColor = hex
			}
		}
		upstream[phase] = res
		perPhase = append(perPhase, res)
	}

	return &domain.PipelineResponse{
		RequestID:   r.requestID,
		Suggestions: suggestionsOf(upstream[domain.PhaseHarmony].Data),
		Meta: domain.ResponseMeta{
			InputMode:         r.req.Mode,
			TargetRole:        r.req.TargetRole,
			BaseColorHex:      baseColor,
			PerPhase:          perPhase,
			CacheStatus:       domain.CacheStatus{L2Hits: l2Hits},
			Degraded:          len(reasons) > 0,
			DegradationReason: strings.Join(reasons, "; "),
			PolicyVersion:     r.pipeline.PolicyVersion,
			TotalDurationMs:   time.Since(start).Milliseconds(),
		},
	}
}

// runPhase serves one phase from L2 or through the manager. A non-nil
// failure means res must be replaced by a fallback; res still carries the
// measured duration.
func (o *Orchestrator) runPhase(
	ctx, rctx context.Context,
	r *run,
	phase domain.PhaseName,
	upstream map[domain.PhaseName]domain.PhaseResult,
	baseColor string,
) (domain.PhaseResult, bool, *domain.PhaseFailure) {
	in := r.inputs
	switch phase {
	case domain.PhaseExtraction:
		if seg, ok := upstream[domain.PhaseSegmentation]; ok {
			in.Derived = map[string]string{"segmentation": dataDigest(seg.Data)}
		}
	case domain.PhaseHarmony:
		in.Derived = map[string]string{"base_hex": baseColor}
	}
	key := o.fingerprints.ForPhase(phase, in).Key()

	if r.readCache {
		if data, ok := o.cache.Get(ctx, cache.TierL2, key); ok {
			var cached domain.PhaseResult
			if err := json.Unmarshal(data, &cached); err == nil && !cached.Degraded && validateOutput(phase, cached.Data) == nil {
				cached.PhaseName = phase
				cached.FromCache = true
				cached.DurationMs = 0
				return cached, true, nil
			}
			r.logger.LogWarnf("l2", "discarding unusable entry key=%s", key)
		}
	}

	adapter, _ := o.adapters.Get(phase)
	input := &domain.PhaseInput{
		RequestID:    r.requestID,
		Request:      r.req,
		Params:       o.fingerprints.Subset(phase, r.inputs.Params),
		Upstream:     copyUpstream(upstream),
		BaseColorHex: baseColor,
	}
	if r.req.Mode.IsImage() {
		input.Content = r.content
	}

	// unusable output counts against the breaker like any other phase error
	res, err := o.manager.Call(rctx, phase, func(callCtx context.Context) (domain.PhaseResult, error) {
		out, err := adapter.Invoke(callCtx, input)
		if err != nil {
			return out, err
		}
		return out, validateOutput(phase, out.Data)
	})
	if err != nil {
		var pf *domain.PhaseFailure
		if !errors.As(err, &pf) {
			pf = &domain.PhaseFailure{Phase: phase, Kind: domain.FailureError, Err: err}
		}
		return res, false, pf
	}

	// results derived from a fallback are not cached
	if r.writeCache && !anyDegraded(upstream) {
		if data, err := json.Marshal(res); err == nil {
			o.cache.Put(ctx, cache.TierL2, key, data, o.cfg.PhaseTTL[phase])
		}
	}
	return res, false, nil
}

func (o *Orchestrator) storeResponse(ctx context.Context, r *run, resp *domain.PipelineResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.LogError("store_response", err)
		return
	}
	o.cache.Put(ctx, cache.TierL1, r.pipeline.Key(), data, o.cfg.L1TTL)
	if r.idemKey != "" {
		o.cache.Put(ctx, cache.TierIdempotency, r.idemKey, data, o.cfg.IdempotencyTTL)
	}
}

// validateOutput rejects phase payloads the downstream steps cannot use.
func validateOutput(phase domain.PhaseName, data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%s returned no data: %w", phase, domain.ErrPhaseFailed)
	}
	switch phase {
	case domain.PhaseSegmentation:
		var out domain.SegmentationOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("segmentation output: %w: %v", domain.ErrPhaseFailed, err)
		}
	case domain.PhaseExtraction:
		if _, ok := baseColorOf(data); !ok {
			return fmt.Errorf("extraction output has no usable base color: %w", domain.ErrPhaseFailed)
		}
	case domain.PhaseHarmony:
		var out domain.HarmonyOutput
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("harmony output: %w: %v", domain.ErrPhaseFailed, err)
		}
		if len(suggestionsOf(data)) == 0 {
			return fmt.Errorf("harmony output has no usable suggestions: %w", domain.ErrPhaseFailed)
		}
	}
	return nil
}

func baseColorOf(data json.RawMessage) (string, bool) {
	var out domain.ExtractionOutput
	if err := json.Unmarshal(data, &out); err != nil || !domain.ValidHex(out.BaseColor.Hex) {
		return "", false
	}
	return domain.NormalizeHex(out.BaseColor.Hex), true
}

func suggestionsOf(data json.RawMessage) []domain.Suggestion {
	if len(data) == 0 {
		return nil
	}
	var out domain.HarmonyOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	valid := make([]domain.Suggestion, 0, len(out.Suggestions))
	for _, s := range out.Suggestions {
		if domain.ValidHex(s.Hex) {
			s.Hex = domain.NormalizeHex(s.Hex)
			valid = append(valid, s)
		}
	}
	return valid
}

// dataDigest digests the compacted payload, so a result read back from the
// cache keys its dependents the same way as the original.
func dataDigest(data json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return fingerprint.Digest(data)
	}
	return fingerprint.Digest(buf.Bytes())
}

func anyDegraded(results map[domain.PhaseName]domain.PhaseResult) bool {
	for _, r := range results {
		if r.Degraded {
			return true
		}
	}
	return false
}

func copyUpstream(in map[domain.PhaseName]domain.PhaseResult) map[domain.PhaseName]domain.PhaseResult {
	out := make(map[domain.PhaseName]domain.PhaseResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
