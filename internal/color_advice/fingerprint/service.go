package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

const (
	// paramHashLen is the number of sha256 bytes kept for parameter digests.
	paramHashLen = 16
	phashSize    = 8

	classImage = "image"
	classColor = "color"
)

// PhasePolicy controls the cache identity of one phase.
type PhasePolicy struct {
	// Version is folded into every key; bumping it invalidates the phase.
	Version string
	// CacheParams is the allow-list of parameters that affect the output.
	CacheParams []string
	// NearDuplicate keys the phase on the perceptual hash.
	NearDuplicate bool
}

// DefaultPolicies returns the built-in allow-lists for every phase.
func DefaultPolicies() map[domain.PhaseName]PhasePolicy {
	return map[domain.PhaseName]PhasePolicy{
		domain.PhaseSegmentation: {
			Version: "v1",
			CacheParams: []string{
				"gamma", "max_edge", "phase1_engine", "phase1_morph_kernel", "phase1_median_blur",
			},
		},
		domain.PhaseExtraction: {
			Version: "v1",
			CacheParams: []string{
				"k", "max_samples", "erode_for_sampling",
				"filter_shadow_v_lt", "filter_specular_s_lt", "filter_specular_v_gt", "min_saturation",
				"neutral_v_low", "neutral_v_high", "neutral_s_low", "neutral_penalty_weight",
				"enable_spatial_cohesion", "cohesion_weight",
			},
		},
		domain.PhaseHarmony: {
			Version: "v1",
			CacheParams: []string{
				"source_role", "intent", "season",
				"include_complementary", "include_analogous", "include_triadic", "include_neutrals",
				"neutrals_max", "color_naming",
			},
		},
	}
}

// Content is the per-request content identity. It is computed once and
// reused for every phase key.
type Content struct {
	Hash       []byte
	Perceptual []byte
	Class      string
}

// Inputs are the request-derived values a fingerprint is computed over.
type Inputs struct {
	Request *domain.Request
	Content Content
	// Params must already be normalized.
	Params map[string]string
	// Derived carries values produced upstream in this pipeline, such as the
	// base color harmony was given.
	Derived map[string]string
}

// Service computes deterministic cache identities.
type Service struct {
	policies map[domain.PhaseName]PhasePolicy
}

// NewService creates a fingerprint service. Phases missing from policies
// get the defaults.
func NewService(policies map[domain.PhaseName]PhasePolicy) *Service {
	merged := DefaultPolicies()
	for name, p := range policies {
		merged[name] = p
	}
	for name, p := range merged {
		params := append([]string(nil), p.CacheParams...)
		sort.Strings(params)
		p.CacheParams = params
		merged[name] = p
	}
	return &Service{policies: merged}
}

// Policy returns the effective policy of a phase.
func (s *Service) Policy(phase domain.PhaseName) PhasePolicy {
	return s.policies[phase]
}

// Content hashes the raw request content. Images are decoded once (EXIF
// orientation applied) for the perceptual hash; bytes that do not decode are
// a validation error. content is the resolved image for image modes and is
// ignored for DirectColor.
func (s *Service) Content(req *domain.Request, content []byte) (Content, error) {
	if !req.Mode.IsImage() {
		sum := sha256.Sum256([]byte(req.NormalizedBaseColor()))
		return Content{Hash: sum[:], Class: classColor}, nil
	}

	sum := sha256.Sum256(content)
	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return Content{}, domain.NewValidationError("file", "image could not be decoded: %v", err)
	}
	return Content{Hash: sum[:], Perceptual: PerceptualHash(img), Class: classImage}, nil
}

// PerceptualHash is a 64-bit mean-threshold hash over an 8x8 grayscale
// thumbnail. Visually identical images re-encoded differently usually share
// it.
func PerceptualHash(img image.Image) []byte {
	small := imaging.Grayscale(imaging.Resize(img, phashSize, phashSize, imaging.Lanczos))

	values := make([]float64, 0, phashSize*phashSize)
	var sum float64
	for y := 0; y < phashSize; y++ {
		for x := 0; x < phashSize; x++ {
			// Grayscale output has R == G == B.
			v := float64(small.Pix[y*small.Stride+x*4])
			values = append(values, v)
			sum += v
		}
	}
	mean := sum / float64(len(values))

	out := make([]byte, phashSize)
	for i, v := range values {
		if v > mean {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// Subset returns the allow-listed parameters of a phase.
func (s *Service) Subset(phase domain.PhaseName, params map[string]string) map[string]string {
	policy := s.policies[phase]
	out := make(map[string]string, len(policy.CacheParams))
	for _, name := range policy.CacheParams {
		if v, ok := params[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ForPhase returns the fingerprint of one phase.
func (s *Service) ForPhase(phase domain.PhaseName, in Inputs) domain.Fingerprint {
	policy := s.policies[phase]

	fields := s.phaseFields(phase, in)
	for k, v := range in.Derived {
		fields = append(fields, "derived."+k+"="+v)
	}

	return domain.Fingerprint{
		Phase:          phase,
		ContentHash:    in.Content.Hash,
		PerceptualHash: in.Content.Perceptual,
		ParamHash:      digestFields(fields),
		PolicyVersion:  policy.Version,
		NearDuplicate:  policy.NearDuplicate && len(in.Content.Perceptual) > 0,
	}
}

// Pipeline returns the whole-pipeline fingerprint used for L1. It folds in
// the parameters and policy versions of every listed phase, so a version
// bump on any phase invalidates the cached response. Derived values are
// ignored since they only exist once phases have run.
func (s *Service) Pipeline(phases []domain.PhaseName, in Inputs) domain.Fingerprint {
	var fields []string
	versions := make([]string, 0, len(phases))
	for _, phase := range phases {
		fields = append(fields, s.phaseFields(phase, in)...)
		v := s.policies[phase].Version
		fields = append(fields, "version."+string(phase)+"="+v)
		versions = append(versions, v)
	}

	return domain.Fingerprint{
		ContentHash:    in.Content.Hash,
		PerceptualHash: in.Content.Perceptual,
		ParamHash:      digestFields(fields),
		PolicyVersion:  strings.Join(versions, "+"),
	}
}

func (s *Service) phaseFields(phase domain.PhaseName, in Inputs) []string {
	fields := []string{
		"phase=" + string(phase),
		"class=" + in.Content.Class,
	}
	for name, v := range s.Subset(phase, in.Params) {
		fields = append(fields, string(phase)+"."+name+"="+v)
	}
	if phase == domain.PhaseHarmony && in.Request != nil {
		fields = append(fields, "harmony.target_role="+string(in.Request.TargetRole))
	}
	return fields
}

func digestFields(fields []string) []byte {
	sort.Strings(fields)
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{'\n'})
	}
	return h.Sum(nil)[:paramHashLen]
}

// Digest is a short stable digest of upstream data, suitable for Derived.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// ValidateVersion rejects policy versions that would corrupt key layout.
func ValidateVersion(v string) error {
	if v == "" {
		return fmt.Errorf("policy version is empty")
	}
	if strings.ContainsAny(v, ": \t\n") {
		return fmt.Errorf("policy version %q contains a separator", v)
	}
	return nil
}
