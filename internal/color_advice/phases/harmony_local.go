package phases

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

const (
	localHarmonyConfidence = 0.8
	// degenerateSaturation is the HLS saturation below which a base color is
	// treated as a neutral and only neutrals are suggested.
	degenerateSaturation = 0.08
)

// intentLimits caps suggestions per category for each style intent.
var intentLimits = map[string]map[string]int{
	"safe":    {"complementary": 1, "analogous": 1, "triadic": 0},
	"classic": {"complementary": 1, "analogous": 2, "triadic": 1},
	"bold":    {"complementary": 2, "analogous": 2, "triadic": 2},
}

// neutral pools ordered for contrast against light and dark bases.
var (
	neutralsForLightBase = []string{"#333333", "#808080", "#8B8589", "#C19A6B", "#D3D3D3", "#E5E4E2", "#F5F5DC", "#F5F5F5", "#FFFFFF"}
	neutralsForDarkBase  = []string{"#FFFFFF", "#F5F5F5", "#E5E4E2", "#D3D3D3", "#F5F5DC", "#C19A6B", "#808080", "#8B8589", "#333333"}
)

// LocalHarmony is an in-process harmony phase based on hue rotation. It is
// used when no harmony service is configured.
type LocalHarmony struct{}

func NewLocalHarmony() *LocalHarmony { return &LocalHarmony{} }

func (h *LocalHarmony) Name() domain.PhaseName { return domain.PhaseHarmony }

// Invoke generates complementary, analogous, triadic and neutral
// suggestions around in.BaseColorHex.
func (h *LocalHarmony) Invoke(ctx context.Context, in *domain.PhaseInput) (domain.PhaseResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.PhaseResult{}, err
	}
	if !domain.ValidHex(in.BaseColorHex) {
		return domain.PhaseResult{}, fmt.Errorf("base color %q: %w", in.BaseColorHex, domain.ErrPhaseFailed)
	}

	role := domain.RoleAny
	if in.Request != nil {
		role = in.Request.TargetRole
	}
	out := domain.HarmonyOutput{
		BaseHex:     domain.NormalizeHex(in.BaseColorHex),
		Suggestions: suggest(domain.NormalizeHex(in.BaseColorHex), string(role), in.Params),
	}

	data, err := json.Marshal(out)
	if err != nil {
		return domain.PhaseResult{}, fmt.Errorf("failed to marshal harmony output: %w", err)
	}
	return domain.PhaseResult{
		PhaseName:  domain.PhaseHarmony,
		Data:       data,
		Confidence: localHarmonyConfidence,
	}, nil
}

func suggest(base, role string, params map[string]string) []domain.Suggestion {
	bh, bl, bs := hexToHLS(base)
	intent := paramOr(params, "intent", "classic")
	limits, ok := intentLimits[intent]
	if !ok {
		limits = intentLimits["classic"]
	}

	var out []domain.Suggestion
	add := func(hex, category string, rationale ...string) {
		if hex == base {
			return
		}
		for _, s := range out {
			if s.Hex == hex {
				return
			}
		}
		out = append(out, domain.Suggestion{
			Hex:        hex,
			Category:   category,
			RoleTarget: role,
			Rationale:  append([]string{"category:" + category}, rationale...),
		})
	}

	degenerate := bs < degenerateSaturation
	if degenerate && intent != "bold" {
		limits = map[string]int{}
	} else if degenerate {
		limits = map[string]int{"complementary": 1}
	}

	if paramBool(params, "include_complementary") {
		// Contrast lightness against the base.
		lightness := 0.65
		if bl > 0.5 {
			lightness = 0.47
		}
		variants := []float64{lightness, lightness - 0.15}
		for i := 0; i < limits["complementary"] && i < len(variants); i++ {
			add(hlsToHex(rotateHue(bh, 180), variants[i], math.Min(bs, 0.6)), "complementary", "h_rot:+180")
		}
	}
	if paramBool(params, "include_analogous") {
		for i, deg := range []float64{30, -30} {
			if i >= limits["analogous"] {
				break
			}
			add(hlsToHex(rotateHue(bh, deg), bl, bs*0.9), "analogous", fmt.Sprintf("h_rot:%+.0f", deg))
		}
	}
	if paramBool(params, "include_triadic") {
		for i, deg := range []float64{120, -120} {
			if i >= limits["triadic"] {
				break
			}
			add(hlsToHex(rotateHue(bh, deg), bl, bs*0.8), "triadic", fmt.Sprintf("h_rot:%+.0f", deg))
		}
	}
	if paramBool(params, "include_neutrals") || len(out) == 0 {
		pool := neutralsForDarkBase
		if bl > 0.6 {
			pool = neutralsForLightBase
		}
		limit := paramInt(params, "neutrals_max", 4)
		n := 0
		for _, hex := range pool {
			if n >= limit {
				break
			}
			before := len(out)
			add(hex, "neutral", "contrast:lightness")
			if len(out) > before {
				n++
			}
		}
	}
	return out
}

func paramOr(params map[string]string, name, def string) string {
	if v, ok := params[name]; ok && v != "" {
		return v
	}
	return def
}

// paramBool defaults to true; every include_* flag is on unless disabled.
func paramBool(params map[string]string, name string) bool {
	v, ok := params[name]
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err != nil || b
}

func paramInt(params map[string]string, name string, def int) int {
	if n, err := strconv.Atoi(params[name]); err == nil {
		return n
	}
	return def
}

func rotateHue(h, degrees float64) float64 {
	h = math.Mod(h+degrees/360, 1)
	if h < 0 {
		h++
	}
	return h
}

func hexToHLS(hex string) (h, l, s float64) {
	v, _ := strconv.ParseUint(hex[1:], 16, 32)
	r := float64(v>>16&0xFF) / 255
	g := float64(v>>8&0xFF) / 255
	b := float64(v&0xFF) / 255

	maxc := math.Max(r, math.Max(g, b))
	minc := math.Min(r, math.Min(g, b))
	l = (maxc + minc) / 2
	if maxc == minc {
		return 0, l, 0
	}
	d := maxc - minc
	if l <= 0.5 {
		s = d / (maxc + minc)
	} else {
		s = d / (2 - maxc - minc)
	}
	rc := (maxc - r) / d
	gc := (maxc - g) / d
	bc := (maxc - b) / d
	switch maxc {
	case r:
		h = bc - gc
	case g:
		h = 2 + rc - bc
	default:
		h = 4 + gc - rc
	}
	h = math.Mod(h/6, 1)
	if h < 0 {
		h++
	}
	return h, l, s
}

func hlsToHex(h, l, s float64) string {
	l = clamp01(l)
	s = clamp01(s)
	var r, g, b float64
	if s == 0 {
		r, g, b = l, l, l
	} else {
		var m2 float64
		if l <= 0.5 {
			m2 = l * (1 + s)
		} else {
			m2 = l + s - l*s
		}
		m1 := 2*l - m2
		r = hueChannel(m1, m2, h+1.0/3)
		g = hueChannel(m1, m2, h)
		b = hueChannel(m1, m2, h-1.0/3)
	}
	return fmt.Sprintf("#%02X%02X%02X", to255(r), to255(g), to255(b))
}

func hueChannel(m1, m2, hue float64) float64 {
	hue = math.Mod(hue, 1)
	if hue < 0 {
		hue++
	}
	switch {
	case hue < 1.0/6:
		return m1 + (m2-m1)*hue*6
	case hue < 0.5:
		return m2
	case hue < 2.0/3:
		return m1 + (m2-m1)*(2.0/3-hue)*6
	}
	return m1
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func to255(v float64) int {
	return int(math.Round(clamp01(v) * 255))
}
