package degradation

import (
	"encoding/json"
	"fmt"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

const (
	// FallbackConfidence marks every synthesized result.
	FallbackConfidence = 0.1

	defaultNeutralBase = "#808080"
	fallbackEngine     = "degraded"
)

// neutralBase is the base color assumed when extraction fails, chosen per
// target role from the neutral pool.
var neutralBase = map[domain.TargetRole]string{
	domain.RoleTop:       "#808080",
	domain.RoleBottom:    "#333333",
	domain.RoleOuterwear: "#8B8589",
	domain.RoleAccessory: "#C19A6B",
	domain.RoleAny:       "#808080",
}

// neutralPool is tried in order for fallback suggestions.
var neutralPool = []string{"#FFFFFF", "#F5F5F5", "#333333", "#D3D3D3"}

const fallbackSuggestionCount = 2

// UpstreamContext is what the policy may know about a failed phase.
type UpstreamContext struct {
	TargetRole domain.TargetRole
	// BaseColorHex is the base color known so far, empty if none.
	BaseColorHex string
	// Reason ends up in degradation_reason.
	Reason string
}

// FallbackFor returns a safe, degraded result standing in for a failed
// phase. It never fails and never returns an empty suggestion list.
func FallbackFor(phase domain.PhaseName, uc UpstreamContext) domain.PhaseResult {
	var payload any
	switch phase {
	case domain.PhaseSegmentation:
		payload = domain.SegmentationOutput{
			MaskAreaRatio: 1.0,
			Engine:        fallbackEngine,
			FallbackUsed:  true,
		}
	case domain.PhaseExtraction:
		base := BaseColorFor(uc.TargetRole)
		payload = domain.ExtractionOutput{
			Palette:   []domain.PaletteEntry{{Hex: base, Ratio: 1.0}},
			BaseColor: domain.BaseColor{Hex: base, ClusterIndex: 0, Fallback: true},
		}
	default:
		base := uc.BaseColorHex
		if base == "" {
			base = BaseColorFor(uc.TargetRole)
		}
		payload = domain.HarmonyOutput{
			BaseHex:     base,
			Suggestions: Suggestions(uc.TargetRole, base),
		}
	}

	data := mustMarshal(payload)
	return domain.PhaseResult{
		PhaseName:         phase,
		Data:              data,
		Confidence:        FallbackConfidence,
		Degraded:          true,
		DegradationReason: uc.Reason,
	}
}

// BaseColorFor is the neutral base color assumed for a role.
func BaseColorFor(role domain.TargetRole) string {
	if hex, ok := neutralBase[role]; ok {
		return hex
	}
	return defaultNeutralBase
}

// Suggestions returns neutral suggestions that differ from base.
func Suggestions(role domain.TargetRole, base string) []domain.Suggestion {
	if role == "" {
		role = domain.RoleAny
	}
	base = domain.NormalizeHex(base)

	out := make([]domain.Suggestion, 0, fallbackSuggestionCount)
	for _, hex := range neutralPool {
		if hex == base {
			continue
		}
		out = append(out, domain.Suggestion{
			Hex:        hex,
			Category:   "neutral",
			RoleTarget: string(role),
			Rationale:  []string{"category:neutral", "fallback_mode"},
		})
		if len(out) == fallbackSuggestionCount {
			break
		}
	}
	return out
}

// mustMarshal encodes the fixed fallback payload types, which contain only
// strings, numbers and slices of them.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("degradation: marshal fallback payload: %v", err))
	}
	return data
}
