package degradation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

func TestFallbackFor(t *testing.T) {
	t.Run("harmony falls back to neutrals", func(t *testing.T) {
		res := FallbackFor(domain.PhaseHarmony, UpstreamContext{
			TargetRole:   domain.RoleBottom,
			BaseColorHex: "#1A2B3C",
			Reason:       "harmony: timeout",
		})

		assert.True(t, res.Degraded)
		assert.Equal(t, "harmony: timeout", res.DegradationReason)
		assert.Equal(t, FallbackConfidence, res.Confidence)

		var out domain.HarmonyOutput
		require.NoError(t, json.Unmarshal(res.Data, &out))
		assert.Equal(t, "#1A2B3C", out.BaseHex)
		require.Len(t, out.Suggestions, 2)
		assert.Equal(t, "#FFFFFF", out.Suggestions[0].Hex)
		assert.Equal(t, "#F5F5F5", out.Suggestions[1].Hex)
		for _, s := range out.Suggestions {
			assert.Equal(t, "neutral", s.Category)
			assert.Equal(t, "bottom", s.RoleTarget)
			assert.Contains(t, s.Rationale, "fallback_mode")
		}
	})

	t.Run("extraction yields a role neutral base", func(t *testing.T) {
		res := FallbackFor(domain.PhaseExtraction, UpstreamContext{TargetRole: domain.RoleBottom})

		var out domain.ExtractionOutput
		require.NoError(t, json.Unmarshal(res.Data, &out))
		assert.Equal(t, "#333333", out.BaseColor.Hex)
		assert.True(t, out.BaseColor.Fallback)
		assert.True(t, res.Degraded)
	})

	t.Run("segmentation keeps the whole frame", func(t *testing.T) {
		res := FallbackFor(domain.PhaseSegmentation, UpstreamContext{})

		var out domain.SegmentationOutput
		require.NoError(t, json.Unmarshal(res.Data, &out))
		assert.True(t, out.FallbackUsed)
		assert.Equal(t, 1.0, out.MaskAreaRatio)
	})

	t.Run("is pure", func(t *testing.T) {
		uc := UpstreamContext{TargetRole: domain.RoleTop, Reason: "extraction: breaker_open"}
		assert.Equal(t, FallbackFor(domain.PhaseExtraction, uc), FallbackFor(domain.PhaseExtraction, uc))
	})
}

func TestSuggestions(t *testing.T) {
	t.Run("never repeats the base", func(t *testing.T) {
		out := Suggestions(domain.RoleAny, "#ffffff")
		require.Len(t, out, 2)
		assert.Equal(t, "#F5F5F5", out[0].Hex)
		assert.Equal(t, "#333333", out[1].Hex)
	})

	t.Run("empty role becomes any", func(t *testing.T) {
		out := Suggestions("", "#123456")
		require.NotEmpty(t, out)
		assert.Equal(t, "any", out[0].RoleTarget)
	})

	t.Run("every role has a base", func(t *testing.T) {
		for _, role := range []domain.TargetRole{domain.RoleTop, domain.RoleBottom, domain.RoleOuterwear, domain.RoleAccessory, domain.RoleAny} {
			assert.True(t, domain.ValidHex(BaseColorFor(role)), role)
		}
		assert.Equal(t, "#808080", BaseColorFor("cape"))
	})
}

func TestMustMarshal(t *testing.T) {
	for _, phase := range domain.PipelineOrder {
		res := FallbackFor(phase, UpstreamContext{TargetRole: domain.RoleTop, Reason: string(phase) + ": error"})
		assert.True(t, json.Valid(res.Data), phase)
	}
	assert.Panics(t, func() { mustMarshal(make(chan int)) })
}
