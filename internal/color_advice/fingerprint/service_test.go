package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

func splitImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.NRGBA{A: 255}
			if x >= 32 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func normalized(t *testing.T, raw map[string]string) map[string]string {
	p, err := domain.NormalizeParams(raw)
	require.NoError(t, err)
	return p
}

func imageInputs(t *testing.T, svc *Service, content []byte, raw map[string]string) Inputs {
	req := domain.NewImageUpload(content, "image/png", domain.DefaultOptions())
	c, err := svc.Content(req, content)
	require.NoError(t, err)
	return Inputs{Request: req, Content: c, Params: normalized(t, raw)}
}

func TestForPhase_Deterministic(t *testing.T) {
	svc := NewService(nil)
	content := encodePNG(t, splitImage())

	a := svc.ForPhase(domain.PhaseSegmentation, imageInputs(t, svc, content, nil))
	b := svc.ForPhase(domain.PhaseSegmentation, imageInputs(t, svc, content, map[string]string{"gamma": "1.20"}))

	assert.Equal(t, a.Key(), b.Key())
	assert.Len(t, a.ContentHash, 32)
	assert.Len(t, a.PerceptualHash, 8)
}

func TestForPhase_AllowList(t *testing.T) {
	svc := NewService(nil)
	content := encodePNG(t, splitImage())
	base := svc.ForPhase(domain.PhaseSegmentation, imageInputs(t, svc, content, nil))

	t.Run("allow-listed param changes key", func(t *testing.T) {
		fp := svc.ForPhase(domain.PhaseSegmentation, imageInputs(t, svc, content, map[string]string{"gamma": "2.0"}))
		assert.NotEqual(t, base.Key(), fp.Key())
	})

	t.Run("other phase's param does not", func(t *testing.T) {
		fp := svc.ForPhase(domain.PhaseSegmentation, imageInputs(t, svc, content, map[string]string{"k": "9"}))
		assert.Equal(t, base.Key(), fp.Key())
	})

	t.Run("subset only holds allow-listed names", func(t *testing.T) {
		sub := svc.Subset(domain.PhaseSegmentation, normalized(t, nil))
		assert.Len(t, sub, 5)
		_, ok := sub["k"]
		assert.False(t, ok)
	})
}

func TestForPhase_PolicyVersion(t *testing.T) {
	content := encodePNG(t, splitImage())
	v1 := NewService(nil)
	v2 := NewService(map[domain.PhaseName]PhasePolicy{
		domain.PhaseExtraction: {Version: "v2", CacheParams: []string{"k"}},
	})

	in1 := imageInputs(t, v1, content, nil)
	in2 := imageInputs(t, v2, content, nil)

	assert.NotEqual(t, v1.ForPhase(domain.PhaseExtraction, in1).Key(), v2.ForPhase(domain.PhaseExtraction, in2).Key())
	assert.Equal(t, v1.ForPhase(domain.PhaseSegmentation, in1).Key(), v2.ForPhase(domain.PhaseSegmentation, in2).Key())

	phases := domain.RequiredPhases(domain.ModeImageUpload)
	assert.NotEqual(t, v1.Pipeline(phases, in1).Key(), v2.Pipeline(phases, in2).Key())
}

func TestForPhase_Derived(t *testing.T) {
	svc := NewService(nil)
	req := domain.NewDirectColor("#336699", domain.DefaultOptions())
	c, err := svc.Content(req, nil)
	require.NoError(t, err)

	in := Inputs{Request: req, Content: c, Params: normalized(t, nil)}
	plain := svc.ForPhase(domain.PhaseHarmony, in)

	in.Derived = map[string]string{"base_hex": "#808080"}
	fallback := svc.ForPhase(domain.PhaseHarmony, in)

	assert.NotEqual(t, plain.Key(), fallback.Key())
	assert.Nil(t, c.Perceptual)
}

func TestForPhase_TargetRole(t *testing.T) {
	svc := NewService(nil)
	top := domain.NewDirectColor("#336699", domain.Options{TargetRole: domain.RoleTop})
	bottom := domain.NewDirectColor("#336699", domain.Options{TargetRole: domain.RoleBottom})

	ct, err := svc.Content(top, nil)
	require.NoError(t, err)
	cb, err := svc.Content(bottom, nil)
	require.NoError(t, err)

	a := svc.ForPhase(domain.PhaseHarmony, Inputs{Request: top, Content: ct, Params: normalized(t, nil)})
	b := svc.ForPhase(domain.PhaseHarmony, Inputs{Request: bottom, Content: cb, Params: normalized(t, nil)})
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestContent(t *testing.T) {
	svc := NewService(nil)

	t.Run("direct color is case insensitive", func(t *testing.T) {
		a, err := svc.Content(domain.NewDirectColor("#abcdef", domain.DefaultOptions()), nil)
		require.NoError(t, err)
		b, err := svc.Content(domain.NewDirectColor("#ABCDEF", domain.DefaultOptions()), nil)
		require.NoError(t, err)
		assert.Equal(t, a.Hash, b.Hash)
	})

	t.Run("undecodable bytes are a validation error", func(t *testing.T) {
		garbage := []byte("definitely not an image")
		_, err := svc.Content(domain.NewImageUpload(garbage, "image/png", domain.DefaultOptions()), garbage)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("re-encoded image shares the perceptual hash", func(t *testing.T) {
		img := splitImage()
		pngBytes := encodePNG(t, img)
		jpgBytes := encodeJPEG(t, img)

		a, err := svc.Content(domain.NewImageUpload(pngBytes, "image/png", domain.DefaultOptions()), pngBytes)
		require.NoError(t, err)
		b, err := svc.Content(domain.NewImageUpload(jpgBytes, "image/jpeg", domain.DefaultOptions()), jpgBytes)
		require.NoError(t, err)

		assert.NotEqual(t, a.Hash, b.Hash)
		assert.Equal(t, a.Perceptual, b.Perceptual)
	})
}

func TestNearDuplicatePolicy(t *testing.T) {
	svc := NewService(map[domain.PhaseName]PhasePolicy{
		domain.PhaseSegmentation: {Version: "v1", CacheParams: []string{"gamma"}, NearDuplicate: true},
	})
	img := splitImage()
	pngIn := imageInputs(t, svc, encodePNG(t, img), nil)
	jpgIn := imageInputs(t, svc, encodeJPEG(t, img), nil)

	assert.Equal(t,
		svc.ForPhase(domain.PhaseSegmentation, pngIn).Key(),
		svc.ForPhase(domain.PhaseSegmentation, jpgIn).Key())
	assert.NotEqual(t,
		svc.ForPhase(domain.PhaseExtraction, pngIn).Key(),
		svc.ForPhase(domain.PhaseExtraction, jpgIn).Key())
}

func TestValidateVersion(t *testing.T) {
	assert.NoError(t, ValidateVersion("2024.1"))
	assert.Error(t, ValidateVersion(""))
	assert.Error(t, ValidateVersion("v1:beta"))
}
