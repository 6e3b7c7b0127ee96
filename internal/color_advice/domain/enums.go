package domain

// InputMode identifies which of the three request shapes was received.
type InputMode string

const (
	ModeImageUpload    InputMode = "image_upload"
	ModeAssetReference InputMode = "asset_reference"
	ModeDirectColor    InputMode = "direct_color"
)

// IsImage reports whether the mode carries image content.
func (m InputMode) IsImage() bool {
	return m == ModeImageUpload || m == ModeAssetReference
}

// TargetRole is the garment role the suggestions are meant for.
type TargetRole string

const (
	RoleTop       TargetRole = "top"
	RoleBottom    TargetRole = "bottom"
	RoleOuterwear TargetRole = "outerwear"
	RoleAccessory TargetRole = "accessory"
	RoleAny       TargetRole = "any"
)

// ParseTargetRole maps a raw value to a TargetRole. Empty means RoleAny.
func ParseTargetRole(raw string) (TargetRole, bool) {
	switch TargetRole(raw) {
	case "":
		return RoleAny, true
	case RoleTop, RoleBottom, RoleOuterwear, RoleAccessory, RoleAny:
		return TargetRole(raw), true
	}
	return "", false
}

// PhaseName tags one of the closed set of pipeline phases.
type PhaseName string

const (
	PhaseSegmentation PhaseName = "segmentation"
	PhaseExtraction   PhaseName = "extraction"
	PhaseHarmony      PhaseName = "harmony"
)

// PipelineOrder is the fixed execution order of the phases.
var PipelineOrder = []PhaseName{PhaseSegmentation, PhaseExtraction, PhaseHarmony}

// RequiredPhases returns the phases a request in the given mode runs, in
// pipeline order. DirectColor already has a base color and goes straight to
// harmony.
func RequiredPhases(mode InputMode) []PhaseName {
	if mode == ModeDirectColor {
		return []PhaseName{PhaseHarmony}
	}
	out := make([]PhaseName, len(PipelineOrder))
	copy(out, PipelineOrder)
	return out
}

// Valid reports whether p is one of the known phases.
func (p PhaseName) Valid() bool {
	return p == PhaseSegmentation || p == PhaseExtraction || p == PhaseHarmony
}
