package domain

import (
	"regexp"
	"strings"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// SupportedContentTypes lists the upload formats the pipeline accepts.
var SupportedContentTypes = []string{"image/jpeg", "image/png"}

// Request is one advice request. Construct it with the New* helpers and do
// not modify it afterwards.
type Request struct {
	Mode InputMode

	// ImageUpload
	ImageBytes  []byte
	ContentType string

	// AssetReference
	AssetID string

	// DirectColor
	BaseColorHex string

	TargetRole TargetRole
	Params     map[string]string

	// Cache controls. CacheOK=false bypasses the cache entirely;
	// ForceRecompute skips reads but still stores successful results.
	CacheOK        bool
	ForceRecompute bool
	IdempotencyKey string
}

// Options are the request fields shared by every mode.
type Options struct {
	TargetRole     TargetRole
	Params         map[string]string
	CacheOK        bool
	ForceRecompute bool
	IdempotencyKey string
}

// DefaultOptions returns options with caching enabled and role any.
func DefaultOptions() Options {
	return Options{TargetRole: RoleAny, CacheOK: true}
}

func newRequest(mode InputMode, opts Options) *Request {
	params := make(map[string]string, len(opts.Params))
	for k, v := range opts.Params {
		params[k] = v
	}
	role := opts.TargetRole
	if role == "" {
		role = RoleAny
	}
	return &Request{
		Mode:           mode,
		TargetRole:     role,
		Params:         params,
		CacheOK:        opts.CacheOK,
		ForceRecompute: opts.ForceRecompute,
		IdempotencyKey: strings.TrimSpace(opts.IdempotencyKey),
	}
}

// NewImageUpload builds an ImageUpload request. The byte slice is copied.
func NewImageUpload(content []byte, contentType string, opts Options) *Request {
	r := newRequest(ModeImageUpload, opts)
	r.ImageBytes = append([]byte(nil), content...)
	r.ContentType = strings.ToLower(strings.TrimSpace(contentType))
	return r
}

// NewAssetReference builds an AssetReference request.
func NewAssetReference(assetID string, opts Options) *Request {
	r := newRequest(ModeAssetReference, opts)
	r.AssetID = strings.TrimSpace(assetID)
	return r
}

// NewDirectColor builds a DirectColor request.
func NewDirectColor(baseColorHex string, opts Options) *Request {
	r := newRequest(ModeDirectColor, opts)
	r.BaseColorHex = strings.TrimSpace(baseColorHex)
	return r
}

// Validate checks the shape of the request. maxUploadBytes <= 0 disables the
// size check. Image decoding is checked later, once content is resolved.
func (r *Request) Validate(maxUploadBytes int64) error {
	if r == nil {
		return NewValidationError("", "empty request")
	}
	if _, ok := ParseTargetRole(string(r.TargetRole)); !ok {
		return NewValidationError("target_role", "unknown role %q", r.TargetRole)
	}

	switch r.Mode {
	case ModeImageUpload:
		if len(r.ImageBytes) == 0 {
			return NewValidationError("file", "image content is empty")
		}
		if maxUploadBytes > 0 && int64(len(r.ImageBytes)) > maxUploadBytes {
			return NewValidationError("file", "image exceeds %d bytes", maxUploadBytes)
		}
		if !IsSupportedContentType(r.ContentType) {
			return NewValidationError("content_type", "unsupported content type %q", r.ContentType)
		}
	case ModeAssetReference:
		if r.AssetID == "" {
			return NewValidationError("asset_id", "asset id is required")
		}
	case ModeDirectColor:
		if !hexColorPattern.MatchString(r.BaseColorHex) {
			return NewValidationError("base_hex", "expected #RRGGBB, got %q", r.BaseColorHex)
		}
	default:
		return &ValidationError{Field: "mode", Reason: "unsupported input mode " + string(r.Mode), Err: ErrUnsupportedMode}
	}
	return nil
}

// NormalizedBaseColor returns the DirectColor hex in canonical upper case.
func (r *Request) NormalizedBaseColor() string {
	return NormalizeHex(r.BaseColorHex)
}

// NormalizeHex upper-cases a #RRGGBB color.
func NormalizeHex(hex string) string {
	return strings.ToUpper(strings.TrimSpace(hex))
}

// ValidHex reports whether s is a #RRGGBB color.
func ValidHex(s string) bool {
	return hexColorPattern.MatchString(s)
}

// IsSupportedContentType reports whether ct (parameters allowed) is an accepted image type.
func IsSupportedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, s := range SupportedContentTypes {
		if ct == s {
			return true
		}
	}
	return false
}
