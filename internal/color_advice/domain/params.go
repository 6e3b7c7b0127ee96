package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParamKind is the value type of a tuning parameter.
type ParamKind int

const (
	KindInt ParamKind = iota
	KindFloat
	KindBool
	KindEnum
)

// ParamSpec declares a tuning parameter accepted by the pipeline.
type ParamSpec struct {
	Name    string
	Kind    ParamKind
	Min     float64
	Max     float64
	Enum    []string
	Default string
	// Odd requires odd integers; ZeroOK additionally accepts 0.
	Odd    bool
	ZeroOK bool
}

var paramSpecs = []ParamSpec{
	// segmentation
	{Name: "gamma", Kind: KindFloat, Min: 0.8, Max: 2.2, Default: "1.2"},
	{Name: "max_edge", Kind: KindInt, Min: 256, Max: 4096, Default: "768"},
	{Name: "phase1_engine", Kind: KindEnum, Enum: []string{"auto", "u2netp", "grabcut"}, Default: "auto"},
	{Name: "phase1_morph_kernel", Kind: KindInt, Min: 1, Max: 7, Odd: true, Default: "3"},
	{Name: "phase1_median_blur", Kind: KindInt, Min: 0, Max: 9, Odd: true, ZeroOK: true, Default: "5"},

	// extraction
	{Name: "k", Kind: KindInt, Min: 2, Max: 12, Default: "5"},
	{Name: "max_samples", Kind: KindInt, Min: 1000, Max: 50000, Default: "20000"},
	{Name: "erode_for_sampling", Kind: KindInt, Min: 0, Max: 5, Default: "1"},
	{Name: "filter_shadow_v_lt", Kind: KindFloat, Min: 0, Max: 1, Default: "0.12"},
	{Name: "filter_specular_s_lt", Kind: KindFloat, Min: 0, Max: 1, Default: "0.25"},
	{Name: "filter_specular_v_gt", Kind: KindFloat, Min: 0, Max: 1, Default: "0.85"},
	{Name: "min_saturation", Kind: KindFloat, Min: 0, Max: 1, Default: "0.15"},
	{Name: "neutral_v_low", Kind: KindFloat, Min: 0, Max: 1, Default: "0.2"},
	{Name: "neutral_v_high", Kind: KindFloat, Min: 0, Max: 1, Default: "0.8"},
	{Name: "neutral_s_low", Kind: KindFloat, Min: 0, Max: 1, Default: "0.3"},
	{Name: "neutral_penalty_weight", Kind: KindFloat, Min: 0, Max: 10, Default: "2"},
	{Name: "enable_spatial_cohesion", Kind: KindBool, Default: "true"},
	{Name: "cohesion_weight", Kind: KindFloat, Min: 0, Max: 5, Default: "1.5"},

	// harmony
	{Name: "source_role", Kind: KindEnum, Enum: []string{"top", "bottom", "dress", "outerwear"}, Default: "top"},
	{Name: "intent", Kind: KindEnum, Enum: []string{"safe", "classic", "bold"}, Default: "classic"},
	{Name: "season", Kind: KindEnum, Enum: []string{"all", "spring_summer", "autumn_winter"}, Default: "all"},
	{Name: "include_complementary", Kind: KindBool, Default: "true"},
	{Name: "include_analogous", Kind: KindBool, Default: "true"},
	{Name: "include_triadic", Kind: KindBool, Default: "true"},
	{Name: "include_neutrals", Kind: KindBool, Default: "true"},
	{Name: "neutrals_max", Kind: KindInt, Min: 2, Max: 6, Default: "4"},
	{Name: "color_naming", Kind: KindEnum, Enum: []string{"css_basic", "extended"}, Default: "css_basic"},
}

var paramIndex = func() map[string]ParamSpec {
	m := make(map[string]ParamSpec, len(paramSpecs))
	for _, s := range paramSpecs {
		m[s.Name] = s
	}
	return m
}()

// KnownParam reports whether name is a declared tuning parameter.
func KnownParam(name string) bool {
	_, ok := paramIndex[name]
	return ok
}

// ParamNames lists every declared parameter, sorted.
func ParamNames() []string {
	out := make([]string, 0, len(paramSpecs))
	for _, s := range paramSpecs {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}

// NormalizeParams validates raw parameters and returns their canonical form
// with every default filled in. Unknown names are dropped. Two inputs that
// mean the same thing ("1.20" vs "1.2", omitted vs default) normalize to the
// same map.
func NormalizeParams(raw map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(paramSpecs))
	for _, spec := range paramSpecs {
		value, ok := raw[spec.Name]
		if !ok || strings.TrimSpace(value) == "" {
			value = spec.Default
		}
		canon, err := spec.canonical(strings.TrimSpace(value))
		if err != nil {
			return nil, err
		}
		out[spec.Name] = canon
	}
	return out, nil
}

func (s ParamSpec) canonical(value string) (string, error) {
	switch s.Kind {
	case KindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", NewValidationError(s.Name, "expected integer, got %q", value)
		}
		if float64(n) < s.Min || float64(n) > s.Max {
			return "", NewValidationError(s.Name, "must be between %g and %g", s.Min, s.Max)
		}
		if s.Odd && n%2 == 0 && !(s.ZeroOK && n == 0) {
			return "", NewValidationError(s.Name, "must be odd")
		}
		return strconv.Itoa(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", NewValidationError(s.Name, "expected number, got %q", value)
		}
		if f < s.Min || f > s.Max {
			return "", NewValidationError(s.Name, "must be between %g and %g", s.Min, s.Max)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case KindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", NewValidationError(s.Name, "expected boolean, got %q", value)
		}
		return strconv.FormatBool(b), nil
	case KindEnum:
		v := strings.ToLower(value)
		for _, e := range s.Enum {
			if v == e {
				return v, nil
			}
		}
		return "", NewValidationError(s.Name, "must be one of %s", strings.Join(s.Enum, "|"))
	}
	return "", fmt.Errorf("param %s: unknown kind %d", s.Name, s.Kind)
}
