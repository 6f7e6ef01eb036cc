// Package label turns user-chosen severities into the sparse numeric label
// payload accepted by the analysis service.
package label

import (
	"errors"
	"fmt"
	"strings"
)

// Attribute is one of the closed set of appearance attributes a user may label.
type Attribute string

const (
	UnevenTone        Attribute = "uneven_tone_appearance"
	Hyperpigmentation Attribute = "hyperpigmentation_appearance"
	Redness           Attribute = "redness_appearance"
	TextureRoughness  Attribute = "texture_roughness_appearance"
	ShineOiliness     Attribute = "shine_oiliness_appearance"
	PoreVisibility    Attribute = "pore_visibility_appearance"
	FineLines         Attribute = "fine_lines_appearance"
	DrynessFlaking    Attribute = "dryness_flaking_appearance"
)

// Attributes lists every labelable attribute in display order.
var Attributes = []Attribute{
	UnevenTone,
	Hyperpigmentation,
	Redness,
	TextureRoughness,
	ShineOiliness,
	PoreVisibility,
	FineLines,
	DrynessFlaking,
}

// Valid reports whether a belongs to the closed attribute set.
func (a Attribute) Valid() bool {
	for _, known := range Attributes {
		if a == known {
			return true
		}
	}
	return false
}

// Severity is the ordinal choice a user makes for one attribute.
type Severity string

const (
	None     Severity = "none"
	Mild     Severity = "mild"
	Moderate Severity = "moderate"
	Severe   Severity = "severe"
)

// Representative values. These are shared with the existing label corpus and
// must not change.
const (
	MildValue     = 0.33
	ModerateValue = 0.66
	SevereValue   = 1.0
)

// Value returns the numeric label for s. ok is false for None, meaning the
// attribute must be omitted from the payload.
func (s Severity) Value() (value float64, ok bool) {
	switch s {
	case Mild:
		return MildValue, true
	case Moderate:
		return ModerateValue, true
	case Severe:
		return SevereValue, true
	default:
		return 0, false
	}
}

// ParseSeverity accepts the four severity names, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case None, Mild, Moderate, Severe:
		return sev, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
	}
}

var (
	ErrEmptyLabels        = errors.New("label: choose at least one attribute severity")
	ErrMissingROI         = errors.New("label: no donated sample is available to label")
	ErrUnknownAttribute   = errors.New("label: unknown attribute")
	ErrUnknownSeverity    = errors.New("label: unknown severity")
	ErrInvalidFitzpatrick = errors.New("label: invalid fitzpatrick type")
	ErrInvalidAgeBand     = errors.New("label: invalid age band")
)

// Labels is the sparse attribute -> value mapping. Attributes marked None are
// absent, never present with a zero value.
type Labels map[Attribute]float64

// Encode converts severities into sparse labels.
func Encode(severities map[Attribute]Severity) (Labels, error) {
	out := make(Labels, len(severities))
	for attr, sev := range severities {
		if !attr.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, attr)
		}
		if _, err := ParseSeverity(string(sev)); err != nil {
			return nil, err
		}
		if v, ok := sev.Value(); ok {
			out[attr] = v
		}
	}
	return out, nil
}

// ParseAssignments parses "attribute=severity" pairs as typed on a command line.
func ParseAssignments(pairs []string) (map[Attribute]Severity, error) {
	out := make(map[Attribute]Severity, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("label: expected attribute=severity, got %q", pair)
		}
		attr := Attribute(strings.TrimSpace(key))
		if !attr.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
		}
		sev, err := ParseSeverity(value)
		if err != nil {
			return nil, err
		}
		out[attr] = sev
	}
	return out, nil
}
