package label

import "fmt"

// Fitzpatrick is the optional self-reported skin type.
type Fitzpatrick string

const (
	FitzpatrickI   Fitzpatrick = "I"
	FitzpatrickII  Fitzpatrick = "II"
	FitzpatrickIII Fitzpatrick = "III"
	FitzpatrickIV  Fitzpatrick = "IV"
	FitzpatrickV   Fitzpatrick = "V"
	FitzpatrickVI  Fitzpatrick = "VI"
)

// Valid reports whether f is one of I..VI.
func (f Fitzpatrick) Valid() bool {
	switch f {
	case FitzpatrickI, FitzpatrickII, FitzpatrickIII, FitzpatrickIV, FitzpatrickV, FitzpatrickVI:
		return true
	}
	return false
}

// AgeBand is the optional self-reported age range.
type AgeBand string

// AgeBands lists accepted age bands.
var AgeBands = []AgeBand{"<18", "18-24", "25-34", "35-44", "45-54", "55-64", "65+"}

// Valid reports whether b is a known age band.
func (b AgeBand) Valid() bool {
	for _, known := range AgeBands {
		if b == known {
			return true
		}
	}
	return false
}

// Submission is the body of a label request.
type Submission struct {
	ROISHA256   string       `json:"roi_sha256"`
	Labels      Labels       `json:"labels"`
	Fitzpatrick *Fitzpatrick `json:"fitzpatrick,omitempty"`
	AgeBand     *AgeBand     `json:"age_band,omitempty"`
}

// Options carries the optional demographic metadata. Empty values are omitted.
type Options struct {
	Fitzpatrick Fitzpatrick
	AgeBand     AgeBand
}

// NewSubmission encodes severities and checks every local precondition. The
// returned errors are guidance for the user, not system failures; no request
// should be issued when one is returned.
func NewSubmission(roiSHA256 string, severities map[Attribute]Severity, opts Options) (Submission, error) {
	labels, err := Encode(severities)
	if err != nil {
		return Submission{}, err
	}
	if roiSHA256 == "" {
		return Submission{}, ErrMissingROI
	}
	if len(labels) == 0 {
		return Submission{}, ErrEmptyLabels
	}

	sub := Submission{ROISHA256: roiSHA256, Labels: labels}
	if opts.Fitzpatrick != "" {
		if !opts.Fitzpatrick.Valid() {
			return Submission{}, fmt.Errorf("%w: %q", ErrInvalidFitzpatrick, opts.Fitzpatrick)
		}
		f := opts.Fitzpatrick
		sub.Fitzpatrick = &f
	}
	if opts.AgeBand != "" {
		if !opts.AgeBand.Valid() {
			return Submission{}, fmt.Errorf("%w: %q", ErrInvalidAgeBand, opts.AgeBand)
		}
		b := opts.AgeBand
		sub.AgeBand = &b
	}
	return sub, nil
}

// Validate re-checks the invariants of an already built submission.
func (s Submission) Validate() error {
	if s.ROISHA256 == "" {
		return ErrMissingROI
	}
	if len(s.Labels) == 0 {
		return ErrEmptyLabels
	}
	return nil
}
