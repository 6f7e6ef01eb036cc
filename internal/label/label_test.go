package label

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeQuantizesSeverities(t *testing.T) {
	cases := []struct {
		severity Severity
		want     float64
		present  bool
	}{
		{None, 0, false},
		{Mild, 0.33, true},
		{Moderate, 0.66, true},
		{Severe, 1.0, true},
	}

	for _, tc := range cases {
		labels, err := Encode(map[Attribute]Severity{Redness: tc.severity})
		if err != nil {
			t.Fatalf("encode %s: unexpected error: %v", tc.severity, err)
		}
		got, ok := labels[Redness]
		if ok != tc.present {
			t.Fatalf("encode %s: presence = %v, want %v", tc.severity, ok, tc.present)
		}
		if got != tc.want {
			t.Fatalf("encode %s: value = %v, want %v", tc.severity, got, tc.want)
		}
	}
}

func TestEncodeOmitsNoneEntirely(t *testing.T) {
	labels, err := Encode(map[Attribute]Severity{
		Redness:    None,
		FineLines:  Moderate,
		UnevenTone: None,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("expected only one label, got %v", labels)
	}

	body, err := json.Marshal(labels)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(body) != `{"fine_lines_appearance":0.66}` {
		t.Fatalf("unexpected wire form: %s", body)
	}
}

func TestEncodeRejectsUnknownInputs(t *testing.T) {
	if _, err := Encode(map[Attribute]Severity{"acne": Mild}); !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("expected ErrUnknownAttribute, got %v", err)
	}
	if _, err := Encode(map[Attribute]Severity{Redness: "extreme"}); !errors.Is(err, ErrUnknownSeverity) {
		t.Fatalf("expected ErrUnknownSeverity, got %v", err)
	}
}

func TestNewSubmissionRejectsLocally(t *testing.T) {
	if _, err := NewSubmission("", map[Attribute]Severity{Redness: Mild}, Options{}); !errors.Is(err, ErrMissingROI) {
		t.Fatalf("expected ErrMissingROI, got %v", err)
	}
	if _, err := NewSubmission("abc123", map[Attribute]Severity{Redness: None}, Options{}); !errors.Is(err, ErrEmptyLabels) {
		t.Fatalf("expected ErrEmptyLabels, got %v", err)
	}
	if _, err := NewSubmission("abc123", nil, Options{}); !errors.Is(err, ErrEmptyLabels) {
		t.Fatalf("expected ErrEmptyLabels for nil input, got %v", err)
	}
}

func TestNewSubmissionMetadata(t *testing.T) {
	sub, err := NewSubmission("abc123", map[Attribute]Severity{Redness: Severe}, Options{Fitzpatrick: FitzpatrickIII, AgeBand: "25-34"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Fitzpatrick == nil || *sub.Fitzpatrick != FitzpatrickIII {
		t.Fatalf("unexpected fitzpatrick: %v", sub.Fitzpatrick)
	}
	if sub.AgeBand == nil || *sub.AgeBand != "25-34" {
		t.Fatalf("unexpected age band: %v", sub.AgeBand)
	}
	if err := sub.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if _, err := NewSubmission("abc123", map[Attribute]Severity{Redness: Severe}, Options{Fitzpatrick: "VII"}); !errors.Is(err, ErrInvalidFitzpatrick) {
		t.Fatalf("expected ErrInvalidFitzpatrick, got %v", err)
	}
	if _, err := NewSubmission("abc123", map[Attribute]Severity{Redness: Severe}, Options{AgeBand: "30"}); !errors.Is(err, ErrInvalidAgeBand) {
		t.Fatalf("expected ErrInvalidAgeBand, got %v", err)
	}
}

func TestSubmissionOmitsEmptyMetadata(t *testing.T) {
	sub, err := NewSubmission("abc123", map[Attribute]Severity{Redness: Mild}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := json.Marshal(sub)
	if string(body) != `{"roi_sha256":"abc123","labels":{"redness_appearance":0.33}}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"redness_appearance=Mild", "fine_lines_appearance = none"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[Redness] != Mild || got[FineLines] != None {
		t.Fatalf("unexpected parse: %v", got)
	}

	if _, err := ParseAssignments([]string{"redness_appearance"}); err == nil {
		t.Fatal("expected error for missing separator")
	}
	if _, err := ParseAssignments([]string{"acne=mild"}); !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("expected ErrUnknownAttribute, got %v", err)
	}
}
