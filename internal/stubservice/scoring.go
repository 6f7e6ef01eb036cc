package stubservice

import (
	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/label"
)

const disclaimer = "This tool provides cosmetic/appearance guidance only and is not a medical diagnosis. " +
	"For persistent or concerning skin issues, consult a licensed clinician."

var regionNames = []string{"forehead", "left_cheek", "right_cheek", "nose", "chin"}

// scoreImage derives stable pseudo scores from the image digest so the same
// upload always yields the same result.
func scoreImage(sum [32]byte, modelVersion string) apiclient.AnalysisResult {
	attrs := make([]apiclient.AttributeScore, 0, len(label.Attributes))
	for i, attr := range label.Attributes {
		attrs = append(attrs, apiclient.AttributeScore{
			Key:        string(attr),
			Score:      round2(float64(sum[i]) / 255),
			Confidence: round2(0.5 + float64(sum[i+len(label.Attributes)])/510),
		})
	}

	regions := make([]apiclient.RegionResult, 0, len(regionNames))
	for i, name := range regionNames {
		status := apiclient.RegionOK
		regionAttrs := []apiclient.AttributeScore{}
		if sum[16+i]%7 == 0 {
			status = apiclient.RegionInsufficientSkin
		} else {
			regionAttrs = []apiclient.AttributeScore{attrs[i]}
		}
		regions = append(regions, apiclient.RegionResult{
			Name:       name,
			Status:     status,
			Quality:    &apiclient.QualityReport{Lighting: "ok", Blur: "low", Angle: "ok"},
			Attributes: regionAttrs,
		})
	}

	routine := &apiclient.Routine{
		AM: []string{"gentle cleanser", "moisturizer", "broad-spectrum SPF 30+"},
		PM: []string{"gentle cleanser", "moisturizer"},
	}
	professional := []string{}
	for _, a := range attrs {
		if a.Score >= 0.8 {
			professional = append(professional, a.Key)
		}
	}

	return apiclient.AnalysisResult{
		Disclaimer:            disclaimer,
		ModelVersion:          modelVersion,
		Quality:               &apiclient.QualityReport{Lighting: "ok", Blur: "low", Angle: "ok"},
		Attributes:            attrs,
		Regions:               regions,
		Routine:               routine,
		ProfessionalToDiscuss: professional,
		WhenToSeekCare: []string{
			"Rapidly changing, bleeding or painful spots",
			"Persistent redness or irritation that does not improve",
		},
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
