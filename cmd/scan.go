package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/capture"
	"github.com/example/skinscan/internal/flow"
	"github.com/example/skinscan/internal/label"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Analyze a photo and optionally label it",
	Long: `Upload a photo for appearance analysis and print the result.

With --donate the photo is also offered for model improvement once the
analysis is shown; only its region is kept, and only with donation consent.

With --label the analyzed region is labeled afterwards. Labeling needs a
result that carries a region identifier and, on the service side, a donated
sample (see 'skinscan consent --donate').

Severities: none, mild, moderate, severe. Attributes:
  uneven_tone_appearance, hyperpigmentation_appearance, redness_appearance,
  texture_roughness_appearance, shine_oiliness_appearance,
  pore_visibility_appearance, fine_lines_appearance, dryness_flaking_appearance

Examples:
  skinscan scan --photo face.jpg
  skinscan scan --photo face.jpg --donate
  skinscan scan --photo cheek.jpg --roi --label redness_appearance=moderate --age-band 25-34`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().String("photo", "", "path to the photo (JPEG, PNG or GIF)")
	scanCmd.Flags().Bool("roi", false, "the photo is already cropped to the region of interest")
	scanCmd.Flags().Bool("donate", false, "offer the photo for model improvement after analysis")
	scanCmd.Flags().StringArray("label", nil, "attribute=severity, repeatable")
	scanCmd.Flags().String("fitzpatrick", "", "optional Fitzpatrick skin type (I-VI)")
	scanCmd.Flags().String("age-band", "", "optional age band (<18, 18-24, 25-34, 35-44, 45-54, 55-64, 65+)")
	_ = scanCmd.MarkFlagRequired("photo")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	photoPath, _ := cmd.Flags().GetString("photo")
	roi, _ := cmd.Flags().GetBool("roi")
	assignments, _ := cmd.Flags().GetStringArray("label")
	fitzpatrick, _ := cmd.Flags().GetString("fitzpatrick")
	ageBand, _ := cmd.Flags().GetString("age-band")
	donate, _ := cmd.Flags().GetBool("donate")

	// Validate labels before anything touches the network.
	var severities map[label.Attribute]label.Severity
	if len(assignments) > 0 {
		var err error
		if severities, err = label.ParseAssignments(assignments); err != nil {
			return err
		}
	}
	opts := label.Options{Fitzpatrick: label.Fitzpatrick(fitzpatrick), AgeBand: label.AgeBand(ageBand)}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	source := capture.FileSource{Path: photoPath, ROI: roi}
	photo, err := source.Capture(ctx)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.ctrl.Continue(); err != nil {
		return err
	}
	if err := a.ctrl.Capture(photo); err != nil {
		return err
	}

	result, err := a.ctrl.Analyze(ctx)
	if err != nil {
		printError(err)
		return err
	}

	var donation *apiclient.DonationOutcome
	if donate {
		// The analyzed photo is gone once results are shown, so read it again.
		again, err := source.Capture(ctx)
		if err != nil {
			return err
		}
		d, err := a.ctrl.Donate(ctx, again)
		if err != nil {
			printError(err)
			return err
		}
		donation = &d
	}

	var outcome *apiclient.LabelOutcome
	if severities != nil {
		outcome, err = submitLabels(ctx, a.ctrl, severities, opts)
		if err != nil {
			return err
		}
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"result":   result,
			"donation": donation,
			"label":    outcome,
		})
	}
	printResult(result)
	if donation != nil {
		printDonation(*donation)
	}
	if outcome != nil {
		printOutcome(*outcome)
	}
	return nil
}

func submitLabels(ctx context.Context, ctrl *flow.Controller, severities map[label.Attribute]label.Severity, opts label.Options) (*apiclient.LabelOutcome, error) {
	if err := ctrl.OpenLabel(); err != nil {
		if errors.Is(err, flow.ErrLabelUnavailable) {
			warn("this result has no region identifier, labels were not sent")
			return nil, nil
		}
		return nil, err
	}
	defer ctrl.CloseLabel() //nolint:errcheck

	outcome, err := ctrl.SubmitLabels(ctx, severities, opts)
	switch {
	case errors.Is(err, label.ErrEmptyLabels):
		warn("every attribute is marked none, nothing to submit")
		return nil, nil
	case err != nil:
		printError(err)
		return nil, err
	}
	return &outcome, nil
}

func printResult(r *apiclient.AnalysisResult) {
	if r.Disclaimer != "" {
		fmt.Println(r.Disclaimer)
		fmt.Println()
	}
	if roi, ok := r.ROI(); ok {
		fmt.Printf("Region:       %s\n", roi)
	}
	if r.ModelVersion != "" {
		fmt.Printf("Model:        %s\n", r.ModelVersion)
	}
	if q := r.Quality; q != nil {
		fmt.Printf("Quality:      lighting=%s blur=%s angle=%s\n", q.Lighting, q.Blur, q.Angle)
	}
	fmt.Printf("Progress:     %s\n", storedLabel(r.StoredForProgress))
	if d := r.Donation; d != nil {
		reason := ""
		if d.Reason != nil {
			reason = " (" + *d.Reason + ")"
		}
		fmt.Printf("Donation:     %s%s\n", storedLabel(d.Stored), reason)
	}

	if len(r.Attributes) > 0 {
		fmt.Println()
		w := newTable()
		printTableHeader(w, "ATTRIBUTE", "SCORE", "CONFIDENCE")
		for _, attr := range r.Attributes {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", attr.Key, attr.Score, attr.Confidence)
		}
		_ = w.Flush()
	}

	if len(r.Regions) > 0 {
		fmt.Println()
		w := newTable()
		printTableHeader(w, "REGION", "STATUS", "ATTRIBUTES")
		for _, region := range r.Regions {
			fmt.Fprintf(w, "%s\t%s\t%d\n", region.Name, region.Status, len(region.Attributes))
		}
		_ = w.Flush()
	}

	if r.Routine != nil {
		printList("AM routine", r.Routine.AM)
		printList("PM routine", r.Routine.PM)
	}
	printList("Discuss with a professional", r.ProfessionalToDiscuss)
	printList("When to seek care", r.WhenToSeekCare)
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func printOutcome(o apiclient.LabelOutcome) {
	fmt.Println()
	if o.Declined() {
		fmt.Printf("Labels not stored: %s\n", declineGuidance(o.Reason))
		return
	}
	fmt.Println("Labels stored, thank you.")
}

func printDonation(d apiclient.DonationOutcome) {
	fmt.Println()
	if !d.Stored {
		fmt.Printf("Photo not donated: %s\n", declineGuidance(d.Reason))
		return
	}
	fmt.Printf("Photo donated as region %s, thank you.\n", d.ROISHA256)
}

func declineGuidance(reason string) string {
	switch reason {
	case "not_donated":
		return "this sample was not donated; enable donation and scan again"
	case "no_consent":
		return "donation consent is off; run 'skinscan consent --donate'"
	case "session_not_found":
		return "the session is unknown to the service"
	case "donation_storage_disabled":
		return "the service is not accepting donations right now"
	case "duplicate_other_session":
		return "this region was already donated from another session"
	case "":
		return "no reason given"
	default:
		return reason
	}
}

func storedLabel(stored bool) string {
	if stored {
		return "stored"
	}
	return "not stored"
}
