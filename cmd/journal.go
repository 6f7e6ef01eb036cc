package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Summarize the local scan journal",
	Long: `Print totals recorded in the scan journal, or with --roi every
analysis of one region. Requires journal.dsn (or SKINSCAN_JOURNAL_DSN) to
point at a Postgres database.

Examples:
  skinscan journal
  skinscan journal --roi 3f2a...`,
	Args: cobra.NoArgs,
	RunE: runJournal,
}

func init() {
	journalCmd.Flags().String("roi", "", "list the analyses of one region instead of totals")

	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.Journal.Enabled() {
		return fmt.Errorf("journal is disabled, set journal.dsn")
	}
	if roi, _ := cmd.Flags().GetString("roi"); roi != "" {
		return printROIHistory(ctx, a, roi)
	}
	summary, err := a.journal.Summary(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(summary)
	}
	fmt.Printf("Scans:               %d\n", summary.TotalScans)
	fmt.Printf("Stored for progress: %d\n", summary.StoredForProgress)
	fmt.Printf("Donated:             %d (%.0f%%)\n", summary.DonatedScans, summary.DonationRate*100)
	fmt.Printf("Labels stored:       %d\n", summary.LabelsStored)
	fmt.Printf("Labels declined:     %d\n", summary.LabelsDeclined)

	reasons := make([]string, 0, len(summary.DeclinesByReason))
	for reason := range summary.DeclinesByReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("  %-18s %d\n", reason+":", summary.DeclinesByReason[reason])
	}
	return nil
}

func printROIHistory(ctx context.Context, a *app, roi string) error {
	recs, err := a.journal.FindScansByROI(ctx, roi)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No analyses of this region.")
		return nil
	}
	w := newTable()
	printTableHeader(w, "WHEN", "MODEL", "PROGRESS", "DONATED")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.CreatedAt.Local().Format(time.DateTime), rec.ModelVersion, yesNo(rec.StoredForProgress), yesNo(rec.DonationStored))
	}
	return w.Flush()
}
