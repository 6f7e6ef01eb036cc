package journal

// Aggregation holds the raw counts read from the journal tables.
type Aggregation struct {
	ScanCount           int64
	ProgressStoredCount int64
	DonatedCount        int64
	LabelStoredCount    int64
	LabelDeclinedCount  int64
	DeclineReasons      map[string]int64
}

// Summary represents aggregated scan insights.
type Summary struct {
	TotalScans        int64            `json:"total_scans"`
	StoredForProgress int64            `json:"stored_for_progress"`
	DonatedScans      int64            `json:"donated_scans"`
	DonationRate      float64          `json:"donation_rate"`
	LabelsStored      int64            `json:"labels_stored"`
	LabelsDeclined    int64            `json:"labels_declined"`
	LabelAcceptRate   float64          `json:"label_accept_rate"`
	DeclinesByReason  map[string]int64 `json:"declines_by_reason,omitempty"`
}

// Summarize derives rates from raw counts.
func Summarize(agg Aggregation) *Summary {
	summary := &Summary{
		TotalScans:        agg.ScanCount,
		StoredForProgress: agg.ProgressStoredCount,
		DonatedScans:      agg.DonatedCount,
		LabelsStored:      agg.LabelStoredCount,
		LabelsDeclined:    agg.LabelDeclinedCount,
		DeclinesByReason:  agg.DeclineReasons,
	}

	if agg.ScanCount > 0 {
		summary.DonationRate = float64(agg.DonatedCount) / float64(agg.ScanCount)
	}
	if labels := agg.LabelStoredCount + agg.LabelDeclinedCount; labels > 0 {
		summary.LabelAcceptRate = float64(agg.LabelStoredCount) / float64(labels)
	}

	return summary
}
