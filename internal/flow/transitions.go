package flow

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/capture"
	"github.com/example/skinscan/internal/consent"
	"github.com/example/skinscan/internal/journal"
	"github.com/example/skinscan/internal/label"
	"github.com/example/skinscan/internal/logging"
	"github.com/example/skinscan/internal/session"
)

// Bootstrap establishes the session and moves to StateConsent. On failure the
// flow stays in StateBootstrapping and Bootstrap must be called again.
func (c *Controller) Bootstrap(ctx context.Context) (session.Session, error) {
	c.mu.Lock()
	if c.state != StateBootstrapping {
		defer c.mu.Unlock()
		return session.Session{}, invalid("bootstrap", c.state)
	}
	if err := c.acquire(ActionBootstrap); err != nil {
		c.mu.Unlock()
		return session.Session{}, err
	}
	c.mu.Unlock()
	defer c.release(ActionBootstrap)

	sess, err := c.sessions.EnsureSession(ctx)
	if err != nil {
		c.logger.Error("bootstrap failed", zap.Error(err))
		return session.Session{}, &Error{Kind: BootstrapFailure, Op: "create_session", Err: err}
	}
	opLogger := logging.WithOperation(c.logger, "flow.bootstrap", sess.SessionID)
	if err := c.consent.Hydrate(ctx); err != nil {
		opLogger.Warn("failed to restore consent", zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &sess
	if c.state == StateBootstrapping {
		c.state = StateConsent
	}
	opLogger.Info("session established")
	return sess, nil
}

// Continue leaves the consent screen for a fresh capture.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConsent {
		return invalid("continue", c.state)
	}
	c.discardScanLocked()
	c.state = StateCapture
	return nil
}

// Capture stores the photo and moves to review.
func (c *Controller) Capture(photo *capture.Photo) error {
	if photo == nil {
		return ErrNoPhoto
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCapture {
		return invalid("capture", c.state)
	}
	c.discardScanLocked()
	c.photo = photo
	c.state = StateReview
	return nil
}

// Retake discards the photo under review.
func (c *Controller) Retake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReview {
		return invalid("retake", c.state)
	}
	c.discardScanLocked()
	c.state = StateCapture
	return nil
}

// Analyze uploads the photo under review. On success the result replaces the
// photo and the flow moves to StateResults. A failure keeps the flow in
// StateReview.
func (c *Controller) Analyze(ctx context.Context) (*apiclient.AnalysisResult, error) {
	c.mu.Lock()
	if c.state != StateReview || c.photo == nil {
		defer c.mu.Unlock()
		return nil, invalid("analyze", c.state)
	}
	auth, err := c.authLocked("analyze")
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.acquire(ActionAnalyze); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	gen := c.generation
	photo := c.photo
	c.mu.Unlock()
	defer c.release(ActionAnalyze)

	opLogger := logging.WithOperation(c.logger, "flow.analyze", auth.SessionID)
	var result *apiclient.AnalysisResult
	if photo.ROI() {
		result, err = c.api.AnalyzeROI(ctx, auth, photo.Reader())
	} else {
		result, err = c.api.Analyze(ctx, auth, photo.Reader())
	}
	if err != nil {
		opLogger.Warn("analysis failed", zap.Error(err))
		return nil, &Error{Kind: SubmissionFailure, Op: "analyze", Err: err}
	}

	c.mu.Lock()
	if gen != c.generation || c.state != StateReview {
		c.mu.Unlock()
		opLogger.Info("discarding late analysis", zap.Stringer("state", c.State()))
		return nil, ErrStale
	}
	c.photo = nil
	c.result = result
	c.outcome = nil
	c.state = StateResults
	c.mu.Unlock()

	roi, _ := result.ROI()
	opLogger.Info("analysis complete",
		zap.String("roi_sha256", roi),
		zap.Bool("stored_for_progress", result.StoredForProgress),
		zap.Bool("donation_stored", result.DonationStored()),
	)
	if err := c.journal.RecordScan(ctx, &journal.ScanRecord{
		SessionID:         auth.SessionID,
		ROISHA256:         roi,
		ModelVersion:      result.ModelVersion,
		StoredForProgress: result.StoredForProgress,
		DonationStored:    result.DonationStored(),
		CreatedAt:         c.now().UTC(),
	}); err != nil {
		opLogger.Warn("failed to journal scan", zap.Error(err))
	}
	return result, nil
}

// NewScan discards the current result and returns to capture.
func (c *Controller) NewScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResults {
		return invalid("new_scan", c.state)
	}
	c.discardScanLocked()
	c.state = StateCapture
	return nil
}

// OpenLabel enters the label screen. It fails with ErrLabelUnavailable when
// the current result carries no ROI identifier.
func (c *Controller) OpenLabel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateResults {
		return invalid("open_label", c.state)
	}
	if !c.canLabelLocked() {
		return ErrLabelUnavailable
	}
	c.outcome = nil
	c.state = StateLabel
	return nil
}

// CloseLabel returns to the results screen.
func (c *Controller) CloseLabel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLabel {
		return invalid("close_label", c.state)
	}
	c.state = StateResults
	return nil
}

// SubmitLabels encodes severities and submits them for the current ROI.
// Empty labels and a missing ROI are rejected before any call. A declined
// label is returned as an outcome, not an error, and the flow stays on the
// label screen either way.
func (c *Controller) SubmitLabels(ctx context.Context, severities map[label.Attribute]label.Severity, opts label.Options) (apiclient.LabelOutcome, error) {
	c.mu.Lock()
	if c.state != StateLabel {
		defer c.mu.Unlock()
		return apiclient.LabelOutcome{}, invalid("submit_labels", c.state)
	}
	roi, _ := c.result.ROI()
	sub, err := label.NewSubmission(roi, severities, opts)
	if err != nil {
		c.mu.Unlock()
		return apiclient.LabelOutcome{}, err
	}
	auth, err := c.authLocked("submit_labels")
	if err != nil {
		c.mu.Unlock()
		return apiclient.LabelOutcome{}, err
	}
	if err := c.acquire(ActionLabel); err != nil {
		c.mu.Unlock()
		return apiclient.LabelOutcome{}, err
	}
	gen := c.generation
	c.mu.Unlock()
	defer c.release(ActionLabel)

	opLogger := logging.WithOperation(c.logger, "flow.submit_labels", auth.SessionID)
	outcome, err := c.api.LabelSample(ctx, auth, sub)
	if err != nil {
		opLogger.Warn("label submission failed", zap.Error(err))
		return apiclient.LabelOutcome{}, &Error{Kind: SubmissionFailure, Op: "label_sample", Err: err}
	}

	if jerr := c.journal.RecordLabel(ctx, &journal.LabelRecord{
		SessionID:  auth.SessionID,
		ROISHA256:  sub.ROISHA256,
		LabelCount: len(sub.Labels),
		Stored:     outcome.Stored,
		Reason:     outcome.Reason,
		CreatedAt:  c.now().UTC(),
	}); jerr != nil {
		opLogger.Warn("failed to journal label", zap.Error(jerr))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		opLogger.Info("discarding late label outcome", zap.Bool("stored", outcome.Stored))
		return outcome, ErrStale
	}
	c.outcome = &outcome
	if outcome.Declined() {
		opLogger.Info("label declined", zap.String("reason", outcome.Reason))
	}
	return outcome, nil
}

// Donate offers photo to the model-improvement pool from the results
// screen. The current scan is untouched. The service stores only the ROI and
// only with donate_for_improvement consent; a refusal is an outcome, not an
// error.
func (c *Controller) Donate(ctx context.Context, photo *capture.Photo) (apiclient.DonationOutcome, error) {
	if photo == nil {
		return apiclient.DonationOutcome{}, ErrNoPhoto
	}
	c.mu.Lock()
	if c.state != StateResults {
		defer c.mu.Unlock()
		return apiclient.DonationOutcome{}, invalid("donate", c.state)
	}
	auth, err := c.authLocked("donate")
	if err != nil {
		c.mu.Unlock()
		return apiclient.DonationOutcome{}, err
	}
	if err := c.acquire(ActionDonate); err != nil {
		c.mu.Unlock()
		return apiclient.DonationOutcome{}, err
	}
	gen := c.generation
	c.mu.Unlock()
	defer c.release(ActionDonate)

	opLogger := logging.WithOperation(c.logger, "flow.donate", auth.SessionID)
	outcome, err := c.api.Donate(ctx, auth, photo.Reader())
	if err != nil {
		opLogger.Warn("donation failed", zap.Error(err))
		return apiclient.DonationOutcome{}, &Error{Kind: SubmissionFailure, Op: "donate", Err: err}
	}
	opLogger.Info("donation handled",
		zap.Bool("stored", outcome.Stored),
		zap.String("reason", outcome.Reason),
		zap.String("roi_sha256", outcome.ROISHA256),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return outcome, ErrStale
	}
	return outcome, nil
}

// OpenSettings enters the settings screen from any screen after bootstrap.
func (c *Controller) OpenSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBootstrapping {
		return invalid("open_settings", c.state)
	}
	c.state = StateSettings
	return nil
}

// CloseSettings returns to the consent screen.
func (c *Controller) CloseSettings() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSettings {
		return invalid("close_settings", c.state)
	}
	c.state = StateConsent
	return nil
}

// FetchLegal loads the privacy policy, terms and consent copy shown beside
// the consent toggles. A failure is a SyncFailure and blocks nothing.
func (c *Controller) FetchLegal(ctx context.Context) (*apiclient.LegalBundle, error) {
	c.mu.Lock()
	if c.state != StateConsent && c.state != StateSettings {
		defer c.mu.Unlock()
		return nil, invalid("fetch_legal", c.state)
	}
	if err := c.acquire(ActionLegal); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	defer c.release(ActionLegal)

	bundle, err := c.api.LegalBundle(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch legal documents", zap.Error(err))
		return nil, &Error{Kind: SyncFailure, Op: "legal_bundle", Err: err}
	}

	c.mu.Lock()
	c.legal = bundle
	c.mu.Unlock()
	return bundle, nil
}

// SetConsent applies patch locally and syncs it. The returned consent is the
// new local value; a sync failure is reported as a SyncFailure and does not
// revert it. Once legal documents were fetched, a patch that names no
// versions accepts the fetched ones.
func (c *Controller) SetConsent(ctx context.Context, patch consent.Patch) (apiclient.Consent, error) {
	c.mu.Lock()
	auth, err := c.authLocked("set_consent")
	if err != nil {
		c.mu.Unlock()
		return c.consent.Current(), err
	}
	if err := c.acquire(ActionConsent); err != nil {
		c.mu.Unlock()
		return c.consent.Current(), err
	}
	if patch.Accepted == nil && c.legal != nil {
		versions := c.legal.Versions()
		patch.Accepted = &versions
	}
	c.mu.Unlock()
	defer c.release(ActionConsent)

	value, err := c.consent.Set(ctx, auth, patch)
	if err != nil {
		return value, &Error{Kind: SyncFailure, Op: "upsert_consent", Err: err}
	}
	return value, nil
}

// DeleteProgress removes every stored progress entry of the session.
func (c *Controller) DeleteProgress(ctx context.Context) error {
	c.mu.Lock()
	auth, err := c.authLocked("delete_progress")
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := c.acquire(ActionDelete); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	defer c.release(ActionDelete)

	if err := c.api.DeleteProgress(ctx, auth); err != nil {
		logging.WithOperation(c.logger, "flow.delete_progress", auth.SessionID).Warn("delete failed", zap.Error(err))
		return &Error{Kind: SubmissionFailure, Op: "delete_progress", Err: err}
	}
	return nil
}

// ListProgress returns the stored progress entries, newest first.
func (c *Controller) ListProgress(ctx context.Context) ([]apiclient.ProgressEntry, error) {
	c.mu.Lock()
	auth, err := c.authLocked("list_progress")
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.acquire(ActionProgress); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	defer c.release(ActionProgress)

	entries, err := c.api.ListProgress(ctx, auth)
	if err != nil {
		return nil, &Error{Kind: SubmissionFailure, Op: "list_progress", Err: err}
	}
	return entries, nil
}

// DeleteMe erases everything the service holds for the session. On success
// the session and consent are forgotten and the flow returns to
// StateBootstrapping.
func (c *Controller) DeleteMe(ctx context.Context) (*apiclient.DeleteMeResult, error) {
	c.mu.Lock()
	auth, err := c.authLocked("delete_me")
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.acquire(ActionDelete); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()
	defer c.release(ActionDelete)

	opLogger := logging.WithOperation(c.logger, "flow.delete_me", auth.SessionID)
	res, err := c.api.DeleteMe(ctx, auth)
	if err != nil {
		opLogger.Warn("delete me failed", zap.Error(err))
		return nil, &Error{Kind: SubmissionFailure, Op: "delete_me", Err: err}
	}

	if err := c.sessions.Reset(ctx); err != nil {
		opLogger.Warn("failed to forget local session", zap.Error(err))
	}
	c.consent.Reset()

	c.mu.Lock()
	c.discardScanLocked()
	c.session = nil
	c.state = StateBootstrapping
	c.mu.Unlock()

	opLogger.Info("all data deleted",
		zap.Int("progress_entries", res.DeletedProgressEntries),
		zap.Int("withdrawn_donations", res.WithdrawnDonations),
	)
	return res, nil
}
