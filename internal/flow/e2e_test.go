package flow

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/consent"
	"github.com/example/skinscan/internal/label"
	"github.com/example/skinscan/internal/retry"
	"github.com/example/skinscan/internal/session"
	"github.com/example/skinscan/internal/state"
	"github.com/example/skinscan/internal/stubservice"
)

type liveFixture struct {
	ctrl    *Controller
	backend *stubservice.Backend
	store   state.Store
	client  *apiclient.Client
}

func newLiveFixture(t *testing.T, opts stubservice.Options, store state.Store) *liveFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	backend := stubservice.NewBackend(opts)
	server := httptest.NewServer(stubservice.NewRouter(backend, opts, zap.NewNop()))
	t.Cleanup(server.Close)

	client := apiclient.NewClient(server.URL, zap.NewNop())
	ctrl := NewController(Deps{
		Sessions: session.NewProvider(client, store, zap.NewNop()),
		Consent:  consent.NewStore(client, store, retry.DefaultPolicy, zap.NewNop()),
		API:      client,
	}, zap.NewNop())
	return &liveFixture{ctrl: ctrl, backend: backend, store: store, client: client}
}

func testOptions() stubservice.Options {
	opts := stubservice.DefaultOptions()
	opts.JWTSecret = "e2e-secret"
	return opts
}

func TestEndToEndDonatedScanIsLabeled(t *testing.T) {
	f := newLiveFixture(t, testOptions(), state.NewMemoryStore())
	ctx := context.Background()

	sess, err := f.ctrl.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if sess.AccessToken == "" {
		t.Fatal("expected the service to issue an access token")
	}
	yes := true
	if _, err := f.ctrl.SetConsent(ctx, consent.Patch{DonateForImprovement: &yes}); err != nil {
		t.Fatalf("consent: %v", err)
	}
	remote, ok := f.backend.Consent(sess.SessionID)
	if !ok || !remote.DonateForImprovement || remote.StoreProgressImages {
		t.Fatalf("unexpected remote consent %+v", remote)
	}

	if err := f.ctrl.Continue(); err != nil {
		t.Fatalf("continue: %v", err)
	}
	photo := testPhoto(t, 10, false)
	if err := f.ctrl.Capture(photo); err != nil {
		t.Fatalf("capture: %v", err)
	}
	result, err := f.ctrl.Analyze(ctx)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	roi, ok := result.ROI()
	if !ok || roi != photo.SHA256() {
		t.Fatalf("roi %q does not identify the uploaded photo %q", roi, photo.SHA256())
	}
	if !result.DonationStored() {
		t.Fatalf("expected donation to be stored, got %+v", result.Donation)
	}

	if err := f.ctrl.OpenLabel(); err != nil {
		t.Fatalf("open label: %v", err)
	}
	outcome, err := f.ctrl.SubmitLabels(ctx, map[label.Attribute]label.Severity{
		label.Redness:    label.Moderate,
		label.UnevenTone: label.None,
	}, label.Options{AgeBand: "25-34"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected label to be stored, got %+v", outcome)
	}

	stored, ok := f.backend.Labels(roi)
	if !ok {
		t.Fatal("labels not stored by the service")
	}
	if len(stored.Labels) != 1 || stored.Labels[label.Redness] != 0.66 {
		t.Fatalf("unexpected stored labels %v", stored.Labels)
	}
}

func TestEndToEndUndonatedScanIsDeclined(t *testing.T) {
	opts := testOptions()
	opts.DonationStorageEnabled = false
	f := newLiveFixture(t, opts, state.NewMemoryStore())
	ctx := context.Background()

	if _, err := f.ctrl.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	yes := true
	if _, err := f.ctrl.SetConsent(ctx, consent.Patch{DonateForImprovement: &yes}); err != nil {
		t.Fatalf("consent: %v", err)
	}
	_ = f.ctrl.Continue()
	if err := f.ctrl.Capture(testPhoto(t, 11, false)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	result, err := f.ctrl.Analyze(ctx)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.DonationStored() {
		t.Fatal("donation storage is disabled")
	}
	if err := f.ctrl.OpenLabel(); err != nil {
		t.Fatalf("open label: %v", err)
	}

	outcome, err := f.ctrl.SubmitLabels(ctx, map[label.Attribute]label.Severity{label.DrynessFlaking: label.Mild}, label.Options{})
	if err != nil {
		t.Fatalf("a declined label is not an error: %v", err)
	}
	if outcome.Stored || outcome.Reason != stubservice.ReasonNotDonated {
		t.Fatalf("expected not_donated decline, got %+v", outcome)
	}
	expectState(t, f.ctrl, StateLabel)
}

func TestEndToEndRestartRestoresSessionAndConsent(t *testing.T) {
	store := state.NewMemoryStore()
	first := newLiveFixture(t, testOptions(), store)
	ctx := context.Background()

	sess, err := first.ctrl.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	yes, no := true, false
	sent, err := first.ctrl.SetConsent(ctx, consent.Patch{StoreProgressImages: &yes, DonateForImprovement: &no})
	if err != nil {
		t.Fatalf("consent: %v", err)
	}

	restarted := NewController(Deps{
		Sessions: session.NewProvider(first.client, store, zap.NewNop()),
		Consent:  consent.NewStore(first.client, store, retry.DefaultPolicy, zap.NewNop()),
		API:      first.client,
	}, zap.NewNop())
	again, err := restarted.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("restart bootstrap: %v", err)
	}
	if again.SessionID != sess.SessionID {
		t.Fatalf("expected persisted session %s, got %s", sess.SessionID, again.SessionID)
	}
	if restarted.Consent() != sent {
		t.Fatalf("consent round trip mismatch: sent %+v, restored %+v", sent, restarted.Consent())
	}
	if remote, _ := first.backend.Consent(sess.SessionID); remote != sent {
		t.Fatalf("service consent %+v differs from local %+v", remote, sent)
	}
}

func TestEndToEndProgressAndDeleteMe(t *testing.T) {
	f := newLiveFixture(t, testOptions(), state.NewMemoryStore())
	ctx := context.Background()

	first, err := f.ctrl.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	yes := true
	if _, err := f.ctrl.SetConsent(ctx, consent.Patch{StoreProgressImages: &yes}); err != nil {
		t.Fatalf("consent: %v", err)
	}
	_ = f.ctrl.Continue()
	_ = f.ctrl.Capture(testPhoto(t, 12, false))
	result, err := f.ctrl.Analyze(ctx)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !result.StoredForProgress {
		t.Fatal("expected the scan to be stored for progress")
	}

	entries, err := f.ctrl.ListProgress(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || !entries[0].StoredImage {
		t.Fatalf("unexpected progress entries %+v", entries)
	}
	if _, err := entries[0].Time(); err != nil {
		t.Fatalf("unparsable created_at %q: %v", entries[0].CreatedAt, err)
	}

	if err := f.ctrl.DeleteProgress(ctx); err != nil {
		t.Fatalf("delete progress: %v", err)
	}
	if entries, _ := f.ctrl.ListProgress(ctx); len(entries) != 0 {
		t.Fatalf("expected no entries after delete, got %d", len(entries))
	}

	if _, err := f.ctrl.DeleteMe(ctx); err != nil {
		t.Fatalf("delete me: %v", err)
	}
	expectState(t, f.ctrl, StateBootstrapping)

	second, err := f.ctrl.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap after delete: %v", err)
	}
	if second.SessionID == first.SessionID {
		t.Fatal("expected a new session after deleting everything")
	}
	if second.DeviceToken != first.DeviceToken {
		t.Fatal("device token must be reused")
	}
	if f.ctrl.Consent() != (apiclient.Consent{}) {
		t.Fatalf("consent must start cleared, got %+v", f.ctrl.Consent())
	}
}

func TestEndToEndLegalAcceptanceAndExplicitDonation(t *testing.T) {
	f := newLiveFixture(t, testOptions(), state.NewMemoryStore())
	ctx := context.Background()

	sess, err := f.ctrl.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	bundle, err := f.ctrl.FetchLegal(ctx)
	if err != nil {
		t.Fatalf("fetch legal: %v", err)
	}
	yes := true
	if _, err := f.ctrl.SetConsent(ctx, consent.Patch{DonateForImprovement: &yes}); err != nil {
		t.Fatalf("consent: %v", err)
	}
	remote, _ := f.backend.Consent(sess.SessionID)
	if remote.LegalVersions != bundle.Versions() {
		t.Fatalf("service recorded %+v, want %+v", remote.LegalVersions, bundle.Versions())
	}

	_ = f.ctrl.Continue()
	photo := testPhoto(t, 12, false)
	if err := f.ctrl.Capture(photo); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := f.ctrl.Analyze(ctx); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	extra := testPhoto(t, 13, false)
	outcome, err := f.ctrl.Donate(ctx, extra)
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if !outcome.Stored || outcome.ROISHA256 != extra.SHA256() {
		t.Fatalf("unexpected donation outcome %+v", outcome)
	}
	expectState(t, f.ctrl, StateResults)
}
