package apiclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/label"
	"github.com/example/skinscan/internal/stubservice"
)

const scenarioResult = `{"roi_sha256":"abc123","attributes":[],"regions":[],"routine":{"AM":[],"PM":[]},` +
	`"professional_to_discuss":[],"when_to_seek_care":[],"stored_for_progress":false}`

var testJPEG = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{42}, 128)...)

func newStubServer(t *testing.T) (*httptest.Server, *stubservice.Backend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := stubservice.DefaultOptions()
	opts.JWTSecret = "test-secret"
	backend := stubservice.NewBackend(opts)
	server := httptest.NewServer(stubservice.NewRouter(backend, opts, zap.NewNop()))
	t.Cleanup(server.Close)
	return server, backend
}

func newAuthedClient(t *testing.T) (*apiclient.Client, apiclient.Auth, *stubservice.Backend) {
	t.Helper()
	server, backend := newStubServer(t)
	client := apiclient.NewClient(server.URL, zap.NewNop())
	resp, err := client.CreateSession(context.Background(), "device-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if resp.AccessToken == nil {
		t.Fatal("expected access token")
	}
	return client, apiclient.Auth{SessionID: resp.SessionID, AccessToken: *resp.AccessToken, DeviceToken: "device-1"}, backend
}

func TestCreateSessionSendsDeviceToken(t *testing.T) {
	var gotDevice, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDevice = r.Header.Get("X-Device-Token")
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/v1/session" || r.URL.RawQuery != "" {
			t.Errorf("unexpected request %s %s?%s", r.Method, r.URL.Path, r.URL.RawQuery)
		}
		io.WriteString(w, `{"session_id":"s-1","access_token":null}`)
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL+"/", zap.NewNop())
	resp, err := client.CreateSession(context.Background(), "dev-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SessionID != "s-1" || resp.AccessToken != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotDevice != "dev-9" || gotAuth != "" {
		t.Fatalf("unexpected headers: device=%q auth=%q", gotDevice, gotAuth)
	}
}

func TestCreateSessionFailureIsSessionError(t *testing.T) {
	server, _ := newStubServer(t)
	client := apiclient.NewClient(server.URL, zap.NewNop())

	_, err := client.CreateSession(context.Background(), "")
	var sessErr *apiclient.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected SessionError, got %T: %v", err, err)
	}
	if sessErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", sessErr.StatusCode)
	}
	if !errors.Is(err, apiclient.ErrStatus) {
		t.Fatal("expected errors.Is(err, ErrStatus)")
	}
}

func TestCreateSessionWithoutIDIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"access_token":"x"}`)
	}))
	defer server.Close()

	_, err := apiclient.NewClient(server.URL, zap.NewNop()).CreateSession(context.Background(), "d")
	var malformed *apiclient.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
	}
}

func TestAuthenticatedCallsEncodeSessionAndHeaders(t *testing.T) {
	var (
		gotQuery, gotDevice, gotAuth, gotType string
		gotBody                               map[string]bool
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotDevice = r.Header.Get("X-Device-Token")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL, zap.NewNop())
	auth := apiclient.Auth{SessionID: "a b&c", AccessToken: "tok", DeviceToken: "dev"}
	err := client.UpsertConsent(context.Background(), auth, apiclient.Consent{DonateForImprovement: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery != "session_id=a+b%26c" {
		t.Fatalf("session id not encoded: %q", gotQuery)
	}
	if gotDevice != "dev" || gotAuth != "Bearer tok" || gotType != "application/json" {
		t.Fatalf("unexpected headers: device=%q auth=%q type=%q", gotDevice, gotAuth, gotType)
	}
	if len(gotBody) != 2 || !gotBody["donate_for_improvement"] || gotBody["store_progress_images"] {
		t.Fatalf("expected both flags in body, got %v", gotBody)
	}
}

func TestAuthorizationOmittedWithoutAccessToken(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL, zap.NewNop())
	if err := client.DeleteProgress(context.Background(), apiclient.Auth{SessionID: "s", DeviceToken: "d"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sawAuth {
		t.Fatal("Authorization header must be absent without an access token")
	}
}

func TestAnalyzeUploadsMultipartImage(t *testing.T) {
	for _, tc := range []struct {
		name     string
		roi      bool
		filename string
	}{
		{"photo", false, "photo.jpg"},
		{"roi", true, "roi.jpg"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data; boundary=") {
					t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
				}
				file, header, err := r.FormFile("image")
				if err != nil {
					t.Errorf("missing image field: %v", err)
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				defer file.Close()
				data, _ := io.ReadAll(file)
				if header.Filename != tc.filename || header.Header.Get("Content-Type") != "image/jpeg" || !bytes.Equal(data, testJPEG) {
					t.Errorf("unexpected part: filename=%q type=%q len=%d", header.Filename, header.Header.Get("Content-Type"), len(data))
				}
				io.WriteString(w, scenarioResult)
			}))
			defer server.Close()

			client := apiclient.NewClient(server.URL, zap.NewNop())
			auth := apiclient.Auth{SessionID: "s", DeviceToken: "d"}
			var (
				result *apiclient.AnalysisResult
				err    error
			)
			if tc.roi {
				result, err = client.AnalyzeROI(context.Background(), auth, bytes.NewReader(testJPEG))
			} else {
				result, err = client.Analyze(context.Background(), auth, bytes.NewReader(testJPEG))
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			roi, ok := result.ROI()
			if !ok || roi != "abc123" {
				t.Fatalf("expected roi abc123, got %q (present=%v)", roi, ok)
			}
			if result.Donation != nil || result.Quality != nil {
				t.Fatalf("absent blocks must stay nil: %+v", result)
			}
		})
	}
}

func TestAnalyzeErrorCarriesRawBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Invalid image upload: empty file")
	}))
	defer server.Close()

	_, err := apiclient.NewClient(server.URL, zap.NewNop()).Analyze(context.Background(), apiclient.Auth{SessionID: "s"}, bytes.NewReader(nil))
	var analysisErr *apiclient.AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %T: %v", err, err)
	}
	if analysisErr.Message != "Invalid image upload: empty file" {
		t.Fatalf("unexpected message: %q", analysisErr.Message)
	}
}

func TestAnalyzeRejectsMalformedResults(t *testing.T) {
	const lists = `"regions":[],"routine":{"AM":[],"PM":[]},"professional_to_discuss":[],"when_to_seek_care":[]`
	cases := map[string]string{
		"not json":           `<html>`,
		"missing lists":      `{"roi_sha256":"abc"}`,
		"score out of range": `{"attributes":[{"key":"redness_appearance","score":1.5,"confidence":0.5}],` + lists + `}`,
		"bad region status":  `{"attributes":[],"regions":[{"name":"chin","status":"maybe","attributes":[]}],"routine":{"AM":[],"PM":[]},"professional_to_discuss":[],"when_to_seek_care":[]}`,
		"missing routine":    `{"attributes":[],"regions":[],"professional_to_discuss":[],"when_to_seek_care":[]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := apiclient.NewClient(server.URL, zap.NewNop()).Analyze(context.Background(), apiclient.Auth{SessionID: "s"}, bytes.NewReader(testJPEG))
			var malformed *apiclient.MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
			}
			if malformed.Operation != "analyze" {
				t.Fatalf("unexpected operation %q", malformed.Operation)
			}
		})
	}
}

func TestLabelDeclinedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"stored":false,"reason":"not_donated"}`)
	}))
	defer server.Close()

	sub, err := label.NewSubmission("abc123", map[label.Attribute]label.Severity{label.Redness: label.Mild}, label.Options{})
	if err != nil {
		t.Fatalf("submission: %v", err)
	}
	outcome, err := apiclient.NewClient(server.URL, zap.NewNop()).LabelSample(context.Background(), apiclient.Auth{SessionID: "s"}, sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Declined() || outcome.Reason != "not_donated" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestLabelWithoutStoredFlagIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	sub := label.Submission{ROISHA256: "abc", Labels: label.Labels{label.Redness: 1}}
	_, err := apiclient.NewClient(server.URL, zap.NewNop()).LabelSample(context.Background(), apiclient.Auth{SessionID: "s"}, sub)
	var malformed *apiclient.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
	}
}

func TestStatusErrorsAreTypedPerOperation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "down")
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL, zap.NewNop())
	auth := apiclient.Auth{SessionID: "s"}
	ctx := context.Background()

	var consentErr *apiclient.ConsentSyncError
	if err := client.UpsertConsent(ctx, auth, apiclient.Consent{}); !errors.As(err, &consentErr) {
		t.Fatalf("expected ConsentSyncError, got %T", err)
	}
	var labelErr *apiclient.LabelError
	if _, err := client.LabelSample(ctx, auth, label.Submission{ROISHA256: "x", Labels: label.Labels{label.Redness: 1}}); !errors.As(err, &labelErr) {
		t.Fatalf("expected LabelError, got %T", err)
	}
	var deletionErr *apiclient.DeletionError
	if err := client.DeleteProgress(ctx, auth); !errors.As(err, &deletionErr) {
		t.Fatalf("expected DeletionError, got %T", err)
	}
	if _, err := client.DeleteMe(ctx, auth); !errors.As(err, &deletionErr) {
		t.Fatalf("expected DeletionError from DeleteMe, got %T", err)
	}
	var progressErr *apiclient.ProgressError
	if _, err := client.ListProgress(ctx, auth); !errors.As(err, &progressErr) {
		t.Fatalf("expected ProgressError, got %T", err)
	}
	if deletionErr.Message != "down" || deletionErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected error fields: %+v", deletionErr)
	}
}

func TestEndToEndAgainstStubService(t *testing.T) {
	client, auth, backend := newAuthedClient(t)
	ctx := context.Background()

	if err := client.UpsertConsent(ctx, auth, apiclient.Consent{StoreProgressImages: true, DonateForImprovement: true}); err != nil {
		t.Fatalf("consent: %v", err)
	}
	if got, _ := backend.Consent(auth.SessionID); !got.StoreProgressImages || !got.DonateForImprovement {
		t.Fatalf("service consent mismatch: %+v", got)
	}

	result, err := client.Analyze(ctx, auth, bytes.NewReader(testJPEG))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	roi, ok := result.ROI()
	if !ok || !result.DonationStored() || !result.StoredForProgress {
		t.Fatalf("expected donated, stored result: %+v", result)
	}

	sub, err := label.NewSubmission(roi, map[label.Attribute]label.Severity{
		label.Redness:   label.Severe,
		label.FineLines: label.None,
	}, label.Options{AgeBand: "35-44"})
	if err != nil {
		t.Fatalf("submission: %v", err)
	}
	outcome, err := client.LabelSample(ctx, auth, sub)
	if err != nil {
		t.Fatalf("label: %v", err)
	}
	if !outcome.Stored {
		t.Fatalf("expected stored label, got %+v", outcome)
	}
	stored, ok := backend.Labels(roi)
	if !ok || len(stored.Labels) != 1 || stored.Labels[label.Redness] != 1.0 {
		t.Fatalf("unexpected stored labels: %+v", stored)
	}

	entries, err := client.ListProgress(ctx, auth)
	if err != nil {
		t.Fatalf("list progress: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one progress entry, got %d", len(entries))
	}
	if _, err := entries[0].Time(); err != nil {
		t.Fatalf("created_at not parseable: %v", err)
	}

	if err := client.DeleteProgress(ctx, auth); err != nil {
		t.Fatalf("delete progress: %v", err)
	}
	entries, err = client.ListProgress(ctx, auth)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty progress, got %d entries (err=%v)", len(entries), err)
	}

	res, err := client.DeleteMe(ctx, auth)
	if err != nil {
		t.Fatalf("delete me: %v", err)
	}
	if !res.DeletedSession || res.WithdrawnDonations != 1 {
		t.Fatalf("unexpected delete result: %+v", res)
	}
}

func TestAsStatusErrorFindsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &apiclient.LabelError{StatusError: apiclient.StatusError{Operation: "label_sample", StatusCode: 409, Message: "conflict"}})

	status, ok := apiclient.AsStatusError(wrapped)
	if !ok {
		t.Fatal("expected status details")
	}
	if status.StatusCode != 409 || status.Message != "conflict" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, ok := apiclient.AsStatusError(errors.New("plain")); ok {
		t.Fatal("plain errors carry no status")
	}
}

func TestLegalBundleAndDonateAgainstStubService(t *testing.T) {
	client, auth, _ := newAuthedClient(t)
	ctx := context.Background()

	bundle, err := client.LegalBundle(ctx)
	if err != nil {
		t.Fatalf("legal bundle: %v", err)
	}
	versions := bundle.Versions()
	if versions.Empty() || versions.PrivacyVersion != bundle.PrivacyPolicy.Version {
		t.Fatalf("unexpected versions %+v", versions)
	}

	outcome, err := client.Donate(ctx, auth, bytes.NewReader(testJPEG))
	if err != nil {
		t.Fatalf("donate without consent: %v", err)
	}
	if outcome.Stored || outcome.Reason != stubservice.ReasonNoConsent || outcome.ROISHA256 != "" {
		t.Fatalf("expected no_consent decline, got %+v", outcome)
	}

	consent := apiclient.Consent{DonateForImprovement: true, LegalVersions: versions}
	if err := client.UpsertConsent(ctx, auth, consent); err != nil {
		t.Fatalf("consent: %v", err)
	}
	outcome, err = client.Donate(ctx, auth, bytes.NewReader(testJPEG))
	if err != nil {
		t.Fatalf("donate: %v", err)
	}
	if !outcome.Stored || outcome.ROISHA256 == "" {
		t.Fatalf("expected stored donation, got %+v", outcome)
	}
}

func TestConsentBodyCarriesAcceptedVersions(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL, zap.NewNop())
	consent := apiclient.Consent{
		StoreProgressImages: true,
		LegalVersions:       apiclient.LegalVersions{PrivacyVersion: "p1", ConsentVersion: "c1"},
	}
	if err := client.UpsertConsent(context.Background(), apiclient.Auth{SessionID: "s"}, consent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody["accepted_privacy_version"] != "p1" || gotBody["accepted_consent_version"] != "c1" {
		t.Fatalf("versions missing from body: %v", gotBody)
	}
	if _, ok := gotBody["accepted_terms_version"]; ok {
		t.Fatalf("unset version must be omitted: %v", gotBody)
	}
}

func TestLegalAndDonateFailuresAreTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"detail":"Legal documents not configured"}`)
	}))
	defer server.Close()

	client := apiclient.NewClient(server.URL, zap.NewNop())
	ctx := context.Background()

	_, err := client.LegalBundle(ctx)
	var legalErr *apiclient.LegalError
	if !errors.As(err, &legalErr) || legalErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected LegalError, got %T: %v", err, err)
	}
	_, err = client.Donate(ctx, apiclient.Auth{SessionID: "s"}, strings.NewReader("x"))
	var donationErr *apiclient.DonationError
	if !errors.As(err, &donationErr) || !errors.Is(err, apiclient.ErrStatus) {
		t.Fatalf("expected DonationError, got %T: %v", err, err)
	}
}

func TestLegalBundleWithoutVersionsIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"privacy_policy":{"key":"privacy_policy","version":"1"}}`)
	}))
	defer server.Close()

	_, err := apiclient.NewClient(server.URL, zap.NewNop()).LegalBundle(context.Background())
	var malformed *apiclient.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
	}
}
