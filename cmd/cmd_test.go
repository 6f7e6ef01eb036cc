package cmd

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/state"
	"github.com/example/skinscan/internal/stubservice"
)

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"scan"},
		{"consent"},
		{"progress", "list"},
		{"progress", "delete"},
		{"forget"},
		{"journal"},
		{"stub-server"},
	} {
		found, _, err := rootCmd.Find(path)
		if err != nil || found == rootCmd {
			t.Fatalf("command %v not registered: %v", path, err)
		}
	}
}

func TestDeclineGuidance(t *testing.T) {
	if got := declineGuidance("not_donated"); got == "not_donated" {
		t.Fatal("known reasons should be explained")
	}
	if got := declineGuidance("bad_value:redness_appearance"); got != "bad_value:redness_appearance" {
		t.Fatalf("unknown reasons must pass through, got %q", got)
	}
	if declineGuidance("") == "" {
		t.Fatal("empty reason needs a message")
	}
}

func TestConsentCommandPersistsAndSyncs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	opts := stubservice.DefaultOptions()
	backend := stubservice.NewBackend(opts)
	server := httptest.NewServer(stubservice.NewRouter(backend, opts, zap.NewNop()))
	defer server.Close()

	statePath := filepath.Join(t.TempDir(), "state.json")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SKINSCAN_SERVICE_BASE_URL", server.URL)
	t.Setenv("SKINSCAN_STATE_BACKEND", state.BackendFile)
	t.Setenv("SKINSCAN_STATE_PATH", statePath)
	t.Setenv("SKINSCAN_LOG_LEVEL", "error")

	rootCmd.SetArgs([]string{"consent", "--donate"})
	if err := Execute(); err != nil {
		t.Fatalf("consent command: %v", err)
	}

	snap, err := state.NewFileStore(statePath).Load(context.Background())
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if snap.SessionID == "" || snap.DeviceToken == "" {
		t.Fatalf("session not persisted: %+v", snap)
	}
	if snap.Consent == nil || !snap.Consent.DonateForImprovement || snap.Consent.StoreProgressImages {
		t.Fatalf("unexpected persisted consent %+v", snap.Consent)
	}

	if snap.Consent.TermsVersion != opts.LegalVersion {
		t.Fatalf("fetched legal versions not accepted: %+v", snap.Consent.LegalVersions)
	}

	remote, ok := backend.Consent(snap.SessionID)
	if !ok || !remote.DonateForImprovement {
		t.Fatalf("consent not synced to the service: %+v", remote)
	}
	if remote.LegalVersions != snap.Consent.LegalVersions {
		t.Fatalf("service recorded %+v, local %+v", remote.LegalVersions, snap.Consent.LegalVersions)
	}
}

func TestCommandFlags(t *testing.T) {
	for _, tc := range []struct {
		path []string
		flag string
	}{
		{[]string{"scan"}, "donate"},
		{[]string{"consent"}, "show-legal"},
		{[]string{"journal"}, "roi"},
	} {
		found, _, err := rootCmd.Find(tc.path)
		if err != nil {
			t.Fatalf("command %v: %v", tc.path, err)
		}
		if found.Flags().Lookup(tc.flag) == nil {
			t.Fatalf("command %v is missing --%s", tc.path, tc.flag)
		}
	}
}
