package stubservice

import "time"

// Options controls the behaviour of the stub service.
type Options struct {
	// JWTSecret signs access tokens and keys the device-token hash.
	JWTSecret string
	// TokenTTL is the lifetime of minted access tokens.
	TokenTTL time.Duration
	// RequireAuth demands a bearer token plus X-Device-Token on every
	// authenticated endpoint. When false a bare session_id is accepted.
	RequireAuth bool
	// DonationStorageEnabled allows ROI samples to be donated.
	DonationStorageEnabled bool
	// ProgressStorageEnabled allows ROI progress images to be kept.
	ProgressStorageEnabled bool
	// ModelVersion is reported in every analysis.
	ModelVersion string
	// LegalVersion versions the served legal documents. Empty means the
	// documents are not configured and the bundle answers 503.
	LegalVersion string
}

// DefaultOptions returns production-like settings with a development secret.
func DefaultOptions() Options {
	return Options{
		JWTSecret:              "dev-secret",
		TokenTTL:               time.Hour,
		RequireAuth:            true,
		DonationStorageEnabled: true,
		ProgressStorageEnabled: true,
		ModelVersion:           "heuristics-0",
		LegalVersion:           "2024-06-01",
	}
}
