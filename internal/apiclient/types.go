package apiclient

import (
	"encoding/json"
	"time"
)

// Auth is the identity attached to every authenticated call.
type Auth struct {
	SessionID   string
	AccessToken string
	DeviceToken string
}

// SessionResponse is returned by POST /v1/session.
type SessionResponse struct {
	SessionID   string  `json:"session_id" validate:"required"`
	AccessToken *string `json:"access_token"`
}

// Consent holds the two independent opt-in flags and the legal document
// versions they were given against.
type Consent struct {
	StoreProgressImages  bool `json:"store_progress_images"`
	DonateForImprovement bool `json:"donate_for_improvement"`
	LegalVersions
}

// LegalVersions names the accepted legal document versions. Empty fields are
// omitted and the service stamps its current version instead.
type LegalVersions struct {
	PrivacyVersion string `json:"accepted_privacy_version,omitempty"`
	TermsVersion   string `json:"accepted_terms_version,omitempty"`
	ConsentVersion string `json:"accepted_consent_version,omitempty"`
}

// Empty reports whether no version is set.
func (v LegalVersions) Empty() bool {
	return v == LegalVersions{}
}

// Legal document keys.
const (
	DocPrivacyPolicy = "privacy_policy"
	DocTermsOfUse    = "terms_of_use"
	DocConsentCopy   = "consent_copy"
)

// LegalDoc is one versioned legal document.
type LegalDoc struct {
	Key          string `json:"key" validate:"required,oneof=privacy_policy terms_of_use consent_copy"`
	Version      string `json:"version" validate:"required"`
	EffectiveAt  string `json:"effective_at"`
	BodyMarkdown string `json:"body_markdown"`
}

// LegalBundle is returned by GET /v1/legal/bundle.
type LegalBundle struct {
	PrivacyPolicy LegalDoc `json:"privacy_policy"`
	TermsOfUse    LegalDoc `json:"terms_of_use"`
	ConsentCopy   LegalDoc `json:"consent_copy"`
}

// Versions returns the versions a user accepts by consenting while the
// bundle is shown.
func (b *LegalBundle) Versions() LegalVersions {
	if b == nil {
		return LegalVersions{}
	}
	return LegalVersions{
		PrivacyVersion: b.PrivacyPolicy.Version,
		TermsVersion:   b.TermsOfUse.Version,
		ConsentVersion: b.ConsentCopy.Version,
	}
}

// RegionStatus reports whether a face region had enough skin to score.
type RegionStatus string

const (
	RegionOK               RegionStatus = "ok"
	RegionInsufficientSkin RegionStatus = "insufficient_skin"
)

// QualityReport describes capture conditions.
type QualityReport struct {
	Lighting        string `json:"lighting" validate:"omitempty,oneof=ok low harsh"`
	Blur            string `json:"blur" validate:"omitempty,oneof=low medium high"`
	Angle           string `json:"angle" validate:"omitempty,oneof=ok bad"`
	MakeupSuspected bool   `json:"makeup_suspected"`
}

// AttributeScore is one scored appearance attribute.
type AttributeScore struct {
	Key        string  `json:"key" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0,lte=1"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// RegionResult is the per-region breakdown.
type RegionResult struct {
	Name       string           `json:"name" validate:"required"`
	Status     RegionStatus     `json:"status" validate:"required,oneof=ok insufficient_skin"`
	Quality    *QualityReport   `json:"quality,omitempty"`
	Attributes []AttributeScore `json:"attributes" validate:"dive"`
}

// Routine holds suggested morning and evening steps.
type Routine struct {
	AM []string `json:"AM" validate:"required"`
	PM []string `json:"PM" validate:"required"`
}

// Donation reports what happened to the ROI sample donation.
type Donation struct {
	Enabled bool    `json:"enabled"`
	Stored  bool    `json:"stored"`
	Reason  *string `json:"reason"`
}

// AnalysisResult is the validated response of an analyze call. Optional
// blocks are pointers; nil means the service did not send them.
type AnalysisResult struct {
	Disclaimer            string           `json:"disclaimer"`
	ModelVersion          string           `json:"model_version"`
	Quality               *QualityReport   `json:"quality,omitempty"`
	Attributes            []AttributeScore `json:"attributes" validate:"required,dive"`
	Regions               []RegionResult   `json:"regions" validate:"required,dive"`
	Routine               *Routine         `json:"routine" validate:"required"`
	ProfessionalToDiscuss []string         `json:"professional_to_discuss" validate:"required"`
	WhenToSeekCare        []string         `json:"when_to_seek_care" validate:"required"`
	StoredForProgress     bool             `json:"stored_for_progress"`
	Donation              *Donation        `json:"donation,omitempty"`
	ROISHA256             *string          `json:"roi_sha256,omitempty"`
}

// ROI returns the content identifier of the analysed region, if the service
// kept one.
func (r *AnalysisResult) ROI() (string, bool) {
	if r == nil || r.ROISHA256 == nil || *r.ROISHA256 == "" {
		return "", false
	}
	return *r.ROISHA256, true
}

// DonationStored reports whether the ROI sample was retained for labeling.
func (r *AnalysisResult) DonationStored() bool {
	return r != nil && r.Donation != nil && r.Donation.Stored
}

// storedResponse is the wire form of POST /v1/label and POST /v1/donate.
type storedResponse struct {
	Stored    *bool   `json:"stored" validate:"required"`
	Reason    *string `json:"reason"`
	ROISHA256 *string `json:"roi_sha256"`
}

// LabelOutcome is the result of a label submission that reached the service.
// Stored=false is a normal, recoverable outcome and carries the reason.
type LabelOutcome struct {
	Stored bool
	Reason string
}

// Declined reports whether the service chose not to persist the label.
func (o LabelOutcome) Declined() bool {
	return !o.Stored
}

// DonationOutcome is the answer to an explicit donation. Stored=false is a
// normal outcome and carries the reason, such as no_consent.
type DonationOutcome struct {
	Stored    bool
	Reason    string
	ROISHA256 string
}

// ProgressEntry is one stored progress analysis.
type ProgressEntry struct {
	ID          int64           `json:"id"`
	CreatedAt   string          `json:"created_at" validate:"required"`
	StoredImage bool            `json:"stored_image"`
	Result      json.RawMessage `json:"result"`
}

// Time parses CreatedAt, which the service sends without a zone (UTC).
func (p ProgressEntry) Time() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.999999", p.CreatedAt)
}

// DeleteMeResult summarises a full data deletion.
type DeleteMeResult struct {
	DeletedProgressEntries int  `json:"deleted_progress_entries"`
	WithdrawnDonations     int  `json:"withdrawn_donations"`
	DeletedConsent         bool `json:"deleted_consent"`
	DeletedSession         bool `json:"deleted_session"`
}
