package stubservice

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/label"
)

// Decline reasons returned by the label endpoint.
const (
	ReasonStored          = "stored"
	ReasonSessionNotFound = "session_not_found"
	ReasonNoConsent       = "no_consent"
	ReasonNotDonated      = "not_donated"
	ReasonBadValuePrefix  = "bad_value:"

	reasonDonationDisabled = "donation_storage_disabled"
	reasonAlreadyDonated   = "already_donated"
	reasonDuplicateOther   = "duplicate_other_session"
	reasonNoConsentDonate  = "no_consent"
)

type sessionRecord struct {
	id         string
	deviceHash string
	consent    *apiclient.Consent
	progress   []apiclient.ProgressEntry
}

type donatedSample struct {
	sessionID string
	labels    *label.Submission
	labeledAt time.Time
	withdrawn bool
}

// Backend is the in-memory state behind the stub service.
type Backend struct {
	mu             sync.Mutex
	opts           Options
	now            func() time.Time
	sessions       map[string]*sessionRecord
	donations      map[string]*donatedSample
	nextProgressID int64
	startedAt      time.Time
}

// NewBackend creates an empty backend.
func NewBackend(opts Options) *Backend {
	return &Backend{
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*sessionRecord),
		donations: make(map[string]*donatedSample),
		startedAt: time.Now(),
	}
}

func (b *Backend) createSession(deviceHash string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New()
	sid := hex.EncodeToString(id[:])
	b.sessions[sid] = &sessionRecord{id: sid, deviceHash: deviceHash}
	return sid
}

func (b *Backend) hasSession(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[id]
	return ok
}

func (b *Backend) sessionMatches(id, deviceHash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	return ok && s.deviceHash == deviceHash
}

// Consent returns the stored consent for a session.
func (b *Backend) Consent(sessionID string) (apiclient.Consent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok || s.consent == nil {
		return apiclient.Consent{}, false
	}
	return *s.consent, true
}

func (b *Backend) upsertConsent(sessionID string, consent apiclient.Consent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	c := consent
	s.consent = &c
	return true
}

// analyze scores the image and applies the session's storage and donation
// consent.
func (b *Backend) analyze(sessionID string, image []byte) apiclient.AnalysisResult {
	sum := sha256.Sum256(image)
	roi := hex.EncodeToString(sum[:])
	result := scoreImage(sum, b.opts.ModelVersion)
	result.ROISHA256 = &roi

	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.sessions[sessionID]

	donation := &apiclient.Donation{}
	if s != nil && s.consent != nil {
		if s.consent.StoreProgressImages && b.opts.ProgressStorageEnabled {
			b.nextProgressID++
			payload, _ := json.Marshal(result)
			s.progress = append(s.progress, apiclient.ProgressEntry{
				ID:          b.nextProgressID,
				CreatedAt:   b.now().UTC().Format("2006-01-02T15:04:05.999999"),
				StoredImage: true,
				Result:      payload,
			})
			result.StoredForProgress = true
		}
		if s.consent.DonateForImprovement {
			donation.Enabled = true
			donation.Stored, donation.Reason = b.donateLocked(sessionID, roi)
		}
	}
	if !donation.Enabled {
		reason := reasonNoConsentDonate
		donation.Reason = &reason
	}
	result.Donation = donation
	return result
}

func (b *Backend) donateLocked(sessionID, roi string) (bool, *string) {
	reason := ReasonStored
	stored := true
	switch existing, ok := b.donations[roi]; {
	case !b.opts.DonationStorageEnabled:
		reason, stored = reasonDonationDisabled, false
	case ok && existing.sessionID == sessionID && !existing.withdrawn:
		reason = reasonAlreadyDonated
	case ok && existing.sessionID != sessionID:
		reason, stored = reasonDuplicateOther, false
	default:
		b.donations[roi] = &donatedSample{sessionID: sessionID}
	}
	return stored, &reason
}

// donate keeps the ROI of an explicitly donated image. ok is false when the
// session does not exist; missing consent is a declined donation.
func (b *Backend) donate(sessionID string, image []byte) (stored bool, reason, roi string, ok bool) {
	sum := sha256.Sum256(image)

	b.mu.Lock()
	defer b.mu.Unlock()
	s, found := b.sessions[sessionID]
	if !found {
		return false, ReasonSessionNotFound, "", false
	}
	if s.consent == nil || !s.consent.DonateForImprovement {
		return false, ReasonNoConsent, "", true
	}
	roi = hex.EncodeToString(sum[:])
	stored, r := b.donateLocked(sessionID, roi)
	return stored, *r, roi, true
}

// storeLabels attaches labels to a donated sample owned by the session.
func (b *Backend) storeLabels(sessionID string, sub label.Submission) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return false, ReasonSessionNotFound
	}
	if s.consent == nil || !s.consent.DonateForImprovement {
		return false, ReasonNoConsent
	}
	for key, v := range sub.Labels {
		if v < 0 || v > 1 {
			return false, ReasonBadValuePrefix + string(key)
		}
	}
	d, ok := b.donations[sub.ROISHA256]
	if !ok || d.sessionID != sessionID || d.withdrawn {
		return false, ReasonNotDonated
	}
	labelled := sub
	d.labels = &labelled
	d.labeledAt = b.now()
	return true, ReasonStored
}

// Labels returns the labels stored for a sample.
func (b *Backend) Labels(roi string) (label.Submission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.donations[roi]
	if !ok || d.labels == nil {
		return label.Submission{}, false
	}
	return *d.labels, true
}

func (b *Backend) listProgress(sessionID string) []apiclient.ProgressEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]apiclient.ProgressEntry, 0, len(s.progress))
	for i := len(s.progress) - 1; i >= 0 && len(out) < 50; i-- {
		out = append(out, s.progress[i])
	}
	return out
}

func (b *Backend) deleteProgress(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return 0
	}
	n := len(s.progress)
	s.progress = nil
	return n
}

func (b *Backend) deleteMe(sessionID string) apiclient.DeleteMeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return apiclient.DeleteMeResult{}
	}
	res := apiclient.DeleteMeResult{
		DeletedProgressEntries: len(s.progress),
		DeletedConsent:         s.consent != nil,
		DeletedSession:         true,
	}
	for _, d := range b.donations {
		if d.sessionID == sessionID && !d.withdrawn {
			d.withdrawn = true
			d.labels = nil
			res.WithdrawnDonations++
		}
	}
	delete(b.sessions, sessionID)
	return res
}
