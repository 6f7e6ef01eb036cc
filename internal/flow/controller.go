// Package flow drives the scan screens: bootstrap, consent, capture, review,
// results, labeling and settings.
//
// The Controller is safe to call from a UI goroutine while other goroutines
// wait on network calls. Its lock is never held across a call. Each Action
// allows one call in flight; a late analyze or label response for a scan that
// is no longer active is discarded and reported as ErrStale.
package flow

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/capture"
	"github.com/example/skinscan/internal/consent"
	"github.com/example/skinscan/internal/journal"
	"github.com/example/skinscan/internal/label"
	"github.com/example/skinscan/internal/session"
)

// SessionProvider owns the session identity.
type SessionProvider interface {
	EnsureSession(ctx context.Context) (session.Session, error)
	Reset(ctx context.Context) error
}

// ConsentStore owns the consent flags.
type ConsentStore interface {
	Hydrate(ctx context.Context) error
	Current() apiclient.Consent
	Set(ctx context.Context, auth apiclient.Auth, patch consent.Patch) (apiclient.Consent, error)
	Reset()
}

// API is the subset of the analysis service used after bootstrap.
type API interface {
	Analyze(ctx context.Context, auth apiclient.Auth, image io.Reader) (*apiclient.AnalysisResult, error)
	AnalyzeROI(ctx context.Context, auth apiclient.Auth, image io.Reader) (*apiclient.AnalysisResult, error)
	LabelSample(ctx context.Context, auth apiclient.Auth, sub label.Submission) (apiclient.LabelOutcome, error)
	DeleteProgress(ctx context.Context, auth apiclient.Auth) error
	ListProgress(ctx context.Context, auth apiclient.Auth) ([]apiclient.ProgressEntry, error)
	DeleteMe(ctx context.Context, auth apiclient.Auth) (*apiclient.DeleteMeResult, error)
	LegalBundle(ctx context.Context) (*apiclient.LegalBundle, error)
	Donate(ctx context.Context, auth apiclient.Auth, image io.Reader) (apiclient.DonationOutcome, error)
}

// Deps are the collaborators of a Controller. Journal may be nil.
type Deps struct {
	Sessions SessionProvider
	Consent  ConsentStore
	API      API
	Journal  journal.Journal
}

// Controller is the scan flow state machine.
type Controller struct {
	mu         sync.Mutex
	state      State
	session    *session.Session
	photo      *capture.Photo
	result     *apiclient.AnalysisResult
	outcome    *apiclient.LabelOutcome
	legal      *apiclient.LegalBundle
	generation uint64
	busy       map[Action]bool

	sessions SessionProvider
	consent  ConsentStore
	api      API
	journal  journal.Journal
	logger   *zap.Logger
	now      func() time.Time
}

// NewController returns a controller in StateBootstrapping.
func NewController(deps Deps, logger *zap.Logger) *Controller {
	j := deps.Journal
	if j == nil {
		j = journal.Nop{}
	}
	return &Controller{
		state:    StateBootstrapping,
		busy:     make(map[Action]bool),
		sessions: deps.Sessions,
		consent:  deps.Consent,
		api:      deps.API,
		journal:  j,
		logger:   logger.Named("flow"),
		now:      time.Now,
	}
}

// State returns the current screen.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether action has a call in flight.
func (c *Controller) Busy(action Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy[action]
}

// Session returns the established session, if any.
func (c *Controller) Session() (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return session.Session{}, false
	}
	return *c.session, true
}

// Consent returns the locally held consent.
func (c *Controller) Consent() apiclient.Consent {
	return c.consent.Current()
}

// Legal returns the legal documents fetched for the consent screen, if any.
func (c *Controller) Legal() *apiclient.LegalBundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.legal
}

// Photo returns the photo awaiting analysis.
func (c *Controller) Photo() *capture.Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.photo
}

// Result returns the analysis of the current scan.
func (c *Controller) Result() *apiclient.AnalysisResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// LastOutcome returns the answer to the latest label submission of this scan.
func (c *Controller) LastOutcome() (apiclient.LabelOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcome == nil {
		return apiclient.LabelOutcome{}, false
	}
	return *c.outcome, true
}

// CanLabel reports whether the label screen is reachable right now.
func (c *Controller) CanLabel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canLabelLocked()
}

func (c *Controller) canLabelLocked() bool {
	if c.state != StateResults {
		return false
	}
	_, ok := c.result.ROI()
	return ok
}

// acquire marks action busy. Callers hold c.mu.
func (c *Controller) acquire(action Action) error {
	if c.busy[action] {
		return ErrBusy
	}
	c.busy[action] = true
	return nil
}

func (c *Controller) release(action Action) {
	c.mu.Lock()
	delete(c.busy, action)
	c.mu.Unlock()
}

// authLocked returns the credentials of the established session.
func (c *Controller) authLocked(event string) (apiclient.Auth, error) {
	if c.session == nil || c.state == StateBootstrapping {
		return apiclient.Auth{}, invalid(event, c.state)
	}
	return c.session.Auth(), nil
}

// discardScanLocked drops the photo, result and outcome and invalidates any
// response still in flight for them.
func (c *Controller) discardScanLocked() {
	c.photo = nil
	c.result = nil
	c.outcome = nil
	c.generation++
}
