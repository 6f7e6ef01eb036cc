// Package consent keeps the user's two opt-in flags and syncs them to the
// analysis service.
package consent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/logging"
	"github.com/example/skinscan/internal/retry"
	"github.com/example/skinscan/internal/state"
)

// Syncer issues the upsert-consent call.
type Syncer interface {
	UpsertConsent(ctx context.Context, auth apiclient.Auth, consent apiclient.Consent) error
}

// Patch changes any subset of the flags. Nil fields keep their value.
// Accepted, when set, replaces the accepted legal versions.
type Patch struct {
	StoreProgressImages  *bool
	DonateForImprovement *bool
	Accepted             *apiclient.LegalVersions
}

// Apply returns c with the patch applied.
func (p Patch) Apply(c apiclient.Consent) apiclient.Consent {
	if p.StoreProgressImages != nil {
		c.StoreProgressImages = *p.StoreProgressImages
	}
	if p.DonateForImprovement != nil {
		c.DonateForImprovement = *p.DonateForImprovement
	}
	if p.Accepted != nil {
		c.LegalVersions = *p.Accepted
	}
	return c
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.StoreProgressImages == nil && p.DonateForImprovement == nil && p.Accepted == nil
}

// Store holds the current consent. Updates are applied locally first and then
// pushed to the service; a failed push leaves the local value in place.
type Store struct {
	mu      sync.Mutex
	current apiclient.Consent
	syncer  Syncer
	state   state.Store
	policy  retry.Policy
	logger  *zap.Logger
}

// NewStore constructs a consent store with both flags off.
func NewStore(syncer Syncer, st state.Store, policy retry.Policy, logger *zap.Logger) *Store {
	return &Store{
		syncer: syncer,
		state:  st,
		policy: policy,
		logger: logger.Named("consent"),
	}
}

// Hydrate loads the last intended consent from persisted state.
func (s *Store) Hydrate(ctx context.Context) error {
	snap, err := s.state.Load(ctx)
	if err != nil {
		return logging.NewOperationError("consent.hydrate", snap.SessionID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Consent != nil {
		s.current = *snap.Consent
	} else {
		s.current = apiclient.Consent{}
	}
	return nil
}

// Current returns the locally held consent.
func (s *Store) Current() apiclient.Consent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset returns both flags to false locally without syncing.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = apiclient.Consent{}
}

// Set applies patch, persists the result and upserts the full value once.
// Only transient transport failures are retried. The returned consent is
// always the new local value, even when err reports a failed sync.
func (s *Store) Set(ctx context.Context, auth apiclient.Auth, patch Patch) (apiclient.Consent, error) {
	s.mu.Lock()
	next := patch.Apply(s.current)
	s.current = next
	s.mu.Unlock()

	opLogger := logging.WithOperation(s.logger, "consent.set", auth.SessionID)
	if err := s.state.Update(ctx, func(snap *state.Snapshot) {
		c := next
		snap.Consent = &c
	}); err != nil {
		opLogger.Warn("failed to persist consent", zap.Error(err))
	}

	err := retry.Do(ctx, s.policy, s.logger, "consent.upsert", auth.SessionID, func() error {
		return s.syncer.UpsertConsent(ctx, auth, next)
	})
	if err != nil {
		opLogger.Warn("consent sync failed, keeping local value",
			zap.Bool("store_progress_images", next.StoreProgressImages),
			zap.Bool("donate_for_improvement", next.DonateForImprovement),
			logging.ErrorField(err))
		return next, err
	}
	opLogger.Debug("consent synced")
	return next, nil
}
