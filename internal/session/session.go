// Package session owns the process-wide session identity.
//
// A session is created once, the first time EnsureSession is called without a
// held or persisted session id, and is kept until Reset. It is never
// invalidated proactively, not even when the access token has expired.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/skinscan/internal/apiclient"
	"github.com/example/skinscan/internal/logging"
	"github.com/example/skinscan/internal/state"
)

// Session is the identity attached to authenticated calls.
type Session struct {
	SessionID   string
	AccessToken string
	DeviceToken string
}

// Auth converts the session into request credentials.
func (s Session) Auth() apiclient.Auth {
	return apiclient.Auth{SessionID: s.SessionID, AccessToken: s.AccessToken, DeviceToken: s.DeviceToken}
}

// ExpiresAt reads the exp claim of the access token without verifying it.
// It reports false when there is no token or the token carries no expiry.
func (s Session) ExpiresAt() (time.Time, bool) {
	if s.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Creator issues the create-session call.
type Creator interface {
	CreateSession(ctx context.Context, deviceToken string) (*apiclient.SessionResponse, error)
}

// Provider hands out the held session, creating it on first use.
type Provider struct {
	mu      sync.Mutex
	creator Creator
	store   state.Store
	logger  *zap.Logger
	now     func() time.Time
	current *Session
}

// NewProvider constructs a provider persisting identity through store.
func NewProvider(creator Creator, store state.Store, logger *zap.Logger) *Provider {
	return &Provider{
		creator: creator,
		store:   store,
		logger:  logger.Named("session"),
		now:     time.Now,
	}
}

// EnsureSession returns the held session, hydrating it from the store or
// creating it through the service when neither exists.
func (p *Provider) EnsureSession(ctx context.Context) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.warnIfExpired(*p.current)
		return *p.current, nil
	}

	snap, err := p.store.Load(ctx)
	if err != nil {
		return Session{}, logging.NewOperationError("session.load", "", err)
	}
	if snap.SessionID != "" && snap.DeviceToken != "" {
		s := Session{SessionID: snap.SessionID, AccessToken: snap.AccessToken, DeviceToken: snap.DeviceToken}
		p.current = &s
		logging.WithOperation(p.logger, "session.hydrate", s.SessionID).Info("restored persisted session")
		p.warnIfExpired(s)
		return s, nil
	}

	deviceToken := snap.DeviceToken
	if deviceToken == "" {
		deviceToken = uuid.NewString()
		if err := p.store.Update(ctx, func(s *state.Snapshot) { s.DeviceToken = deviceToken }); err != nil {
			return Session{}, logging.NewOperationError("session.persist_device", "", err)
		}
	}

	resp, err := p.creator.CreateSession(ctx, deviceToken)
	if err != nil {
		return Session{}, logging.NewOperationError("session.create", "", err)
	}

	s := Session{SessionID: resp.SessionID, DeviceToken: deviceToken}
	if resp.AccessToken != nil {
		s.AccessToken = *resp.AccessToken
	}
	p.current = &s

	opLogger := logging.WithOperation(p.logger, "session.create", s.SessionID)
	if err := p.store.Update(ctx, func(snap *state.Snapshot) {
		snap.DeviceToken = s.DeviceToken
		snap.SessionID = s.SessionID
		snap.AccessToken = s.AccessToken
	}); err != nil {
		opLogger.Warn("failed to persist session", zap.Error(err))
	}
	opLogger.Info("session created", zap.Bool("has_access_token", s.AccessToken != ""))
	return s, nil
}

// Current returns the held session without creating one.
func (p *Provider) Current() (Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Session{}, false
	}
	return *p.current, true
}

// Reset drops the held and persisted session. The device token survives so
// the next session is bound to the same install.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sid string
	if p.current != nil {
		sid = p.current.SessionID
	}
	p.current = nil
	if err := p.store.Update(ctx, func(s *state.Snapshot) { s.ClearSession() }); err != nil {
		return logging.NewOperationError("session.reset", sid, err)
	}
	logging.WithOperation(p.logger, "session.reset", sid).Info("session cleared")
	return nil
}

func (p *Provider) warnIfExpired(s Session) {
	exp, ok := s.ExpiresAt()
	if !ok || p.now().Before(exp) {
		return
	}
	logging.WithOperation(p.logger, "session.check_expiry", s.SessionID).
		Warn("access token expired", zap.Time("expired_at", exp))
}

// IsSessionError reports whether err came from a rejected create-session call.
func IsSessionError(err error) bool {
	var sessErr *apiclient.SessionError
	return errors.As(err, &sessErr)
}
