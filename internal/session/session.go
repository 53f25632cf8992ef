// Package session keeps console sessions: the backend token and user returned
// by login, stored server-side and referenced by a signed session token.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/maximiza/internal/config"
	"github.com/pitabwire/maximiza/model"
)

// Session is the server-side record behind a session token.
type Session struct {
	ID           string        `json:"id"`
	BackendToken string        `json:"backend_token"`
	User         model.Usuario `json:"user"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// Role returns the console role of the session user.
func (s Session) Role() model.Role {
	return model.RoleFromPerfil(s.User.Perfil)
}

// MunicipioID returns the user's municipality, or "".
func (s Session) MunicipioID() string {
	if s.User.MunicipioID == nil {
		return ""
	}
	return *s.User.MunicipioID
}

// Principal returns the guard view of the session.
func (s Session) Principal() model.Principal {
	return model.Principal{Authenticated: true, Role: s.Role(), MunicipioID: s.MunicipioID()}
}

// RequestContext builds the per-request identity for this session.
func (s Session) RequestContext(correlationID string) *model.RequestContext {
	return &model.RequestContext{
		SubjectID:     s.User.ID,
		Email:         s.User.Email,
		Name:          s.User.Nome,
		Perfil:        s.User.Perfil,
		Role:          s.Role(),
		MunicipioID:   s.MunicipioID(),
		Roles:         []string{s.User.Perfil},
		SessionID:     s.ID,
		BackendToken:  s.BackendToken,
		CorrelationID: correlationID,
	}
}

// Manager opens, resolves and closes sessions.
type Manager struct {
	store  Store
	issuer *Issuer
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a Manager over store, signing tokens with issuer.
func NewManager(store Store, issuer *Issuer, ttl time.Duration) *Manager {
	return &Manager{store: store, issuer: issuer, ttl: ttl, now: time.Now}
}

// NewManagerFromConfig builds the store and issuer described by cfg.
func NewManagerFromConfig(cfg config.SessionConfig) (*Manager, error) {
	store, err := NewStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	return NewManager(store, NewIssuer(cfg.SigningKey, cfg.Issuer, cfg.TTL), cfg.TTL), nil
}

// Store returns the underlying session store.
func (m *Manager) Store() Store { return m.store }

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Open stores a new session for a successful login and returns its signed
// token.
func (m *Manager) Open(ctx context.Context, login model.LoginResult) (string, Session, error) {
	now := m.now()
	sess := Session{
		ID:           uuid.NewString(),
		BackendToken: login.Token,
		User:         login.User,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, sess, m.ttl); err != nil {
		return "", Session{}, fmt.Errorf("session: open: %w", err)
	}
	token, err := m.issuer.Issue(sess, now)
	if err != nil {
		_ = m.store.Delete(ctx, sess.ID)
		return "", Session{}, fmt.Errorf("session: open: %w", err)
	}
	return token, sess, nil
}

// Resolve verifies token and loads its session. Invalid, expired or revoked
// tokens yield UNAUTHORIZED.
func (m *Manager) Resolve(ctx context.Context, token string) (Session, error) {
	claims, err := m.issuer.Verify(token)
	if err != nil {
		return Session{}, model.NewUnauthorizedError(err.Error())
	}
	sess, found, err := m.store.Get(ctx, claims.ID)
	if err != nil {
		return Session{}, fmt.Errorf("session: resolve: %w", err)
	}
	if !found {
		return Session{}, model.NewUnauthorizedError("Session expired")
	}
	return sess, nil
}

// Close revokes a session.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("session: close: %w", err)
	}
	return nil
}

// Update replaces the user held by a session, keeping its expiry.
func (m *Manager) Update(ctx context.Context, sess Session) error {
	ttl := sess.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return model.NewUnauthorizedError("Session expired")
	}
	return m.store.Put(ctx, sess, ttl)
}
