package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/casadeele/storefront/pkg/auth"
	"github.com/casadeele/storefront/pkg/config"
	redisclient "github.com/casadeele/storefront/pkg/redis"
	"github.com/google/uuid"
)

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionKey(sessionID string) string
}

// Issued is what a browser receives when it opens a storefront session.
type Issued struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Checker exposes the read-only surface needed by middleware.
type Checker interface {
	HasSession(ctx context.Context, sessionID string) (bool, error)
}

// Manager mints session tokens and, when a store is configured, records live
// sessions so they can be revoked before the token expires.
type Manager struct {
	cfg   config.SessionConfig
	store sessionStore
	keyer sessionKeyer
	now   func() time.Time
}

// NewManager constructs a session manager. client may be nil, in which case
// sessions are stateless and HasSession always reports true.
func NewManager(client *redisclient.Client, cfg config.SessionConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	m := &Manager{cfg: cfg, now: time.Now}
	if client != nil {
		m.store = client
		m.keyer = client
	}
	return m, nil
}

// Issue opens a new storefront session.
func (m *Manager) Issue(ctx context.Context) (Issued, error) {
	sessionID := uuid.New()
	token, expiresAt, err := auth.MintSessionToken(m.cfg, m.now().UTC(), sessionID)
	if err != nil {
		return Issued{}, err
	}
	if m.store != nil {
		if err := m.store.Set(ctx, m.keyer.SessionKey(sessionID.String()), "1", m.cfg.TTL); err != nil {
			return Issued{}, fmt.Errorf("record session: %w", err)
		}
	}
	return Issued{SessionID: sessionID.String(), Token: token, ExpiresAt: expiresAt}, nil
}

// Revoke ends a session ahead of its token expiry.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if m.store == nil {
		return nil
	}
	return m.store.Del(ctx, m.keyer.SessionKey(sessionID))
}

// HasSession reports whether the session is still live.
func (m *Manager) HasSession(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, fmt.Errorf("session id is required")
	}
	if m.store == nil {
		return true, nil
	}
	return m.store.Exists(ctx, m.keyer.SessionKey(sessionID))
}
