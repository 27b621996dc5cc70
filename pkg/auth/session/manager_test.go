package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/casadeele/storefront/pkg/auth"
	"github.com/casadeele/storefront/pkg/config"
)

type mockStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *mockStore) SessionKey(sessionID string) string {
	return fmt.Sprintf("sess:%s", sessionID)
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{Secret: "secret", Issuer: "casadeele-storefront", TTL: time.Hour}
}

func TestManagerIssueAndRevoke(t *testing.T) {
	store := newMockStore()
	manager := &Manager{cfg: testConfig(), store: store, keyer: store, now: time.Now}
	ctx := context.Background()

	issued, err := manager.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if store.ttls[store.SessionKey(issued.SessionID)] != time.Hour {
		t.Fatalf("expected session recorded with ttl")
	}

	claims, err := auth.ParseSessionToken(testConfig(), issued.Token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.SessionID.String() != issued.SessionID {
		t.Fatalf("token sid %s does not match %s", claims.SessionID, issued.SessionID)
	}

	ok, err := manager.HasSession(ctx, issued.SessionID)
	if err != nil || !ok {
		t.Fatalf("expected live session, ok=%v err=%v", ok, err)
	}

	if err := manager.Revoke(ctx, issued.SessionID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err = manager.HasSession(ctx, issued.SessionID)
	if err != nil || ok {
		t.Fatalf("expected revoked session, ok=%v err=%v", ok, err)
	}
}

func TestManagerWithoutStoreIsStateless(t *testing.T) {
	manager, err := NewManager(nil, testConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ctx := context.Background()
	issued, err := manager.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if ok, err := manager.HasSession(ctx, issued.SessionID); err != nil || !ok {
		t.Fatalf("stateless sessions are always live, ok=%v err=%v", ok, err)
	}
	if err := manager.Revoke(ctx, issued.SessionID); err != nil {
		t.Fatalf("stateless revoke should be a no-op, got %v", err)
	}
	if _, err := manager.HasSession(ctx, " "); err == nil {
		t.Fatalf("expected blank session id error")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(nil, config.SessionConfig{TTL: time.Hour}); err == nil {
		t.Fatalf("expected secret error")
	}
	if _, err := NewManager(nil, config.SessionConfig{Secret: "s"}); err == nil {
		t.Fatalf("expected ttl error")
	}
}
