package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	m, err := NewJWTManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	sess, err := m.Issue("ABC123", "Frau Muster")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", sess.ExpiresAt)
	}
	claims, err := m.Parse(sess.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Code != "ABC123" || claims.DisplayName != "Frau Muster" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := m.Parse(sess.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	a, _ := NewJWTManager("secret-a", time.Hour)
	b, _ := NewJWTManager("secret-b", time.Hour)
	sess, err := a.Issue("ABC123", "x")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Parse(sess.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("token signed with another secret accepted: %v", err)
	}
	if _, err := b.Parse("  "); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token accepted: %v", err)
	}
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	if _, err := NewJWTManager(" ", time.Hour); !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("expected ErrSecretMissing, got %v", err)
	}
	m, err := NewJWTManager("s", 0)
	if err != nil || m.ttl != defaultTTL {
		t.Fatalf("ttl default not applied: %v", err)
	}
}
