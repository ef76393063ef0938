package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueRequiresSigningMaterial(t *testing.T) {
	iss := NewIssuer("", "secret", nil)
	if _, err := iss.Issue("123456789", 0); err == nil {
		t.Fatal("expected error for missing sdk key")
	} else {
		var ce *ConfigurationError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConfigurationError, got %T: %v", err, err)
		}
	}

	iss = NewIssuer("key", "", nil)
	var ce *ConfigurationError
	if _, err := iss.Issue("123456789", 0); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for missing secret, got %v", err)
	}
	if ce.Missing != "sdk_secret" {
		t.Fatalf("expected sdk_secret reported missing, got %q", ce.Missing)
	}
}

func TestIssueCachesUntilExpiry(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	iss := NewIssuer("key", "secret", nil)
	iss.now = func() time.Time { return now }

	first, err := iss.Issue("123456789", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Within the validity window the exact same token comes back.
	now = base.Add(10 * time.Minute)
	second, err := iss.Issue("123456789", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if first != second {
		t.Fatal("expected cached token to be reused within validity window")
	}

	// After expiry a new token is signed (iat/exp claims move).
	now = base.Add(2 * time.Hour)
	third, err := iss.Issue("123456789", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if third == first {
		t.Fatal("expected a fresh token after expiry")
	}
}

func TestIssueKeysByMeetingAndRole(t *testing.T) {
	iss := NewIssuer("key", "secret", nil)

	a, err := iss.Issue("111", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := iss.Issue("222", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatal("tokens for different meetings must differ")
	}

	c, err := iss.Issue("111", 1)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if c == a {
		t.Fatal("tokens for different roles must differ")
	}

	// Same key pair still hits the cache.
	a2, err := iss.Issue("111", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a2 != a {
		t.Fatal("expected cache hit for same meeting/role")
	}
}
