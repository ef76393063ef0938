// Package token issues time-bounded signed credentials authorizing a
// meeting join, with a TTL cache keyed by (meeting, role).
package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Tokens are back-dated to absorb clock skew between us and the meeting
	// platform, and live for one hour from the back-dated instant.
	skewBuffer = 30 * time.Second
	validity   = time.Hour
)

// ConfigurationError reports missing signing material. It is fatal for the
// whole request: no dispatch is attempted without a token.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("token: missing signing configuration: %s", e.Missing)
}

// Issuer signs meeting-join tokens (HS256) and caches them until expiry.
type Issuer struct {
	sdkKey    string
	sdkSecret string
	cache     Cache

	// now is overridable in tests.
	now func() time.Time
}

func NewIssuer(sdkKey, sdkSecret string, cache Cache) *Issuer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Issuer{
		sdkKey:    strings.TrimSpace(sdkKey),
		sdkSecret: strings.TrimSpace(sdkSecret),
		cache:     cache,
		now:       time.Now,
	}
}

// Issue returns a signed join token for meetingID with the given role.
// A previously issued token is reused while its expiry is still in the
// future; otherwise a fresh one is signed and cached.
func (i *Issuer) Issue(meetingID string, role int) (string, error) {
	if i.sdkKey == "" {
		return "", &ConfigurationError{Missing: "sdk_key"}
	}
	if i.sdkSecret == "" {
		return "", &ConfigurationError{Missing: "sdk_secret"}
	}

	key := cacheKey(meetingID, role)
	now := i.now()
	if tok, expiry, ok := i.cache.Get(key); ok && expiry.After(now) {
		return tok, nil
	}

	iat := now.Add(-skewBuffer)
	exp := iat.Add(validity)

	claims := jwt.MapClaims{
		"appKey":   i.sdkKey,
		"sdkKey":   i.sdkKey,
		"mn":       meetingID,
		"role":     role,
		"iat":      iat.Unix(),
		"exp":      exp.Unix(),
		"tokenExp": exp.Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.sdkSecret))
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	i.cache.Set(key, tok, exp)
	return tok, nil
}

func cacheKey(meetingID string, role int) string {
	return meetingID + "|" + strconv.Itoa(role)
}
