// Package authz decides whether a decoded bearer token may act for a
// deployment. It is pure: callers parse the JWT, hand over the payload and
// the deployment's permitted-origin patterns, and inject the clock.
package authz

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrExpired         = errors.New("expired")
	ErrNotYetValid     = errors.New("not_yet_valid")
	ErrOriginForbidden = errors.New("origin_forbidden")
)

// TokenPayload carries the claims authorization reads. Expiry and NotBefore
// are epoch seconds; nil means the token omits the claim and the check is
// skipped.
type TokenPayload struct {
	AuthorizedParty string
	Expiry          *int64
	NotBefore       *int64
}

// ParsePermittedOrigins splits a comma-separated origin list, trimming each
// entry and dropping empties. Order is preserved though matching treats the
// list as a set.
func ParsePermittedOrigins(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MatchOrigin reports whether azp satisfies any of the permitted patterns.
// An empty pattern list admits everything. A pattern is an exact origin or
// contains `*`, which stands for one or more characters within a single
// dot-separated segment, so "https://*.example.com" admits
// "https://sub.example.com" but not "https://example.com" nor
// "https://a.b.example.com". Comparison is case-sensitive and ports are
// literal.
func MatchOrigin(azp string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchPattern(p, azp) {
			return true
		}
	}
	return false
}

// matchPattern aligns dot-separated segments one to one, then matches each
// segment with matchSegment. Dots never match a wildcard, so segment counts
// must agree.
func matchPattern(pattern, origin string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == origin
	}
	ps := strings.Split(pattern, ".")
	os := strings.Split(origin, ".")
	if len(ps) != len(os) {
		return false
	}
	for i := range ps {
		if !matchSegment(ps[i], os[i]) {
			return false
		}
	}
	return true
}

// matchSegment matches one dot-free segment. Each `*` consumes one or more
// characters.
func matchSegment(pattern, s string) bool {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return pattern == s
	}
	if !strings.HasPrefix(s, pattern[:i]) {
		return false
	}
	rest := pattern[i+1:]
	s = s[i:]
	for n := 1; n <= len(s); n++ {
		if matchSegment(rest, s[n:]) {
			return true
		}
	}
	return false
}

// ValidateTiming checks exp and nbf against now. Expiry is inclusive: a
// token whose exp equals the current second is already expired. NotBefore
// is exclusive: a token becomes valid at exactly nbf.
func ValidateTiming(p TokenPayload, now time.Time) error {
	ts := now.Unix()
	if p.Expiry != nil && *p.Expiry <= ts {
		return ErrExpired
	}
	if p.NotBefore != nil && *p.NotBefore > ts {
		return ErrNotYetValid
	}
	return nil
}

// Authorize runs the timing checks and then the origin check. The returned
// error names which check failed; callers answer 401 uniformly and keep the
// reason for their logs.
func Authorize(p TokenPayload, patterns []string, now time.Time) error {
	if err := ValidateTiming(p, now); err != nil {
		return err
	}
	if !MatchOrigin(p.AuthorizedParty, patterns) {
		return ErrOriginForbidden
	}
	return nil
}
