package middleware

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stead/pkg/config"
	"stead/pkg/problems"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mintToken(t *testing.T, build func(b *jwt.Builder) *jwt.Builder) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tok, err := build(jwt.NewBuilder().Subject("user_1")).Build()
	require.NoError(t, err)
	raw, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, key))
	require.NoError(t, err)
	return string(raw)
}

func authRequest(cfg config.Config, authorization string) (*httptest.ResponseRecorder, *Principal) {
	var got *Principal
	h := BearerAuth(cfg, nil, zap.NewNop().Sugar())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := PrincipalFrom(r.Context()); ok {
			got = &p
		}
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/claims", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestBearerAuthDevBypass(t *testing.T) {
	cfg := config.Config{Env: "dev"}
	rec, principal := authRequest(cfg, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, principal)
}

func TestBearerAuthMissingBearer(t *testing.T) {
	cfg := config.Config{Env: "test"}
	rec, _ := authRequest(cfg, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var p problems.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, http.StatusUnauthorized, p.Status)
	assert.Equal(t, "Unauthorized", p.Title)
	assert.Empty(t, p.Reason)
}

func TestBearerAuthValidToken(t *testing.T) {
	cfg := config.Config{Env: "test", PermittedOrigins: []string{"https://*.example.com"}}
	raw := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://app.example.com").Expiration(time.Now().Add(time.Hour))
	})
	rec, principal := authRequest(cfg, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	assert.Equal(t, "user_1", principal.Subject)
	assert.Equal(t, "https://app.example.com", principal.Origin)
}

func TestBearerAuthRejectionsAreUniform(t *testing.T) {
	cfg := config.Config{Env: "test", PermittedOrigins: []string{"https://app.example.com"}}

	expired := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://app.example.com").Expiration(time.Now().Add(-time.Minute))
	})
	wrongOrigin := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://evil.test").Expiration(time.Now().Add(time.Hour))
	})
	notYet := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://app.example.com").NotBefore(time.Now().Add(time.Hour))
	})

	bodies := make([]string, 0, 3)
	for _, raw := range []string{expired, wrongOrigin, notYet} {
		rec, principal := authRequest(cfg, "Bearer "+raw)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, principal)
		b, _ := io.ReadAll(rec.Body)
		bodies = append(bodies, string(b))
	}
	// The response must not leak which check failed.
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[1], bodies[2])
}

func TestBearerAuthAbsentTimingClaims(t *testing.T) {
	cfg := config.Config{Env: "test", PermittedOrigins: []string{"https://app.example.com"}}
	raw := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://app.example.com")
	})
	rec, principal := authRequest(cfg, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
}

func TestBearerAuthNoOriginListConfigured(t *testing.T) {
	cfg := config.Config{Env: "test"}
	raw := mintToken(t, func(b *jwt.Builder) *jwt.Builder {
		return b.Claim("azp", "https://anything.anywhere").Expiration(time.Now().Add(time.Hour))
	})
	rec, principal := authRequest(cfg, "Bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
}

func TestLimiterKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/claim", nil)
	req.RemoteAddr = "10.1.2.3:4444"
	assert.Equal(t, "10.1.2.3", limiterKey(req))

	ctx := context.WithValue(req.Context(), CtxKeyPrincipal, Principal{Subject: "user_7"})
	assert.Equal(t, "user_7", limiterKey(req.WithContext(ctx)))
}
