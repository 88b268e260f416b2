package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stead/internal/admission"
	"stead/internal/registry"
	"stead/internal/webhook"
	"stead/pkg/config"
	"stead/pkg/metrics"
)

const testSecret = "whsec_test"

func newTestApp(t *testing.T, cfg config.Config, pol registry.Policy, guard *admission.Guard, store registry.Store) *App {
	t.Helper()
	log := zap.NewNop().Sugar()
	if store == nil {
		store = registry.NewMemoryStore()
	}
	reg, err := registry.New(context.Background(), store, pol, log)
	require.NoError(t, err)
	hooks := webhook.New([]byte(testSecret), 5*time.Minute, webhook.DefaultProfile(), webhook.NewMemoryDeduper(time.Hour), reg, log)
	return New(cfg, log, reg, hooks, guard, metrics.New("stead"), nil)
}

func devConfig() config.Config {
	return config.Config{Env: "dev"}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearerFor(t *testing.T, subject string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tok, err := jwt.NewBuilder().Subject(subject).Expiration(time.Now().Add(time.Hour)).Build()
	require.NoError(t, err)
	raw, err := jwt.Sign(tok, jwt.WithKey(jwa.ES256, key))
	require.NoError(t, err)
	return "Bearer " + string(raw)
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t, devConfig(), registry.Policy{}, nil, nil)
	rec := doJSON(t, app.Handler(), http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestCheckSubdomain(t *testing.T) {
	pol := registry.Policy{
		Reserved:     []string{"admin"},
		Preallocated: map[string]string{"acme": "user_9"},
	}
	app := newTestApp(t, devConfig(), pol, nil, nil)
	_, err := app.reg.CreateClaim(context.Background(), "taken", "user_1")
	require.NoError(t, err)
	h := app.Handler()

	cases := []struct {
		path      string
		available bool
		reason    registry.Reason
		owner     string
	}{
		{"/check/fresh-name", true, "", ""},
		{"/check/admin", false, registry.ReasonReserved, ""},
		{"/check/acme", false, registry.ReasonPreallocated, "user_9"},
		{"/check/taken", false, registry.ReasonClaimed, "user_1"},
		{"/check/TAKEN", false, registry.ReasonClaimed, "user_1"},
		{"/check/ab", false, registry.ReasonTooShort, ""},
		{"/check/" + strings.Repeat("a", 64), false, registry.ReasonTooLong, ""},
		{"/check/-bad-", false, registry.ReasonInvalidFormat, ""},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodGet, tc.path, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			var av registry.Availability
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &av))
			assert.Equal(t, tc.available, av.Available)
			assert.Equal(t, tc.reason, av.Reason)
			assert.Equal(t, tc.owner, av.OwnerID)
		})
	}
}

func TestCreateClaim(t *testing.T) {
	pol := registry.Policy{Reserved: []string{"admin"}}
	app := newTestApp(t, devConfig(), pol, nil, nil)
	h := app.Handler()

	t.Run("claims and normalizes", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "  My-Site ", OwnerID: "user_1"}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"success":true,"subdomain":"my-site"}`, rec.Body.String())
		assert.Equal(t, "user_1", app.reg.CheckAvailability("my-site").OwnerID)
	})

	t.Run("conflict on taken name", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "my-site", OwnerID: "user_2"}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		var res claimResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, string(registry.ReasonClaimed), res.Error)
	})

	t.Run("reserved is a conflict", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "admin", OwnerID: "user_2"}, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		var res claimResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, string(registry.ReasonReserved), res.Error)
	})

	t.Run("malformed names are 400", func(t *testing.T) {
		for name, reason := range map[string]registry.Reason{
			"ab":                    registry.ReasonTooShort,
			strings.Repeat("a", 64): registry.ReasonTooLong,
			"has_underscore":        registry.ReasonInvalidFormat,
			"-leading":              registry.ReasonInvalidFormat,
		} {
			rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: name, OwnerID: "user_2"}, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code, name)
			var res claimResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, string(reason), res.Error, name)
		}
	})

	t.Run("invalid json is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claim", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"bad_request"}`, rec.Body.String())
	})

	t.Run("owner required without token", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "another-site"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateClaimOwnerFromToken(t *testing.T) {
	cfg := config.Config{Env: "test"}
	app := newTestApp(t, cfg, registry.Policy{}, nil, nil)
	h := app.Handler()

	t.Run("token subject wins over body owner", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim",
			claimBody{Subdomain: "token-site", OwnerID: "someone-else"},
			map[string]string{"Authorization": bearerFor(t, "user_9")})
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"success":true,"subdomain":"token-site"}`, rec.Body.String())
		assert.Equal(t, "user_9", app.reg.CheckAvailability("token-site").OwnerID)
	})

	t.Run("no token is 401 outside dev", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "other-site", OwnerID: "user_1"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestReleaseClaim(t *testing.T) {
	t.Run("idempotent in dev", func(t *testing.T) {
		app := newTestApp(t, devConfig(), registry.Policy{}, nil, nil)
		h := app.Handler()
		_, err := app.reg.CreateClaim(context.Background(), "my-site", "user_1")
		require.NoError(t, err)

		rec := doJSON(t, h, http.MethodDelete, "/claim/my-site", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"released":true}`, rec.Body.String())

		rec = doJSON(t, h, http.MethodDelete, "/claim/my-site", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"released":false}`, rec.Body.String())
	})

	t.Run("only the owner may release", func(t *testing.T) {
		app := newTestApp(t, config.Config{Env: "test"}, registry.Policy{}, nil, nil)
		h := app.Handler()
		_, err := app.reg.CreateClaim(context.Background(), "their-site", "user_2")
		require.NoError(t, err)

		rec := doJSON(t, h, http.MethodDelete, "/claim/their-site", nil,
			map[string]string{"Authorization": bearerFor(t, "user_9")})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = doJSON(t, h, http.MethodDelete, "/claim/their-site", nil,
			map[string]string{"Authorization": bearerFor(t, "user_2")})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"released":true}`, rec.Body.String())
	})
}

func TestListClaims(t *testing.T) {
	store := registry.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, registry.Claim{Subdomain: "b-site", OwnerID: "user_1", ClaimedAt: base}))
	require.NoError(t, store.Insert(ctx, registry.Claim{Subdomain: "a-site", OwnerID: "user_1", ClaimedAt: base.Add(time.Minute)}))
	app := newTestApp(t, devConfig(), registry.Policy{}, nil, store)
	h := app.Handler()

	t.Run("newest first", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/claims?owner_id=user_1", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Claims []registry.Claim `json:"claims"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Claims, 2)
		assert.Equal(t, "a-site", body.Claims[0].Subdomain)
		assert.Equal(t, "b-site", body.Claims[1].Subdomain)
	})

	t.Run("unknown owner gets empty list", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/claims?owner_id=nobody", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"claims":[]}`, rec.Body.String())
	})

	t.Run("owner required", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodGet, "/claims", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func signedWebhook(t *testing.T, h http.Handler, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	header := webhook.Sign([]byte(testSecret), body, time.Now().Unix())
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, header)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook(t *testing.T) {
	newApp := func(t *testing.T) *App {
		store := registry.NewMemoryStore()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		ctx := context.Background()
		require.NoError(t, store.Insert(ctx, registry.Claim{Subdomain: "site-a", OwnerID: "user_1", ClaimedAt: base}))
		require.NoError(t, store.Insert(ctx, registry.Claim{Subdomain: "site-b", OwnerID: "user_1", ClaimedAt: base.Add(time.Minute)}))
		return newTestApp(t, devConfig(), registry.Policy{}, nil, store)
	}

	t.Run("downgrade releases newest first", func(t *testing.T) {
		app := newApp(t)
		rec := signedWebhook(t, app.Handler(), map[string]any{
			"id": "evt_1", "type": "subscription.updated", "ownerId": "user_1", "quantity": 1,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"released":["site-b"]}`, rec.Body.String())
		assert.Equal(t, 1, app.reg.ActiveCount())
	})

	t.Run("cancellation releases everything", func(t *testing.T) {
		app := newApp(t)
		rec := signedWebhook(t, app.Handler(), map[string]any{
			"id": "evt_2", "type": "subscription.deleted", "ownerId": "user_1", "quantity": 0,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"released":["site-b","site-a"]}`, rec.Body.String())
		assert.Equal(t, 0, app.reg.ActiveCount())
	})

	t.Run("duplicate delivery is acknowledged without effect", func(t *testing.T) {
		app := newApp(t)
		h := app.Handler()
		payload := map[string]any{"id": "evt_3", "type": "subscription.updated", "ownerId": "user_1", "quantity": 1}
		rec := signedWebhook(t, h, payload)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 1, app.reg.ActiveCount())

		rec = signedWebhook(t, h, payload)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"released":[]}`, rec.Body.String())
		assert.Equal(t, 1, app.reg.ActiveCount())
	})

	t.Run("wrong secret is 401", func(t *testing.T) {
		app := newApp(t)
		body, _ := json.Marshal(map[string]any{"id": "evt_4", "type": "subscription.updated", "ownerId": "user_1", "quantity": 0})
		header := webhook.Sign([]byte("whsec_other"), body, time.Now().Unix())
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, header)
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 2, app.reg.ActiveCount())
	})

	t.Run("missing signature is 401", func(t *testing.T) {
		app := newApp(t)
		body := []byte(`{"id":"evt_5","type":"subscription.updated","ownerId":"user_1","quantity":0}`)
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp is 401", func(t *testing.T) {
		app := newApp(t)
		body, _ := json.Marshal(map[string]any{"id": "evt_6", "type": "subscription.updated", "ownerId": "user_1", "quantity": 0})
		header := webhook.Sign([]byte(testSecret), body, time.Now().Add(-time.Hour).Unix())
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
		req.Header.Set(webhook.SignatureHeader, header)
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, 2, app.reg.ActiveCount())
	})

	t.Run("unreadable payload is 400", func(t *testing.T) {
		app := newApp(t)
		rec := signedWebhook(t, app.Handler(), map[string]any{"id": "evt_7", "type": "subscription.updated"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAdmissionGuardDeniesClaim(t *testing.T) {
	const policy = `
package claims

default decide = {"allow": true, "reasons": []}

decide = {"allow": false, "reasons": ["owner_at_limit"]} {
	input.existing_claims >= 1
}
`
	guard := admission.NewGuard(policy, zap.NewNop().Sugar())
	app := newTestApp(t, devConfig(), registry.Policy{}, guard, nil)
	h := app.Handler()

	rec := doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "first-site", OwnerID: "user_1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/claim", claimBody{Subdomain: "second-site", OwnerID: "user_1"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var res claimResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Contains(t, res.Error, "owner_at_limit")
}

func TestWebhookIgnoresUnacceptedTypes(t *testing.T) {
	log := zap.NewNop().Sugar()
	reg, err := registry.New(context.Background(), registry.NewMemoryStore(), registry.Policy{}, log)
	require.NoError(t, err)
	_, err = reg.CreateClaim(context.Background(), "kept-site", "user_1")
	require.NoError(t, err)

	profile := webhook.DefaultProfile()
	profile.Accept = []string{"subscription.updated", "subscription.deleted"}
	hooks := webhook.New([]byte(testSecret), 5*time.Minute, profile, webhook.NewMemoryDeduper(time.Hour), reg, log)
	app := New(devConfig(), log, reg, hooks, nil, metrics.New("stead"), nil)

	rec := signedWebhook(t, app.Handler(), map[string]any{
		"id": "evt_8", "type": "invoice.paid", "ownerId": "user_1", "quantity": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"released":[]}`, rec.Body.String())
	assert.Equal(t, 1, reg.ActiveCount())
}
