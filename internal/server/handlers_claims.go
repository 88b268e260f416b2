package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stead/internal/admission"
	"stead/internal/registry"
	"stead/pkg/middleware"
	"stead/pkg/problems"
)

func (a *App) checkSubdomain(w http.ResponseWriter, r *http.Request) {
	av := a.reg.CheckAvailability(chi.URLParam(r, "subdomain"))
	result := "available"
	if !av.Available {
		result = string(av.Reason)
	}
	a.metrics.CheckResult(result)
	writeJSON(w, av, http.StatusOK)
}

type claimBody struct {
	Subdomain string `json:"subdomain"`
	OwnerID   string `json:"owner_id"`
}

// claimResult is the claim endpoint's contract: success plus the normalized
// name, or a reason code the client can surface.
type claimResult struct {
	Success   bool   `json:"success"`
	Subdomain string `json:"subdomain,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (a *App) createClaim(w http.ResponseWriter, r *http.Request) {
	var b claimBody
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeJSON(w, claimResult{Error: "bad_request"}, http.StatusBadRequest)
		return
	}
	// The token subject wins over anything the client put in the body; the
	// body owner_id only carries weight in dev where auth is bypassed.
	owner := strings.TrimSpace(b.OwnerID)
	if p, ok := middleware.PrincipalFrom(r.Context()); ok && p.Subject != "" {
		owner = p.Subject
	}
	name := registry.Normalize(b.Subdomain)
	if name == "" || owner == "" {
		writeJSON(w, claimResult{Error: "bad_request"}, http.StatusBadRequest)
		return
	}

	d := a.guard.Evaluate(r.Context(), admission.Input{
		Subdomain:      name,
		OwnerID:        owner,
		ExistingClaims: len(a.reg.UserClaims(owner)),
	})
	if !d.Allow {
		a.metrics.ClaimOutcome("denied")
		a.log.Infow("claim denied by policy", "subdomain", name, "owner_id", owner, "reasons", d.Reasons)
		writeJSON(w, claimResult{Error: strings.Join(d.Reasons, ", ")}, http.StatusForbidden)
		return
	}

	c, err := a.reg.CreateClaim(r.Context(), name, owner)
	if err != nil {
		var rej *registry.Rejection
		if errors.As(err, &rej) {
			a.metrics.ClaimOutcome(string(rej.Reason))
			status := http.StatusConflict
			switch rej.Reason {
			case registry.ReasonTooShort, registry.ReasonTooLong, registry.ReasonInvalidFormat:
				status = http.StatusBadRequest
			}
			writeJSON(w, claimResult{Error: string(rej.Reason)}, status)
			return
		}
		a.metrics.ClaimOutcome("error")
		a.log.Errorw("claim persist failed", "subdomain", name, "owner_id", owner, "err", err)
		problems.Write(w, problems.Problem{
			Type:   problems.Type("internal"),
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
		return
	}

	a.metrics.ClaimOutcome("claimed")
	a.metrics.SetActiveClaims(a.reg.ActiveCount())
	a.log.Infow("claim created", "subdomain", c.Subdomain, "owner_id", c.OwnerID)
	writeJSON(w, claimResult{Success: true, Subdomain: c.Subdomain}, http.StatusCreated)
}

func (a *App) releaseClaim(w http.ResponseWriter, r *http.Request) {
	name := registry.Normalize(chi.URLParam(r, "subdomain"))

	av := a.reg.CheckAvailability(name)
	if av.Reason == registry.ReasonClaimed {
		if p, ok := middleware.PrincipalFrom(r.Context()); ok && av.OwnerID != p.Subject {
			problems.Write(w, problems.Problem{
				Type:   problems.Type("claim-denied"),
				Title:  "Forbidden",
				Status: http.StatusForbidden,
				Detail: "not the claim owner",
			})
			return
		}
	}

	released, err := a.reg.ReleaseClaim(r.Context(), name)
	if err != nil {
		a.log.Errorw("release persist failed", "subdomain", name, "err", err)
		problems.Write(w, problems.Problem{
			Type:   problems.Type("internal"),
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
		return
	}
	if released {
		a.metrics.ClaimsReleased(1)
		a.metrics.SetActiveClaims(a.reg.ActiveCount())
		a.log.Infow("claim released", "subdomain", name)
	}
	writeJSON(w, map[string]any{"released": released}, http.StatusOK)
}

func (a *App) listClaims(w http.ResponseWriter, r *http.Request) {
	owner := ""
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		owner = p.Subject
	}
	if owner == "" {
		owner = strings.TrimSpace(r.URL.Query().Get("owner_id"))
	}
	if owner == "" {
		problems.Write(w, problems.Problem{
			Type:   problems.Type("bad-request"),
			Title:  "Bad Request",
			Status: http.StatusBadRequest,
			Detail: "owner required",
		})
		return
	}
	claims := a.reg.UserClaims(owner)
	if claims == nil {
		claims = []registry.Claim{}
	}
	writeJSON(w, map[string]any{"claims": claims}, http.StatusOK)
}
