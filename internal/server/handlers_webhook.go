package server

import (
	"errors"
	"io"
	"net/http"

	"stead/internal/webhook"
	"stead/pkg/problems"
)

// maxWebhookBody bounds how much of a delivery is read before verification.
const maxWebhookBody = 1 << 20

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if a.hooks == nil {
		problems.Write(w, problems.Problem{
			Type:   problems.Type("not-configured"),
			Title:  "Webhook Not Configured",
			Status: http.StatusServiceUnavailable,
		})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		problems.Write(w, problems.Problem{
			Type:   problems.Type("bad-request"),
			Title:  "Bad Request",
			Status: http.StatusBadRequest,
		})
		return
	}

	res, err := a.hooks.Handle(r.Context(), r.Header.Get(webhook.SignatureHeader), body)
	switch {
	case errors.Is(err, webhook.ErrBadSignature) || errors.Is(err, webhook.ErrStale):
		a.metrics.WebhookResult("rejected")
		a.log.Infow("webhook rejected", "err", err, "remote", r.RemoteAddr)
		problems.Write(w, problems.Problem{
			Type:   problems.Type("unauthorized"),
			Title:  "Unauthorized",
			Status: http.StatusUnauthorized,
		})
	case errors.Is(err, webhook.ErrMalformed):
		a.metrics.WebhookResult("malformed")
		a.log.Infow("webhook payload unreadable", "err", err)
		problems.Write(w, problems.Problem{
			Type:   problems.Type("bad-request"),
			Title:  "Bad Request",
			Status: http.StatusBadRequest,
		})
	case err != nil:
		a.metrics.WebhookResult("error")
		a.log.Errorw("webhook processing failed", "err", err)
		problems.Write(w, problems.Problem{
			Type:   problems.Type("internal"),
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
	default:
		result := "processed"
		if res.Ignored {
			result = "ignored"
		}
		if res.Duplicate {
			result = "duplicate"
		}
		a.metrics.WebhookResult(result)
		if len(res.Released) > 0 {
			a.metrics.ClaimsReleased(len(res.Released))
			a.metrics.SetActiveClaims(a.reg.ActiveCount())
		}
		released := res.Released
		if released == nil {
			released = []string{}
		}
		writeJSON(w, map[string]any{"received": true, "released": released}, http.StatusOK)
	}
}
