// Package admission runs an optional Rego policy over claim requests before
// they reach the registry, so operators can impose deployment-specific
// rules (per-owner limits, name blocklists) without code changes. No
// configured policy means every request is admitted.
package admission

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Input is what the policy sees for one claim request.
type Input struct {
	Subdomain      string `json:"subdomain"`
	OwnerID        string `json:"owner_id"`
	ExistingClaims int    `json:"existing_claims"`
}

// Decision is the policy verdict. Reasons are for logs and the 403 body.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Guard evaluates the admission policy. A zero Guard admits everything.
type Guard struct {
	module string
	log    *zap.SugaredLogger
}

// NewGuard wraps a Rego module whose entrypoint is data.claims.decide. The
// entrypoint may yield a bare boolean or {"allow": bool, "reasons": [...]}.
func NewGuard(module string, log *zap.SugaredLogger) *Guard {
	return &Guard{module: module, log: log}
}

// LoadGuardFile reads the module from disk.
func LoadGuardFile(path string, log *zap.SugaredLogger) (*Guard, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read admission policy: %w", err)
	}
	return NewGuard(string(raw), log), nil
}

// Evaluate runs the policy. A policy that fails to evaluate denies with
// policy_error rather than waving the request through.
func (g *Guard) Evaluate(ctx context.Context, in Input) Decision {
	if g == nil || g.module == "" {
		return Decision{Allow: true}
	}
	r := rego.New(
		rego.Query("data.claims.decide"),
		rego.Module("claims.rego", g.module),
		rego.Input(map[string]any{
			"subdomain":       in.Subdomain,
			"owner_id":        in.OwnerID,
			"existing_claims": in.ExistingClaims,
		}),
	)
	rs, err := r.Eval(ctx)
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		if g.log != nil {
			g.log.Warnw("admission policy failed to evaluate", "err", err)
		}
		return Decision{Reasons: []string{"policy_error"}}
	}

	switch out := rs[0].Expressions[0].Value.(type) {
	case bool:
		return Decision{Allow: out}
	case map[string]any:
		dec := Decision{}
		if allow, ok := out["allow"].(bool); ok {
			dec.Allow = allow
		}
		if rs, ok := out["reasons"].([]any); ok {
			for _, reason := range rs {
				dec.Reasons = append(dec.Reasons, fmt.Sprint(reason))
			}
		}
		return dec
	default:
		return Decision{Allow: true}
	}
}
