// internal/flows/gate.go
package flows

// GateState is the access decision for a page that needs a signed-in user
// with a durable credential.
type GateState string

const (
	GateChecking GateState = "checking"
	GatePasskey  GateState = "passkey"
	GateClaim    GateState = "claim"
	GateReady    GateState = "ready"
)

// Account is the caller's view of the session user. A nil Account means the
// session is still resolving.
type Account struct {
	ID       string
	Passkeys int
}

// NextGate gates read access: an unresolved session stays in checking, a
// user without a passkey is sent to enroll one, anyone else is through.
func NextGate(a *Account) GateState {
	switch {
	case a == nil:
		return GateChecking
	case a.Passkeys == 0:
		return GatePasskey
	default:
		return GateReady
	}
}

// NextClaimPrompt runs the same possession test as NextGate but lands a
// credentialed user on the claim prompt. A claim can only follow a durable
// credential.
func NextClaimPrompt(a *Account) GateState {
	if st := NextGate(a); st != GateReady {
		return st
	}
	return GateClaim
}
