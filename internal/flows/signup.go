// internal/flows/signup.go
package flows

// SignupState tracks a new tenant from first contact to a claimed
// subdomain.
type SignupState string

const (
	SignupEmail    SignupState = "email"
	SignupVerify   SignupState = "verify"
	SignupPasskey  SignupState = "passkey"
	SignupClaiming SignupState = "claiming"
	SignupDone     SignupState = "done"
)

// SignupEvent is the closed set of outcomes a signup session can feed in.
type SignupEvent interface{ signupEvent() }

// EmailSubmitted reports that the user handed over an address.
type EmailSubmitted struct{}

// VerificationResult reports the identity provider's verdict on an email
// verification attempt.
type VerificationResult struct{ Status VerificationStatus }

// PasskeyCreated reports a successful passkey ceremony.
type PasskeyCreated struct{}

// SubdomainClaimed reports that the registry accepted the tenant's claim.
type SubdomainClaimed struct{}

func (EmailSubmitted) signupEvent()     {}
func (VerificationResult) signupEvent() {}
func (PasskeyCreated) signupEvent()     {}
func (SubdomainClaimed) signupEvent()   {}

// NextSignup advances the signup machine. Events that do not apply to the
// current state leave it unchanged; in particular a verification status
// other than complete or missing_requirements keeps the session in verify
// so the caller can retry.
func NextSignup(s SignupState, ev SignupEvent) SignupState {
	switch s {
	case SignupEmail:
		if _, ok := ev.(EmailSubmitted); ok {
			return SignupVerify
		}
	case SignupVerify:
		if r, ok := ev.(VerificationResult); ok {
			switch r.Status {
			case VerificationComplete, VerificationMissingRequirements:
				return SignupPasskey
			}
		}
	case SignupPasskey:
		if _, ok := ev.(PasskeyCreated); ok {
			return SignupClaiming
		}
	case SignupClaiming:
		if _, ok := ev.(SubdomainClaimed); ok {
			return SignupDone
		}
	}
	return s
}
