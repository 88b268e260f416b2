// internal/flows/signin.go
package flows

// SigninState tracks a returning tenant. Passkey is attempted first; email
// verification is the fallback path.
type SigninState string

const (
	SigninPasskey    SigninState = "passkey"
	SigninEmail      SigninState = "email"
	SigninVerifyLink SigninState = "verify_link"
	SigninVerifyCode SigninState = "verify_code"
	SigninComplete   SigninState = "complete"
)

// PasskeyOutcome is the result of a passkey ceremony.
type PasskeyOutcome string

const (
	PasskeySuccess   PasskeyOutcome = "success"
	PasskeyFailure   PasskeyOutcome = "failure"
	PasskeyCancelled PasskeyOutcome = "cancelled"
)

// SigninEvent is the closed set of outcomes a signin session can feed in.
type SigninEvent interface{ signinEvent() }

// PasskeyAttempted reports how the ceremony ended.
type PasskeyAttempted struct{ Outcome PasskeyOutcome }

// EmailOptions reports which email verification methods the account
// supports.
type EmailOptions struct {
	HasEmailLink bool
	HasEmailCode bool
}

// SigninVerified reports the verdict of the chosen email verification.
type SigninVerified struct{ Status VerificationStatus }

func (PasskeyAttempted) signinEvent() {}
func (EmailOptions) signinEvent()     {}
func (SigninVerified) signinEvent()   {}

// NextSignin advances the signin machine. A failed or cancelled passkey
// falls back to email; an account with neither email method stays in email
// and the caller surfaces the error.
func NextSignin(s SigninState, ev SigninEvent) SigninState {
	switch s {
	case SigninPasskey:
		if a, ok := ev.(PasskeyAttempted); ok {
			if a.Outcome == PasskeySuccess {
				return SigninComplete
			}
			return SigninEmail
		}
	case SigninEmail:
		if o, ok := ev.(EmailOptions); ok {
			switch {
			case o.HasEmailLink:
				return SigninVerifyLink
			case o.HasEmailCode:
				return SigninVerifyCode
			}
		}
	case SigninVerifyLink, SigninVerifyCode:
		if v, ok := ev.(SigninVerified); ok && v.Status == VerificationComplete {
			return SigninComplete
		}
	}
	return s
}
