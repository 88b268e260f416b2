// Package flows holds the pure transition logic for the user-facing auth
// sequences: signup, signin, and the passkey gates. Nothing here performs
// I/O. Callers run the passkey ceremony and identity-provider calls, feed
// the outcomes in as events, and keep the state per in-flight session.
package flows

// VerificationStatus is the outcome the identity provider reports for an
// email verification attempt.
type VerificationStatus string

const (
	VerificationComplete            VerificationStatus = "complete"
	VerificationMissingRequirements VerificationStatus = "missing_requirements"
	VerificationExpired             VerificationStatus = "expired"
	VerificationFailed              VerificationStatus = "failed"
)

// First-factor strategies this core understands.
const (
	StrategyEmailLink = "email_link"
	StrategyEmailCode = "email_code"
)

// Factor is one first-factor verification method advertised for an account.
type Factor struct {
	Strategy       string
	EmailAddressID string
}

// SelectEmailVerificationStrategy picks the factor to drive email
// verification with: email_link when offered, email_code as the fallback,
// zero values when neither exists. The first entry of the winning kind
// supplies the email address id.
func SelectEmailVerificationStrategy(factors []Factor) (strategy, emailAddressID string) {
	for _, f := range factors {
		if f.Strategy == StrategyEmailLink {
			return StrategyEmailLink, f.EmailAddressID
		}
	}
	for _, f := range factors {
		if f.Strategy == StrategyEmailCode {
			return StrategyEmailCode, f.EmailAddressID
		}
	}
	return "", ""
}
