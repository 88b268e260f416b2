// internal/creds/session.go
package creds

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SessionTokens is one P-256 key pair exported twice: the public half for
// the sync backend, the private half for the host.
type SessionTokens struct {
	PublicToken  string
	PrivateToken string
}

// GenerateSessionTokens creates a fresh ECDSA P-256 pair and encodes each
// half as an ES256-tagged JWK in multibase form.
func GenerateSessionTokens() (SessionTokens, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("generate session key: %w", err)
	}

	priv, err := jwk.FromRaw(raw)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("wrap private key: %w", err)
	}
	if err := priv.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return SessionTokens{}, err
	}

	pub, err := jwk.PublicKeyOf(priv)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("derive public key: %w", err)
	}
	if err := pub.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return SessionTokens{}, err
	}

	privTok, err := encodeMultibase(priv)
	if err != nil {
		return SessionTokens{}, err
	}
	pubTok, err := encodeMultibase(pub)
	if err != nil {
		return SessionTokens{}, err
	}
	return SessionTokens{PublicToken: pubTok, PrivateToken: privTok}, nil
}
