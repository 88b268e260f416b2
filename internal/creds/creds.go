// Package creds generates the deployment's long-lived key material: a
// session key pair exported as portable multibase tokens, and a self-signed
// device CA certificate used to bootstrap trust with a sync backend. All of
// it is produced once at setup time, never on a request path.
package creds

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
)

// encodeMultibase renders a JWK as 'z' + base58btc of its JSON form. The
// prefix marks the encoding so consumers can sniff it.
func encodeMultibase(key jwk.Key) (string, error) {
	raw, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("marshal jwk: %w", err)
	}
	return "z" + base58.Encode(raw), nil
}

// randomBase58 returns n random bytes in base58btc.
func randomBase58(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return base58.Encode(b), nil
}
