// internal/creds/deviceca.go
package creds

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	defaultCommonName = "Docker Dev CA"
	certAudience      = "certificate-users"
	certValidity      = 365 * 24 * time.Hour
)

// CAOptions name the device CA. Zero values fall back to the dev defaults.
type CAOptions struct {
	CommonName   string
	Organization string
	Locality     string
	State        string
}

// DeviceCA is the generated authority: its private key as a multibase token
// and its self-signed certificate JWT.
type DeviceCA struct {
	PrivateToken string
	Certificate  string
}

// Certificate is the X.509-like structure embedded in the certificate JWT
// claim. Validity bounds are RFC 3339 strings.
type Certificate struct {
	SerialNumber       string        `json:"serialNumber"`
	Subject            string        `json:"subject"`
	Issuer             string        `json:"issuer"`
	NotBefore          string        `json:"notBefore"`
	NotAfter           string        `json:"notAfter"`
	PublicKey          CertPublicKey `json:"publicKey"`
	SignatureAlgorithm string        `json:"signatureAlgorithm"`
	KeyUsage           []string      `json:"keyUsage"`
	ExtendedKeyUsage   []string      `json:"extendedKeyUsage"`
}

// CertPublicKey carries the CA public key as JWK EC coordinates.
type CertPublicKey struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// GenerateDeviceCA creates an independent P-256 pair and self-signs a
// certificate JWT over it. The token is valid for one year from issuance;
// renewal is a manual regeneration.
func GenerateDeviceCA(opts CAOptions) (DeviceCA, error) {
	if opts.CommonName == "" {
		opts.CommonName = defaultCommonName
	}

	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return DeviceCA{}, fmt.Errorf("generate ca key: %w", err)
	}

	priv, err := jwk.FromRaw(raw)
	if err != nil {
		return DeviceCA{}, fmt.Errorf("wrap ca key: %w", err)
	}
	if err := priv.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return DeviceCA{}, err
	}
	privTok, err := encodeMultibase(priv)
	if err != nil {
		return DeviceCA{}, err
	}

	kid, err := randomBase58(32)
	if err != nil {
		return DeviceCA{}, err
	}
	jti, err := randomBase58(32)
	if err != nil {
		return DeviceCA{}, err
	}
	serial := make([]byte, 16)
	if _, err := rand.Read(serial); err != nil {
		return DeviceCA{}, fmt.Errorf("read entropy: %w", err)
	}

	now := time.Now().UTC()
	notAfter := now.Add(certValidity)
	dn := distinguishedName(opts)
	cert := Certificate{
		SerialNumber: hex.EncodeToString(serial),
		Subject:      dn,
		Issuer:       dn,
		NotBefore:    now.Format(time.RFC3339),
		NotAfter:     notAfter.Format(time.RFC3339),
		PublicKey: CertPublicKey{
			Kty: "EC",
			Crv: "P-256",
			X:   base64.RawURLEncoding.EncodeToString(raw.PublicKey.X.FillBytes(make([]byte, 32))),
			Y:   base64.RawURLEncoding.EncodeToString(raw.PublicKey.Y.FillBytes(make([]byte, 32))),
		},
		SignatureAlgorithm: "ecdsa-with-SHA256",
		KeyUsage:           []string{"digitalSignature", "keyCertSign", "cRLSign"},
		ExtendedKeyUsage:   []string{"clientAuth", "serverAuth"},
	}

	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, jwtv5.MapClaims{
		"iss":         opts.CommonName,
		"sub":         opts.CommonName,
		"aud":         certAudience,
		"iat":         now.Unix(),
		"nbf":         now.Unix(),
		"exp":         notAfter.Unix(),
		"jti":         jti,
		"certificate": cert,
	})
	tok.Header["typ"] = "CERT+JWT"
	tok.Header["kid"] = kid
	tok.Header["x5c"] = []string{}

	signed, err := tok.SignedString(raw)
	if err != nil {
		return DeviceCA{}, fmt.Errorf("sign certificate: %w", err)
	}
	return DeviceCA{PrivateToken: privTok, Certificate: signed}, nil
}

// distinguishedName renders the configured subject as an RDN string,
// omitting unset attributes.
func distinguishedName(opts CAOptions) string {
	parts := []string{"CN=" + opts.CommonName}
	if opts.Organization != "" {
		parts = append(parts, "O="+opts.Organization)
	}
	if opts.Locality != "" {
		parts = append(parts, "L="+opts.Locality)
	}
	if opts.State != "" {
		parts = append(parts, "ST="+opts.State)
	}
	return strings.Join(parts, ", ")
}
