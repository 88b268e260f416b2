// internal/creds/file.go
package creds

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials file keys, fixed by the transfer format between the
// generating operator and the deploying service.
const (
	KeySessionPublic = "CLOUD_SESSION_TOKEN_PUBLIC"
	KeySessionSecret = "CLOUD_SESSION_TOKEN_SECRET"
	KeyDeviceCAKey   = "DEVICE_ID_CA_PRIV_KEY"
	KeyDeviceCACert  = "DEVICE_ID_CA_CERT"
)

// File is the exported credentials bundle.
type File struct {
	SessionPublic string
	SessionSecret string
	DeviceCAKey   string
	DeviceCACert  string
}

// Generate produces a complete bundle: session tokens plus a device CA.
func Generate(opts CAOptions) (File, error) {
	sess, err := GenerateSessionTokens()
	if err != nil {
		return File{}, err
	}
	ca, err := GenerateDeviceCA(opts)
	if err != nil {
		return File{}, err
	}
	return File{
		SessionPublic: sess.PublicToken,
		SessionSecret: sess.PrivateToken,
		DeviceCAKey:   ca.PrivateToken,
		DeviceCACert:  ca.Certificate,
	}, nil
}

// Render lays the bundle out as flat KEY=value lines.
func (f File) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s\n", KeySessionPublic, f.SessionPublic)
	fmt.Fprintf(&b, "%s=%s\n", KeySessionSecret, f.SessionSecret)
	fmt.Fprintf(&b, "%s=%s\n", KeyDeviceCAKey, f.DeviceCAKey)
	fmt.Fprintf(&b, "%s=%s\n", KeyDeviceCACert, f.DeviceCACert)
	return b.String()
}

// Parse reads a rendered bundle. Missing keys parse as empty strings; the
// caller decides whether a partial bundle is usable.
func Parse(s string) (File, error) {
	kv, err := godotenv.Unmarshal(s)
	if err != nil {
		return File{}, fmt.Errorf("parse credentials: %w", err)
	}
	return File{
		SessionPublic: kv[KeySessionPublic],
		SessionSecret: kv[KeySessionSecret],
		DeviceCAKey:   kv[KeyDeviceCAKey],
		DeviceCACert:  kv[KeyDeviceCACert],
	}, nil
}

// Load reads and parses a bundle from disk.
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read credentials: %w", err)
	}
	return Parse(string(raw))
}

// Save writes the rendered bundle to path, readable by the owner only.
func (f File) Save(path string) error {
	if err := os.WriteFile(path, []byte(f.Render()), 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}
