// internal/webhook/signature.go
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature = errors.New("bad signature")
	ErrStale        = errors.New("stale timestamp")
)

// SignatureHeader is the request header carrying the provider signature.
const SignatureHeader = "X-Stead-Signature"

// VerifySignature checks a "t=<unix>,v1=<hex>" header against the raw body.
// The MAC covers "<t>.<body>" so the timestamp cannot be swapped, and the
// timestamp must sit within tolerance of now in either direction. Multiple
// v1 entries are accepted if any matches, which keeps secret rotation
// possible.
func VerifySignature(secret []byte, header string, body []byte, tolerance time.Duration, now time.Time) error {
	if len(secret) == 0 {
		return errors.New("no signing secret configured")
	}
	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			raw, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			sigs = append(sigs, raw)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	want := mac.Sum(nil)

	matched := false
	for _, sig := range sigs {
		if hmac.Equal(sig, want) {
			matched = true
		}
	}
	if !matched {
		return ErrBadSignature
	}

	age := now.Unix() - ts
	if age > int64(tolerance.Seconds()) || -age > int64(tolerance.Seconds()) {
		return ErrStale
	}
	return nil
}

// Sign renders a header for body at ts, for tests and for the provider
// simulator in dev.
func Sign(secret []byte, body []byte, ts int64) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
