// Package signature authenticates inbound call webhooks with an HMAC-SHA256
// digest of the raw request body.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// HeaderName is the primary header carrying the hex digest.
const HeaderName = "X-Signature"

// LegacyHeaderName is also accepted for deliveries configured with the provider's own header.
const LegacyHeaderName = "X-Retell-Signature"

var (
	// ErrMissingSignature is returned when a secret is configured but the request has no signature.
	ErrMissingSignature = errors.New("signature: missing signature header")
	// ErrInvalidSignature is returned when the digest does not match the body.
	ErrInvalidSignature = errors.New("signature: signature mismatch")
)

// Verifier checks webhook bodies against a shared secret.
// A zero-value Verifier (no secret) accepts every request.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier. An empty secret disables verification.
func NewVerifier(secret string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify compares the signature against HMAC-SHA256(secret, body) in constant time.
func (v *Verifier) Verify(body []byte, signature string) error {
	if !v.Enabled() {
		return nil
	}
	provided := normalize(signature)
	if provided == "" {
		return ErrMissingSignature
	}
	expected := Sign(v.secret, body)
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyRequest reads the signature from the request headers and verifies body.
// body must be the raw bytes read from r before any JSON decoding.
func (v *Verifier) VerifyRequest(r *http.Request, body []byte) error {
	return v.Verify(body, FromHeader(r.Header))
}

// FromHeader returns the first non-empty signature header value.
func FromHeader(h http.Header) string {
	if sig := strings.TrimSpace(h.Get(HeaderName)); sig != "" {
		return sig
	}
	return strings.TrimSpace(h.Get(LegacyHeaderName))
}

// Sign returns the lowercase hex HMAC-SHA256 digest of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normalize(sig string) string {
	sig = strings.ToLower(strings.TrimSpace(sig))
	return strings.TrimPrefix(sig, "sha256=")
}
