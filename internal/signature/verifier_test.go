package signature

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

var body = []byte(`{"event":"call_started","call":{"call_id":"call_1"}}`)

func TestVerify(t *testing.T) {
	valid := Sign([]byte(testSecret), body)

	tests := []struct {
		name    string
		secret  string
		body    []byte
		sig     string
		wantErr error
	}{
		{name: "valid", secret: testSecret, body: body, sig: valid},
		{name: "uppercase and prefixed", secret: testSecret, body: body, sig: "sha256=" + strings.ToUpper(valid)},
		{name: "missing header", secret: testSecret, body: body, sig: "", wantErr: ErrMissingSignature},
		{name: "tampered body", secret: testSecret, body: []byte(strings.Replace(string(body), "call_1", "call_2", 1)), sig: valid, wantErr: ErrInvalidSignature},
		{name: "wrong secret", secret: "other", body: body, sig: valid, wantErr: ErrInvalidSignature},
		{name: "no secret skips", secret: "", body: body, sig: ""},
		{name: "no secret ignores garbage", secret: "  ", body: body, sig: "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewVerifier(tt.secret).Verify(tt.body, tt.sig)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyRequestHeaders(t *testing.T) {
	v := NewVerifier(testSecret)
	require.True(t, v.Enabled())
	sig := Sign([]byte(testSecret), body)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calls", nil)
	req.Header.Set(LegacyHeaderName, sig)
	assert.NoError(t, v.VerifyRequest(req, body))

	req = httptest.NewRequest(http.MethodPost, "/webhooks/calls", nil)
	req.Header.Set(HeaderName, sig)
	req.Header.Set(LegacyHeaderName, "stale")
	assert.NoError(t, v.VerifyRequest(req, body), "primary header wins")
}

func TestNilVerifierDisabled(t *testing.T) {
	var v *Verifier
	assert.False(t, v.Enabled())
	assert.NoError(t, v.Verify(body, ""))
}
