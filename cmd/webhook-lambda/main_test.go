package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

func newRelay(baseURL string) *relay {
	return &relay{
		cfg:    relayConfig{upstreamBaseURL: baseURL, upstreamTimeout: time.Second},
		client: &http.Client{Timeout: time.Second},
		logger: logging.New("error"),
	}
}

func event(method, path, body string, headers map[string]string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: headers,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	resp, err := newRelay("http://example.com").handle(context.Background(), event(http.MethodGet, "/health", "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", resp.Body)
}

func TestHandleRejectsUnknownPath(t *testing.T) {
	resp, err := newRelay("http://example.com").handle(context.Background(), event(http.MethodPost, "/webhooks/other", "{}", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRejectsUnsupportedMethod(t *testing.T) {
	resp, err := newRelay("http://example.com").handle(context.Background(), event(http.MethodDelete, webhookPath, "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleForwardsBodyAndSignature(t *testing.T) {
	var gotBody, gotSig, gotLegacy, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotSig = r.Header.Get("X-Signature")
		gotLegacy = r.Header.Get("X-Retell-Signature")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer upstream.Close()

	payload := `{"event":"call_started","call":{"call_id":"c1"}}`
	resp, err := newRelay(upstream.URL).handle(context.Background(), event(http.MethodPost, webhookPath, payload, map[string]string{
		"Content-Type":       "application/json",
		"X-Signature":        "abc",
		"x-retell-signature": "def",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"received":true}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["content-type"])
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, "abc", gotSig)
	assert.Equal(t, "def", gotLegacy)
	assert.Equal(t, "/webhooks/calls/", gotPath)
}

func TestHandleDecodesBase64Body(t *testing.T) {
	var gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer upstream.Close()

	evt := event(http.MethodPost, webhookPath+"/", base64.StdEncoding.EncodeToString([]byte(`{"a":1}`)), nil)
	evt.IsBase64Encoded = true
	resp, err := newRelay(upstream.URL).handle(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"a":1}`, gotBody)
}

func TestHandleInvalidBase64(t *testing.T) {
	evt := event(http.MethodPost, webhookPath, "%%%", nil)
	evt.IsBase64Encoded = true
	resp, err := newRelay("http://example.com").handle(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	upstream.Close()

	resp, err := newRelay(upstream.URL).handle(context.Background(), event(http.MethodPost, webhookPath, "{}", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "")
	_, err := loadConfig()
	require.Error(t, err)

	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.upstreamBaseURL)
	assert.Equal(t, 3*time.Second, cfg.upstreamTimeout)

	t.Setenv("UPSTREAM_TIMEOUT", "soon")
	_, err = loadConfig()
	require.Error(t, err)
}
