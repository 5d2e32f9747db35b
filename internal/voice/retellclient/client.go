package retellclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var retellTracer = otel.Tracer("crm.internal.voice.retellclient")

const (
	defaultBaseURL   = "https://api.retellai.com"
	defaultUserAgent = "crm-voice-sync/0.1"
)

// ErrMissingAPIKey is returned when neither a tenant key nor a fallback key is available.
var ErrMissingAPIKey = errors.New("retellclient: api key not configured")

// RequestObserver receives one callback per completed HTTP attempt.
type RequestObserver interface {
	ObserveProviderRequest(operation string, status int)
}

// Config controls how the provider client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	Observer   RequestObserver
}

// Client wraps the voice provider REST endpoints used by call sync.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	userAgent  string
	observer   RequestObserver
}

// New creates a configured Client. APIKey is the global fallback and may be
// empty when every tenant carries its own key.
func New(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
		observer:   cfg.Observer,
	}
}

// WithAPIKey returns a client that authenticates with key. An empty key keeps
// the fallback credentials.
func (c *Client) WithAPIKey(key string) *Client {
	key = strings.TrimSpace(key)
	if key == "" || key == c.apiKey {
		return c
	}
	clone := *c
	clone.apiKey = key
	return &clone
}

// GetCall fetches the full call object including transcript and analysis.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	if strings.TrimSpace(callID) == "" {
		return nil, errors.New("retellclient: call id required")
	}
	data, err := c.invoke(ctx, "get_call", http.MethodGet, "/get-call/"+url.PathEscape(callID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[Call](data)
}

// ListCalls returns one page of calls matching the filter.
func (c *Client) ListCalls(ctx context.Context, req ListCallsRequest) ([]Call, error) {
	q, err := req.query()
	if err != nil {
		return nil, err
	}
	data, err := c.invoke(ctx, "list_calls", http.MethodGet, "/list-calls", q, nil)
	if err != nil {
		return nil, err
	}
	calls, err := decode[[]Call](data)
	if err != nil {
		return nil, err
	}
	return *calls, nil
}

// GetAgent fetches a voice agent definition.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, errors.New("retellclient: agent id required")
	}
	data, err := c.invoke(ctx, "get_agent", http.MethodGet, "/get-agent/"+url.PathEscape(agentID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[Agent](data)
}

// ListAgents returns every agent visible to the credentials.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	data, err := c.invoke(ctx, "list_agents", http.MethodGet, "/list-agents", nil, nil)
	if err != nil {
		return nil, err
	}
	agents, err := decode[[]Agent](data)
	if err != nil {
		return nil, err
	}
	return *agents, nil
}

// CreatePhoneCall starts an outbound call.
func (c *Client) CreatePhoneCall(ctx context.Context, req CreatePhoneCallRequest) (*Call, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("retellclient: marshal create phone call: %w", err)
	}
	data, err := c.invoke(ctx, "create_phone_call", http.MethodPost, "/create-phone-call", nil, body)
	if err != nil {
		return nil, err
	}
	return decode[Call](data)
}

// RegisterPhoneCall registers a call routed by the caller's own telephony.
func (c *Client) RegisterPhoneCall(ctx context.Context, req RegisterPhoneCallRequest) (*Call, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("retellclient: marshal register phone call: %w", err)
	}
	data, err := c.invoke(ctx, "register_phone_call", http.MethodPost, "/register-phone-call", nil, body)
	if err != nil {
		return nil, err
	}
	return decode[Call](data)
}

func (c *Client) invoke(ctx context.Context, operation, method, path string, query url.Values, body []byte) ([]byte, error) {
	ctx, span := retellTracer.Start(ctx, "retell."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("retell.path", path),
	)

	if c.apiKey == "" {
		span.RecordError(ErrMissingAPIKey)
		span.SetStatus(codes.Error, "missing api key")
		return nil, ErrMissingAPIKey
	}

	// Calls are placed by POST; repeating one after a timeout can dial twice.
	maxRetries := c.maxRetries
	if method != http.MethodGet {
		maxRetries = 0
	}

	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("retellclient: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe(operation, 0)
			if ctx.Err() != nil {
				span.RecordError(ctx.Err())
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == maxRetries {
				span.RecordError(err)
				span.SetStatus(codes.Error, "http error")
				return nil, fmt.Errorf("retellclient: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.observe(operation, resp.StatusCode)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if readErr != nil {
			return nil, fmt.Errorf("retellclient: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("retellclient: request failed without response")
}

func (c *Client) observe(operation string, status int) {
	if c.observer != nil {
		c.observer.ObserveProviderRequest(operation, status)
	}
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("retell retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// APIError is returned for any non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("retellclient: %s (status=%d, body=%s)", e.Message, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("retellclient: http status %d (body=%s)", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	}
	return apiErr
}

func decode[T any](data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("retellclient: decode response: %w", err)
	}
	return &out, nil
}
