// Package backend is the HTTP client for the commerce backend REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/garyellow/whatsapp-commerce-bot/internal/config"
	domerrors "github.com/garyellow/whatsapp-commerce-bot/internal/errors"
	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
	"github.com/garyellow/whatsapp-commerce-bot/internal/metrics"
)

// UserAgent is sent with every request.
const UserAgent = "SmartWhatsAppBot/1.0"

// UnavailableMessage is the Error of a response whose retries ran out.
const UnavailableMessage = "service temporarily unavailable"

// maxBodyBytes bounds response bodies read into memory.
const maxBodyBytes = 4 << 20

// Response is the outcome of every backend call. Calls never return a Go
// error; failures are reported with Success false.
type Response struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`

	// Err carries the typed failure for errors.Is checks.
	Err error `json:"-"`
}

// Unavailable reports whether the backend could not be reached after all
// retries.
func (r *Response) Unavailable() bool {
	return r != nil && domerrors.IsBackendUnavailable(r.Err)
}

// NotFound reports whether the backend answered 404.
func (r *Response) NotFound() bool {
	return r != nil && r.StatusCode == http.StatusNotFound
}

// Decode unmarshals the payload into v. Bodies shaped as
// {"success":..., "data": X} are unwrapped to X.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("%w: empty response body", domerrors.ErrNotFound)
	}

	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	payload := r.Data
	if bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) &&
		json.Unmarshal(payload, &envelope) == nil && envelope.Success != nil && len(envelope.Data) > 0 {
		payload = envelope.Data
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode backend payload: %w", err)
	}
	return nil
}

// Empty reports whether the backend answered without a payload, as with
// 204 No Content or a literal null.
func (r *Response) Empty() bool {
	if r == nil {
		return true
	}
	data := bytes.TrimSpace(r.Data)
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

// DecodeOptional is Decode for write endpoints whose body may be empty. An
// empty payload leaves v untouched.
func (r *Response) DecodeOptional(v any) error {
	if r.Empty() {
		return nil
	}
	return r.Decode(v)
}

// Client calls the backend with retries, per-attempt timeouts and metrics.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	timeout      time.Duration
	attempts     int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

// New creates a client. m may be nil.
func New(cfg config.BackendConfig, log *logger.Logger, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:      cfg.Timeout,
		attempts:     max(cfg.MaxAttempts, 1),
		initialDelay: cfg.RetryBaseDelay,
		maxDelay:     cfg.RetryMaxDelay,
		logger:       log.WithModule("backend"),
		metrics:      m,
	}
}

// statusError is a non-2xx answer from the backend.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.message)
}

// do sends one logical request. route is the low-cardinality label used in
// logs and metrics, e.g. "GET /api/orders/{id}".
func (c *Client) do(ctx context.Context, method, path, route string, body any) *Response {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Response{Error: "invalid request", Err: domerrors.NewBackendError(route, 0, err)}
		}
	}

	attempts := 1
	if idempotent(method) {
		attempts = c.attempts
	}

	var (
		result     []byte
		lastStatus int
	)
	start := time.Now()
	err, exhausted := retryWithBackoff(ctx, attempts, c.initialDelay, c.maxDelay, func(attempt int) error {
		if attempt > 0 {
			c.logger.WithField("route", route).Warnf("Retrying backend request (attempt %d/%d)", attempt+1, attempts)
		}
		data, status, err := c.once(ctx, method, path, payload)
		lastStatus = status
		if err == nil {
			result = data
			return nil
		}
		if ctx.Err() != nil {
			return permanent(ctx.Err())
		}

		var se *statusError
		switch {
		case errors.As(err, &se):
			if retryableStatus[se.status] {
				return err
			}
			return permanent(err)
		case isRetryableTransportError(err):
			return err
		default:
			return permanent(err)
		}
	})
	c.record(route, lastStatus, err, time.Since(start))

	if err == nil {
		return &Response{Success: true, Data: result, StatusCode: lastStatus}
	}

	if exhausted {
		c.logger.WithError(err).WithField("route", route).Warnf("Backend unavailable after %d attempts", attempts)
		return &Response{
			Error:      UnavailableMessage,
			StatusCode: lastStatus,
			Err:        domerrors.NewBackendError(route, lastStatus, fmt.Errorf("%w: %w", domerrors.ErrBackendUnavailable, err)),
		}
	}

	c.logger.WithError(err).WithField("route", route).Debugf("Backend request failed")
	resp := &Response{StatusCode: lastStatus, Error: err.Error()}
	var se *statusError
	if errors.As(err, &se) {
		resp.Error = se.message
	}
	if lastStatus == http.StatusNotFound {
		err = fmt.Errorf("%w: %w", domerrors.ErrNotFound, err)
	}
	resp.Err = domerrors.NewBackendError(route, lastStatus, err)
	return resp
}

// idempotent reports whether method may be retried. POSTs are sent once.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut:
		return true
	default:
		return false
	}
}

// once performs a single HTTP attempt under the per-attempt timeout.
func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &statusError{status: resp.StatusCode, message: errorMessage(data, resp.StatusCode)}
	}
	return data, resp.StatusCode, nil
}

// errorMessage extracts {"error": "..."} or {"message": "..."} from a failure
// body, falling back to the status text.
func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return http.StatusText(status)
}

func (c *Client) record(route string, status int, err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
		if err == nil {
			label = "ok"
		}
	}
	c.metrics.RecordBackendRequest(route, label, d.Seconds())
}
