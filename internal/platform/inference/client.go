package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/mediaforge-api/internal/processing"
	"golang.org/x/time/rate"
)

// ProviderName identifies this provider in errors and logs.
const ProviderName = "inference"

// capacityCodes are provider error codes that mean "try again later".
var capacityCodes = map[string]bool{
	"capacity_exceeded":   true,
	"rate_limited":        true,
	"too_many_requests":   true,
	"queue_full":          true,
	"insufficient_gpus":   true,
	"service_unavailable": true,
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client talks to the REST inference API. Every request waits on a shared
// token bucket so bursts of launches and polls stay within the provider's
// rate limit.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ processing.Client = (*Client)(nil)

// NewClient creates a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid inference base url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("inference api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "inference_client"),
	}, nil
}

type createRequest struct {
	Model         string         `json:"model"`
	Input         map[string]any `json:"input"`
	Webhook       string         `json:"webhook,omitempty"`
	WebhookEvents []string       `json:"webhook_events_filter,omitempty"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

type apiError struct {
	Error  json.RawMessage `json:"error"`
	Code   string          `json:"code"`
	Detail string          `json:"detail"`
}

// CreateJob implements processing.Client.
func (c *Client) CreateJob(ctx context.Context, spec processing.JobSpec) (string, error) {
	req := createRequest{Model: spec.Model, Input: spec.Input}
	if spec.WebhookURL != "" {
		req.Webhook = spec.WebhookURL
		req.WebhookEvents = []string{"completed"}
	}

	var p prediction
	if err := c.do(ctx, "create job", http.MethodPost, "/v1/predictions", req, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", fmt.Errorf("%s create job: response carries no id", ProviderName)
	}
	c.logger.DebugContext(ctx, "job created", "external_id", p.ID, "model", spec.Model)
	return p.ID, nil
}

// GetStatus implements processing.Client.
func (c *Client) GetStatus(ctx context.Context, externalID string) (processing.StatusReport, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get status", http.MethodGet, "/v1/predictions/"+url.PathEscape(externalID), nil, &raw); err != nil {
		return processing.StatusReport{}, err
	}
	var p prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return processing.StatusReport{}, fmt.Errorf("%s get status: decode response: %w", ProviderName, err)
	}
	return processing.StatusReport{
		Status: p.Status,
		Error:  errorText(p.Error),
		Raw:    raw,
	}, nil
}

// GetResult implements processing.Client. A 409 means the provider has not
// finished writing the artifact. A succeeded prediction without output is
// finished and yields an empty Result.
func (c *Client) GetResult(ctx context.Context, externalID string) (processing.Result, error) {
	var p prediction
	err := c.do(ctx, "get result", http.MethodGet, "/v1/predictions/"+url.PathEscape(externalID), nil, &p)
	if err != nil {
		var perr *processing.ProviderError
		if errors.As(err, &perr) && perr.StatusCode == http.StatusConflict {
			return processing.Result{StillRunning: true}, nil
		}
		return processing.Result{}, err
	}

	if processing.Classify(p.Status) != processing.CanonicalSucceeded {
		return processing.Result{StillRunning: true}, nil
	}
	return processing.Result{OutputRef: outputRef(p.Output)}, nil
}

// Cancel implements processing.Client. Jobs that are already finished or
// unknown report false without an error.
func (c *Client) Cancel(ctx context.Context, externalID string) (bool, error) {
	err := c.do(ctx, "cancel", http.MethodPost, "/v1/predictions/"+url.PathEscape(externalID)+"/cancel", nil, nil)
	if err != nil {
		var perr *processing.ProviderError
		if errors.As(err, &perr) && (perr.StatusCode == http.StatusNotFound || perr.StatusCode == http.StatusConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s %s: rate limiter: %w", ProviderName, op, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode request: %w", ProviderName, op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: build request: %w", ProviderName, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", ProviderName, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", ProviderName, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", ProviderName, op, err)
	}
	return nil
}

func decodeError(op string, status int, payload []byte) error {
	var body apiError
	_ = json.Unmarshal(payload, &body)

	code := body.Code
	message := body.Detail
	if len(body.Error) > 0 {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body.Error, &nested); err == nil {
			if nested.Code != "" {
				code = nested.Code
			}
			if nested.Message != "" {
				message = nested.Message
			}
		} else if text := errorText(body.Error); text != "" {
			message = text
		}
	}
	if message == "" && len(payload) > 0 && len(payload) < 512 && !json.Valid(payload) {
		message = strings.TrimSpace(string(payload))
	}

	busy := status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		capacityCodes[strings.ToLower(code)]
	return processing.NewProviderError(ProviderName, op, status, code, message, busy)
}

// errorText renders a provider error field that may be a string or an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return obj.Detail
	}
	return string(raw)
}

// outputRef picks the artifact URL from an output that is either a string
// or a list of strings.
func outputRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
