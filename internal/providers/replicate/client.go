package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
)

// ErrMissingToken indicates that no API token could be resolved.
var ErrMissingToken = errors.New("replicate: api token is required")

// Prediction statuses reported by the predictions API.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// TokenSource resolves the API token at call time so a token stored after
// startup is picked up without a restart.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed value.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Options configures a Replicate predictions client bound to one model version.
type Options struct {
	Tokens         TokenSource
	BaseURL        string
	Version        string
	Stage          domain.Stage
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client implements domain.Operation on top of the Replicate predictions API.
type Client struct {
	tokens     TokenSource
	baseURL    string
	version    string
	stage      domain.Stage
	httpClient *http.Client
	logger     *infra.Logger
}

// StatusError is a non-success HTTP answer that is worth retrying.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("replicate: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// RetryDelay returns the server-requested wait, or zero.
func (e *StatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	Logs   string          `json:"logs"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}
	if opts.Tokens == nil {
		return nil, ErrMissingToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		tokens:     opts.Tokens,
		baseURL:    baseURL,
		version:    version,
		stage:      opts.Stage,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Version returns the pinned model version.
func (c *Client) Version() string {
	return c.version
}

// Invoke creates a prediction.
func (c *Client) Invoke(ctx context.Context, req domain.OperationRequest) (domain.OperationState, error) {
	body, err := json.Marshal(createRequest{Version: c.version, Input: req.Input})
	if err != nil {
		return domain.OperationState{}, fmt.Errorf("replicate: encode request: %w", err)
	}
	pred, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", body)
	if err != nil {
		return domain.OperationState{}, err
	}
	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("stage", string(c.stage)).
		Str("operation_id", pred.ID).
		Str("status", pred.Status).
		Msg("replicate: prediction created")
	return c.state(pred)
}

// Poll fetches the prediction identified by handle.
func (c *Client) Poll(ctx context.Context, handle string) (domain.OperationState, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.OperationState{}, errors.New("replicate: prediction id is required")
	}
	pred, err := c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+url.PathEscape(handle), nil)
	if err != nil {
		return domain.OperationState{}, err
	}
	if pred.ID == "" {
		pred.ID = handle
	}
	return c.state(pred)
}

func (c *Client) state(pred *prediction) (domain.OperationState, error) {
	switch pred.Status {
	case StatusSucceeded:
		output := firstOutput(pred.Output)
		if output == "" {
			return domain.OperationState{}, &domain.UpstreamError{Stage: c.stage, Detail: "prediction succeeded without output"}
		}
		return domain.OperationState{Done: true, Handle: pred.ID, OutputURL: output}, nil
	case StatusFailed, StatusCanceled:
		detail := errorText(pred.Error)
		if detail == "" {
			detail = "prediction " + pred.Status
		}
		return domain.OperationState{}, &domain.UpstreamError{Stage: c.stage, Detail: detail}
	case StatusStarting, StatusProcessing, "":
		if pred.ID == "" {
			return domain.OperationState{}, errors.New("replicate: prediction without id")
		}
		return domain.OperationState{Handle: pred.ID}, nil
	default:
		return domain.OperationState{}, fmt.Errorf("replicate: unknown prediction status %q", pred.Status)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*prediction, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("replicate: resolve token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return nil, &domain.UpstreamError{Stage: c.stage, Detail: ErrMissingToken.Error()}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Token "+strings.TrimSpace(token))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		if retryableStatus(resp.StatusCode) {
			retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw), RetryAfter: retryAfter}
		}
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
			return nil, &domain.UpstreamError{Stage: c.stage, Detail: fmt.Sprintf("%s (%d)", detail.Detail, resp.StatusCode)}
		}
		return nil, &domain.UpstreamError{Stage: c.stage, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	}

	var decoded prediction
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode response: %w", err)
	}
	return &decoded, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// firstOutput accepts either a single locator or a list of locators.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(raw))
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

var _ domain.Operation = (*Client)(nil)
