// Package apiclient talks to the panelmotion HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"panelmotion/internal/domain"
)

const defaultTimeout = 15 * time.Minute

// Client is a thin JSON client for the /v1 API.
type Client struct {
	baseURL string
	locale  string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLocale sets the Accept-Language header sent with every request.
func WithLocale(locale string) Option {
	return func(c *Client) { c.locale = strings.TrimSpace(locale) }
}

// New returns a client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient: base url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", baseURL)
	}
	c := &Client{baseURL: base, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Error is a non-2xx API response.
type Error struct {
	Status  int         `json:"-"`
	Code    string      `json:"error"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	Field   string      `json:"field,omitempty"`
	Stage   string      `json:"stage,omitempty"`
	Job     *domain.Job `json:"job,omitempty"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Code == "" {
		return fmt.Sprintf("api: %d %s", e.Status, msg)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, msg)
}

// StageCatalogue is the response of GET /v1/stages.
type StageCatalogue struct {
	Items           []domain.StageInfo `json:"items"`
	BackgroundTypes []string           `json:"backgroundTypes"`
	AnimationTypes  []string           `json:"animationTypes"`
	VoiceTypes      []string           `json:"voiceTypes"`
}

// Submit uploads a panel image and returns the job after colorizing.
func (c *Client) Submit(ctx context.Context, filename string, image io.Reader) (*domain.Job, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", contentTypeFor(filename))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("apiclient: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var job domain.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", mw.FormDataContentType(), &body, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), "", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns the most recent jobs. A non-positive limit uses the server default.
func (c *Client) List(ctx context.Context, limit int) ([]domain.Job, error) {
	path := "/v1/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Items []domain.Job `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// RunStage runs one stage of a job with params.
func (c *Client) RunStage(ctx context.Context, jobID string, stage domain.StageName, params domain.StageParams) (*domain.Job, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var job domain.Job
	path := "/v1/jobs/" + url.PathEscape(jobID) + "/stages/" + url.PathEscape(string(stage))
	if err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(payload), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Finalize marks a job completed.
func (c *Client) Finalize(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+url.PathEscape(jobID)+"/finalize", "", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stages returns the stage catalogue.
func (c *Client) Stages(ctx context.Context) (*StageCatalogue, error) {
	var out StageCatalogue
	if err := c.do(ctx, http.MethodGet, "/v1/stages", "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Archive streams the job's artifact archive into w.
func (c *Client) Archive(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID)+"/artifacts.zip", "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(raw, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return nil, apiErr
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
