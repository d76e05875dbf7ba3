package adrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// Defaults for the web API the tool talks to.
const (
	DefaultBaseURL   = "https://api.aliyundrive.com"
	AlipanBaseURL    = "https://api.alipan.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// ShareTokenHeader carries the share token on share-scoped calls.
	ShareTokenHeader = "X-Share-Token"

	headerAuthorization = "Authorization"
	canaryHeader        = "X-Canary"
	canaryValue         = "client=web,app=adrive,version=v6.4.2"

	defaultMaxAttempts = 5
	defaultTimeout     = 30 * time.Second
)

// TokenSource provides the account's bearer token.
type TokenSource interface {
	Token() (string, error)
}

// RetryPolicy controls backoff between attempts on retryable responses.
// Delay for attempt n (1-based) is base * 2^(n-1), capped at MaxDelay, then
// scaled by a factor drawn uniformly from [JitterMin, JitterMax] and clamped
// to [0, MaxDelay].
type RetryPolicy struct {
	MaxDelay     time.Duration
	ThrottleBase time.Duration // base for HTTP 429
	ServerBase   time.Duration // base for 5xx and network errors
	JitterMin    float64
	JitterMax    float64
}

// DefaultRetryPolicy returns the policy used when Config.Retry is zero.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxDelay:     30 * time.Second,
		ThrottleBase: 1 * time.Second,
		ServerBase:   800 * time.Millisecond,
		JitterMin:    0.7,
		JitterMax:    1.3,
	}
}

// Config holds everything a Client needs at construction.
type Config struct {
	BaseURL    string // e.g. DefaultBaseURL; trailing slash is trimmed
	DriveID    string // the account's drive, target of copies and folder creation
	HTTPClient *http.Client
	Token      TokenSource
	Logger     *slog.Logger
	UserAgent  string        // empty = DefaultUserAgent
	Retry      RetryPolicy   // zero value = DefaultRetryPolicy()
	Timeout    time.Duration // per attempt; zero = 30s
}

// Client is an HTTP client for the Aliyun Drive web API.
// It handles header construction, retry with exponential backoff and
// jitter, error classification, and JSON decoding. A Client is not
// safe for concurrent use; the copy engine drives it from one goroutine.
type Client struct {
	baseURL    string
	driveID    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	policy     RetryPolicy
	timeout    time.Duration

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	// randFunc returns a value in [0, 1) for jitter. Tests pin it.
	randFunc func() float64
}

// NewClient creates an Aliyun Drive API client.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		driveID:    cfg.DriveID,
		httpClient: cfg.HTTPClient,
		token:      cfg.Token,
		logger:     cfg.Logger,
		userAgent:  cfg.UserAgent,
		policy:     cfg.Retry,
		timeout:    cfg.Timeout,
		sleepFunc:  timeSleep,
		randFunc:   rand.Float64, //nolint:gosec // jitter does not need crypto rand
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	// Without a token only anonymous share calls can succeed.
	if c.token == nil {
		c.token = StaticToken("", c.logger)
	}

	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}

	if c.policy == (RetryPolicy{}) {
		c.policy = DefaultRetryPolicy()
	}

	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}

	return c
}

// DriveID returns the account drive the client copies into.
func (c *Client) DriveID() string {
	return c.driveID
}

// Request describes one logical API call. Header entries override the
// default header set; names listed in Omit are removed from it entirely
// (anonymous share-scoped calls omit Authorization).
type Request struct {
	Method      string
	Path        string // appended to the base URL unless it is absolute
	Header      http.Header
	Omit        []string
	Body        any // JSON-encoded when non-nil
	MaxAttempts int // total attempts; zero = 5
	Timeout     time.Duration
}

// Execute issues req, retrying 429/5xx/network failures per the client's
// RetryPolicy, and decodes a 2xx JSON body into out (which may be nil).
// Failures are returned as *APIError wrapping one of the package sentinels.
func (c *Client) Execute(ctx context.Context, req *Request, out any) error {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var payload []byte

	if req.Body != nil {
		var err error

		payload, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("adrive: marshaling %s request body: %w", req.Path, err)
		}
	}

	secret, err := c.token.Token()
	if err != nil && !omits(req.Omit, headerAuthorization) {
		return fmt.Errorf("adrive: obtaining token: %w", err)
	}

	for attempt := 1; ; attempt++ {
		status, body, err := c.doOnce(ctx, req, payload, secret, timeout)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return fmt.Errorf("adrive: request canceled: %w", ctx.Err())
			}

			if attempt < maxAttempts {
				if sleepErr := c.backoff(ctx, req, 0, attempt, maxAttempts, err); sleepErr != nil {
					return sleepErr
				}

				continue
			}

			return fmt.Errorf("%w: %s", &APIError{
				Method:   req.Method,
				Path:     req.Path,
				Attempts: attempt,
				Err:      ErrRequestFailed,
			}, sanitizeBody([]byte(err.Error()), secret))
		}

		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
			)

			return c.decode(req, status, body, secret, attempt, out)
		}

		sentinel := classifyStatus(status, body)
		if sentinel == nil {
			if attempt < maxAttempts {
				if sleepErr := c.backoff(ctx, req, status, attempt, maxAttempts, nil); sleepErr != nil {
					return sleepErr
				}

				continue
			}

			sentinel = ErrRequestFailed

			c.logger.Error("request failed after retries",
				slog.String("method", req.Method),
				slog.String("path", req.Path),
				slog.Int("status", status),
				slog.Int("attempts", attempt),
			)
		}

		return &APIError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: status,
			Code:       parseErrorCode(body),
			Body:       sanitizeBody(body, secret),
			Attempts:   attempt,
			Err:        sentinel,
		}
	}
}

// decode unmarshals a successful response body into out.
func (c *Client) decode(req *Request, status int, body []byte, secret string, attempt int, out any) error {
	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", &APIError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: status,
			Body:       sanitizeBody(body, secret),
			Attempts:   attempt,
			Err:        ErrMalformedResponse,
		}, err)
	}

	return nil
}

// backoff logs the retry and sleeps for the computed delay.
func (c *Client) backoff(ctx context.Context, req *Request, status, attempt, maxAttempts int, cause error) error {
	delay := c.calcBackoff(status, attempt)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", status),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("backoff", delay),
	}

	if cause != nil {
		c.logger.Warn("retrying after network error", attrs...)
	} else {
		c.logger.Warn("retrying after HTTP error", attrs...)
	}

	if err := c.sleepFunc(ctx, delay); err != nil {
		return fmt.Errorf("adrive: request canceled: %w", err)
	}

	return nil
}

// doOnce executes a single HTTP request (no retry) and returns the status
// code and the fully read body.
func (c *Client) doOnce(
	ctx context.Context, req *Request, payload []byte, secret string, timeout time.Duration,
) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path), body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header = c.headers(req, secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// headers merges the default header set with the request's overrides.
func (c *Client) headers(req *Request, secret string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", c.userAgent)
	h.Set(canaryHeader, canaryValue)

	if secret != "" {
		h.Set(headerAuthorization, "Bearer "+secret)
	}

	for _, name := range req.Omit {
		h.Del(name)
	}

	for name, values := range req.Header {
		h.Del(name)

		for _, v := range values {
			h.Add(name, v)
		}
	}

	return h
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	return c.baseURL + path
}

// calcBackoff computes the jittered exponential delay for a 1-based attempt.
func (c *Client) calcBackoff(status, attempt int) time.Duration {
	base := c.policy.ServerBase
	if status == http.StatusTooManyRequests {
		base = c.policy.ThrottleBase
	}

	maxDelay := float64(c.policy.MaxDelay)

	backoff := float64(base) * math.Pow(2, float64(attempt-1))
	if backoff > maxDelay {
		backoff = maxDelay
	}

	factor := c.policy.JitterMin + c.randFunc()*(c.policy.JitterMax-c.policy.JitterMin)
	backoff *= factor

	return time.Duration(math.Max(0, math.Min(backoff, maxDelay)))
}

// omits reports whether name is in the omit list (case-insensitive).
func omits(omit []string, name string) bool {
	for _, o := range omit {
		if strings.EqualFold(o, name) {
			return true
		}
	}

	return false
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
