package oanda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	PracticeURL = "https://api-fxpractice.oanda.com"
	LiveURL     = "https://api-fxtrade.oanda.com"
)

// BaseURL returns the REST endpoint for a practice or live account.
func BaseURL(practice bool) string {
	if practice {
		return PracticeURL
	}
	return LiveURL
}

type Options struct {
	BaseURL    string
	Token      string
	AccountID  string
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second, 0 disables
}

// Client talks to the v20 REST API for a single account. GET requests are
// retried on transport errors, 5xx and 429; orders and closes are sent once.
type Client struct {
	baseURL   string
	token     string
	accountID string
	http      *http.Client
	limiter   *rate.Limiter
	retry     failsafe.Executor[*http.Response]
	log       *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) (*Client, error) {
	if opts.Token == "" {
		return nil, errors.New("oanda: missing token")
	}
	if opts.AccountID == "" {
		return nil, errors.New("oanda: missing account id")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("oanda: missing base url")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("oanda: base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "oanda"))

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	rp := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(opts.MaxRetries).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			log.Warn("retrying request", zap.Int("attempt", e.Attempts()), zap.Error(e.LastError()))
		}).
		Build()

	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.Token,
		accountID: opts.AccountID,
		http:      &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, 1),
		retry:     failsafe.With[*http.Response](rp),
		log:       log,
	}, nil
}

// APIError is a non-2xx reply. OANDA puts a human readable message in
// errorMessage and, for refused orders, a code in rejectReason.
type APIError struct {
	StatusCode   int
	Body         []byte
	ErrorCode    string
	ErrorMessage string
	RejectReason string
}

func (e *APIError) Error() string {
	msg := e.ErrorMessage
	if msg == "" {
		msg = strings.TrimSpace(string(e.Body))
	}
	return fmt.Sprintf("oanda http %d: %s", e.StatusCode, msg)
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}
	var payload struct {
		ErrorCode              string `json:"errorCode"`
		ErrorMessage           string `json:"errorMessage"`
		OrderRejectTransaction struct {
			RejectReason string `json:"rejectReason"`
		} `json:"orderRejectTransaction"`
		OrderCancelTransaction struct {
			Reason string `json:"reason"`
		} `json:"orderCancelTransaction"`
	}
	if json.Unmarshal(body, &payload) == nil {
		e.ErrorCode = payload.ErrorCode
		e.ErrorMessage = payload.ErrorMessage
		e.RejectReason = payload.OrderRejectTransaction.RejectReason
		if e.RejectReason == "" {
			e.RejectReason = payload.OrderCancelTransaction.Reason
		}
	}
	return e
}

func (c *Client) accountPath(format string, args ...any) string {
	return "/v3/accounts/" + url.PathEscape(c.accountID) + fmt.Sprintf(format, args...)
}

// get is idempotent and runs through the retry policy.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.retry.WithContext(ctx).Get(func() (*http.Response, error) {
		return c.send(ctx, http.MethodGet, path, q, nil)
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			return newAPIError(resp.StatusCode, b)
		}
		return fmt.Errorf("oanda GET %s: %w", path, err)
	}
	return c.decode(resp, out)
}

// write sends a mutating request exactly once.
func (c *Client) write(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	resp, err := c.send(ctx, method, path, nil, payload)
	if err != nil {
		return fmt.Errorf("oanda %s %s: %w", method, path, err)
	}
	return c.decode(resp, out)
}

func (c *Client) decode(resp *http.Response, out any) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, b)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs one attempt. The body is read fully so that a retried
// attempt never leaves a connection open.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, payload []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept-Datetime-Format", "RFC3339")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	resp.Body = io.NopCloser(bytes.NewReader(b))
	return resp, nil
}
