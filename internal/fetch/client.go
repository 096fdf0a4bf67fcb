// Package fetch is the data-access layer: typed accessors per resource over
// the confession HTTP API, with per-call timeouts, error classification and
// bounded retries for reads.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// RetryPolicy bounds automatic retries of reads.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// DefaultRetry retries twice, starting at 1s and capped at 30s.
func DefaultRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Base: time.Second, Max: 30 * time.Second}
}

// Delay returns the backoff before retry number attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Config holds the client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	PageSize      int
	ReplyPageSize int
	Retry         RetryPolicy
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client talks to the confession API. It is safe for concurrent use.
type Client struct {
	baseURL       string
	timeout       time.Duration
	pageSize      int
	replyPageSize int
	retry         RetryPolicy
	http          *http.Client
	log           *slog.Logger
	sleep         func(ctx context.Context, d time.Duration) error

	disconnected atomic.Bool
}

// New creates a client, filling unset fields with defaults.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		timeout:       cfg.Timeout,
		pageSize:      cfg.PageSize,
		replyPageSize: cfg.ReplyPageSize,
		retry:         cfg.Retry,
		http:          cfg.HTTPClient,
		log:           cfg.Logger,
		sleep:         sleepCtx,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.pageSize <= 0 {
		c.pageSize = 10
	}
	if c.replyPageSize <= 0 {
		c.replyPageSize = 5
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Disconnected reports whether a connection-level failure was seen this
// session. While set, reads are not retried.
func (c *Client) Disconnected() bool { return c.disconnected.Load() }

// ResetConnectivity clears the disconnection flag, e.g. on a new session.
func (c *Client) ResetConnectivity() { c.disconnected.Store(false) }

// do performs one request bounded by the per-call timeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Message: "encode request", Err: err}
		}
		rdr = bytes.NewReader(b)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(callCtx, method, u, rdr)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var errRes struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errRes)
		if errRes.Error == "" {
			errRes.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: errRes.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if callCtx.Err() != nil {
			return classify(ctx, callCtx.Err())
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return &Error{Kind: KindUnknown, Message: "decode response", Err: err}
		}
		return classify(ctx, err)
	}
	return nil
}

// read performs a GET, retrying transient failures with exponential backoff.
// After a disconnection-class failure no further retries happen this session.
func (c *Client) read(ctx context.Context, path string, query url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.do(ctx, http.MethodGet, path, query, nil, out)
		if err == nil {
			return nil
		}
		if IsDisconnected(err) {
			c.disconnected.Store(true)
		}
		if !Retryable(err) || attempt >= c.retry.MaxRetries || c.disconnected.Load() {
			return err
		}
		delay := c.retry.Delay(attempt)
		c.log.Warn("retrying read", "path", path, "attempt", attempt+1, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return classify(ctx, err)
		}
	}
}

func listQuery(cursor *string, limit int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != nil && *cursor != "" {
		q.Set("cursor", *cursor)
	}
	return q
}

func idsQuery(param string, ids []string) url.Values {
	q := url.Values{}
	for _, id := range ids {
		q.Add(param, id)
	}
	return q
}

func resourcePath(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

type itemsResponse[T any] struct {
	Items []T `json:"items"`
}

func readItems[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var res itemsResponse[T]
	if err := c.read(ctx, path, query, &res); err != nil {
		return nil, err
	}
	if res.Items == nil {
		res.Items = []T{}
	}
	return res.Items, nil
}

func groupBy[T any](items []T, ids []string, key func(T) string) map[string][]T {
	out := make(map[string][]T, len(ids))
	for _, id := range ids {
		out[id] = []T{}
	}
	for _, it := range items {
		if k := key(it); k != "" {
			out[k] = append(out[k], it)
		}
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: KindUnknown, Message: op + ": " + err.Error(), Err: err}
}
