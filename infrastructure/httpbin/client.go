// Package httpbin drives the demo API (httpbin.org or a compatible server)
// and records every request attempt as a domain.LogRecord.
package httpbin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"http-kpi/domain"
	"http-kpi/infrastructure/logging"
	"http-kpi/infrastructure/metrics"
)

var ErrUnexpectedResponse = errors.New("unexpected response")

const maxBodySize = 10 << 20

type Config struct {
	BaseURL    string
	User       string
	Password   string
	OutDir     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

type call struct {
	method    string
	path      string
	query     url.Values
	form      url.Values
	basicAuth bool
}

func (c call) endpoint() string {
	if len(c.query) == 0 {
		return c.path
	}
	return c.path + "?" + c.query.Encode()
}

type response struct {
	status int
	body   []byte
	url    *url.URL
	record int
}

type Client struct {
	cfg        Config
	http       *http.Client
	cb         *gobreaker.CircuitBreaker[*response]
	metrics    *metrics.Metrics
	normalizer *domain.Normalizer
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	records []domain.LogRecord
}

func NewClient(cfg Config, m *metrics.Metrics) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if m == nil {
		m = metrics.New()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: cfg.Timeout, Jar: jar},
		metrics:    m,
		normalizer: domain.NewDefaultNormalizer(),
		now:        time.Now,
		sleep:      sleepContext,
	}
	c.cb = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "demo-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records returns a copy of every attempt observed so far.
func (c *Client) Records() []domain.LogRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LogRecord(nil), c.records...)
}

func (c *Client) observe(rec domain.LogRecord) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return len(c.records) - 1
}

func (c *Client) markParseError(resp *response) {
	if resp == nil || resp.record < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[resp.record].ParseError = true
}

// do sends one logical request, retrying transport errors and 403 responses
// up to MaxRetries times with a linear backoff.
func (c *Client) do(ctx context.Context, cl call) (*response, error) {
	attempts := c.cfg.MaxRetries + 1
	target := c.cfg.BaseURL + cl.endpoint()

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.attempt(ctx, cl)
		if err != nil {
			if isRejected(err) || ctx.Err() != nil {
				return nil, err
			}
			logging.Error().Err(err).Str("url", target).Int("attempt", attempt).Int("max", attempts).Msg("Network error")
			if attempt < attempts {
				if err := c.sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		if resp.status == http.StatusForbidden {
			logging.Warn().Str("url", target).Int("attempt", attempt).Int("max", attempts).Msg("403 Forbidden")
			if attempt < attempts {
				if err := c.sleep(ctx, c.cfg.Backoff*time.Duration(attempt)); err != nil {
					return nil, err
				}
				continue
			}
		}
		return resp, nil
	}
	return nil, fmt.Errorf("no attempts made for %s", target)
}

func (c *Client) attempt(ctx context.Context, cl call) (*response, error) {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, err
	}

	started := c.now()
	resp, err := c.cb.Execute(func() (*response, error) {
		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return &response{status: httpResp.StatusCode, body: body, url: httpResp.Request.URL}, nil
	})
	if isRejected(err) {
		return nil, err
	}
	elapsed := c.now().Sub(started)

	base := c.normalizer.Normalize(cl.path)
	rec := domain.LogRecord{
		Timestamp:   started.UTC().Format(domain.TimestampLayout),
		EndpointRaw: cl.endpoint(),
	}
	// Credential segments stay out of the log.
	if cl.basicAuth {
		rec.EndpointRaw = base
	}
	if err != nil {
		rec.ParseError = true
		c.observe(rec)
		c.metrics.HTTPRequests.WithLabelValues(base, metrics.StatusClass(0)).Inc()
		return nil, err
	}

	rec.StatusCode = domain.IntPtr(resp.status)
	rec.ElapsedMs = domain.Float64Ptr(float64(elapsed.Microseconds()) / 1000)
	resp.record = c.observe(rec)
	c.metrics.HTTPRequests.WithLabelValues(base, metrics.StatusClass(resp.status)).Inc()
	c.metrics.HTTPLatency.WithLabelValues(base).Observe(elapsed.Seconds())
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	var body io.Reader
	if cl.form != nil {
		body = strings.NewReader(cl.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.cfg.BaseURL+cl.endpoint(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if cl.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cl.basicAuth {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}
	return req, nil
}

// isRejected reports whether the breaker refused the call without sending it.
func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func raiseForStatus(resp *response) error {
	if resp.status >= 400 {
		return fmt.Errorf("%w: status %d from %s", ErrUnexpectedResponse, resp.status, resp.url)
	}
	return nil
}
