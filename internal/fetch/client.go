// Package fetch downloads page images with the cookies of a browser session.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

const (
	// UserAgent matches a desktop Chrome so image hosts serve the same
	// content they serve the browser.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	MaxBodySize = int64(64 << 20)

	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is worth retrying (5xx or 429).
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configures a Client.
type Options struct {
	// Retries is the number of extra attempts after a retryable failure.
	// Zero disables retrying.
	Retries         uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout bounds a single request. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *log.Logger
}

// Client is an HTTP client with its own cookie jar.
type Client struct {
	http   *http.Client
	jar    http.CookieJar
	opts   Options
	logger *log.Logger
}

// New returns a Client with an empty cookie jar.
func New(opts Options) *Client {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return NewWithHTTPClient(&http.Client{Jar: jar, Timeout: opts.Timeout}, opts)
}

// NewWithHTTPClient wraps hc. A jar is installed when hc has none.
func NewWithHTTPClient(hc *http.Client, opts Options) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Jar == nil {
		jar, _ := cookiejar.New(nil)
		hc.Jar = jar
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{http: hc, jar: hc.Jar, opts: opts, logger: logger}
}

// HTTPClient exposes the underlying client, e.g. for a static browser
// session that should share the jar.
func (c *Client) HTTPClient() *http.Client { return c.http }

// ImportCookies stores browser cookies in the jar, each under its own
// domain. A cookie whose domain starts with a dot is sent to subdomains;
// otherwise it is host-only.
func (c *Client) ImportCookies(cookies []*http.Cookie) int {
	byOrigin := make(map[string][]*http.Cookie)
	for _, ck := range cookies {
		if ck == nil || ck.Domain == "" {
			continue
		}
		host := strings.TrimPrefix(ck.Domain, ".")
		scheme := "http"
		if ck.Secure {
			scheme = "https"
		}
		origin := scheme + "://" + host + "/"

		cp := *ck
		if !strings.HasPrefix(ck.Domain, ".") {
			cp.Domain = ""
		}
		if cp.Path == "" {
			cp.Path = "/"
		}
		byOrigin[origin] = append(byOrigin[origin], &cp)
	}

	n := 0
	for origin, list := range byOrigin {
		u, err := url.Parse(origin)
		if err != nil {
			c.logger.Debug("skipping cookies with bad domain", "origin", origin, "err", err)
			continue
		}
		c.jar.SetCookies(u, list)
		n += len(list)
	}
	return n
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// Get fetches rawURL and returns the body. Non-2xx responses yield a
// *StatusError. Network errors and retryable statuses are retried with
// exponential backoff when Options.Retries > 0.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.opts.Retries == 0 {
		return c.get(ctx, rawURL)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(b, c.opts.Retries), ctx)

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		data, err := c.get(ctx, rawURL)
		if err == nil {
			body = data
			return nil
		}
		if !shouldRetry(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying", "url", rawURL, "attempt", attempt, "wait", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(data)) > MaxBodySize {
		return nil, fmt.Errorf("GET %s: body exceeds %d bytes", rawURL, MaxBodySize)
	}
	return data, nil
}

// shouldRetry reports whether err is transient: a retryable status or a
// network error while ctx is still live.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
