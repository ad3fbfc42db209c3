package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Chromedp is a Session backed by chromedp. All actions run in one tab.
type Chromedp struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	timeout       time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*Chromedp)(nil)

// NewChromedp starts the browser at opts.DriverPath.
func NewChromedp(opts Options) (*Chromedp, error) {
	opts.setDefaults()

	// Setup browser options
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(opts.DriverPath),
		chromedp.DisableGPU,
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Chromedp{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		timeout:       opts.Timeout,
	}, nil
}

// run executes actions in the browser tab, honouring the caller's ctx and
// an optional timeout.
func (c *Chromedp) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event within the session
// timeout.
func (c *Chromedp) Navigate(ctx context.Context, url string) error {
	return loadError(ctx, c.run(ctx, c.timeout, chromedp.Navigate(url)), url)
}

// WaitFor waits for selector to be ready in the DOM.
func (c *Chromedp) WaitFor(ctx context.Context, selector string) (Element, error) {
	if err := c.run(ctx, c.timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return nil, timeoutError(ctx, err, selector)
	}
	return &cdpElement{session: c, selector: selector}, nil
}

func (c *Chromedp) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, c.timeout, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return title, nil
}

func (c *Chromedp) Location(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, c.timeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return loc, nil
}

// Cookies returns the cookies of the current page via the network domain.
func (c *Chromedp) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := c.run(ctx, c.timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HttpOnly: ck.HTTPOnly,
		})
	}
	return out, nil
}

func (c *Chromedp) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, c.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page HTML: %w", err)
	}
	return html, nil
}

// Close shuts the browser down gracefully. Safe to call more than once.
func (c *Chromedp) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = chromedp.Cancel(c.browserCtx)
		c.browserCancel()
		c.allocCancel()
	})
	return c.closeErr
}

// cdpElement addresses an element by selector; chromedp re-queries the
// DOM for every action.
type cdpElement struct {
	session  *Chromedp
	selector string
}

func (e *cdpElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := e.session.run(ctx, e.session.timeout,
		chromedp.AttributeValue(e.selector, name, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", false, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	return value, ok, nil
}

func (e *cdpElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.session.run(ctx, e.session.timeout,
		chromedp.TextContent(e.selector, &text, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("reading text of %s: %w", e.selector, err)
	}
	return text, nil
}

func (e *cdpElement) Find(ctx context.Context, selector string) (Element, error) {
	return e.session.WaitFor(ctx, e.selector+" "+selector)
}
