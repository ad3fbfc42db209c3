package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Rod is a Session backed by a go-rod controlled Chrome.
type Rod struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*Rod)(nil)

// NewRod launches the browser at opts.DriverPath and opens one blank page
// that is reused for every navigation.
func NewRod(opts Options) (*Rod, error) {
	opts.setDefaults()

	l := launcher.New().
		Bin(opts.DriverPath).
		Headless(opts.Headless).
		Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("opening page: %w", err)
	}

	// Set viewport
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("setting viewport: %w", err)
	}

	return &Rod{
		launcher: l,
		browser:  b,
		page:     page,
		timeout:  opts.Timeout,
	}, nil
}

// Navigate loads url and waits for the load event, both within the
// session timeout.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx).Timeout(r.timeout)
	if err := p.Navigate(url); err != nil {
		return loadError(ctx, err, url)
	}
	return loadError(ctx, p.WaitLoad(), url)
}

// WaitFor polls for selector until it matches or the timeout expires.
func (r *Rod) WaitFor(ctx context.Context, selector string) (Element, error) {
	el, err := r.page.Context(ctx).Timeout(r.timeout).Element(selector)
	if err != nil {
		return nil, timeoutError(ctx, err, selector)
	}
	return &rodElement{el: el.CancelTimeout(), timeout: r.timeout}, nil
}

// Title returns document.title.
func (r *Rod) Title(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return res.Value.String(), nil
}

// Location returns window.location.href.
func (r *Rod) Location(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`() => window.location.href`)
	if err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return res.Value.String(), nil
}

// Cookies returns the cookies for the current page.
func (r *Rod) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	cookies, err := r.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

// HTML returns the outer HTML of the document.
func (r *Rod) HTML(ctx context.Context) (string, error) {
	html, err := r.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("reading page HTML: %w", err)
	}
	return html, nil
}

// Close cleans up browser resources. Safe to call more than once.
func (r *Rod) Close() error {
	r.closeOnce.Do(func() {
		if r.page != nil {
			_ = r.page.Close()
		}
		if r.browser != nil {
			r.closeErr = r.browser.Close()
		}
		if r.launcher != nil {
			r.launcher.Cleanup()
		}
	})
	return r.closeErr
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Timeout(e.timeout).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Timeout(e.timeout).Text()
}

func (e *rodElement) Find(ctx context.Context, selector string) (Element, error) {
	child, err := e.el.Context(ctx).Timeout(e.timeout).Element(selector)
	if err != nil {
		return nil, timeoutError(ctx, err, selector)
	}
	return &rodElement{el: child.CancelTimeout(), timeout: e.timeout}, nil
}
