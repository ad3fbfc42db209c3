// Package browser exposes the narrow set of DOM operations the downloader
// needs (navigate, wait for an element, read attributes and text, collect
// cookies) behind a Session interface, with rod, chromedp and static HTML
// implementations.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod/lib/launcher"
)

// Sentinel errors for browser sessions.
var (
	ErrMissingDriver = errors.New("browser driver not found")
	ErrTimeout       = errors.New("element did not appear within timeout")
	ErrUnknownEngine = errors.New("unknown browser engine")
	ErrClosed        = errors.New("browser session closed")
)

// Engine names accepted by New.
const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"
	EngineStatic   = "static"
)

// DefaultTimeout bounds each element wait when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// Session is a live browser tab that can be pointed at pages and queried.
type Session interface {
	// Navigate loads url and waits for the document to finish loading.
	Navigate(ctx context.Context, url string) error
	// WaitFor waits up to the session timeout for selector to match and
	// returns the first matching element. Expiry is reported as ErrTimeout.
	WaitFor(ctx context.Context, selector string) (Element, error)
	// Title returns the current document title.
	Title(ctx context.Context) (string, error)
	// Location returns the URL of the current document after redirects.
	Location(ctx context.Context) (string, error)
	// Cookies returns the cookies visible to the current document.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	// HTML returns the serialized current document.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Element is a DOM element found through a Session.
type Element interface {
	// Attribute returns the raw attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
	// Find waits for a descendant matching selector.
	Find(ctx context.Context, selector string) (Element, error)
}

// Options configures a browser session.
type Options struct {
	Engine     string
	DriverPath string        // Chrome/Chromium executable; empty means look it up
	Timeout    time.Duration // per page load and per element wait
	Headless   bool
	Width      int
	Height     int
	HTTPClient *http.Client // static engine only
	Logger     *log.Logger
}

func (o *Options) setDefaults() {
	if o.Engine == "" {
		o.Engine = EngineRod
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Width == 0 {
		o.Width = defaultWidth
	}
	if o.Height == 0 {
		o.Height = defaultHeight
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// New starts a session for the configured engine.
func New(opts Options) (Session, error) {
	opts.setDefaults()

	switch opts.Engine {
	case EngineStatic:
		return NewStatic(opts), nil
	case EngineRod, EngineChromedp:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Engine)
	}

	driver, err := ResolveDriver(opts.DriverPath)
	if err != nil {
		return nil, err
	}
	opts.DriverPath = driver
	opts.Logger.Debug("resolved browser driver", "engine", opts.Engine, "path", driver)

	if opts.Engine == EngineChromedp {
		return NewChromedp(opts)
	}
	return NewRod(opts)
}

// ResolveDriver returns the browser executable to launch. An explicit path
// must name an existing regular file; an empty path falls back to the
// system Chrome/Chromium lookup.
func ResolveDriver(path string) (string, error) {
	if path == "" {
		found, ok := launcher.LookPath()
		if !ok {
			return "", fmt.Errorf("%w: no Chrome or Chromium installation found", ErrMissingDriver)
		}
		return found, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingDriver, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrMissingDriver, path)
	}
	return path, nil
}

// timeoutError maps context expiry on an element wait to ErrTimeout.
func timeoutError(ctx context.Context, err error, selector string) error {
	if err == nil {
		return nil
	}
	// The caller's own cancellation is not a page timeout.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return fmt.Errorf("waiting for %s: %w", selector, err)
}

// loadError maps context expiry while loading url to ErrTimeout.
func loadError(ctx context.Context, err error, url string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: loading %s", ErrTimeout, url)
	}
	return fmt.Errorf("navigating to %s: %w", url, err)
}
