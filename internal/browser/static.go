package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Static is a Session that fetches pages over plain HTTP and queries the
// served HTML with goquery. It runs no JavaScript, so an element missing
// from the response is reported as ErrTimeout right away.
type Static struct {
	client  *http.Client
	timeout time.Duration

	mu  sync.Mutex
	doc *goquery.Document
	loc *url.URL
}

var _ Session = (*Static)(nil)

// NewStatic returns a static session. A client without a cookie jar gets
// one so cookies set by visited pages can be handed on.
func NewStatic(opts Options) *Static {
	opts.setDefaults()
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if client.Jar == nil {
		jar, _ := cookiejar.New(nil)
		c := *client
		c.Jar = jar
		client = &c
	}
	return &Static{client: client, timeout: opts.Timeout}
}

// Navigate fetches url and parses the response body. Fetching and parsing
// share the session timeout.
func (s *Static) Navigate(ctx context.Context, rawURL string) error {
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(loadCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", rawURL, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return loadError(ctx, err, rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("navigating to %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if loadCtx.Err() != nil {
			return loadError(ctx, loadCtx.Err(), rawURL)
		}
		return fmt.Errorf("parsing %s: %w", rawURL, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.loc = resp.Request.URL
	s.mu.Unlock()
	return nil
}

func (s *Static) document() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return s.doc, nil
}

// WaitFor returns the first match of selector in the loaded document.
func (s *Static) WaitFor(_ context.Context, selector string) (Element, error) {
	doc, err := s.document()
	if err != nil {
		return nil, err
	}
	return findStatic(doc.Selection, selector)
}

func (s *Static) Title(_ context.Context) (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

func (s *Static) Location(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return s.loc.String(), nil
}

// Cookies returns the jar's cookies for the current page, scoped to its host.
func (s *Static) Cookies(_ context.Context) ([]*http.Cookie, error) {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	if loc == nil {
		return nil, nil
	}

	var out []*http.Cookie
	for _, c := range s.client.Jar.Cookies(loc) {
		out = append(out, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: loc.Hostname(),
			Path:   "/",
		})
	}
	return out, nil
}

func (s *Static) HTML(_ context.Context) (string, error) {
	doc, err := s.document()
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(doc.Selection)
}

// Close drops the loaded document.
func (s *Static) Close() error {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func findStatic(in *goquery.Selection, selector string) (Element, error) {
	found := in.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTimeout, selector)
	}
	return &staticElement{sel: found}, nil
}

func (e *staticElement) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Text(context.Context) (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Find(_ context.Context, selector string) (Element, error) {
	return findStatic(e.sel, selector)
}
