package discover

import (
	"context"
	"fmt"
	"net/http"

	"github.com/v0xg/thesisdl/internal/browser"
)

// fakeSession serves canned pages keyed by URL.
type fakeSession struct {
	pages     map[string]*fakePage
	current   string
	navigated []string
}

type fakePage struct {
	title    string
	html     string
	elements map[string]*fakeElement
	// titleOnWait replaces title once the keyed selector has been waited
	// for, like a viewer that sets document.title from script.
	titleOnWait map[string]string
}

type fakeElement struct {
	attrs    map[string]string
	text     string
	children map[string]*fakeElement
	ctxs     []context.Context
}

var _ browser.Session = (*fakeSession)(nil)

func (f *fakeSession) page() (*fakePage, error) {
	p, ok := f.pages[f.current]
	if !ok {
		return nil, fmt.Errorf("no page loaded")
	}
	return p, nil
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if _, ok := f.pages[url]; !ok {
		return fmt.Errorf("navigating to %s: 404", url)
	}
	f.current = url
	return nil
}

func (f *fakeSession) WaitFor(_ context.Context, selector string) (browser.Element, error) {
	p, err := f.page()
	if err != nil {
		return nil, err
	}
	el, ok := p.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, selector)
	}
	if t, ok := p.titleOnWait[selector]; ok {
		p.title = t
	}
	return el, nil
}

func (f *fakeSession) Title(context.Context) (string, error) {
	p, err := f.page()
	if err != nil {
		return "", err
	}
	return p.title, nil
}

func (f *fakeSession) Location(context.Context) (string, error) { return f.current, nil }

func (f *fakeSession) Cookies(context.Context) ([]*http.Cookie, error) { return nil, nil }

func (f *fakeSession) HTML(context.Context) (string, error) {
	p, err := f.page()
	if err != nil {
		return "", err
	}
	return p.html, nil
}

func (f *fakeSession) Close() error { return nil }

func (e *fakeElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	e.ctxs = append(e.ctxs, ctx)
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	e.ctxs = append(e.ctxs, ctx)
	return e.text, nil
}

func (e *fakeElement) Find(_ context.Context, selector string) (browser.Element, error) {
	c, ok := e.children[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, selector)
	}
	return c, nil
}

// fakeResolver returns a fixed selector and records its calls.
type fakeResolver struct {
	selector string
	err      error
	targets  []string
	maps     []*browser.PageMap
}

func (r *fakeResolver) ResolveSelector(_ context.Context, pm *browser.PageMap, target string) (string, error) {
	r.targets = append(r.targets, target)
	r.maps = append(r.maps, pm)
	return r.selector, r.err
}
