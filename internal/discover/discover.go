// Package discover locates a thesis viewer page and reads what is needed to
// download it: title, page count and the per-page image URL pattern.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/v0xg/thesisdl/internal/browser"
)

// Sentinel errors for discovery.
var (
	ErrNoPageCount = errors.New("page count not found")
	ErrTemplate    = errors.New("cannot derive image URL template")
)

// Descriptions of the discovery targets, used when asking a
// SelectorResolver for a replacement selector.
const (
	TargetViewerLink = "the link (<a> element) that opens the full-text page viewer"
	TargetPageCount  = "the element whose text shows the total number of pages"
	TargetFirstImage = "the <img> element showing the first page of the document"
)

const untitled = "untitled"

var digitsRe = regexp.MustCompile(`\d+`)

// Selectors locate the elements discovery reads.
type Selectors struct {
	Entry         string `yaml:"entry"`         // landing page element wrapping the viewer link
	EntryLink     string `yaml:"entryLink"`     // link inside Entry
	TotalPages    string `yaml:"totalPages"`    // element whose text holds the page count
	FirstPage     string `yaml:"firstPage"`     // container of the first page image
	FirstPageImg  string `yaml:"firstPageImg"`  // image inside FirstPage
	FirstFragment string `yaml:"firstFragment"` // first page filename in the image URL
}

// DefaultSelectors returns the selectors of the university thesis viewer.
func DefaultSelectors() Selectors {
	return Selectors{
		Entry:         ".look",
		EntryLink:     "a",
		TotalPages:    "#totalPages",
		FirstPage:     "#loadingBg0",
		FirstPageImg:  "img",
		FirstFragment: "01.jpg",
	}
}

// withDefaults fills empty selectors from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Entry == "" {
		s.Entry = d.Entry
	}
	if s.EntryLink == "" {
		s.EntryLink = d.EntryLink
	}
	if s.TotalPages == "" {
		s.TotalPages = d.TotalPages
	}
	if s.FirstPage == "" {
		s.FirstPage = d.FirstPage
	}
	if s.FirstPageImg == "" {
		s.FirstPageImg = d.FirstPageImg
	}
	if s.FirstFragment == "" {
		s.FirstFragment = d.FirstFragment
	}
	return s
}

// SelectorResolver suggests a CSS selector for target when the configured
// one does not match.
type SelectorResolver interface {
	ResolveSelector(ctx context.Context, pageMap *browser.PageMap, target string) (string, error)
}

// Options configures discovery.
type Options struct {
	Selectors Selectors
	Resolver  SelectorResolver // optional
	Logger    *log.Logger
}

// Document describes a discovered thesis.
type Document struct {
	Title      string
	TotalPages int
	ViewerURL  string
	Image      Template
}

type discovery struct {
	session  browser.Session
	sel      Selectors
	resolver SelectorResolver
	logger   *log.Logger
}

// Discover opens pageURL, follows the viewer link and reads the document
// descriptor from the viewer page. A required element that does not appear
// in time yields browser.ErrTimeout.
func Discover(ctx context.Context, s browser.Session, pageURL string, opts Options) (*Document, error) {
	d := &discovery{
		session:  s,
		sel:      opts.Selectors.withDefaults(),
		resolver: opts.Resolver,
		logger:   opts.Logger,
	}
	if d.logger == nil {
		d.logger = log.Default()
	}

	if err := s.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}

	// Step 1: landing page → viewer
	link, err := d.locate(ctx, d.sel.Entry, d.sel.EntryLink, TargetViewerLink)
	if err != nil {
		return nil, err
	}
	viewerURL, err := d.resolveAttr(ctx, link, "href")
	if err != nil {
		return nil, err
	}
	d.logger.Debug("following viewer link", "url", viewerURL)

	if err := s.Navigate(ctx, viewerURL); err != nil {
		return nil, err
	}

	// Step 2: page count, then title. The viewer may set document.title
	// from script, so it is read once the page count has rendered.
	countEl, err := d.locate(ctx, d.sel.TotalPages, "", TargetPageCount)
	if err != nil {
		return nil, err
	}
	countText, err := countEl.Text(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading page count: %w", err)
	}
	total, err := ParsePageCount(countText)
	if err != nil {
		return nil, err
	}

	title, err := s.Title(ctx)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = untitled
	}

	// Step 3: first page image → URL template
	img, err := d.locate(ctx, d.sel.FirstPage, d.sel.FirstPageImg, TargetFirstImage)
	if err != nil {
		return nil, err
	}
	src, err := d.resolveAttr(ctx, img, "src")
	if err != nil {
		return nil, err
	}
	tmpl, err := ParseTemplate(src, d.sel.FirstFragment)
	if err != nil {
		return nil, err
	}

	if loc, err := s.Location(ctx); err == nil {
		viewerURL = loc
	}

	return &Document{
		Title:      title,
		TotalPages: total,
		ViewerURL:  viewerURL,
		Image:      tmpl,
	}, nil
}

// ParsePageCount extracts the first run of digits in text.
func ParsePageCount(text string) (int, error) {
	m := digitsRe.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("%w: no digits in %q", ErrNoPageCount, text)
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: invalid count %q", ErrNoPageCount, m)
	}
	return n, nil
}

// locate waits for container and, when child is set, its first matching
// descendant. On a timeout with a resolver configured, the resolver is
// asked for a selector of the final element and that selector is tried once.
func (d *discovery) locate(ctx context.Context, container, child, target string) (browser.Element, error) {
	el, err := d.session.WaitFor(ctx, container)
	if err == nil && child != "" {
		el, err = el.Find(ctx, child)
	}
	if err == nil || d.resolver == nil || !errors.Is(err, browser.ErrTimeout) {
		return el, err
	}

	alt := d.suggest(ctx, target)
	if alt == "" {
		return nil, err
	}
	d.logger.Info("retrying with suggested selector", "target", target, "selector", alt)
	return d.session.WaitFor(ctx, alt)
}

// suggest asks the resolver for a selector; failures are logged and yield "".
func (d *discovery) suggest(ctx context.Context, target string) string {
	pm, err := browser.Snapshot(ctx, d.session)
	if err != nil {
		d.logger.Warn("cannot snapshot page for selector fallback", "err", err)
		return ""
	}
	sel, err := d.resolver.ResolveSelector(ctx, pm, target)
	if err != nil {
		d.logger.Warn("selector fallback failed", "target", target, "err", err)
		return ""
	}
	return strings.TrimSpace(sel)
}

// resolveAttr reads a URL-valued attribute and resolves it against the
// current page location.
func (d *discovery) resolveAttr(ctx context.Context, el browser.Element, name string) (string, error) {
	raw, ok, err := el.Attribute(ctx, name)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return "", fmt.Errorf("element has no %s attribute", name)
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s %q: %w", name, raw, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	loc, err := d.session.Location(ctx)
	if err != nil {
		return "", err
	}
	base, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("parsing page location %q: %w", loc, err)
	}
	return base.ResolveReference(ref).String(), nil
}
