// Package downloader turns thesis viewer URLs into PDF files: it discovers
// the document through a browser session, fetches every page image with the
// session's cookies and assembles the images into one PDF.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/v0xg/thesisdl/internal/ai"
	"github.com/v0xg/thesisdl/internal/browser"
	"github.com/v0xg/thesisdl/internal/config"
	"github.com/v0xg/thesisdl/internal/discover"
	"github.com/v0xg/thesisdl/internal/fetch"
	"github.com/v0xg/thesisdl/internal/pdfgen"
	"github.com/v0xg/thesisdl/internal/progress"
)

// ErrInvalidURL is returned for input that is not a web URL.
var ErrInvalidURL = errors.New("invalid URL")

// Result describes the outcome of one crawl.
type Result struct {
	URL    string
	Title  string
	Pages  int
	Output string // path of the written PDF
	Err    error
}

// Summary collects the results of a batch in input order.
type Summary struct {
	Results []Result
}

func (s Summary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int { return len(s.Results) - s.Succeeded() }

// Err joins the errors of all failed crawls, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Downloader owns one browser session and reuses it for every URL.
type Downloader struct {
	cfg       *config.Config
	session   browser.Session
	client    *fetch.Client
	pacer     fetch.Pacer
	assembler pdfgen.Assembler
	resolver  discover.SelectorResolver
	reporter  progress.Reporter
	logger    *log.Logger

	httpClient *http.Client

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithSession uses s instead of launching a browser.
func WithSession(s browser.Session) Option {
	return func(d *Downloader) { d.session = s }
}

func WithReporter(r progress.Reporter) Option {
	return func(d *Downloader) { d.reporter = r }
}

func WithLogger(l *log.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

func WithAssembler(a pdfgen.Assembler) Option {
	return func(d *Downloader) { d.assembler = a }
}

// WithResolver sets the selector fallback, overriding the configured AI
// provider.
func WithResolver(r discover.SelectorResolver) Option {
	return func(d *Downloader) { d.resolver = r }
}

// WithHTTPClient sets the client used for image requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.httpClient = c }
}

// New validates cfg, prepares the output and temp directories and starts
// the browser session. A missing browser executable yields
// browser.ErrMissingDriver.
func New(cfg *config.Config, opts ...Option) (*Downloader, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Downloader{
		cfg:   cfg,
		pacer: fetch.Pacer{Interval: cfg.Interval},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.Default()
	}
	if d.reporter == nil {
		d.reporter = progress.Nop{}
	}
	if d.assembler == nil {
		d.assembler = pdfgen.Default
	}

	if d.resolver == nil && cfg.AIProvider != "" {
		p, err := ai.NewProvider(cfg.AIProvider, cfg.AIModel)
		if err != nil {
			return nil, fmt.Errorf("selector fallback: %w", err)
		}
		d.resolver = p
	}

	hc := d.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	d.client = fetch.NewWithHTTPClient(hc, fetch.Options{
		Retries: uint64(cfg.Retries),
		Timeout: cfg.HTTPTimeout,
		Logger:  d.logger,
	})

	// The driver is checked before anything is written to disk.
	owned := d.session == nil
	if owned {
		s, err := browser.New(browser.Options{
			Engine:     cfg.Engine,
			DriverPath: cfg.DriverPath,
			Timeout:    cfg.Timeout,
			Headless:   cfg.Headless,
			Logger:     d.logger,
		})
		if err != nil {
			return nil, err
		}
		d.session = s
	}

	for _, dir := range []string{cfg.OutputPath, cfg.TempPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			if owned {
				_ = d.session.Close()
			}
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	d.logger.Debug("downloader ready",
		"engine", cfg.Engine,
		"output", cfg.OutputPath,
		"temp", cfg.TempPath,
		"interval", cfg.Interval)
	return d, nil
}

// Crawl downloads the thesis at rawURL into the output directory. Every
// failure is reported once through the Reporter and returned.
func (d *Downloader) Crawl(ctx context.Context, rawURL string) (Result, error) {
	target := strings.TrimSpace(rawURL)
	res := Result{URL: target}

	err := d.crawl(ctx, target, &res)
	if err != nil {
		d.reporter.Fail(target, err)
		d.logger.Debug("crawl failed", "url", target, "err", err)
		res.Err = err
	}
	return res, err
}

func (d *Downloader) crawl(ctx context.Context, target string, res *Result) error {
	if !ValidURL(target) {
		return fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	if d.closed.Load() {
		return browser.ErrClosed
	}

	jobID := uuid.NewString()
	logger := d.logger.With("job", jobID, "url", target)

	d.reporter.Step("Discovering " + target)
	doc, err := discover.Discover(ctx, d.session, target, discover.Options{
		Selectors: d.cfg.Selectors,
		Resolver:  d.resolver,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("discovering %s: %w", target, err)
	}
	d.reporter.Done(fmt.Sprintf("%q, %d pages", doc.Title, doc.TotalPages))
	logger.Debug("discovered document", "title", doc.Title, "pages", doc.TotalPages, "template", doc.Image.String())
	res.Title = doc.Title
	res.Pages = doc.TotalPages

	cookies, err := d.session.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("reading browser cookies: %w", err)
	}
	n := d.client.ImportCookies(cookies)
	logger.Debug("transferred cookies", "count", n)

	job, err := newJobDir(d.cfg.TempPath, jobID)
	if err != nil {
		return err
	}
	defer func() {
		if err := job.remove(); err != nil {
			logger.Warn("removing job directory", "path", job.path, "err", err)
		}
	}()

	if err := d.download(ctx, doc, job, logger); err != nil {
		return err
	}

	d.reporter.Step("Generating PDF")
	out, err := d.writePDF(job, doc.Title)
	if err != nil {
		return err
	}
	d.reporter.Done(out)
	logger.Debug("saved", "title", doc.Title, "pages", doc.TotalPages, "path", out)

	res.Output = out
	return nil
}

// download fetches pages 1..TotalPages in order, pausing between requests.
func (d *Downloader) download(ctx context.Context, doc *discover.Document, job *jobDir, logger *log.Logger) error {
	tracker := d.reporter.Pages(doc.TotalPages)
	defer tracker.Finish()

	for page := 1; page <= doc.TotalPages; page++ {
		u := doc.Image.URL(page)
		data, err := d.client.Get(ctx, u)
		if err != nil {
			return fmt.Errorf("page %d/%d: %w", page, doc.TotalPages, err)
		}
		if err := job.writePage(page, data); err != nil {
			return err
		}
		tracker.Page(page)
		logger.Debug("fetched page", "page", page, "bytes", len(data))

		if page < doc.TotalPages {
			if err := d.pacer.Wait(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePDF assembles the job's pages and writes {output}/{title}.pdf,
// replacing any previous file.
func (d *Downloader) writePDF(job *jobDir, title string) (string, error) {
	paths, err := job.pages()
	if err != nil {
		return "", err
	}

	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("opening page image: %w", err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	pdf, err := d.assembler.Assemble(readers, pdfgen.Options{MaxWidth: uint(d.cfg.MaxWidth)})
	if err != nil {
		return "", fmt.Errorf("assembling PDF: %w", err)
	}

	out := filepath.Join(d.cfg.OutputPath, SanitizeFilename(title)+".pdf")
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return "", fmt.Errorf("writing PDF: %w", err)
	}
	return out, nil
}

// CrawlMany crawls urls in order. A failed document does not stop the
// batch; only a canceled ctx does.
func (d *Downloader) CrawlMany(ctx context.Context, urls []string) Summary {
	var sum Summary
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		res, _ := d.Crawl(ctx, u)
		sum.Results = append(sum.Results, res)
	}
	return sum
}

// CrawlFromFile crawls every non-blank line of a UTF-8 text file. The
// error is only set when the file cannot be read.
func (d *Downloader) CrawlFromFile(ctx context.Context, path string) (Summary, error) {
	urls, err := ReadURLFile(path)
	if err != nil {
		return Summary{}, err
	}
	return d.CrawlMany(ctx, urls), nil
}

// ReadURLFile returns the trimmed, non-blank lines of path.
func ReadURLFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is user-provided
	if err != nil {
		return nil, fmt.Errorf("reading URL list: %w", err)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	var urls []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	return urls, nil
}

// Close shuts the browser session down. Further calls return the first
// result.
func (d *Downloader) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.session != nil {
			d.closeErr = d.session.Close()
		}
	})
	return d.closeErr
}
