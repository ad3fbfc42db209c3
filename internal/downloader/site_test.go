package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/thesisdl/internal/browser"
	"github.com/v0xg/thesisdl/internal/config"
	"github.com/v0xg/thesisdl/internal/pdfgen"
	"github.com/v0xg/thesisdl/internal/progress"
)

// thesisSite emulates the university viewer: a landing page linking to a
// viewer that sets a session cookie, and page images served only to
// requests carrying that cookie.
type thesisSite struct {
	srv    *httptest.Server
	title  string
	pages  int
	images map[int][]byte

	mu        sync.Mutex
	requested []int
	noCookie  int
	failPage  int

	// stalled holds landing requests for id=stall until the test ends.
	stalled chan struct{}
}

func newThesisSite(t *testing.T, title string, pages int) *thesisSite {
	t.Helper()
	s := &thesisSite{
		title:   title,
		pages:   pages,
		images:  make(map[int][]byte),
		stalled: make(chan struct{}),
	}
	for n := 1; n <= pages; n++ {
		s.images[n] = pageJPEG(t, n)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/detail", s.detail)
	mux.HandleFunc("/viewer", s.viewer)
	mux.HandleFunc("/img/", s.image)
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	t.Cleanup(func() { close(s.stalled) })
	return s
}

func pageJPEG(t *testing.T, n int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 24))
	for i := range img.Pix {
		img.Pix[i] = uint8(n * 10)
	}
	img.Set(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func (s *thesisSite) landingURL(id string) string {
	return s.srv.URL + "/detail?id=" + id
}

func (s *thesisSite) detail(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "stall" {
		select {
		case <-s.stalled:
		case <-r.Context().Done():
		}
		return
	}
	if id == "broken" {
		fmt.Fprint(w, `<html><head><title>Detail</title></head><body><p>Not available</p></body></html>`)
		return
	}
	fmt.Fprintf(w, `<html><head><title>Detail</title></head><body>
<div class="look"><a href="/viewer?fid=%s">Read full text</a></div>
</body></html>`, id)
}

func (s *thesisSite) viewer(w http.ResponseWriter, r *http.Request) {
	fid := r.URL.Query().Get("fid")
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: "secret-" + fid, Path: "/"})
	fmt.Fprintf(w, `<html><head><title>%s</title></head><body>
<div class="bar"><span id="totalPages">/ %d</span></div>
<div id="loadingBg0"><img src="/img/%s/01.jpg?v=1"></div>
</body></html>`, s.title, s.pages, fid)
}

func (s *thesisSite) image(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(strings.TrimSuffix(path.Base(r.URL.Path), ".jpg"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, err := r.Cookie("sid"); err != nil || !strings.HasPrefix(c.Value, "secret-") {
		s.noCookie++
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.requested = append(s.requested, n)
	if n == s.failPage {
		http.NotFound(w, r)
		return
	}
	data, ok := s.images[n]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(data)
}

func (s *thesisSite) requestedPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.requested...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Engine = browser.EngineStatic
	cfg.OutputPath = filepath.Join(dir, "out")
	cfg.TempPath = filepath.Join(dir, "temp")
	cfg.Interval = 0
	cfg.Timeout = 2 * time.Second
	return cfg
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func newTestDownloader(t *testing.T, cfg *config.Config, opts ...Option) (*Downloader, *recordingReporter) {
	t.Helper()
	rep := &recordingReporter{}
	opts = append([]Option{WithReporter(rep), WithLogger(quietLogger())}, opts...)
	d, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, rep
}

// recordingReporter remembers every progress event.
type recordingReporter struct {
	mu     sync.Mutex
	steps  []string
	fails  []string
	totals []int
	pages  []int
}

func (r *recordingReporter) Step(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, msg)
}

func (r *recordingReporter) Done(string) {}

func (r *recordingReporter) Fail(target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, target+": "+err.Error())
}

func (r *recordingReporter) Pages(total int) progress.PageTracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals = append(r.totals, total)
	return r
}

func (r *recordingReporter) Page(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, n)
}

func (r *recordingReporter) Finish() {}

// recordingAssembler keeps the image bytes it was given, in order.
type recordingAssembler struct {
	images [][]byte
	err    error
}

func (a *recordingAssembler) Assemble(images []io.Reader, _ pdfgen.Options) ([]byte, error) {
	for _, r := range images {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		a.images = append(a.images, b)
	}
	if a.err != nil {
		return nil, a.err
	}
	return []byte("%PDF-fake"), nil
}

// countingSession wraps a session and counts navigations and closes.
type countingSession struct {
	browser.Session
	mu          sync.Mutex
	navigations int
	closes      int
}

func (c *countingSession) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	c.navigations++
	c.mu.Unlock()
	return c.Session.Navigate(ctx, url)
}

func (c *countingSession) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.Session.Close()
}

var errAssemble = errors.New("assembler exploded")
