package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewerHTML = `<!DOCTYPE html>
<html><head><title> Thesis Title </title></head>
<body>
  <div class="toolbar"><span id="totalPages">/ 12</span></div>
  <div id="loadingBg0"><img src="/img/abc/01.jpg"></div>
  <ul class="nav"><li><a href="/a">A</a></li><li><a href="/b">B</a></li></ul>
</body></html>`

func newViewerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/viewer", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cret", Path: "/"})
		fmt.Fprint(w, viewerHTML)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/viewer", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatic_NavigateAndQuery(t *testing.T) {
	srv := newViewerServer(t)
	ctx := context.Background()

	s := NewStatic(Options{})
	require.NoError(t, s.Navigate(ctx, srv.URL+"/moved"))

	loc, err := s.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/viewer", loc)

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Thesis Title", title)

	total, err := s.WaitFor(ctx, "#totalPages")
	require.NoError(t, err)
	text, err := total.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/ 12", text)

	bg, err := s.WaitFor(ctx, "#loadingBg0")
	require.NoError(t, err)
	img, err := bg.Find(ctx, "img")
	require.NoError(t, err)
	src, ok, err := img.Attribute(ctx, "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/img/abc/01.jpg", src)

	_, ok, err = img.Attribute(ctx, "alt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatic_MissingElementIsTimeout(t *testing.T) {
	srv := newViewerServer(t)
	ctx := context.Background()

	s := NewStatic(Options{})
	require.NoError(t, s.Navigate(ctx, srv.URL+"/viewer"))

	_, err := s.WaitFor(ctx, ".look")
	assert.ErrorIs(t, err, ErrTimeout)

	bg, err := s.WaitFor(ctx, "#loadingBg0")
	require.NoError(t, err)
	_, err = bg.Find(ctx, "a")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStatic_Cookies(t *testing.T) {
	srv := newViewerServer(t)
	ctx := context.Background()

	s := NewStatic(Options{})
	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	assert.Empty(t, cookies)

	require.NoError(t, s.Navigate(ctx, srv.URL+"/viewer"))
	cookies, err = s.Cookies(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.Equal(t, "s3cret", cookies[0].Value)
	assert.Equal(t, "127.0.0.1", cookies[0].Domain)
}

func TestStatic_NavigateErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewStatic(Options{})
	err := s.Navigate(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "unexpected status 404")

	_, err = s.WaitFor(context.Background(), "body")
	assert.Error(t, err)
}

func TestStatic_NavigateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	s := NewStatic(Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	err := s.Navigate(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestStatic_NavigateCanceled(t *testing.T) {
	srv := newViewerServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStatic(Options{}).Navigate(ctx, srv.URL+"/viewer")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestNew_UnknownEngine(t *testing.T) {
	_, err := New(Options{Engine: "netscape"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestNew_StaticNeedsNoDriver(t *testing.T) {
	s, err := New(Options{Engine: EngineStatic, DriverPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestResolveDriver(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "chromedriver")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing file", bin, false},
		{"missing file", filepath.Join(dir, "nope"), true},
		{"directory", dir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDriver(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingDriver)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.path, got)
		})
	}
}

func TestNew_MissingDriver(t *testing.T) {
	for _, engine := range []string{EngineRod, EngineChromedp} {
		t.Run(engine, func(t *testing.T) {
			_, err := New(Options{Engine: engine, DriverPath: filepath.Join(t.TempDir(), "chrome")})
			assert.ErrorIs(t, err, ErrMissingDriver)
		})
	}
}
