// Package progress reports crawl progress to the user.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// Reporter receives user-facing progress events.
type Reporter interface {
	// Step announces a phase, e.g. "Discovering <url>".
	Step(msg string)
	// Done closes the current step.
	Done(detail string)
	// Fail reports a failed document as a single line.
	Fail(target string, err error)
	// Pages starts tracking a download of total pages.
	Pages(total int) PageTracker
}

// PageTracker follows the pages of one download.
type PageTracker interface {
	Page(n int)
	Finish()
}

// Console writes "→ step... done" lines, a spinner while a step runs and a
// progress bar while pages download.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	spin   *spinner.Spinner
	inStep bool
}

// NewConsole returns a Console writing to w. The spinner is only shown when
// withSpinner is set and stdout is a terminal.
func NewConsole(w io.Writer, withSpinner bool) *Console {
	c := &Console{w: w}
	if withSpinner {
		c.spin = spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	}
	return c
}

func (c *Console) Step(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endStepLocked("")
	fmt.Fprintf(c.w, "→ %s... ", msg)
	c.inStep = true
	if c.spin != nil {
		c.spin.Start()
	}
}

func (c *Console) Done(detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if detail == "" {
		c.endStepLocked("done")
		return
	}
	c.endStepLocked("done (" + detail + ")")
}

func (c *Console) Fail(target string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := oneLine(err)
	if c.inStep {
		c.endStepLocked("failed: " + msg)
		return
	}
	if target == "" {
		fmt.Fprintf(c.w, "✗ %s\n", msg)
		return
	}
	fmt.Fprintf(c.w, "✗ %s: %s\n", target, msg)
}

func (c *Console) Pages(total int) PageTracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endStepLocked("")
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(c.w),
		progressbar.OptionSetDescription("  Page"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetElapsedTime(true),
	)
	return &barTracker{w: c.w, bar: bar}
}

// endStepLocked stops the spinner and terminates an open step line.
func (c *Console) endStepLocked(word string) {
	if !c.inStep {
		return
	}
	if c.spin != nil {
		c.spin.Stop()
	}
	fmt.Fprintln(c.w, word)
	c.inStep = false
}

type barTracker struct {
	w    io.Writer
	bar  *progressbar.ProgressBar
	once sync.Once
}

func (t *barTracker) Page(n int) { _ = t.bar.Set(n) }

func (t *barTracker) Finish() {
	t.once.Do(func() { fmt.Fprintln(t.w) })
}

func oneLine(err error) string {
	if err == nil {
		return "unknown error"
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Step(string)           {}
func (Nop) Done(string)           {}
func (Nop) Fail(string, error)    {}
func (Nop) Pages(int) PageTracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Page(int) {}
func (nopTracker) Finish()  {}
