package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command-line overrides bound to a pflag.FlagSet.
type Flags struct {
	fs *pflag.FlagSet

	engine     string
	driver     string
	output     string
	temp       string
	interval   time.Duration
	timeout    time.Duration
	headless   bool
	retries    int
	maxWidth   int
	aiProvider string
	aiModel    string
}

// BindFlags registers the configuration flags on fs. Defaults shown in
// help come from Default().
func BindFlags(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}

	fs.StringVar(&f.engine, "engine", d.Engine, "Browser engine: rod, chromedp, static")
	fs.StringVar(&f.driver, "driver", "", "Path to the Chrome/Chromium executable (default: look up on PATH)")
	fs.StringVarP(&f.output, "output", "o", d.OutputPath, "Directory for generated PDFs")
	fs.StringVar(&f.temp, "temp", d.TempPath, "Directory for temporary page images")
	fs.DurationVar(&f.interval, "interval", d.Interval, "Delay between page image requests")
	fs.DurationVar(&f.timeout, "timeout", d.Timeout, "Maximum wait for a page element")
	fs.BoolVar(&f.headless, "headless", d.Headless, "Run the browser without a window")
	fs.IntVar(&f.retries, "retries", d.Retries, "Retries for failed image requests (5xx, 429, network)")
	fs.IntVar(&f.maxWidth, "max-width", d.MaxWidth, "Downscale pages wider than this many pixels (0 = keep)")
	fs.StringVar(&f.aiProvider, "ai-provider", "", "AI provider for selector fallback: claude, openai (default: disabled)")
	fs.StringVar(&f.aiModel, "ai-model", "", "Specific model override")

	return f
}

// Apply copies the flags the user set explicitly onto cfg.
func (f *Flags) Apply(cfg *Config) {
	set := func(name string, apply func()) {
		if f.fs.Changed(name) {
			apply()
		}
	}
	set("engine", func() { cfg.Engine = f.engine })
	set("driver", func() { cfg.DriverPath = f.driver })
	set("output", func() { cfg.OutputPath = f.output })
	set("temp", func() { cfg.TempPath = f.temp })
	set("interval", func() { cfg.Interval = f.interval })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("headless", func() { cfg.Headless = f.headless })
	set("retries", func() { cfg.Retries = f.retries })
	set("max-width", func() { cfg.MaxWidth = f.maxWidth })
	set("ai-provider", func() { cfg.AIProvider = f.aiProvider })
	set("ai-model", func() { cfg.AIModel = f.aiModel })
}
