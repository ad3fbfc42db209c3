package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/v0xg/thesisdl/internal/config"
	"github.com/v0xg/thesisdl/internal/downloader"
	"github.com/v0xg/thesisdl/internal/progress"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	inputFile  string
	configPath string
	verbose    bool
	cfgFlags   *config.Flags
)

var (
	errUsage      = errors.New("usage")
	errSomeFailed = errors.New("some documents failed")
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI with args and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, errSomeFailed) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCodeFor(err)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "thesisdl [url...] [-f urls.txt]",
		Short: "Download theses from a paginated image viewer as PDF",
		Long: `thesisdl opens each thesis page in a browser, finds the page count and the
page image URLs, downloads every page with the browser's cookies and
assembles the pages into a single PDF named after the thesis title.

Example:
  thesisdl "https://thesis.example.edu/detail?id=123" -o ./theses
  thesisdl -f urls.txt --interval 3s`,
		Args:          cobra.ArbitraryArgs,
		RunE:          run,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Text file with one URL per line")
	rootCmd.Flags().StringVar(&configPath, "config", "", "YAML config file (default: $THESISDL_CONFIG)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	cfgFlags = config.BindFlags(rootCmd.Flags())

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	return rootCmd
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && inputFile == "" {
		return fmt.Errorf("%w: provide at least one URL or --file", errUsage)
	}

	logger := newLogger(cmd.ErrOrStderr(), verbose)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logVerbose(logger, cfg)

	ctx, stop := notifyContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	reporter := progress.NewConsole(out, !verbose)

	d, err := downloader.New(cfg,
		downloader.WithReporter(reporter),
		downloader.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("closing browser", "err", err)
		}
	}()

	var sum downloader.Summary
	if inputFile != "" {
		s, err := d.CrawlFromFile(ctx, inputFile)
		if err != nil {
			return err
		}
		sum.Results = append(sum.Results, s.Results...)
	}
	if len(args) > 0 {
		sum.Results = append(sum.Results, d.CrawlMany(ctx, args).Results...)
	}

	if err := ctx.Err(); err != nil {
		fmt.Fprintln(out, "⚠ Interrupted")
		return err
	}

	total := len(sum.Results)
	if sum.Failed() > 0 {
		fmt.Fprintf(out, "✗ %d of %d documents failed\n", sum.Failed(), total)
		return fmt.Errorf("%w: %d of %d", errSomeFailed, sum.Failed(), total)
	}
	fmt.Fprintf(out, "✓ Downloaded %d document(s)\n", total)
	return nil
}

// loadConfig resolves defaults < YAML file < THESISDL_* env < flags.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfgFlags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          "thesisdl",
		ReportTimestamp: verbose,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func logVerbose(logger *log.Logger, cfg *config.Config) {
	logger.Debug("configuration",
		"engine", cfg.Engine,
		"driver", cfg.DriverPath,
		"output", cfg.OutputPath,
		"temp", cfg.TempPath,
		"interval", cfg.Interval,
		"timeout", cfg.Timeout,
		"headless", cfg.Headless,
		"retries", cfg.Retries,
		"ai", cfg.AIProvider)
}
