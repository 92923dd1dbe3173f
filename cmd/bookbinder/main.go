package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bookbinder/internal/auth"
	"git.home.luguber.info/inful/bookbinder/internal/config"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/logfields"
	"git.home.luguber.info/inful/bookbinder/internal/pipeline"
	"git.home.luguber.info/inful/bookbinder/internal/progress"
	"git.home.luguber.info/inful/bookbinder/internal/retry"
	"git.home.luguber.info/inful/bookbinder/internal/transport"
	"git.home.luguber.info/inful/bookbinder/internal/version"
)

var CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Download struct {
		BookIDs     []string `arg:"" name:"book-id" help:"Numeric book identifiers to download"`
		Output      string   `short:"o" help:"Destination directory (overrides config)"`
		Kindle      bool     `short:"k" help:"Reader-optimized output for e-ink devices"`
		Concurrency int      `help:"Parallel fetch workers (overrides config)"`
		Cookies     string   `help:"Session cookie file (overrides config)"`
		Token       string   `help:"Bearer token instead of session cookies"`
	} `cmd:"" help:"Download books and package them as EPUB"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.Vars{"version": version.Version})

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "download <book-id>":
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		if err := runDownload(cfg, CLI.Download.BookIDs); err != nil {
			slog.Error("Download failed", logfields.Error(err))
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
		slog.Info("Configuration written", logfields.Path(CLI.Config))
	}
}

// loadConfig reads the configured file, falling back to built-in defaults
// when the default path simply does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryConfig) && CLI.Config == "config.yaml" {
			if _, statErr := os.Stat(CLI.Config); os.IsNotExist(statErr) {
				return config.Default(), nil
			}
		}
		return nil, err
	}
	return cfg, nil
}

func runDownload(cfg *config.Config, bookIDs []string) error {
	if CLI.Download.Output != "" {
		cfg.DestinationDirectory = CLI.Download.Output
	}
	if CLI.Download.Concurrency > 0 {
		cfg.MaxConcurrency = CLI.Download.Concurrency
	}
	if CLI.Download.Cookies != "" {
		cfg.CookieFile = CLI.Download.Cookies
	}
	if CLI.Download.Kindle {
		cfg.ReaderOptimized = true
	}

	for _, id := range bookIDs {
		if !isNumeric(id) {
			return errors.ValidationFailed("book-id", "must be numeric: "+id)
		}
	}

	creds, err := credentials(cfg)
	if err != nil {
		return err
	}
	slog.Debug("Credentials selected", slog.String("provider", creds.Name()))

	policy := retry.NewPolicy(cfg.BackoffBase.Std(), cfg.BackoffCeiling.Std(), cfg.MaxRetryAttempts)
	client := transport.NewClient(nil, policy, creds, cfg.RequestTimeout.Std())

	events := progress.NewDispatcher(progress.LogSink{}, 256)
	defer func() {
		if dropped := events.Close(); dropped > 0 {
			slog.Debug("Progress events dropped", slog.Int64("dropped", dropped))
		}
	}()

	runner := pipeline.NewRunner(cfg, client, events)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var firstErr error
	for _, id := range bookIDs {
		report, err := runner.Run(ctx, id)
		if err != nil {
			slog.Error("Book failed", logfields.BookID(id), logfields.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		slog.Info("Book done",
			logfields.BookID(id),
			logfields.Title(report.Title),
			logfields.Path(report.OutputPath))
	}
	return firstErr
}

// credentials picks the credential provider: an explicit bearer token wins,
// then the cookie file if it exists, otherwise anonymous.
func credentials(cfg *config.Config) (auth.CredentialProvider, error) {
	if CLI.Download.Token != "" {
		return &auth.StaticToken{Token: CLI.Download.Token}, nil
	}
	if _, err := os.Stat(cfg.CookieFile); err == nil {
		return auth.LoadCookieFile(cfg.CookieFile)
	}
	slog.Warn("No session cookie file found, proceeding unauthenticated", logfields.Path(cfg.CookieFile))
	return auth.None{}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
