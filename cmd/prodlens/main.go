package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prodlens/prodlens/internal/archive"
	"github.com/prodlens/prodlens/internal/config"
	"github.com/prodlens/prodlens/internal/currency"
	"github.com/prodlens/prodlens/internal/fetcher"
	"github.com/prodlens/prodlens/internal/orchestrator"
	"github.com/prodlens/prodlens/internal/safeurl"
)

var (
	cfgFile    string
	verbose    bool
	strict     bool
	language   string
	hint       string
	budget     time.Duration
	renderPool int
	noRender   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prodlens",
		Short: "prodlens — product page extraction",
		Long: `prodlens extracts structured product data (title, price, images,
variants, specs) from marketplace and storefront URLs.

It validates URLs against SSRF policy, picks a platform strategy, and
fetches with a lightweight HTTP transport first, escalating to a
headless browser only when the cheap path comes up short.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(ratesCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract [url]",
		Short: "Extract product data from one URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of returning a record without title or price")
	cmd.Flags().StringVarP(&language, "language", "l", "en", "preferred content language")
	cmd.Flags().StringVar(&hint, "hint", "", "category hint merged when the page yields none")
	cmd.Flags().DurationVar(&budget, "budget", 0, "overall time budget (0 = config default)")
	cmd.Flags().IntVar(&renderPool, "render-pool", 0, "browser pool size (0 = config default)")
	cmd.Flags().BoolVar(&noRender, "no-render", false, "disable the rendered transport entirely")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := setupLogger(&cfg.Logging)
	if budget > 0 {
		cfg.Budget.Overall = budget
	}
	if renderPool > 0 {
		cfg.Browser.PoolSize = renderPool
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	validator := safeurl.NewValidator(&cfg.Policy, logger)
	revalidate := validator.Validate

	lightweight := fetcher.NewHTTPFetcher(&cfg.Fetcher, revalidate, logger)

	var rendered fetcher.Fetcher
	if !noRender {
		bf, err := fetcher.NewBrowserFetcher(cfg, revalidate, logger)
		if err != nil {
			logger.Warn("browser unavailable, rendered transport disabled", "error", err)
		} else {
			rendered = bf
		}
	}

	var arch archive.Archive
	if cfg.Archive.Enabled {
		ma, err := archive.NewMongoArchive(&cfg.Archive, logger)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		arch = ma
	}

	norm := currency.NewNormalizer(&cfg.Currency, logger)
	orch := orchestrator.New(cfg, validator, lightweight, rendered, norm, arch, logger)
	defer func() {
		if err := orch.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec, err := orch.Extract(ctx, orchestrator.ExtractRequest{
		URL:      args[0],
		Language: language,
		Strict:   strict,
		Hint:     hint,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// ratesCmd creates the "rates" subcommand.
func ratesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rates",
		Short: "Print the configured conversion rate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			codes := make([]string, 0, len(cfg.Currency.Rates))
			for code := range cfg.Currency.Rates {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			fmt.Printf("reporting currency: %s\n", cfg.Currency.Reporting)
			for _, code := range codes {
				fmt.Printf("  1 %s = %g %s\n", code, cfg.Currency.Rates[code], cfg.Currency.Reporting)
			}
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("prodlens %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "prodlens.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

// setupLogger creates a structured logger from the logging config.
// --verbose overrides the configured level.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
