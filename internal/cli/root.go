// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nanochat/nanochat-go/internal/catalog"
	"github.com/nanochat/nanochat-go/internal/config"
	"github.com/nanochat/nanochat-go/internal/gateway"
	"github.com/nanochat/nanochat-go/internal/store"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var (
	flagConfigPath string
	flagBaseURL    string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "nanochat",
	Short: "nanochat is a command-line client for a NanoChat backend",
	Long: `nanochat is a command-line client for a NanoChat backend.

It talks to the backend HTTP API to manage conversations, send messages
and poll for generated replies, browse the model catalog, and upload
files. Preferences such as the last used model persist across runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Bare "nanochat" starts the chat REPL.
		return runChat(cmd, args)
	},
}

// Execute runs the root command. It is the single entry point called from
// main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config file (default ~/.nanochat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "override backend base URL")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(transcribeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nanochat version %s\n", Version)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		fmt.Printf("  Build date: %s\n", BuildDate)
	},
}

// =============================================================================
// APP WIRING
// =============================================================================

// App bundles the services commands need: configuration, logging, the HTTP
// gateway, the preference store, and the model catalog.
type App struct {
	Config  *config.Config
	Manager *config.Manager
	Logger  zerolog.Logger
	Gateway *gateway.Client
	Store   *store.Store
	Catalog *catalog.Catalog
}

// newApp loads configuration and constructs the service graph. Callers must
// Close the returned App.
func newApp() (*App, error) {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if flagBaseURL != "" {
		cfg.Server.BaseURL = flagBaseURL
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	logger := buildLogger(cfg.Logging, flagVerbose)
	manager := config.NewManager(cfg, cfgPath, logger)

	gw := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Server.BaseURL,
		APIKey:  cfg.Server.APIKey,
		Logger:  logger,
	})

	storePath, err := config.StorePath()
	if err != nil {
		return nil, err
	}
	prefs, err := store.Open(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	cat := catalog.New(gw, prefs, logger, cfg.CatalogTTL())

	return &App{
		Config:  cfg,
		Manager: manager,
		Logger:  logger,
		Gateway: gw,
		Store:   prefs,
		Catalog: cat,
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() {
	if a.Manager != nil {
		a.Manager.Close()
	}
	if a.Store != nil {
		a.Store.Close()
	}
}

// loadConfig loads the configuration honoring the --config flag and returns
// the path it was loaded from (empty when running on defaults).
func loadConfig() (*config.Config, string, error) {
	if flagConfigPath != "" {
		cfg, err := config.LoadFromPath(flagConfigPath)
		if err != nil {
			return nil, "", err
		}
		return cfg, flagConfigPath, nil
	}

	path, err := config.ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(path); statErr != nil {
			path = ""
		}
	} else {
		path = ""
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// buildLogger constructs the zerolog logger from the logging config.
// The --verbose flag forces debug level regardless of config.
func buildLogger(cfg config.LoggingConfig, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		})
	}

	return logger.Level(level).With().Timestamp().Logger()
}
