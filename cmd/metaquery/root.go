package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/metaquery/internal/app"
	"github.com/arkilian/metaquery/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	// Global persistent flags
	configFile  string
	dataDir     string
	storageType string
	storagePath string
	consistency string
	logLevel    string
	timeout     time.Duration
	sources     []string
)

var rootCmd = &cobra.Command{
	Use:   "metaquery",
	Short: "Query databases and text files through one relational engine",
	Long: `metaquery reads rows from SQL databases, CSV and fixed-width files and
in-memory tables, and joins, filters, groups, sorts and paginates them itself.
Sources come from a configuration file or from --source flags.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	pf.StringVar(&dataDir, "data-dir", "", "Base directory for local files")
	pf.StringVar(&storageType, "storage", "", "Storage for file sources: local or s3")
	pf.StringVar(&storagePath, "storage-path", "", "Local storage directory")
	pf.StringVar(&consistency, "consistency", "", "Row width policy: strict or tolerant")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.DurationVar(&timeout, "timeout", 0, "Abort queries running longer than this")
	pf.StringArrayVar(&sources, "source", nil,
		"Add a source as name=kind:target, e.g. shop=sqlite:shop.db or files=csv:exports?header=true")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "metaquery version %s (commit: %s)\n", version, commit)
	},
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
	}
	if storagePath != "" {
		cfg.Storage.Path = storagePath
	}
	if consistency != "" {
		cfg.Query.Consistency = consistency
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if timeout > 0 {
		cfg.Query.Timeout = timeout
	}
	for _, s := range sources {
		sc, err := parseSource(s)
		if err != nil {
			return nil, err
		}
		cfg.Sources = append(cfg.Sources, sc)
	}

	return cfg, nil
}

// startApp loads the configuration and starts an App. The returned function
// stops it and flushes the logger.
func startApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	application, _, stop, err := startConfigured(ctx, cfg)
	return application, stop, err
}

// startConfigured starts an App from an already loaded configuration.
func startConfigured(ctx context.Context, cfg *config.Config) (*app.App, *zap.Logger, func(), error) {
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	application, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := application.Start(ctx); err != nil {
		return nil, nil, nil, err
	}

	stop := func() {
		if err := application.Stop(context.Background()); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return application, logger, stop, nil
}
