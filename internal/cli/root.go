// Package cli implements the signdata command line tool.
package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/signdata/signdata-processing-service/internal/app"
	"github.com/signdata/signdata-processing-service/internal/infra/config"
	"github.com/signdata/signdata-processing-service/internal/registry"
	"github.com/signdata/signdata-processing-service/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Build metadata, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

// Env is shared by every subcommand; it is populated in PersistentPreRunE.
type Env struct {
	Config *config.Config
	Log    *zap.Logger

	envFile  string
	storage  string
	logLevel string
}

func (e *Env) Registry() *registry.Registry {
	return app.NewRegistry(e.Config, e.Log)
}

func (e *Env) load() error {
	if e.envFile != "" {
		if err := godotenv.Load(e.envFile); err != nil {
			return fmt.Errorf("load %s: %w", e.envFile, err)
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if e.storage != "" {
		cfg.StoragePath = e.storage
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	e.Config = cfg
	e.Log = log
	return nil
}

func NewRootCommand() *cobra.Command {
	env := &Env{}

	root := &cobra.Command{
		Use:   "signdata",
		Short: "Sign-language keypoint dataset tool",
		Long: `signdata turns sign-language video clips and camera landmark streams into a
fixed-shape keypoint dataset, and manages the labels and samples of that dataset.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return env.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if env.Log != nil {
				_ = env.Log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&env.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	pf.StringVar(&env.storage, "storage", "", "Dataset root (overrides STORAGE_PATH)")
	pf.StringVar(&env.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(
		serveCommand(env),
		labelsCommand(env),
		samplesCommand(env),
		processCommand(env),
		validateCommand(env),
		exportCommand(env),
		versionCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signdata %s\n", Version)
			fmt.Fprintf(out, "  Commit: %s\n", CommitSHA)
			fmt.Fprintf(out, "  Built:  %s\n", BuildDate)
		},
	}
}
