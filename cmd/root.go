package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/artscan/internal/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "artscan",
		Short: "Museum visitor guide that identifies artworks from photos",
		Long: `Artscan identifies gallery artworks from a camera frame or an uploaded photo
using a vision-capable LLM, then shows the artwork's details, related works and
an optional spoken narration.

It serves the visitor web app and includes tools for checking the catalog and
measuring identification accuracy.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			setupLogging(slog.LevelInfo, opts.verbose)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("ARTSCAN_CONFIG"), "Path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIdentifyCmd(opts))
	cmd.AddCommand(newCatalogCmd(opts))
	cmd.AddCommand(newEvalCmd())

	return cmd
}

// loadConfig reads the config file and applies the log level it names
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.App.LogLevel, o.verbose)
	return cfg, nil
}

func setupLogging(level slog.Level, verbose bool) {
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
