// Package cli implements trackctl, the operator command line of the tracker.
package cli

import (
	"log/slog"
	"os"

	"github.com/attaboy/tracking/internal/infra"
	"github.com/spf13/cobra"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "trackctl",
	Short: "Operator tools for the click tracker",
	Long: `trackctl applies migrations, issues postback tokens for affiliate
networks and dry-runs tracking link resolution.

Configuration is read from the environment and from --env-file, the same
way the api server reads it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(logger *slog.Logger) (*infra.Config, error) {
	return infra.LoadConfig(logger, envFile)
}
