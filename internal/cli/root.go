package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/primebank/primebank-web/internal/config"
	"github.com/primebank/primebank-web/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagEndpoint    string
	flagSessionFile string
	flagLogLevel    string

	cfg *config.Config
)

// defaultSessionFile is ~/.primebank/session.json.
func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".primebank", "session.json")
	}
	return filepath.Join(home, ".primebank", "session.json")
}

// NewRootCmd creates the root cobra command for primebankctl.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "primebankctl",
		Short: "PrimeBank session client",
		Long:  "primebankctl signs in to the PrimeBank API and keeps the session fresh from the command line.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			if !cmd.Flags().Changed("endpoint") {
				flagEndpoint = cfg.GraphQL.URL
			}
			if !cmd.Flags().Changed("session-file") && cfg.Session.File != "" {
				flagSessionFile = cfg.Session.File
			}
			level := cfg.LogLevel
			if cmd.Flags().Changed("log-level") {
				level = flagLogLevel
			}
			logger.SetOutput(cmd.ErrOrStderr())
			logger.Init(level)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "GraphQL endpoint (default GRAPHQL_URL)")
	root.PersistentFlags().StringVar(&flagSessionFile, "session-file", defaultSessionFile(), "file holding the persisted session (or SESSION_FILE env)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(),
		newWhoamiCmd(),
		newRefreshCmd(),
		newLogoutCmd(),
		newWatchCmd(),
	)

	return root
}
