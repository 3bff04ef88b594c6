package cli

import (
	"os"

	"github.com/spf13/cobra"
	"live-session-service/internal/config"
)

var (
	port       string
	configPath string

	// dotenvFiles are read before any flag default is taken from the environment.
	dotenvFiles = []string{".env"}
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	config.LoadEnv(dotenvFiles...)
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "live-session",
		Short:         "Real-time presentation sessions over WebSocket",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewImportPresentationCmd(&configPath))
	cmd.AddCommand(NewJoinCmd())
	cmd.AddCommand(NewWatchCmd(&configPath))
	return cmd
}
