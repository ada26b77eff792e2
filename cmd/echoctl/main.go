package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/logging"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand. Empty values
// fall back to the environment configuration.
type globalOptions struct {
	storeBackend string
	storePath    string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "echoctl",
		Short:         "Operate Echo saved sessions, the simulator and code generation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.storeBackend, "store-backend", "", "session store backend: memory|file|sqlite")
	root.PersistentFlags().StringVar(&opts.storePath, "store-path", "", "session store directory or database file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")

	root.AddCommand(newSessionsCmd(opts))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newGenerateCmd(opts))
	return root
}

// load reads the environment configuration and applies flag overrides.
func (o *globalOptions) load(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.storeBackend != "" && o.storeBackend != cfg.Store.Backend {
		cfg.Store.Backend = o.storeBackend
		if os.Getenv("STORE_PATH") == "" {
			cfg.Store.Path = config.DefaultStorePath(o.storeBackend)
		}
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}

	rt, err := logging.New(logging.Options{Level: o.logLevel, Stderr: cmd.ErrOrStderr()})
	if err != nil {
		return config.Config{}, nil, err
	}
	return *cfg, rt.Logger, nil
}
