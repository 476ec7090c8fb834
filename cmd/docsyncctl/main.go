// Command docsyncctl runs one-off docsync operations against the configured
// database and APIs.
package main

import (
	"fmt"
	"os"

	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/docsync/backend/internal/infrastructure/logger"
	"github.com/docsync/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time
var Version = "dev"

// env holds what every subcommand needs. Connections are opened on demand.
type env struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
	db  *persistence.Database
}

func main() {
	e := &env{}
	rootCmd := &cobra.Command{
		Use:           "docsyncctl",
		Short:         "Operate the docsync document pipeline",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			e.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "Path to config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(pologCmd(e))
	rootCmd.AddCommand(cursorCmd(e))
	rootCmd.AddCommand(eventsCmd(e))
	rootCmd.AddCommand(migrateCmd(e))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (e *env) load() error {
	cfg, err := config.LoadFrom(e.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(&logger.Config{
		Level:  e.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	e.cfg, e.log = cfg, log
	return nil
}

func (e *env) database() (*persistence.Database, error) {
	if e.db != nil {
		return e.db, nil
	}
	db, err := persistence.NewDatabase(&e.cfg.Database, logger.NewGormLogger(e.log, logger.MapGormLogLevel(e.logLevel)))
	if err != nil {
		return nil, err
	}
	e.db = db
	return db, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	if e.log != nil {
		_ = logger.Sync(e.log)
	}
}
