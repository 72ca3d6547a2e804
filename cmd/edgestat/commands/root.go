package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/internal/config"
)

// app holds what one invocation of the command tree shares: the global
// flags and the state built from them in setup.
type app struct {
	cfgFile  string
	logLevel string
	jsonLogs bool

	cfg    *config.Config
	engine *dataflow.Engine
}

// newRootCmd builds a fresh command tree. Flag values live in the tree, so
// nothing carries over from one execution to the next.
func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "edgestat",
		Short: "Partitioned edge collections on local disk",
		Long: `edgestat imports edge lists into partitioned columnar collections,
computes degree statistics on them and exports the results.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&a.jsonLogs, "json-logs", false, "Log in JSON")

	rootCmd.AddCommand(a.importCmd())
	rootCmd.AddCommand(a.exportCmd())
	rootCmd.AddCommand(a.degreesCmd())
	rootCmd.AddCommand(a.statsCmd())
	rootCmd.AddCommand(a.exampleCmd())
	return rootCmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		loaded.Log.Level = a.logLevel
	}
	if a.jsonLogs {
		loaded.Log.Format = "json"
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	logger := loaded.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	a.cfg = loaded
	a.engine = dataflow.NewEngine(loaded.EngineOptions(logger)...)
	logger.Debug("configured", "threads", loaded.Threads, "dataDir", loaded.DataDir)
	return nil
}
