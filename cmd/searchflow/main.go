// Command searchflow answers questions by running them through the research,
// analysis and formatting pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/internal/logging"
	"github.com/aixgo-dev/searchflow/pkg/config"
)

// Version information (set via ldflags)
var Version = "dev"

// cli carries the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "searchflow",
		Short: "Multi-stage research assistant",
		Long: `searchflow answers a question by expanding it into several searches,
analysing what comes back and formatting a markdown answer, reporting
progress at every step.

Run "searchflow serve" for the HTTP event stream, "searchflow query" for a
single question or "searchflow chat" for an interactive session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("SEARCHFLOW_CONFIG"), "configuration file (YAML)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(newServeCmd(c), newQueryCmd(c), newChatCmd(c), newVersionCmd())
	return root
}

// init loads configuration and builds the logger.
func (c *cli) init() error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath == "" {
		cfg, err = config.Parse(nil)
	} else {
		cfg, err = config.LoadConfig(c.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// no config or logger needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "searchflow %s\n", Version)
		},
	}
}
