package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type queryOptions struct {
	raw     bool
	verbose bool
	width   int
}

func newQueryCmd(c *cli) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a single question",
		Long: `Runs one question through the pipeline, printing progress to stderr and
the formatted answer to stdout.

Example:
  searchflow query "climate change impacts"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.runQuery(ctx, cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the answer as plain markdown")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print intermediate stage output")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width for rendered markdown")
	return cmd
}

func (c *cli) runQuery(ctx context.Context, cmd *cobra.Command, question string, opts *queryOptions) error {
	a, err := newApp(c.cfg, c.logger, nil)
	if err != nil {
		return err
	}
	defer a.close(c.cfg.Server.ShutdownTimeout)

	p, err := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.raw, opts.verbose, opts.width)
	if err != nil {
		return err
	}

	run, events := a.runner.SubmitQuery(ctx, question)
	err = p.consume(events)

	usage := run.Usage()
	c.logger.Debug("query finished",
		zap.String("run_id", run.ID),
		zap.Int("llm_calls", usage.Calls),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens))
	if opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d reasoning calls, %d/%d tokens, $%.4f\n",
			usage.Calls, usage.InputTokens, usage.OutputTokens, usage.Cost.TotalCost)
	}
	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
