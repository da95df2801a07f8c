package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/internal/llm/cost"
)

const chatHelp = `Type a question and press enter. Commands:
  /usage   reasoning calls and cost so far
  /help    this message
  /quit    leave (also Ctrl-D)`

func newChatCmd(c *cli) *cobra.Command {
	opts := &queryOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runChat(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print answers as plain markdown")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print intermediate stage output")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width for rendered markdown")
	return cmd
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".searchflow_history")
}

func (c *cli) runChat(cmd *cobra.Command, opts *queryOptions) error {
	a, err := newApp(c.cfg, c.logger, nil)
	if err != nil {
		return err
	}
	defer a.close(c.cfg.Server.ShutdownTimeout)

	p, err := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts.raw, opts.verbose, opts.width)
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	hist := historyPath()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, chatHelp)

	var total cost.Summary
	for {
		input, err := line.Prompt("searchflow> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			saveHistory(line, hist, c.logger)
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "/usage":
			fmt.Fprintf(out, "%d reasoning calls, %d/%d tokens, $%.4f\n",
				total.Calls, total.InputTokens, total.OutputTokens, total.Cost.TotalCost)
			continue
		}
		line.AppendHistory(input)

		// Ctrl-C while a question runs cancels only that question
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT)
		run, events := a.runner.SubmitQuery(ctx, input)
		if err := p.consume(events); err != nil {
			fmt.Fprintln(out, err)
		}
		stop()

		u := run.Usage()
		total.Calls += u.Calls
		total.InputTokens += u.InputTokens
		total.OutputTokens += u.OutputTokens
		total.Cost.Add(u.Cost)
	}

	saveHistory(line, hist, c.logger)
	return nil
}

func saveHistory(line *liner.State, path string, logger *zap.Logger) {
	if path == "" {
		return
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Debug("save chat history", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		logger.Debug("save chat history", zap.Error(err))
	}
}
