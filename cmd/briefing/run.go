package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/dusk-indust/briefing/internal/engine"
	"github.com/dusk-indust/briefing/internal/export"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	policy      string
	maxInFlight int
	synthesize  bool
	format      string
	out         string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run one briefing and print the result",
		Long: `Discovers entities related to the query, analyzes them concurrently and
aggregates the outcomes. Status transitions are printed to stderr as they
happen. With --synthesize the final report is requested once aggregation
succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBriefing(cmd, strings.Join(args, " "), f)
		},
	}
	cmd.Flags().StringVar(&f.policy, "policy", "", "aggregation policy: strict or lenient (default from config)")
	cmd.Flags().IntVar(&f.maxInFlight, "max-in-flight", -1, "bound on concurrent analysis calls, 0 for unbounded (default from config)")
	cmd.Flags().BoolVar(&f.synthesize, "synthesize", false, "request the final report after aggregation")
	cmd.Flags().StringVar(&f.format, "format", "json", "output format: json, markdown or mermaid")
	cmd.Flags().StringVar(&f.out, "out", "", "write output to a file instead of stdout")
	return cmd
}

func (a *app) runBriefing(cmd *cobra.Command, query string, f runFlags) error {
	ctx := cmd.Context()

	if f.policy != "" {
		a.cfg.Engine.Policy = strings.ToLower(f.policy)
	}
	if f.maxInFlight >= 0 {
		a.cfg.Engine.MaxInFlight = f.maxInFlight
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	render, err := renderer(f.format)
	if err != nil {
		return err
	}

	be, err := newBackend(ctx, a.cfg, a.cfg.Collaborator.Mode, a.logger)
	if err != nil {
		return err
	}
	defer be.Close()

	sess := newEngine(a.cfg, be, a.logger).NewSession()
	defer sess.Close()

	events, unsubscribe := sess.Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			fmt.Fprintln(cmd.ErrOrStderr(), engine.FormatEvent(ev))
		}
	}()

	_, searchErr := sess.Search(ctx, query)
	if searchErr == nil && f.synthesize {
		fmt.Fprintln(cmd.ErrOrStderr(), "  … generating report")
		if _, err := sess.Synthesize(ctx); err != nil {
			a.logger.Warn("synthesis failed", zap.String("session_id", sess.ID()), zap.Error(err))
			searchErr = err
		}
	}
	unsubscribe()
	wg.Wait()

	output, err := render(sess.Snapshot())
	if err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), f.out, output); err != nil {
		return err
	}
	return searchErr
}

// renderer returns the export function for format.
func renderer(format string) (func(engine.Snapshot) ([]byte, error), error) {
	switch strings.ToLower(format) {
	case "json":
		return export.JSON, nil
	case "markdown", "md":
		return func(s engine.Snapshot) ([]byte, error) { return []byte(export.Markdown(s)), nil }, nil
	case "mermaid":
		return func(s engine.Snapshot) ([]byte, error) { return []byte(export.Mermaid(s)), nil }, nil
	default:
		return nil, fmt.Errorf("unknown format %q: want json, markdown or mermaid", format)
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
