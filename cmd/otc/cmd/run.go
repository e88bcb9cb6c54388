package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/script"
)

var (
	runDesign      string
	runMetricsAddr string
	runStrict      bool
)

var runCmd = &cobra.Command{
	Use:   "run <script> [script...]",
	Short: "Apply edit scripts to a design",
	Long: `Run one or more edit scripts through the undoable command layer.

With --design the design is loaded from that file first (a missing file
starts empty) and written back once every script has run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScripts,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runDesign, "design", "d", "", "design file to load and save")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "fail when a validate statement reports problems")
}

func runScripts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDesign != "" {
		cfg.Persistence.Backend = config.BackendFile
		cfg.Persistence.Path = runDesign
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if runMetricsAddr != "" {
		serveMetrics(ctx, runMetricsAddr, reg, logger)
	}
	sess, err := openSession(ctx, cfg, logger, session.WithRegistry(reg))
	if err != nil {
		return err
	}
	defer sess.Dispose(ctx)

	if sess.Backend != nil {
		if _, err := sess.Open(ctx); err != nil {
			return err
		}
	}

	parser, err := script.NewParser()
	if err != nil {
		return err
	}
	runner := script.NewRunner(script.RunnerConfig{
		Executor: sess.Executor,
		Model:    sess.Model,
		Store:    sess.Store,
		Logger:   logger,
	})

	out := cmd.OutOrStdout()
	var problems int
	for _, path := range args {
		s, err := parser.ParseFile(path)
		if err != nil {
			return err
		}
		rep, err := runner.Run(ctx, s)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d statement(s)", path, rep.Statements)
		if len(rep.Snapshots) > 0 {
			fmt.Fprintf(out, ", %d snapshot(s)", len(rep.Snapshots))
		}
		fmt.Fprintln(out)
		if rep.Validated {
			for _, v := range rep.Violations {
				fmt.Fprintf(out, "  %v\n", v)
			}
			problems += len(rep.Violations)
		}
	}

	fmt.Fprintf(out, "Design: %d component(s), %d connection(s)\n",
		len(sess.Model.Components()), len(sess.Model.Connections()))
	if sess.Backend != nil {
		if err := sess.Save(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved to %s\n", runDesign)
	}
	if runStrict && problems > 0 {
		return fmt.Errorf("%d problem(s) reported", problems)
	}
	return nil
}
