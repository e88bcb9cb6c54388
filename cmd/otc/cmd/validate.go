package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/circuit"
)

var validateCmd = &cobra.Command{
	Use:   "validate <design_file>",
	Short: "Check a design for broken references",
	Long: `Load a design and report connections to unknown components or pins,
duplicate connections and connection loops. Exits non-zero when any
problem is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Persistence.Backend = config.BackendNone
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Dispose(ctx)

	res, err := loadDesignFile(ctx, sess, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Design: %s\n", args[0])
	fmt.Fprintf(out, "Components: %d\n", res.Components)
	fmt.Fprintf(out, "Connections: %d\n", res.Connections)
	fmt.Fprintf(out, "Nets: %d\n", len(sess.Model.Nets()))
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %v\n", w)
	}

	result, err := sess.Executor.Execute(ctx, circuit.CmdValidate, nil)
	if err != nil {
		return err
	}
	violations, _ := result.([]*circuit.ValidationError)
	for _, v := range violations {
		fmt.Fprintf(out, "error: %v\n", v)
	}
	problems := len(violations)

	result, err = sess.Executor.Execute(ctx, circuit.CmdDetectCycles, nil)
	if err != nil {
		return err
	}
	if cyclic, _ := result.(bool); cyclic {
		fmt.Fprintln(out, "note: connections form a loop")
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Fprintln(out, "OK")
	return nil
}
