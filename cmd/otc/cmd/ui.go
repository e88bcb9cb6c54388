package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	appui "github.com/OpenTraceLab/OpenTraceCircuit/internal/ui"
)

var uiCmd = &cobra.Command{
	Use:   "ui [design_file]",
	Short: "Launch the interactive editor",
	Long: `Launch the editor window. With a design file argument the design is
opened from that file and autosaved back to it; otherwise the configured
persistence backend is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

func runUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Persistence.Backend = config.BackendFile
		cfg.Persistence.Path = args[0]
	}
	base, err := newLogger(cfg)
	if err != nil {
		return err
	}

	state := appui.NewState()
	state.SetAppVersion(rootCmd.Version)
	logger := state.WithLogPane(base, zap.InfoLevel)

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		serveMetrics(ctx, cfg.Metrics.Addr, reg, logger)
	}

	sess, err := openSession(ctx, cfg, logger, session.WithRegistry(reg))
	if err != nil {
		return err
	}
	if sess.Backend != nil {
		res, err := sess.Open(ctx)
		if err != nil {
			_ = sess.Dispose(ctx)
			return err
		}
		if res.Components > 0 {
			state.SetStatus("Opened design")
		}
	}
	return appui.Run(sess, state)
}
