package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceCircuit/internal/config"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/logging"
	"github.com/OpenTraceLab/OpenTraceCircuit/internal/session"
	"github.com/OpenTraceLab/OpenTraceCircuit/pkg/canvas"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "otc",
	Short: "OpenTrace Circuit - schematic and board capture",
	Long: `OpenTrace Circuit (otc) edits a circuit as a schematic and as a board
from one shared model, with undoable commands and autosave.

Examples:
  otc ui design.otc.json                  # Open the editor on a design file
  otc run build.otcs --design out.json    # Apply an edit script and save
  otc validate design.otc.json            # Check a design for broken references
  otc export bom design.otc.json -o bom.xlsx
  otc catalog list`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $"+config.EnvConfig+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}

// openSession builds and starts a session. The caller disposes it.
func openSession(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...session.Option) (*session.Session, error) {
	sess, err := session.New(ctx, cfg, append([]session.Option{session.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := sess.Init(ctx); err != nil {
		_ = sess.Dispose(ctx)
		return nil, err
	}
	return sess, nil
}

// loadDesignFile opens a saved design, logical or raw, into sess.
func loadDesignFile(ctx context.Context, sess *session.Session, path string) (*canvas.LoadResult, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := sess.OpenBlob(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	for _, w := range res.Warnings {
		sess.Logger.Warn("design loaded with warnings", zap.String("file", path), zap.String("warning", w.Error()))
	}
	return res, nil
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
