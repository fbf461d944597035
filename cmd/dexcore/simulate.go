package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xivanov/dex-core/internal/config"
	"github.com/0xivanov/dex-core/internal/devnode"
	"github.com/0xivanov/dex-core/internal/scenario"
	"github.com/0xivanov/dex-core/internal/storage"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario and export the emitted logs",
		RunE:  runSimulate,
	}
	cmd.Flags().String("scenario", "", "scenario YAML file")
	cmd.Flags().String("out", "./data/logs.jsonl", "output raw logs JSONL")
	cmd.Flags().String("results", "", "optional per-step results JSONL")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a scenario and serve the resulting chain over JSON-RPC",
		RunE:  runServe,
	}
	cmd.Flags().String("scenario", "", "scenario YAML file")
	cmd.Flags().String("listen", "127.0.0.1:8545", "HTTP listen address")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadSimulate(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	ctx, stop := signalContext()
	defer stop()

	runner, results, runErr := playScenario(ctx, cfg.Scenario, logger)
	if runner == nil {
		return runErr
	}

	if cfg.Results != "" {
		if err := writeLines(cfg.Results, results); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}

	logs := runner.Logs(time.Now())
	if err := writeLines(cfg.Out, logs); err != nil {
		return fmt.Errorf("write logs: %w", err)
	}

	logger.Info("simulate complete",
		zap.Int("steps", len(results)),
		zap.Uint64("blocks", runner.World().BlockNumber()),
		zap.Int("logs", len(logs)),
		zap.String("out", cfg.Out),
	)
	return runErr
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServe(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	runner, _, err := playScenario(ctx, cfg.Scenario, logger)
	if err != nil {
		return err
	}

	node, err := devnode.New(runner.World(), logger)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	defer node.Close()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           node,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	for name, addr := range runner.Names() {
		logger.Info("contract", zap.String("name", name), zap.String("address", addr.Hex()))
	}
	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Uint64("chain_id", runner.World().ChainID()),
		zap.Uint64("head", runner.World().BlockNumber()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("serve stopped")
	return nil
}

// playScenario loads and runs a scenario. The runner is returned whenever the
// scenario was loaded, together with any step failure.
func playScenario(ctx context.Context, path string, logger *zap.Logger) (*scenario.Runner, []scenario.StepResult, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("scenario path is required")
	}
	s, err := scenario.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("scenario start",
		zap.String("scenario", path),
		zap.Int("steps", len(s.Steps)),
		zap.Uint64("chain_id", s.ChainID),
	)
	runner := scenario.NewRunner(s, logger)
	results, err := runner.Run(ctx)
	return runner, results, err
}

func writeLines[T any](path string, items []T) error {
	writer, err := storage.NewJSONLWriter(path, false)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := writer.Write(item); err != nil {
			writer.Close()
			return err
		}
	}
	return writer.Close()
}
