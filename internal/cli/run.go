package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/smartdio/cursor-flow/internal/config"
	"github.com/smartdio/cursor-flow/internal/controller"
	"github.com/smartdio/cursor-flow/internal/invoker"
	"github.com/smartdio/cursor-flow/internal/judge"
	"github.com/smartdio/cursor-flow/internal/preflight"
	"github.com/smartdio/cursor-flow/internal/queue"
	"github.com/smartdio/cursor-flow/internal/report"
	"github.com/smartdio/cursor-flow/internal/runner"
	"github.com/smartdio/cursor-flow/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run [queue-file]",
	Short: "Execute every pending task in the queue",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("echo", false, "Echo agent output to stdout as it streams")
	runCmd.Flags().Bool("skip-preflight", false, "Skip the environment preflight check")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	queuePath := "queue.json"
	if len(args) == 1 {
		queuePath = args[0]
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	skipPreflight, err := cmd.Flags().GetBool("skip-preflight")
	if err != nil {
		return err
	}
	if !skipPreflight {
		if err := preflight.Check(cfg); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		if version, err := preflight.Probe(ctx, cfg.Agent.Binary); err != nil {
			logger.Warn("agent version probe failed", "error", err)
		} else {
			logger.Info("agent detected", "binary", cfg.Agent.Binary, "version", version)
		}
	}

	store, err := queue.Load(queuePath, logger)
	if err != nil {
		return err
	}

	classifier, closeJudge, err := buildJudge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJudge()

	inv := invoker.New(cfg.Agent.Binary, logger)
	if cfg.Agent.WorkDir != "" {
		inv.SetDir(cfg.Agent.WorkDir)
	}
	if echo, _ := cmd.Flags().GetBool("echo"); echo {
		inv.SetEcho(cmd.OutOrStdout())
	}

	attemptLog, err := report.NewLog(filepath.Join(cfg.ReportDir, "attempts.ndjson"), logger)
	if err != nil {
		return err
	}
	defer attemptLog.Close()

	var sink telemetry.Sink = telemetry.NewNoop()
	if cfg.Telemetry.Endpoint != "" {
		sink = telemetry.NewHTTPSink(cfg.Telemetry.Endpoint, logger)
	}

	queueID := fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	logger.Info("queue run id assigned", "queue_id", queueID)

	ctrl := controller.New(inv, classifier, logger, controller.Options{
		Model:       cfg.Agent.Model,
		ExtraArgs:   cfg.Agent.ExtraArgs,
		MaxAttempts: cfg.Agent.MaxAttempts,
		Timeout:     cfg.Agent.Timeout.Std(),
		QueueID:     queueID,
		AttemptLog:  attemptLog,
		Telemetry:   sink,
	})

	r := runner.New(store, ctrl, cfg.ReportDir, queueID, sink, logger)
	summary, err := r.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Executed %d task(s): %d done, %d partial, %d errored\n",
		summary.Executed, summary.Done, summary.Partial, summary.Errored)
	if summary.Errored > 0 {
		return fmt.Errorf("%d task(s) ended in error", summary.Errored)
	}
	return nil
}

// buildJudge constructs the configured classifier backend. The returned
// closer releases backend resources; it is a no-op for HTTP.
func buildJudge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*judge.Classifier, func(), error) {
	apiKey, err := cfg.JudgeAPIKey()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Judge.Provider {
	case config.ProviderGemini:
		backend, err := judge.NewGeminiBackend(ctx, apiKey, cfg.Judge.Model)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := backend.Close(); err != nil {
				logger.Warn("failed to close judge backend", "error", err)
			}
		}
		return judge.NewClassifier(backend, logger), closer, nil
	default:
		backend := judge.NewHTTPBackend(cfg.Judge.Endpoint, apiKey, cfg.Judge.Model)
		return judge.NewClassifier(backend, logger), func() {}, nil
	}
}
