package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloverpay/payment-core/app/service"
	"github.com/cloverpay/payment-core/config"
)

var workerMode bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle intents stuck in processing from the provider's status",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(o *service.Orchestrator, ctx context.Context) error {
				_, err := o.RunReconcileBatch(ctx)
				return err
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(o *service.Orchestrator, ctx context.Context) error,
) {
	cfg, orchestrator, cleanup := mustCreateOrchestrator()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), orchestrator, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(orchestrator, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	orchestrator *service.Orchestrator,
	fn func(o *service.Orchestrator, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(orchestrator, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(orchestrator, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
