package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/legrandjeremy/maxence-rag/application/reconcile"
	"github.com/legrandjeremy/maxence-rag/infrastructure/config"
	"github.com/legrandjeremy/maxence-rag/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var (
	// container holds the dependency injection container
	container *di.Container

	// coldStart tracks whether this is a cold start invocation
	coldStart = true
)

// init runs during cold start
func init() {
	started := time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The container lives as long as the execution environment, so its
	// cleanup is never run.
	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	container.Logger.Info("Reconciler cold start completed",
		zap.Duration("duration", time.Since(started)),
		zap.String("table", cfg.DynamoDBTable),
	)
}

// Handler runs one reconciliation pass per scheduled event.
func Handler(ctx context.Context, event events.CloudWatchEvent) (reconcile.Report, error) {
	logger := container.Logger.With(
		zap.String("eventID", event.ID),
		zap.Bool("coldStart", coldStart),
	)
	coldStart = false

	report, err := container.Reconciler.Run(ctx)
	if errors.Is(err, reconcile.ErrAlreadyRunning) {
		logger.Info("Another reconciliation is running, skipping")
		return report, nil
	}
	if err != nil {
		logger.Error("Reconciliation failed", zap.Error(err))
		return report, err
	}

	logger.Info("Reconciliation completed",
		zap.Int("categoriesChecked", report.CategoriesChecked),
		zap.Int("counterDrift", len(report.Drift)),
		zap.Int("usersChecked", report.UsersChecked),
		zap.Int("pointerRepairs", len(report.Repairs)),
	)
	_ = container.Logger.Sync()
	return report, nil
}

func main() {
	lambda.Start(Handler)
}
