package di

import (
	"context"
	"fmt"
	"time"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/application/reconcile"
	"github.com/legrandjeremy/maxence-rag/application/sagas"
	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/infrastructure/cache"
	"github.com/legrandjeremy/maxence-rag/infrastructure/config"
	"github.com/legrandjeremy/maxence-rag/infrastructure/messaging/eventbridge"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	environment := "development"
	if cfg.IsProduction() {
		environment = "production"
	}
	return observability.NewLogger(environment, cfg.LogLevel)
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client, pointed at
// DYNAMODB_ENDPOINT when one is configured.
func ProvideDynamoDBClient(awsCfg aws.Config, cfg *config.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideMetrics creates metrics instance. Disabled metrics are dropped.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.Metrics {
	namespace := fmt.Sprintf("%s/%s", cfg.MetricsNamespace, cfg.Environment)
	if !cfg.EnableMetrics {
		return observability.NewMetrics(namespace, nil, logger)
	}
	return observability.NewMetrics(namespace, client, logger)
}

// ProvideTracer creates the X-Ray tracer.
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("player-management", cfg.EnableTracing)
}

// ProvideEngine creates the single-table storage engine.
func ProvideEngine(
	client *awsdynamodb.Client,
	cfg *config.Config,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) (*storage.Engine, error) {
	retry := storage.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.StorageMaxAttempts
	retry.BaseDelay = cfg.StorageBaseDelay
	retry.MaxDelay = cfg.StorageMaxDelay

	return storage.NewEngine(client, storage.Options{
		TableName:      cfg.DynamoDBTable,
		IndexAName:     cfg.GSI1IndexName,
		IndexBName:     cfg.GSI2IndexName,
		BatchWriteSize: cfg.BatchWriteSize,
		BatchGetSize:   cfg.BatchGetSize,
		Retry:          retry,
		CircuitBreaker: cfg.CircuitBreakerEnabled,
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         tracer,
	})
}

// ProvideDistributedLock creates a distributed lock instance
func ProvideDistributedLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *storage.DistributedLock {
	return storage.NewDistributedLock(client, cfg.DynamoDBTable, nil, logger)
}

// ProvideEventPublisher publishes to EventBridge, or discards events when
// no bus is configured.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		logger.Info("No event bus configured, domain events are discarded")
		return ports.NopPublisher{}
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideInMemoryCache creates the lookup cache and its cleanup.
func ProvideInMemoryCache() (*cache.InMemoryCache, func()) {
	c := cache.NewInMemoryCache(time.Minute)
	return c, c.Close
}

func ProvideUserService(store ports.Store, c ports.Cache, logger *zap.Logger) *services.UserService {
	return services.NewUserService(store, c, logger)
}

func ProvideCompanyService(store ports.Store, logger *zap.Logger) *services.CompanyService {
	return services.NewCompanyService(store, logger)
}

func ProvideTeamService(store ports.Store, logger *zap.Logger) *services.TeamService {
	return services.NewTeamService(store, logger)
}

func ProvideCampaignService(store ports.Store, logger *zap.Logger) *services.CampaignService {
	return services.NewCampaignService(store, logger)
}

func ProvideLessonService(store ports.Store, logger *zap.Logger) *services.LessonService {
	return services.NewLessonService(store, logger)
}

func ProvideDocumentService(store ports.Store, logger *zap.Logger) *services.DocumentService {
	return services.NewDocumentService(store, logger)
}

func ProvideLessonDocumentService(store ports.Store, logger *zap.Logger) *services.LessonDocumentService {
	return services.NewLessonDocumentService(store, logger)
}

func ProvideProgressService(store ports.Store, logger *zap.Logger) *services.ProgressService {
	return services.NewProgressService(store, logger)
}

func ProvideChatService(store ports.Store, logger *zap.Logger) *services.ChatService {
	return services.NewChatService(store, logger)
}

// ProvidePictureService picks the counter strategy from configuration.
func ProvidePictureService(
	store ports.Store,
	cfg *config.Config,
	publisher ports.EventPublisher,
	metrics ports.Metrics,
	logger *zap.Logger,
) *services.PictureService {
	return services.NewPictureService(store, services.PictureConfig{
		AtomicIncrement: cfg.CounterAtomicIncrement,
	}, publisher, metrics, logger)
}

// ProvideTeamMembership wires the membership saga over the team and user
// services.
func ProvideTeamMembership(
	teams *services.TeamService,
	users *services.UserService,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *sagas.TeamMembership {
	return sagas.NewTeamMembership(teams, users, publisher, sagas.DefaultMembershipConfig(), logger)
}

// ProvideReconciler creates the counter and pointer reconciler.
func ProvideReconciler(
	store ports.Store,
	locker ports.Locker,
	publisher ports.EventPublisher,
	metrics ports.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *reconcile.Reconciler {
	rc := reconcile.DefaultConfig()
	rc.LockTTL = cfg.ReconcileLockTTL
	return reconcile.New(store, locker, publisher, metrics, rc, logger)
}
