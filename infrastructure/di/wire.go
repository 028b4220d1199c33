//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/infrastructure/cache"
	"github.com/legrandjeremy/maxence-rag/infrastructure/config"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/pkg/observability"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideMetrics,
	ProvideTracer,
	ProvideEngine,
	ProvideDistributedLock,
	ProvideEventPublisher,
	ProvideInMemoryCache,
	ProvideUserService,
	ProvideCompanyService,
	ProvideTeamService,
	ProvideCampaignService,
	ProvideLessonService,
	ProvideDocumentService,
	ProvideLessonDocumentService,
	ProvideProgressService,
	ProvideChatService,
	ProvidePictureService,
	ProvideTeamMembership,
	ProvideReconciler,
	wire.Bind(new(ports.Store), new(*storage.Engine)),
	wire.Bind(new(ports.Locker), new(*storage.DistributedLock)),
	wire.Bind(new(ports.Metrics), new(*observability.Metrics)),
	wire.Bind(new(ports.Cache), new(*cache.InMemoryCache)),
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
