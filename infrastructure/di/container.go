package di

import (
	"github.com/legrandjeremy/maxence-rag/application/reconcile"
	"github.com/legrandjeremy/maxence-rag/application/sagas"
	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/infrastructure/config"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config          *config.Config
	Logger          *zap.Logger
	Tracer          *observability.Tracer
	Engine          *storage.Engine
	Users           *services.UserService
	Companies       *services.CompanyService
	Teams           *services.TeamService
	Campaigns       *services.CampaignService
	Lessons         *services.LessonService
	Documents       *services.DocumentService
	LessonDocuments *services.LessonDocumentService
	Progress        *services.ProgressService
	Chats           *services.ChatService
	Pictures        *services.PictureService
	Membership      *sagas.TeamMembership
	Reconciler      *reconcile.Reconciler
}
