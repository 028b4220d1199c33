package services

import (
	"context"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

// CampaignService stores campaigns under their company.
type CampaignService struct {
	base
}

func NewCampaignService(store ports.Store, logger *zap.Logger) *CampaignService {
	return &CampaignService{base: newBase(store, logger, "campaigns")}
}

// Create stores a campaign; status defaults to draft.
func (s *CampaignService) Create(ctx context.Context, in entities.CreateCampaignInput, createdBy string) (entities.Campaign, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Campaign{}, err
	}
	status := in.Status
	if status == "" {
		status = entities.CampaignDraft
	}
	rec, err := records.NewCampaign(entities.Campaign{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		CompanyID:   in.CompanyID,
		IsActive:    true,
		Status:      status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return entities.Campaign{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Campaign{}, err
	}
	s.logger.Info("Campaign created",
		zap.String("campaignID", created.ID),
		zap.String("companyID", created.CompanyID),
	)
	return created.Entity(), nil
}

func (s *CampaignService) GetByID(ctx context.Context, id string) (entities.Campaign, error) {
	rec, err := getAs[records.Campaign](ctx, s.store, "campaign", keys.CampaignKey(id))
	if err != nil {
		return entities.Campaign{}, err
	}
	return rec.Entity(), nil
}

// ListByCompany lists the campaigns of a company. The company partition is
// shared with teams, which are skipped.
func (s *CampaignService) ListByCompany(ctx context.Context, companyID string) ([]entities.Campaign, error) {
	recs, err := queryIndexAs[records.Campaign](ctx, s.store, keys.IndexA, keys.CompanyPartition(companyID), storage.SortBeginsWith(string(keys.EntityCampaign)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Campaign.Entity), nil
}

func (s *CampaignService) ListActiveByCompany(ctx context.Context, companyID string) ([]entities.Campaign, error) {
	all, err := s.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return filterSlice(all, func(c entities.Campaign) bool { return c.IsActive }), nil
}

func (s *CampaignService) ListByCreator(ctx context.Context, createdBy string) ([]entities.Campaign, error) {
	recs, err := queryIndexAs[records.Campaign](ctx, s.store, keys.IndexB, keys.CreatedByPartition(createdBy), storage.SortBeginsWith(string(keys.EntityCampaign)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Campaign.Entity), nil
}

func (s *CampaignService) ListAll(ctx context.Context) ([]entities.Campaign, error) {
	recs, err := scanAs[records.Campaign](ctx, s.store)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Campaign.Entity), nil
}

func (s *CampaignService) Update(ctx context.Context, id string, upd entities.CampaignUpdate) (entities.Campaign, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.Campaign{}, err
	}
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	if upd.Status != nil {
		set.Set("status", string(*upd.Status))
	}
	setOptionalString(set, "startDate", upd.StartDate)
	setOptionalString(set, "endDate", upd.EndDate)
	setBool(set, records.AttrIsActive, upd.IsActive)
	rec, err := updateAs[records.Campaign](ctx, s.store, "campaign", keys.CampaignKey(id), set)
	if err != nil {
		return entities.Campaign{}, err
	}
	return rec.Entity(), nil
}

func (s *CampaignService) Delete(ctx context.Context, id string) error {
	p := keys.CampaignKey(id)
	return s.store.Delete(ctx, p.PK, p.SK)
}
