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

// DocumentService stores documents attached to a campaign, a lesson, or
// neither. The parent lives only in index A.
type DocumentService struct {
	base
}

func NewDocumentService(store ports.Store, logger *zap.Logger) *DocumentService {
	return &DocumentService{base: newBase(store, logger, "documents")}
}

func (s *DocumentService) Create(ctx context.Context, in entities.CreateDocumentInput, createdBy string) (entities.Document, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Document{}, err
	}
	rec, err := records.NewDocument(entities.Document{
		ID:          s.newID(),
		Name:        in.Name,
		Description: in.Description,
		FileInfo: entities.FileInfo{
			FileName:   in.FileName,
			FileSize:   in.FileSize,
			MimeType:   in.MimeType,
			StorageKey: in.StorageKey,
		},
		CampaignID: in.CampaignID,
		LessonID:   in.LessonID,
		Order:      in.Order,
		IsActive:   true,
		CreatedBy:  createdBy,
	})
	if err != nil {
		return entities.Document{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Document{}, err
	}
	s.logger.Debug("Document created",
		zap.String("documentID", created.ID),
		zap.String("parent", created.GSI1PK),
	)
	return created.Entity(), nil
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (entities.Document, error) {
	rec, err := getAs[records.Document](ctx, s.store, "document", keys.DocumentKey(id))
	if err != nil {
		return entities.Document{}, err
	}
	return rec.Entity(), nil
}

func (s *DocumentService) ListByCampaign(ctx context.Context, campaignID string) ([]entities.Document, error) {
	return s.listByParent(ctx, keys.CampaignPartition(campaignID))
}

func (s *DocumentService) ListByLesson(ctx context.Context, lessonID string) ([]entities.Document, error) {
	return s.listByParent(ctx, keys.LessonPartition(lessonID))
}

// ListOrphans returns active documents with neither campaign nor lesson.
func (s *DocumentService) ListOrphans(ctx context.Context) ([]entities.Document, error) {
	return s.listByParent(ctx, keys.PartitionOrphanDocument)
}

func (s *DocumentService) listByParent(ctx context.Context, parent string) ([]entities.Document, error) {
	recs, err := queryIndexAs[records.Document](ctx, s.store, keys.IndexA, parent, storage.SortBeginsWith(keys.PrefixOrder), 0)
	if err != nil {
		return nil, err
	}
	out := filterSlice(mapSlice(recs, records.Document.Entity), func(d entities.Document) bool { return d.IsActive })
	sortByOrder(out, func(d entities.Document) int { return d.Order })
	return out, nil
}

func (s *DocumentService) ListByCreator(ctx context.Context, createdBy string) ([]entities.Document, error) {
	recs, err := queryIndexAs[records.Document](ctx, s.store, keys.IndexB, keys.CreatedByPartition(createdBy), storage.SortBeginsWith(string(keys.EntityDocument)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.Document.Entity), nil
}

// Update merges the provided fields. A parent or order change rewrites the
// index A pair in place; the primary key never moves.
func (s *DocumentService) Update(ctx context.Context, id string, upd entities.DocumentUpdate) (entities.Document, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.Document{}, err
	}
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	setBool(set, records.AttrIsActive, upd.IsActive)

	if upd.CampaignID != nil || upd.LessonID != nil || upd.Order != nil {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return entities.Document{}, err
		}
		campaignID, lessonID, order := current.CampaignID, current.LessonID, current.Order
		if upd.CampaignID != nil {
			campaignID = *upd.CampaignID
			setOptionalString(set, records.AttrCampaignID, upd.CampaignID)
		}
		if upd.LessonID != nil {
			lessonID = *upd.LessonID
			setOptionalString(set, records.AttrLessonID, upd.LessonID)
		}
		if upd.Order != nil {
			order = *upd.Order
			set.Set(records.AttrOrder, order)
		}
		a, err := keys.DocumentIndexA(id, campaignID, lessonID, order)
		if err != nil {
			return entities.Document{}, err
		}
		set.SetIndex(keys.IndexA, a)
	}

	rec, err := updateAs[records.Document](ctx, s.store, "document", keys.DocumentKey(id), set)
	if err != nil {
		return entities.Document{}, err
	}
	return rec.Entity(), nil
}

// Reorder applies order changes one document at a time.
func (s *DocumentService) Reorder(ctx context.Context, changes []entities.OrderChange) error {
	for _, c := range changes {
		order := c.Order
		if _, err := s.Update(ctx, c.ID, entities.DocumentUpdate{Order: &order}); err != nil {
			return err
		}
	}
	return nil
}

// Delete deactivates the document; the record is kept.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	inactive := false
	_, err := s.Update(ctx, id, entities.DocumentUpdate{IsActive: &inactive})
	return err
}
