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

// LessonDocumentService stores documents owned by a lesson. They share the
// lesson partition of index A with plain documents.
type LessonDocumentService struct {
	base
}

func NewLessonDocumentService(store ports.Store, logger *zap.Logger) *LessonDocumentService {
	return &LessonDocumentService{base: newBase(store, logger, "lesson_documents")}
}

func (s *LessonDocumentService) Create(ctx context.Context, in entities.CreateLessonDocumentInput, createdBy string) (entities.LessonDocument, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.LessonDocument{}, err
	}
	rec, err := records.NewLessonDocument(entities.LessonDocument{
		ID:          s.newID(),
		LessonID:    in.LessonID,
		Name:        in.Name,
		Description: in.Description,
		FileInfo: entities.FileInfo{
			FileName:   in.FileName,
			FileSize:   in.FileSize,
			MimeType:   in.MimeType,
			StorageKey: in.StorageKey,
		},
		Order:     in.Order,
		IsActive:  true,
		CreatedBy: createdBy,
	})
	if err != nil {
		return entities.LessonDocument{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.LessonDocument{}, err
	}
	return created.Entity(), nil
}

func (s *LessonDocumentService) GetByID(ctx context.Context, id string) (entities.LessonDocument, error) {
	rec, err := getAs[records.LessonDocument](ctx, s.store, "lesson document", keys.LessonDocumentKey(id))
	if err != nil {
		return entities.LessonDocument{}, err
	}
	return rec.Entity(), nil
}

// ListByLesson returns the lesson's active documents in order.
func (s *LessonDocumentService) ListByLesson(ctx context.Context, lessonID string) ([]entities.LessonDocument, error) {
	recs, err := queryIndexAs[records.LessonDocument](ctx, s.store, keys.IndexA, keys.LessonPartition(lessonID), storage.SortBeginsWith(keys.PrefixOrder), 0)
	if err != nil {
		return nil, err
	}
	out := filterSlice(mapSlice(recs, records.LessonDocument.Entity), func(d entities.LessonDocument) bool { return d.IsActive })
	sortByOrder(out, func(d entities.LessonDocument) int { return d.Order })
	return out, nil
}

func (s *LessonDocumentService) Update(ctx context.Context, id string, upd entities.LessonDocumentUpdate) (entities.LessonDocument, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.LessonDocument{}, err
	}
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	setBool(set, records.AttrIsActive, upd.IsActive)
	if upd.Order != nil {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return entities.LessonDocument{}, err
		}
		a, err := keys.LessonDocumentIndexA(id, current.LessonID, *upd.Order)
		if err != nil {
			return entities.LessonDocument{}, err
		}
		set.Set(records.AttrOrder, *upd.Order).SetIndex(keys.IndexA, a)
	}
	rec, err := updateAs[records.LessonDocument](ctx, s.store, "lesson document", keys.LessonDocumentKey(id), set)
	if err != nil {
		return entities.LessonDocument{}, err
	}
	return rec.Entity(), nil
}

// Delete deactivates the lesson document.
func (s *LessonDocumentService) Delete(ctx context.Context, id string) error {
	inactive := false
	_, err := s.Update(ctx, id, entities.LessonDocumentUpdate{IsActive: &inactive})
	return err
}
