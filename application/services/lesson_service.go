package services

import (
	"context"
	"fmt"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

// LessonService stores lessons ordered inside their campaign.
type LessonService struct {
	base
}

func NewLessonService(store ports.Store, logger *zap.Logger) *LessonService {
	return &LessonService{base: newBase(store, logger, "lessons")}
}

func (s *LessonService) Create(ctx context.Context, in entities.CreateLessonInput, createdBy string) (entities.Lesson, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.Lesson{}, err
	}
	rec, err := records.NewLesson(entities.Lesson{
		ID:          s.newID(),
		CampaignID:  in.CampaignID,
		Name:        in.Name,
		Description: in.Description,
		Points:      in.Points,
		Order:       in.Order,
		IsActive:    true,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return entities.Lesson{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.Lesson{}, err
	}
	s.logger.Debug("Lesson created",
		zap.String("lessonID", created.ID),
		zap.String("campaignID", created.CampaignID),
		zap.Int("order", created.Order),
	)
	return created.Entity(), nil
}

func (s *LessonService) GetByID(ctx context.Context, id string) (entities.Lesson, error) {
	rec, err := getAs[records.Lesson](ctx, s.store, "lesson", keys.LessonKey(id))
	if err != nil {
		return entities.Lesson{}, err
	}
	return rec.Entity(), nil
}

// ListByCampaign returns the campaign's lessons in order. The index sort
// key already encodes the order; the sort only settles equal ordinals.
func (s *LessonService) ListByCampaign(ctx context.Context, campaignID string) ([]entities.Lesson, error) {
	recs, err := queryIndexAs[records.Lesson](ctx, s.store, keys.IndexA, keys.CampaignPartition(campaignID), storage.SortBeginsWith(keys.PrefixOrder), 0)
	if err != nil {
		return nil, err
	}
	out := mapSlice(recs, records.Lesson.Entity)
	sortByOrder(out, func(l entities.Lesson) int { return l.Order })
	return out, nil
}

func (s *LessonService) ListActiveByCampaign(ctx context.Context, campaignID string) ([]entities.Lesson, error) {
	all, err := s.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return filterSlice(all, func(l entities.Lesson) bool { return l.IsActive }), nil
}

// Update merges the provided fields. A new order rewrites the index A sort
// key so the lesson moves within its campaign listing.
func (s *LessonService) Update(ctx context.Context, id string, upd entities.LessonUpdate) (entities.Lesson, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.Lesson{}, err
	}
	set := storage.NewUpdate()
	setString(set, "name", upd.Name)
	setString(set, "description", upd.Description)
	setInt(set, "points", upd.Points)
	setBool(set, records.AttrIsActive, upd.IsActive)
	if upd.Order != nil {
		current, err := s.GetByID(ctx, id)
		if err != nil {
			return entities.Lesson{}, err
		}
		a, err := keys.LessonIndexA(id, current.CampaignID, *upd.Order)
		if err != nil {
			return entities.Lesson{}, err
		}
		set.Set(records.AttrOrder, *upd.Order).SetIndex(keys.IndexA, a)
	}

	rec, err := updateAs[records.Lesson](ctx, s.store, "lesson", keys.LessonKey(id), set)
	if err != nil {
		return entities.Lesson{}, err
	}
	return rec.Entity(), nil
}

// Reorder applies a batch of order changes within one campaign. The lessons
// are read in one batch and written back in chunks.
func (s *LessonService) Reorder(ctx context.Context, campaignID string, changes []entities.OrderChange) ([]entities.Lesson, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	pairs := make([]keys.Pair, 0, len(changes))
	for _, c := range changes {
		if err := utils.ValidateStruct(c); err != nil {
			return nil, err
		}
		pairs = append(pairs, keys.LessonKey(c.ID))
	}
	stored, err := s.store.BatchGet(ctx, pairs)
	if err != nil {
		return nil, err
	}
	lessons, err := records.Filter[records.Lesson](stored)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]records.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID] = l
	}

	puts := make([]interface{}, 0, len(changes))
	out := make([]entities.Lesson, 0, len(changes))
	for _, c := range changes {
		l, ok := byID[c.ID]
		if !ok {
			p := keys.LessonKey(c.ID)
			return nil, apperrors.NewNotFoundError("lesson", p.PK, p.SK)
		}
		if l.CampaignID != campaignID {
			return nil, apperrors.NewValidationError(fmt.Sprintf("lesson %s does not belong to campaign %s", c.ID, campaignID))
		}
		a, err := keys.LessonIndexA(l.ID, l.CampaignID, c.Order)
		if err != nil {
			return nil, err
		}
		l.Order = c.Order
		l.GSI1PK, l.GSI1SK = a.PK, a.SK
		puts = append(puts, l)
		out = append(out, l.Entity())
	}
	if err := s.store.BatchWrite(ctx, puts, nil); err != nil {
		return nil, err
	}
	s.logger.Info("Lessons reordered",
		zap.String("campaignID", campaignID),
		zap.Int("count", len(puts)),
	)
	sortByOrder(out, func(l entities.Lesson) int { return l.Order })
	return out, nil
}

func (s *LessonService) Delete(ctx context.Context, id string) error {
	p := keys.LessonKey(id)
	return s.store.Delete(ctx, p.PK, p.SK)
}
