package services

import (
	"context"
	"sort"

	"github.com/legrandjeremy/maxence-rag/application/ports"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"go.uber.org/zap"
)

// DefaultLeaderboardSize is the number of users Leaderboard returns when no
// limit is given.
const DefaultLeaderboardSize = 10

// ProgressService stores per-lesson completion records.
type ProgressService struct {
	base
}

func NewProgressService(store ports.Store, logger *zap.Logger) *ProgressService {
	return &ProgressService{base: newBase(store, logger, "progress")}
}

// Create records a completed lesson. completedAt is the creation time.
func (s *ProgressService) Create(ctx context.Context, in entities.CreateUserProgressInput) (entities.UserProgress, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return entities.UserProgress{}, err
	}
	rec, err := records.NewUserProgress(entities.UserProgress{
		ID:           s.newID(),
		UserID:       in.UserID,
		LessonID:     in.LessonID,
		CampaignID:   in.CampaignID,
		PointsEarned: in.PointsEarned,
		MaxPoints:    in.MaxPoints,
		CompletedAt:  s.store.Now(),
		AssignedBy:   in.AssignedBy,
		TeamID:       in.TeamID,
		Notes:        in.Notes,
	})
	if err != nil {
		return entities.UserProgress{}, err
	}
	created, err := createAs(ctx, s.store, rec)
	if err != nil {
		return entities.UserProgress{}, err
	}
	s.logger.Debug("Progress recorded",
		zap.String("userID", created.UserID),
		zap.String("lessonID", created.LessonID),
		zap.Int("points", created.PointsEarned),
	)
	return created.Entity(), nil
}

func (s *ProgressService) GetByID(ctx context.Context, id string) (entities.UserProgress, error) {
	rec, err := getAs[records.UserProgress](ctx, s.store, "user progress", keys.UserProgressKey(id))
	if err != nil {
		return entities.UserProgress{}, err
	}
	return rec.Entity(), nil
}

// GetForLesson returns the user's record for one lesson, NotFound if the
// lesson is not completed.
func (s *ProgressService) GetForLesson(ctx context.Context, userID, campaignID, lessonID string) (entities.UserProgress, error) {
	pk := keys.UserPartition(userID)
	sk := keys.ProgressLessonSort(campaignID, lessonID)
	recs, err := queryIndexAs[records.UserProgress](ctx, s.store, keys.IndexA, pk, storage.SortEquals(sk), 1)
	if err != nil {
		return entities.UserProgress{}, err
	}
	if len(recs) == 0 {
		return entities.UserProgress{}, apperrors.NewNotFoundError("user progress", pk, sk)
	}
	return recs[0].Entity(), nil
}

func (s *ProgressService) HasCompletedLesson(ctx context.Context, userID, campaignID, lessonID string) (bool, error) {
	_, err := s.GetForLesson(ctx, userID, campaignID, lessonID)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// Update merges the provided fields. New points refresh completedAt.
func (s *ProgressService) Update(ctx context.Context, id string, upd entities.UserProgressUpdate) (entities.UserProgress, error) {
	if err := utils.ValidateStruct(upd); err != nil {
		return entities.UserProgress{}, err
	}
	set := storage.NewUpdate()
	if upd.PointsEarned != nil {
		set.Set("pointsEarned", *upd.PointsEarned).Set(records.AttrCompletedAt, s.store.Now())
	}
	setString(set, "notes", upd.Notes)
	setString(set, "assignedBy", upd.AssignedBy)
	rec, err := updateAs[records.UserProgress](ctx, s.store, "user progress", keys.UserProgressKey(id), set)
	if err != nil {
		return entities.UserProgress{}, err
	}
	return rec.Entity(), nil
}

// ListByUser returns every progress record of a user.
func (s *ProgressService) ListByUser(ctx context.Context, userID string) ([]entities.UserProgress, error) {
	return s.listForUser(ctx, userID, string(keys.EntityCampaign)+"#")
}

func (s *ProgressService) ListByUserAndCampaign(ctx context.Context, userID, campaignID string) ([]entities.UserProgress, error) {
	return s.listForUser(ctx, userID, keys.Join(string(keys.EntityCampaign), campaignID, string(keys.EntityLesson))+"#")
}

func (s *ProgressService) listForUser(ctx context.Context, userID, prefix string) ([]entities.UserProgress, error) {
	recs, err := queryIndexAs[records.UserProgress](ctx, s.store, keys.IndexA, keys.UserPartition(userID), storage.SortBeginsWith(prefix), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.UserProgress.Entity), nil
}

// ListByCampaign returns every user's progress in a campaign.
func (s *ProgressService) ListByCampaign(ctx context.Context, campaignID string) ([]entities.UserProgress, error) {
	recs, err := queryIndexAs[records.UserProgress](ctx, s.store, keys.IndexB, keys.CampaignPartition(campaignID), storage.SortBeginsWith(string(keys.EntityUser)+"#"), 0)
	if err != nil {
		return nil, err
	}
	return mapSlice(recs, records.UserProgress.Entity), nil
}

// UserCampaignStats totals a user's progress in a campaign.
func (s *ProgressService) UserCampaignStats(ctx context.Context, userID, campaignID string) (entities.UserCampaignStats, error) {
	progress, err := s.ListByUserAndCampaign(ctx, userID, campaignID)
	if err != nil {
		return entities.UserCampaignStats{}, err
	}
	stats := aggregateStats(campaignID, progress)
	if len(stats) == 0 {
		return entities.UserCampaignStats{UserID: userID, CampaignID: campaignID}, nil
	}
	return stats[0], nil
}

// Leaderboard ranks users of a campaign by total points, highest first.
func (s *ProgressService) Leaderboard(ctx context.Context, campaignID string, limit int) ([]entities.UserCampaignStats, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	progress, err := s.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	stats := aggregateStats(campaignID, progress)
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].TotalPoints > stats[j].TotalPoints })
	if len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// TeamProgress filters the campaign's progress by the team stamped on each
// record. There is no team index.
func (s *ProgressService) TeamProgress(ctx context.Context, teamID, campaignID string) ([]entities.UserProgress, error) {
	all, err := s.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return filterSlice(all, func(p entities.UserProgress) bool { return p.TeamID == teamID }), nil
}

func (s *ProgressService) Delete(ctx context.Context, id string) error {
	p := keys.UserProgressKey(id)
	return s.store.Delete(ctx, p.PK, p.SK)
}

// aggregateStats groups progress by user in first-seen order.
func aggregateStats(campaignID string, progress []entities.UserProgress) []entities.UserCampaignStats {
	index := make(map[string]int)
	var out []entities.UserCampaignStats
	for _, p := range progress {
		i, ok := index[p.UserID]
		if !ok {
			index[p.UserID] = len(out)
			out = append(out, entities.UserCampaignStats{
				UserID:       p.UserID,
				CampaignID:   campaignID,
				LastActivity: p.CompletedAt,
				TeamID:       p.TeamID,
			})
			i = len(out) - 1
		}
		st := &out[i]
		st.TotalPoints += p.PointsEarned
		st.CompletedLessons++
		if p.CompletedAt > st.LastActivity {
			st.LastActivity = p.CompletedAt
		}
	}
	return out
}
