package services_test

import (
	"context"
	"testing"

	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressAggregates(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	progress := services.NewProgressService(store, nil)

	record := func(user, lesson string, points int, team string) entities.UserProgress {
		p, err := progress.Create(ctx, entities.CreateUserProgressInput{
			UserID:       user,
			LessonID:     lesson,
			CampaignID:   "camp",
			PointsEarned: points,
			MaxPoints:    100,
			TeamID:       team,
		})
		require.NoError(t, err)
		return p
	}
	first := record("u1", "l1", 40, "reds")
	record("u1", "l2", 50, "reds")
	record("u2", "l1", 70, "blues")
	record("u3", "l1", 10, "reds")

	done, err := progress.HasCompletedLesson(ctx, "u1", "camp", "l2")
	require.NoError(t, err)
	assert.True(t, done)
	done, err = progress.HasCompletedLesson(ctx, "u2", "camp", "l2")
	require.NoError(t, err)
	assert.False(t, done)

	stats, err := progress.UserCampaignStats(ctx, "u1", "camp")
	require.NoError(t, err)
	assert.Equal(t, 90, stats.TotalPoints)
	assert.Equal(t, 2, stats.CompletedLessons)

	board, err := progress.Leaderboard(ctx, "camp", 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "u1", board[0].UserID)
	assert.Equal(t, "u2", board[1].UserID)

	reds, err := progress.TeamProgress(ctx, "reds", "camp")
	require.NoError(t, err)
	assert.Len(t, reds, 3)

	updated, err := progress.Update(ctx, first.ID, entities.UserProgressUpdate{PointsEarned: ptr(60)})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.PointsEarned)
	assert.Greater(t, updated.CompletedAt, first.CompletedAt)

	require.NoError(t, progress.Delete(ctx, first.ID))
	_, err = progress.GetForLesson(ctx, "u1", "camp", "l1")
	assert.True(t, apperrors.IsNotFound(err))

	empty, err := progress.UserCampaignStats(ctx, "nobody", "camp")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalPoints)
}
