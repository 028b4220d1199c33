package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb/ddbtest"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonIDs(lessons []entities.Lesson) []string {
	out := make([]string, len(lessons))
	for i, l := range lessons {
		out[i] = l.ID
	}
	return out
}

func TestLessonOrderingFollowsUpdates(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	companies := services.NewCompanyService(store, nil)
	campaigns := services.NewCampaignService(store, nil)
	lessons := services.NewLessonService(store, nil)

	c1, err := companies.Create(ctx, entities.CreateCompanyInput{Name: "C1"}, "admin")
	require.NoError(t, err)
	x, err := campaigns.Create(ctx, entities.CreateCampaignInput{Name: "X", CompanyID: c1.ID}, "admin")
	require.NoError(t, err)
	assert.Equal(t, entities.CampaignDraft, x.Status)

	l1, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: x.ID, Name: "L1", Order: 0}, "admin")
	require.NoError(t, err)
	l2, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: x.ID, Name: "L2", Order: 1}, "admin")
	require.NoError(t, err)

	listed, err := lessons.ListByCampaign(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{l1.ID, l2.ID}, lessonIDs(listed))

	updated, err := lessons.Update(ctx, l1.ID, entities.LessonUpdate{Order: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Order)
	assert.Equal(t, "L1", updated.Name, "untouched fields survive a partial update")

	listed, err = lessons.ListByCampaign(ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{l2.ID, l1.ID}, lessonIDs(listed))

	byCompany, err := campaigns.ListByCompany(ctx, c1.ID)
	require.NoError(t, err)
	require.Len(t, byCompany, 1)
	assert.Equal(t, x.ID, byCompany[0].ID)
}

func TestLessonOrderingUsesNumericOrder(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	lessons := services.NewLessonService(store, nil)

	for _, order := range []int{100, 9, 10, 999, 0} {
		_, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: "camp", Name: fmt.Sprintf("n%d", order), Order: order}, "admin")
		require.NoError(t, err)
	}

	listed, err := lessons.ListByCampaign(ctx, "camp")
	require.NoError(t, err)
	var orders []int
	for _, l := range listed {
		orders = append(orders, l.Order)
	}
	assert.Equal(t, []int{0, 9, 10, 100, 999}, orders)

	_, err = lessons.Create(ctx, entities.CreateLessonInput{CampaignID: "camp", Name: "too far", Order: 1000}, "admin")
	assert.True(t, apperrors.IsValidation(err))
}

func TestLessonReorderBatches(t *testing.T) {
	store, client := newStore(t)
	ctx := context.Background()
	lessons := services.NewLessonService(store, nil)

	var created []entities.Lesson
	for i := 0; i < 3; i++ {
		l, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: "camp", Name: fmt.Sprintf("L%d", i), Order: i}, "admin")
		require.NoError(t, err)
		created = append(created, l)
	}
	client.ResetCalls()

	out, err := lessons.Reorder(ctx, "camp", []entities.OrderChange{
		{ID: created[0].ID, Order: 2},
		{ID: created[2].ID, Order: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{created[2].ID, created[0].ID}, lessonIDs(out))
	assert.Equal(t, 1, client.Calls(ddbtest.OpBatchGetItem))
	assert.Equal(t, []int{2}, client.BatchWriteSizes())

	listed, err := lessons.ListByCampaign(ctx, "camp")
	require.NoError(t, err)
	assert.Equal(t, []string{created[2].ID, created[1].ID, created[0].ID}, lessonIDs(listed))
}

func TestLessonReorderRejectsForeignLesson(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	lessons := services.NewLessonService(store, nil)

	other, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: "other", Name: "L"}, "admin")
	require.NoError(t, err)

	_, err = lessons.Reorder(ctx, "camp", []entities.OrderChange{{ID: other.ID, Order: 1}})
	assert.True(t, apperrors.IsValidation(err))

	_, err = lessons.Reorder(ctx, "camp", []entities.OrderChange{{ID: "missing", Order: 1}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLessonUpdateMissing(t *testing.T) {
	store, _ := newStore(t)
	lessons := services.NewLessonService(store, nil)

	_, err := lessons.Update(context.Background(), "nope", entities.LessonUpdate{Name: ptr("x")})
	assert.True(t, apperrors.IsNotFound(err))
}
