package services_test

import (
	"context"
	"testing"

	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentInput(name, campaignID, lessonID string, order int) entities.CreateDocumentInput {
	return entities.CreateDocumentInput{
		Name:       name,
		FileName:   name + ".pdf",
		FileSize:   1024,
		MimeType:   "application/pdf",
		StorageKey: "docs/" + name + ".pdf",
		CampaignID: campaignID,
		LessonID:   lessonID,
		Order:      order,
	}
}

func TestDocumentReparenting(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	docs := services.NewDocumentService(store, nil)
	lessons := services.NewLessonService(store, nil)

	_, err := lessons.Create(ctx, entities.CreateLessonInput{CampaignID: "camp", Name: "L"}, "admin")
	require.NoError(t, err)
	orphan, err := docs.Create(ctx, documentInput("guide", "", "", 0), "admin")
	require.NoError(t, err)
	_, err = docs.Create(ctx, documentInput("slides", "camp", "", 1), "admin")
	require.NoError(t, err)

	orphans, err := docs.ListOrphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "guide.pdf", orphans[0].FileName)

	moved, err := docs.Update(ctx, orphan.ID, entities.DocumentUpdate{CampaignID: ptr("camp"), Order: ptr(0)})
	require.NoError(t, err)
	assert.Equal(t, "camp", moved.CampaignID)
	assert.Equal(t, "docs/guide.pdf", moved.StorageKey)

	orphans, err = docs.ListOrphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	inCampaign, err := docs.ListByCampaign(ctx, "camp")
	require.NoError(t, err)
	require.Len(t, inCampaign, 2, "lessons sharing the partition are skipped")
	assert.Equal(t, orphan.ID, inCampaign[0].ID)

	_, err = docs.Update(ctx, orphan.ID, entities.DocumentUpdate{CampaignID: ptr(""), LessonID: ptr("l9")})
	require.NoError(t, err)
	byLesson, err := docs.ListByLesson(ctx, "l9")
	require.NoError(t, err)
	assert.Len(t, byLesson, 1)

	require.NoError(t, docs.Delete(ctx, orphan.ID))
	byLesson, err = docs.ListByLesson(ctx, "l9")
	require.NoError(t, err)
	assert.Empty(t, byLesson, "deleted documents are hidden")
	kept, err := docs.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive)
}

func TestLessonDocumentsOrdered(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	docs := services.NewLessonDocumentService(store, nil)

	var ids []string
	for i, name := range []string{"c", "a", "b"} {
		d, err := docs.Create(ctx, entities.CreateLessonDocumentInput{
			LessonID:   "l1",
			Name:       name,
			FileName:   name + ".pdf",
			MimeType:   "application/pdf",
			StorageKey: "k/" + name,
			Order:      2 - i,
		}, "admin")
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}

	listed, err := docs.ListByLesson(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{listed[0].ID, listed[1].ID, listed[2].ID})

	_, err = docs.Update(ctx, ids[0], entities.LessonDocumentUpdate{Order: ptr(0)})
	require.NoError(t, err)
	require.NoError(t, docs.Delete(ctx, ids[2]))

	listed, err = docs.ListByLesson(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[0], listed[0].ID)
}
