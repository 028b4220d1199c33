package services_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/legrandjeremy/maxence-rag/application/services"
	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/events"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb/ddbtest"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pictureInput(id string, order int) entities.AddPictureInput {
	return entities.AddPictureInput{
		ID:          id,
		ContactID:   "contact-1",
		Category:    "portrait",
		Key:         "uploads/" + id + ".jpg",
		ContentType: "image/jpeg",
		Order:       order,
	}
}

// holdCounterWrites makes the first n counter writes wait for each other,
// so every caller has read the counter before any of them writes it back.
func holdCounterWrites(client *ddbtest.MemoryClient, n int) {
	var mu sync.Mutex
	seen := 0
	var barrier sync.WaitGroup
	barrier.Add(n)
	client.BeforeOp(func(op string, input interface{}) {
		var key map[string]types.AttributeValue
		switch in := input.(type) {
		case *dynamodb.PutItemInput:
			key = in.Item
		case *dynamodb.UpdateItemInput:
			key = in.Key
		default:
			return
		}
		pk, ok := key["PK"].(*types.AttributeValueMemberS)
		if !ok || !strings.HasPrefix(pk.Value, keys.Join("CAT", "")) {
			return
		}
		mu.Lock()
		seen++
		held := seen <= n
		mu.Unlock()
		if held {
			barrier.Done()
			barrier.Wait()
		}
	})
}

func TestPictureAddCreatesAndIncrementsCounter(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	pictures := services.NewPictureService(store, services.PictureConfig{}, nil, nil, nil)

	_, err := pictures.Add(ctx, pictureInput("p1", 1))
	require.NoError(t, err)
	_, err = pictures.Add(ctx, pictureInput("p2", 0))
	require.NoError(t, err)

	cat, err := pictures.GetCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Equal(t, 2, cat.TotalPictures)

	listed, err := pictures.ListByCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "p2", listed[0].ID)

	cats, err := pictures.ListCategories(ctx, "contact-1")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "portrait", cats[0].Category)

	all, err := pictures.ListByContact(ctx, "contact-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPictureReadWriteIncrementLosesConcurrentUpdate(t *testing.T) {
	store, client := newStore(t)
	ctx := context.Background()
	pictures := services.NewPictureService(store, services.PictureConfig{}, nil, nil, nil)

	holdCounterWrites(client, 2)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = pictures.Add(ctx, pictureInput(fmt.Sprintf("p%d", i+1), i+1))
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	cat, err := pictures.GetCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.TotalPictures, "both writers found no counter, so one increment is lost")

	listed, err := pictures.ListByCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestPictureAtomicIncrementKeepsConcurrentUpdates(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	metrics := &recordingMetrics{}
	pictures := services.NewPictureService(store, services.PictureConfig{AtomicIncrement: true}, nil, metrics, nil)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = pictures.Add(ctx, pictureInput(fmt.Sprintf("p%d", i), i))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	cat, err := pictures.GetCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Equal(t, n, cat.TotalPictures)
	assert.Equal(t, n, metrics.count(services.MetricCounterIncrement))

	cats, err := pictures.ListCategories(ctx, "contact-1")
	require.NoError(t, err)
	assert.Len(t, cats, 1, "the upsert writes the listing index")
}

func TestPictureDeleteDecrementsCounter(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	pictures := services.NewPictureService(store, services.PictureConfig{}, nil, nil, nil)

	_, err := pictures.Add(ctx, pictureInput("p1", 0))
	require.NoError(t, err)
	_, err = pictures.Add(ctx, pictureInput("p2", 1))
	require.NoError(t, err)

	require.NoError(t, pictures.Delete(ctx, "p1"))

	cat, err := pictures.GetCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Equal(t, 1, cat.TotalPictures)

	_, err = pictures.GetByID(ctx, "p1")
	assert.True(t, apperrors.IsNotFound(err))

	err = pictures.Delete(ctx, "p1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestPictureDeleteAtZeroFailsGuard(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	pictures := services.NewPictureService(store, services.PictureConfig{}, publisher, metrics, nil).
		WithClock(func() time.Time { return at })

	_, err := pictures.Add(ctx, pictureInput("p1", 0))
	require.NoError(t, err)
	p := keys.CategoryKey("contact-1", "portrait")
	_, err = store.Update(ctx, p.PK, p.SK, storage.NewUpdate().Set("totalPictures", 0))
	require.NoError(t, err)

	err = pictures.Delete(ctx, "p1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCounterGuardFailed(err))

	cat, err := pictures.GetCategory(ctx, "contact-1", "portrait")
	require.NoError(t, err)
	assert.Equal(t, 0, cat.TotalPictures, "counter never goes negative")

	_, err = pictures.GetByID(ctx, "p1")
	assert.True(t, apperrors.IsNotFound(err), "picture stays deleted")

	assert.Equal(t, []string{events.TypeCounterGuardFailed}, publisher.types())
	assert.Equal(t, at, publisher.events[0].GetTimestamp())
	assert.Equal(t, 1, metrics.count(services.MetricCounterGuardFailed))
}

func TestPictureDeleteWithMissingCounterFailsGuard(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	publisher := &recordingPublisher{}
	pictures := services.NewPictureService(store, services.PictureConfig{}, publisher, nil, nil)

	_, err := pictures.Add(ctx, pictureInput("p1", 0))
	require.NoError(t, err)
	p := keys.CategoryKey("contact-1", "portrait")
	require.NoError(t, store.Delete(ctx, p.PK, p.SK))

	err = pictures.Delete(ctx, "p1")
	assert.True(t, apperrors.IsCounterGuardFailed(err))
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, true, appErr.Details["missing"])
	assert.Equal(t, "p1", appErr.Details["pictureId"])
	assert.Len(t, publisher.events, 1)
}

func TestPictureAddValidates(t *testing.T) {
	store, _ := newStore(t)
	pictures := services.NewPictureService(store, services.PictureConfig{}, nil, nil, nil)

	in := pictureInput("p1", 0)
	in.Category = ""
	_, err := pictures.Add(context.Background(), in)
	assert.True(t, apperrors.IsValidation(err))
}
