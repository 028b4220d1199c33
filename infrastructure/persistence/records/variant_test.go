package records_test

import (
	"context"
	"testing"

	"github.com/legrandjeremy/maxence-rag/domain/core/entities"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb/ddbtest"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/records"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) (*storage.Engine, *ddbtest.MemoryClient) {
	t.Helper()
	client := ddbtest.NewMemoryClient("records")
	engine, err := storage.NewEngine(client, storage.Options{TableName: "records"})
	require.NoError(t, err)
	return engine, client
}

func TestDecodeSelectsVariantByEntityType(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	user, err := records.NewUser(entities.User{ID: "u1", Email: "ana@example.com", FirstName: "Ana", CompanyID: "c1", IsActive: true})
	require.NoError(t, err)
	_, err = engine.Create(ctx, user)
	require.NoError(t, err)
	pic, err := records.NewPicture(entities.Picture{ID: "p1", ContactID: "k1", Category: "portrait", Key: "a.jpg", ContentType: "image/jpeg", Order: 3})
	require.NoError(t, err)
	_, err = engine.Create(ctx, pic)
	require.NoError(t, err)

	stored, err := engine.Get(ctx, "USER#u1", keys.SortProfile)
	require.NoError(t, err)
	v, err := records.Decode(stored)
	require.NoError(t, err)
	got, ok := v.(*records.User)
	require.True(t, ok)
	assert.Equal(t, "Ana", got.FirstName)
	assert.Equal(t, keys.Pair{PK: "COMPANY#c1", SK: "USER#u1"}, got.Meta().IndexPair(keys.IndexB))

	p := keys.PictureKey("p1")
	stored, err = engine.Get(ctx, p.PK, p.SK)
	require.NoError(t, err)
	v, err = records.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, keys.EntityPicture, v.Kind())
	assert.Equal(t, 3, v.(*records.Picture).Entity().Order)
}

func TestAsRejectsOtherTypes(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	team, err := records.NewTeam(entities.Team{ID: "t1", Name: "Reds", CompanyID: "c1"})
	require.NoError(t, err)
	stored, err := engine.Create(ctx, team)
	require.NoError(t, err)

	_, err = records.As[records.Lesson](stored)
	assert.Error(t, err)

	got, err := records.As[records.Team](stored)
	require.NoError(t, err)
	assert.Equal(t, "Reds", got.Entity().Name)
}

func TestDecodeUnknownType(t *testing.T) {
	engine, client := newEngine(t)
	require.NoError(t, client.Store(map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: "WIDGET#1"},
		"SK":         &types.AttributeValueMemberS{Value: "PROFILE"},
		"EntityType": &types.AttributeValueMemberS{Value: "WIDGET"},
	}))

	stored, err := engine.Get(context.Background(), "WIDGET#1", "PROFILE")
	require.NoError(t, err)
	_, err = records.Decode(stored)
	assert.Error(t, err)
}

func TestFilterSkipsSharedPartitionNeighbours(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	lesson, err := records.NewLesson(entities.Lesson{ID: "l1", CampaignID: "x", Name: "L1", Order: 1, CreatedBy: "admin"})
	require.NoError(t, err)
	_, err = engine.Create(ctx, lesson)
	require.NoError(t, err)
	doc, err := records.NewDocument(entities.Document{ID: "d1", CampaignID: "x", Name: "D1", CreatedBy: "admin"})
	require.NoError(t, err)
	_, err = engine.Create(ctx, doc)
	require.NoError(t, err)

	recs, err := engine.QueryByIndex(ctx, keys.IndexA, keys.CampaignPartition("x"), storage.SortBeginsWith(keys.PrefixOrder), 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	lessons, err := records.Filter[records.Lesson](recs)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, "l1", lessons[0].ID)

	docs, err := records.Filter[records.Document](recs)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)
}

func TestConstructorsRequireIdentifyingAttributes(t *testing.T) {
	_, err := records.NewUser(entities.User{ID: "u1"})
	assert.True(t, apperrors.IsInvalidKey(err))

	_, err = records.NewLesson(entities.Lesson{ID: "l1", CampaignID: "x", Order: keys.MaxOrdinal + 1})
	assert.True(t, apperrors.IsInvalidKey(err))
}
