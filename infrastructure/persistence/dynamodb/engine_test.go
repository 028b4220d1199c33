package dynamodb_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb/ddbtest"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTable = "test-player-management"

var _ storage.DynamoAPI = (*ddbtest.MemoryClient)(nil)

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type widget struct {
	storage.Header
	Name  string `dynamodbav:"name"`
	Color string `dynamodbav:"color,omitempty"`
	Total int    `dynamodbav:"total"`
}

func newWidget(t *testing.T, id, parent string, order int) widget {
	t.Helper()
	ks, err := keys.Lesson(id, parent, "tester", order)
	require.NoError(t, err)
	return widget{Header: storage.NewHeader(keys.EntityLesson, id, ks), Name: "widget " + id}
}

func newEngine(t *testing.T, mutate ...func(*storage.Options)) (*storage.Engine, *ddbtest.MemoryClient) {
	t.Helper()
	client := ddbtest.NewMemoryClient(testTable)
	clock := &tickingClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	seq := 0
	opts := storage.Options{
		TableName: testTable,
		Retry:     storage.RetryPolicy{MaxAttempts: 3},
		Clock:     clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("gen-%d", seq)
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	engine, err := storage.NewEngine(client, opts)
	require.NoError(t, err)
	return engine, client
}

func TestNewEngineRejectsOversizedBatch(t *testing.T) {
	client := ddbtest.NewMemoryClient(testTable)

	_, err := storage.NewEngine(client, storage.Options{TableName: testTable, BatchWriteSize: 26})
	assert.Error(t, err)

	_, err = storage.NewEngine(client, storage.Options{TableName: testTable, BatchGetSize: 101})
	assert.Error(t, err)

	_, err = storage.NewEngine(client, storage.Options{})
	assert.Error(t, err)
}

func TestCreateStampsEngineFields(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	w := newWidget(t, "l1", "x", 0)
	w.ID = ""
	rec, err := engine.Create(ctx, w)
	require.NoError(t, err)

	assert.Equal(t, "gen-1", rec.ID)
	assert.Equal(t, "2024-01-01T00:00:01.000Z", rec.CreatedAt)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.Equal(t, keys.EntityLesson, rec.Type())
	assert.Equal(t, keys.Pair{PK: "CAMPAIGN#x", SK: "ORDER#000#LESSON#l1"}, rec.IndexPair(keys.IndexA))

	var got widget
	require.NoError(t, rec.Decode(&got))
	assert.Equal(t, "widget l1", got.Name)
}

func TestCreateRejectsDuplicateKey(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	first := newWidget(t, "l1", "x", 0)
	_, err := engine.Create(ctx, first)
	require.NoError(t, err)

	second := newWidget(t, "l1", "y", 4)
	second.Name = "intruder"
	_, err = engine.Create(ctx, second)
	assert.True(t, apperrors.IsAlreadyExists(err))
	assert.Equal(t, 2, client.Calls(ddbtest.OpPutItem), "conditional failures are not retried")

	stored, err := engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	require.NoError(t, err)
	var got widget
	require.NoError(t, stored.Decode(&got))
	assert.Equal(t, "widget l1", got.Name)
	assert.Equal(t, "CAMPAIGN#x", got.GSI1PK)
}

// lostAckClient commits puts but reports the first ones as throttled, as when
// a response is lost after the write landed.
type lostAckClient struct {
	*ddbtest.MemoryClient
	lost int
}

func (c *lostAckClient) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	out, err := c.MemoryClient.PutItem(ctx, in, opts...)
	if err == nil && c.lost > 0 {
		c.lost--
		return nil, ddbtest.ThrottlingError()
	}
	return out, err
}

func TestCreateRetryAfterLostResponseSucceeds(t *testing.T) {
	client := &lostAckClient{MemoryClient: ddbtest.NewMemoryClient(testTable), lost: 1}
	clock := &tickingClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	engine, err := storage.NewEngine(client, storage.Options{
		TableName: testTable,
		Retry:     storage.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		Clock:     clock.Now,
	})
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := engine.Create(ctx, newWidget(t, "l1", "x", 0))
	require.NoError(t, err)
	assert.Equal(t, "l1", rec.ID)
	assert.Equal(t, 2, client.Calls(ddbtest.OpPutItem))

	_, err = engine.Create(ctx, newWidget(t, "l1", "x", 0))
	assert.True(t, apperrors.IsAlreadyExists(err), "a later create of the same key still conflicts")
}

func TestCreateRequiresKeys(t *testing.T) {
	engine, client := newEngine(t)

	_, err := engine.Create(context.Background(), widget{Header: storage.Header{EntityType: "LESSON", PK: "LESSON#1"}})
	assert.True(t, apperrors.IsInvalidKey(err))

	_, err = engine.Create(context.Background(), widget{Header: storage.Header{PK: "A", SK: "B"}})
	assert.True(t, apperrors.IsInvalidKey(err))
	assert.Zero(t, client.Calls(ddbtest.OpPutItem))
}

func TestGetMissingRecord(t *testing.T) {
	engine, _ := newEngine(t)

	_, err := engine.Get(context.Background(), "LESSON#nope", keys.SortProfile)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateTouchesOnlyNamedAttributes(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	w := newWidget(t, "l1", "x", 0)
	w.Color = "red"
	created, err := engine.Create(ctx, w)
	require.NoError(t, err)

	updated, err := engine.Update(ctx, "LESSON#l1", keys.SortProfile, storage.NewUpdate().Set("name", "renamed"))
	require.NoError(t, err)

	var got widget
	require.NoError(t, updated.Decode(&got))
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "red", got.Color)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.Greater(t, got.UpdatedAt, created.UpdatedAt)

	reread, err := engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	require.NoError(t, err)
	assert.Equal(t, updated.Item, reread.Item)
}

func TestUpdateMissingRecordDoesNotCreate(t *testing.T) {
	engine, client := newEngine(t)

	_, err := engine.Update(context.Background(), "LESSON#ghost", keys.SortProfile, storage.NewUpdate().Set("name", "x"))
	assert.True(t, apperrors.IsNotFound(err))
	assert.Zero(t, client.Len())
}

func TestUpdateRejectsEngineOwnedAttributes(t *testing.T) {
	engine, client := newEngine(t)

	for _, name := range []string{"PK", "SK", "id", "createdAt", "updatedAt", "EntityType"} {
		_, err := engine.Update(context.Background(), "LESSON#l1", keys.SortProfile, storage.NewUpdate().Set(name, "x"))
		assert.True(t, apperrors.IsValidation(err), name)
	}
	assert.Zero(t, client.Calls(ddbtest.OpUpdateItem))
}

func TestUpdateRewritesIndexPair(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 0))
	require.NoError(t, err)

	moved, err := keys.LessonIndexA("l1", "x", 5)
	require.NoError(t, err)
	_, err = engine.Update(ctx, "LESSON#l1", keys.SortProfile, storage.NewUpdate().SetIndex(keys.IndexA, moved))
	require.NoError(t, err)

	found, err := engine.QueryByIndex(ctx, keys.IndexA, "CAMPAIGN#x", storage.SortEquals("ORDER#005#LESSON#l1"), 0)
	require.NoError(t, err)
	require.Len(t, found, 1)

	cleared, err := engine.Update(ctx, "LESSON#l1", keys.SortProfile, storage.NewUpdate().SetIndex(keys.IndexA, keys.Pair{}))
	require.NoError(t, err)
	assert.True(t, cleared.IndexPair(keys.IndexA).IsZero())
}

func TestUpdateGuard(t *testing.T) {
	engine, _ := newEngine(t)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 0))
	require.NoError(t, err)

	guard := expression.Name("total").GreaterThan(expression.Value(0))
	onFail := func(current storage.StoredRecord) error {
		return apperrors.NewCounterGuardFailedError("total")
	}

	_, err = engine.Update(ctx, "LESSON#l1", keys.SortProfile, storage.NewUpdate().Increment("total", -1), storage.WithGuard(guard, onFail))
	assert.True(t, apperrors.IsCounterGuardFailed(err))

	_, err = engine.Update(ctx, "LESSON#l2", keys.SortProfile, storage.NewUpdate().Increment("total", -1), storage.WithGuard(guard, onFail))
	assert.True(t, apperrors.IsNotFound(err), "a missing record is reported as missing, not as a guard failure")
}

func TestUpsertAdd(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := engine.Update(ctx, "CAT#1#a", keys.SortCounter, storage.NewUpdate().Add("total", 1), storage.WithUpsert())
		require.NoError(t, err)
	}

	raw, ok := client.Raw("CAT#1#a", keys.SortCounter)
	require.True(t, ok)
	rec, err := engine.Get(ctx, "CAT#1#a", keys.SortCounter)
	require.NoError(t, err)
	var got widget
	require.NoError(t, rec.Decode(&got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, "gen-1", got.ID, "the id seeded by the first upsert is kept")
	assert.NotEmpty(t, got.CreatedAt)
	assert.Contains(t, raw, "updatedAt")
}

func TestDeleteIsIdempotent(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 0))
	require.NoError(t, err)

	require.NoError(t, engine.Delete(ctx, "LESSON#l1", keys.SortProfile))
	require.NoError(t, engine.Delete(ctx, "LESSON#l1", keys.SortProfile))
	assert.Zero(t, client.Len())

	_, err = engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestIndexQueryFollowsOrdinalOrder(t *testing.T) {
	engine, client := newEngine(t)
	client.SetPageSize(128)
	ctx := context.Background()

	const n = keys.MaxOrdinal + 1
	for _, order := range rand.New(rand.NewSource(7)).Perm(n) {
		_, err := engine.Create(ctx, newWidget(t, fmt.Sprintf("l%d", order), "x", order))
		require.NoError(t, err)
	}
	_, err := engine.Create(ctx, newWidget(t, "other", "y", 0))
	require.NoError(t, err)

	found, err := engine.QueryByIndex(ctx, keys.IndexA, keys.CampaignPartition("x"), storage.AnySort, 0)
	require.NoError(t, err)
	require.Len(t, found, n)
	for i, rec := range found {
		assert.Equal(t, fmt.Sprintf("l%d", i), rec.ID)
	}
	assert.Greater(t, client.Calls(ddbtest.OpQuery), 1, "results span several pages")
}

func TestQueryByPrimaryKeyPrefix(t *testing.T) {
	engine, client := newEngine(t)
	client.SetPageSize(2)
	ctx := context.Background()

	for _, sk := range []string{"MEMBER#c", "MEMBER#a", "MEMBER#b", "OTHER#z"} {
		_, err := engine.Create(ctx, widget{Header: storage.Header{PK: "TEAM#t1", SK: sk, EntityType: "TEAM_MEMBER"}})
		require.NoError(t, err)
	}

	all, err := engine.QueryByPrimaryKeyPrefix(ctx, "TEAM#t1", keys.PrefixMember, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "MEMBER#a", all[0].SK)
	assert.Equal(t, "MEMBER#c", all[2].SK)

	limited, err := engine.QueryByPrimaryKeyPrefix(ctx, "TEAM#t1", "", 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	empty, err := engine.QueryByPrimaryKeyPrefix(ctx, "TEAM#none", "", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = engine.QueryByPrimaryKeyPrefix(ctx, "", "", 0)
	assert.True(t, apperrors.IsInvalidKey(err))
}

func TestBatchWriteChunksAtTwentyFive(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	var puts []interface{}
	var pairs []keys.Pair
	for i := 0; i < 57; i++ {
		w := newWidget(t, fmt.Sprintf("l%d", i), "x", i)
		puts = append(puts, w)
		pairs = append(pairs, w.Key())
	}

	require.NoError(t, engine.BatchWrite(ctx, puts, nil))
	assert.Equal(t, 3, client.Calls(ddbtest.OpBatchWriteItem))
	assert.Equal(t, []int{25, 25, 7}, client.BatchWriteSizes())

	got, err := engine.BatchGet(ctx, pairs)
	require.NoError(t, err)
	assert.Len(t, got, 57)
	assert.Equal(t, "l0", got[0].ID)
	assert.Equal(t, "l56", got[56].ID)
}

func TestBatchWriteHonoursConfiguredSize(t *testing.T) {
	engine, client := newEngine(t, func(o *storage.Options) { o.BatchWriteSize = 10 })
	ctx := context.Background()

	var deletes []keys.Pair
	var puts []interface{}
	for i := 0; i < 15; i++ {
		w := newWidget(t, fmt.Sprintf("l%d", i), "x", i)
		puts = append(puts, w)
		deletes = append(deletes, keys.Pair{PK: "GONE#" + fmt.Sprint(i), SK: keys.SortProfile})
	}

	require.NoError(t, engine.BatchWrite(ctx, puts, deletes))
	assert.Equal(t, []int{10, 10, 10}, client.BatchWriteSizes())
	assert.Equal(t, 15, client.Len())
}

func TestBatchWriteRetriesUnprocessedItems(t *testing.T) {
	engine, client := newEngine(t)
	client.LeaveUnprocessedWrites(3)
	ctx := context.Background()

	var puts []interface{}
	for i := 0; i < 10; i++ {
		puts = append(puts, newWidget(t, fmt.Sprintf("l%d", i), "x", i))
	}

	require.NoError(t, engine.BatchWrite(ctx, puts, nil))
	assert.Equal(t, []int{10, 3}, client.BatchWriteSizes())
	assert.Equal(t, 10, client.Len())
}

func TestBatchWriteReportsCommittedChunks(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	var puts []interface{}
	for i := 0; i < 30; i++ {
		puts = append(puts, newWidget(t, fmt.Sprintf("l%d", i), "x", i))
	}
	client.BeforeOp(func(op string, _ interface{}) {
		if op == ddbtest.OpBatchWriteItem && client.Calls(op) == 1 {
			client.FailNext(op, ddbtest.ThrottlingError(), ddbtest.ThrottlingError(), ddbtest.ThrottlingError())
		}
	})

	err := engine.BatchWrite(ctx, puts, nil)
	require.True(t, apperrors.IsStorageUnavailable(err))
	appErr := apperrors.GetAppError(err)
	assert.Equal(t, 1, appErr.Details["committedChunks"])
	assert.Equal(t, 25, client.Len())
}

func TestBatchGetOmitsMissingAndDuplicates(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 1))
	require.NoError(t, err)
	_, err = engine.Create(ctx, newWidget(t, "l2", "x", 2))
	require.NoError(t, err)

	client.LeaveUnprocessedGets(1)
	got, err := engine.BatchGet(ctx, []keys.Pair{
		keys.LessonKey("l2"), keys.LessonKey("missing"), keys.LessonKey("l1"), keys.LessonKey("l2"),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "l2", got[0].ID)
	assert.Equal(t, "l1", got[1].ID)
	assert.Equal(t, 2, client.Calls(ddbtest.OpBatchGetItem))

	none, err := engine.BatchGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScanByEntityType(t *testing.T) {
	engine, client := newEngine(t)
	client.SetPageSize(1)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 1))
	require.NoError(t, err)
	_, err = engine.Create(ctx, newWidget(t, "l2", "x", 2))
	require.NoError(t, err)
	_, err = engine.Create(ctx, widget{Header: storage.Header{PK: "TEAM#t", SK: "MEMBER#u", EntityType: "TEAM_MEMBER"}})
	require.NoError(t, err)

	lessons, err := engine.ScanByEntityType(ctx, keys.EntityLesson)
	require.NoError(t, err)
	assert.Len(t, lessons, 2)
	assert.Equal(t, 3, client.Calls(ddbtest.OpScan))
}

func TestTransientErrorsAreRetried(t *testing.T) {
	engine, client := newEngine(t)
	ctx := context.Background()

	_, err := engine.Create(ctx, newWidget(t, "l1", "x", 1))
	require.NoError(t, err)

	client.FailNext(ddbtest.OpGetItem, ddbtest.ThrottlingError(), ddbtest.ThrottlingError())
	_, err = engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	require.NoError(t, err)
	assert.Equal(t, 3, client.Calls(ddbtest.OpGetItem))
}

func TestRetriesAreBounded(t *testing.T) {
	engine, client := newEngine(t)

	client.FailNext(ddbtest.OpGetItem, ddbtest.ThrottlingError(), ddbtest.ThrottlingError(), ddbtest.ThrottlingError(), ddbtest.ThrottlingError())
	_, err := engine.Get(context.Background(), "LESSON#l1", keys.SortProfile)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.True(t, apperrors.GetAppError(err).Retryable())
	assert.Equal(t, 3, client.Calls(ddbtest.OpGetItem))
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	engine, client := newEngine(t)

	client.FailNext(ddbtest.OpDeleteItem, ddbtest.ValidationError("bad request"))
	err := engine.Delete(context.Background(), "LESSON#l1", keys.SortProfile)
	require.Error(t, err)
	assert.False(t, apperrors.IsStorageUnavailable(err))
	assert.Equal(t, 1, client.Calls(ddbtest.OpDeleteItem))
}

func TestCancelledContextIsUnavailable(t *testing.T) {
	engine, client := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client.FailNext(ddbtest.OpGetItem, ctx.Err())
	_, err := engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.Equal(t, 1, client.Calls(ddbtest.OpGetItem))
}

func TestCircuitBreakerOpensOnTransientFailures(t *testing.T) {
	engine, client := newEngine(t, func(o *storage.Options) {
		o.CircuitBreaker = true
		o.Retry = storage.RetryPolicy{MaxAttempts: 1}
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		client.FailNext(ddbtest.OpGetItem, ddbtest.ThrottlingError())
		_, err := engine.Get(ctx, "LESSON#l1", keys.SortProfile)
		require.True(t, apperrors.IsStorageUnavailable(err))
	}

	_, err := engine.Get(ctx, "LESSON#l1", keys.SortProfile)
	assert.True(t, apperrors.IsStorageUnavailable(err))
	assert.Equal(t, 10, client.Calls(ddbtest.OpGetItem), "open breaker short-circuits the call")
}

func TestHealthCheck(t *testing.T) {
	engine, _ := newEngine(t)
	assert.NoError(t, engine.HealthCheck(context.Background()))

	other, err := storage.NewEngine(ddbtest.NewMemoryClient("elsewhere"), storage.Options{TableName: testTable})
	require.NoError(t, err)
	assert.True(t, apperrors.IsStorageUnavailable(other.HealthCheck(context.Background())))
}
