package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/legrandjeremy/maxence-rag/domain/keys"
	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store limits of the underlying batch APIs.
const (
	MaxBatchWriteSize = 25
	MaxBatchGetSize   = 100
)

// Recorder receives per-operation measurements.
type Recorder interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, err error)
	RecordRetry(ctx context.Context, operation string, attempt int)
}

// Tracer wraps an operation in a trace span.
type Tracer interface {
	TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error
}

// Options configures an Engine.
type Options struct {
	TableName      string
	IndexAName     string // defaults to GSI1
	IndexBName     string // defaults to GSI2
	BatchWriteSize int    // defaults to MaxBatchWriteSize, never above it
	BatchGetSize   int    // defaults to MaxBatchGetSize, never above it
	Retry          RetryPolicy
	CircuitBreaker bool
	Clock          utils.Clock
	NewID          func() string
	Logger         *zap.Logger
	Metrics        Recorder
	Tracer         Tracer
}

// Engine is the generic single-table storage engine. It is safe for
// concurrent use and holds no per-record state.
type Engine struct {
	client         DynamoAPI
	tableName      string
	indexNames     map[keys.Index]string
	batchWriteSize int
	batchGetSize   int
	retry          RetryPolicy
	breaker        *gobreaker.CircuitBreaker
	now            utils.Clock
	newID          func() string
	logger         *zap.Logger
	metrics        Recorder
	tracer         Tracer
}

// NewEngine creates an engine over client.
func NewEngine(client DynamoAPI, opts Options) (*Engine, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if opts.TableName == "" {
		return nil, errors.New("table name is required")
	}
	if opts.BatchWriteSize > MaxBatchWriteSize {
		return nil, fmt.Errorf("batch write size %d exceeds the store limit of %d", opts.BatchWriteSize, MaxBatchWriteSize)
	}
	if opts.BatchGetSize > MaxBatchGetSize {
		return nil, fmt.Errorf("batch get size %d exceeds the store limit of %d", opts.BatchGetSize, MaxBatchGetSize)
	}
	if opts.BatchWriteSize <= 0 {
		opts.BatchWriteSize = MaxBatchWriteSize
	}
	if opts.BatchGetSize <= 0 {
		opts.BatchGetSize = MaxBatchGetSize
	}
	if opts.IndexAName == "" {
		opts.IndexAName = "GSI1"
	}
	if opts.IndexBName == "" {
		opts.IndexBName = "GSI2"
	}
	if opts.Clock == nil {
		opts.Clock = utils.SystemClock
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	e := &Engine{
		client:    client,
		tableName: opts.TableName,
		indexNames: map[keys.Index]string{
			keys.IndexA: opts.IndexAName,
			keys.IndexB: opts.IndexBName,
		},
		batchWriteSize: opts.BatchWriteSize,
		batchGetSize:   opts.BatchGetSize,
		retry:          opts.Retry.withDefaults(),
		now:            opts.Clock,
		newID:          opts.NewID,
		logger:         opts.Logger.Named("storage"),
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
	}
	if opts.CircuitBreaker {
		e.breaker = newBreaker("dynamodb:"+opts.TableName, e.logger)
	}
	return e, nil
}

// TableName returns the backing table.
func (e *Engine) TableName() string { return e.tableName }

// BatchWriteSize returns the configured write chunk ceiling.
func (e *Engine) BatchWriteSize() int { return e.batchWriteSize }

// Now returns the engine clock reading in the stored timestamp format.
func (e *Engine) Now() string { return utils.FormatISO(e.now()) }

// ============================================================================
// SINGLE ITEM OPERATIONS
// ============================================================================

// Create inserts a new record. It assigns an id and createdAt when absent,
// stamps updatedAt and fails with AlreadyExists if the primary key is taken.
// A retried put whose earlier attempt landed but lost its response finds
// its own item under the key; that is reported as success, not a conflict.
func (e *Engine) Create(ctx context.Context, record interface{}) (StoredRecord, error) {
	item, err := e.prepareItem(record)
	if err != nil {
		return StoredRecord{}, err
	}
	pk, sk := stringAttr(item, AttrPK), stringAttr(item, AttrSK)

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name(AttrPK))).
		Build()
	if err != nil {
		return StoredRecord{}, apperrors.NewInternalError("failed to build create condition").WithCause(err)
	}

	attempts := 0
	err = e.call(ctx, "PutItem", func(ctx context.Context) error {
		attempts++
		_, err := e.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                           aws.String(e.tableName),
			Item:                                item,
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		})
		return err
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if attempts > 1 && sameWrite(item, ccf.Item) {
				e.logger.Warn("Create retry found its own earlier write",
					zap.String("pk", pk),
					zap.String("sk", sk),
					zap.Int("attempts", attempts),
				)
				return newStoredRecord(item)
			}
			e.logger.Debug("Create rejected, key already exists",
				zap.String("pk", pk),
				zap.String("sk", sk),
			)
			return StoredRecord{}, apperrors.NewAlreadyExistsError(pk, sk)
		}
		return StoredRecord{}, e.translate("PutItem", err)
	}

	e.logger.Debug("Record created",
		zap.String("pk", pk),
		zap.String("sk", sk),
		zap.String("entityType", stringAttr(item, AttrEntityType)),
	)
	return newStoredRecord(item)
}

// Put writes a record unconditionally, replacing any record under the same
// key. createdAt is kept when the caller supplies it.
func (e *Engine) Put(ctx context.Context, record interface{}) (StoredRecord, error) {
	item, err := e.prepareItem(record)
	if err != nil {
		return StoredRecord{}, err
	}

	err = e.call(ctx, "PutItem", func(ctx context.Context) error {
		_, err := e.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(e.tableName),
			Item:      item,
		})
		return err
	})
	if err != nil {
		return StoredRecord{}, e.translate("PutItem", err)
	}
	return newStoredRecord(item)
}

// Get reads one record with a strongly consistent read.
func (e *Engine) Get(ctx context.Context, pk, sk string) (StoredRecord, error) {
	var out *dynamodb.GetItemOutput
	err := e.call(ctx, "GetItem", func(ctx context.Context) error {
		var err error
		out, err = e.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(e.tableName),
			Key:            keyAttributes(keys.Pair{PK: pk, SK: sk}),
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return StoredRecord{}, e.translate("GetItem", err)
	}
	if out == nil || len(out.Item) == 0 {
		return StoredRecord{}, apperrors.NewNotFoundError("record", pk, sk)
	}
	return newStoredRecord(out.Item)
}

// UpdateOption adjusts a single Update call.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	guard       *expression.ConditionBuilder
	onGuardFail func(current StoredRecord) error
	upsert      bool
}

// WithGuard adds a condition that must hold on the stored record. When the
// record exists but the guard fails, onFail builds the returned error.
func WithGuard(cond expression.ConditionBuilder, onFail func(current StoredRecord) error) UpdateOption {
	return func(o *updateOptions) {
		o.guard = &cond
		o.onGuardFail = onFail
	}
}

// WithUpsert lets the update create the record when it is missing. Used
// only with native atomic operations such as Add. The engine seeds id and
// createdAt; callers seed EntityType and index keys with SetIfNotExists.
func WithUpsert() UpdateOption {
	return func(o *updateOptions) { o.upsert = true }
}

// Update merges the attributes in set into an existing record and refreshes
// updatedAt. Index keys are not recomputed here; callers include them in set.
func (e *Engine) Update(ctx context.Context, pk, sk string, set *UpdateSet, opts ...UpdateOption) (StoredRecord, error) {
	if set == nil {
		set = NewUpdate()
	}
	if err := set.validate(); err != nil {
		return StoredRecord{}, err
	}
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.upsert {
		if !set.Has(AttrID) {
			set.SetIfNotExists(AttrID, e.newID())
		}
		if !set.Has(AttrCreatedAt) {
			set.SetIfNotExists(AttrCreatedAt, e.Now())
		}
	}

	builder := expression.NewBuilder().WithUpdate(set.builder(e.Now()))
	var cond *expression.ConditionBuilder
	if !o.upsert {
		c := expression.AttributeExists(expression.Name(AttrPK))
		cond = &c
	}
	if o.guard != nil {
		if cond == nil {
			cond = o.guard
		} else {
			c := cond.And(*o.guard)
			cond = &c
		}
	}
	if cond != nil {
		builder = builder.WithCondition(*cond)
	}
	expr, err := builder.Build()
	if err != nil {
		return StoredRecord{}, apperrors.NewInternalError("failed to build update expression").WithCause(err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                           aws.String(e.tableName),
		Key:                                 keyAttributes(keys.Pair{PK: pk, SK: sk}),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	var out *dynamodb.UpdateItemOutput
	err = e.call(ctx, "UpdateItem", func(ctx context.Context) error {
		var err error
		out, err = e.client.UpdateItem(ctx, input)
		return err
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return StoredRecord{}, apperrors.NewNotFoundError("record", pk, sk)
			}
			if o.onGuardFail != nil {
				current, decodeErr := newStoredRecord(ccf.Item)
				if decodeErr != nil {
					return StoredRecord{}, decodeErr
				}
				return StoredRecord{}, o.onGuardFail(current)
			}
			return StoredRecord{}, apperrors.NewValidationError(fmt.Sprintf("update condition failed for %s/%s", pk, sk))
		}
		return StoredRecord{}, e.translate("UpdateItem", err)
	}

	e.logger.Debug("Record updated",
		zap.String("pk", pk),
		zap.String("sk", sk),
		zap.Strings("attributes", set.Names()),
	)
	return newStoredRecord(out.Attributes)
}

// Delete removes a record. Deleting a missing key is not an error.
func (e *Engine) Delete(ctx context.Context, pk, sk string) error {
	err := e.call(ctx, "DeleteItem", func(ctx context.Context) error {
		_, err := e.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(e.tableName),
			Key:       keyAttributes(keys.Pair{PK: pk, SK: sk}),
		})
		return err
	})
	if err != nil {
		return e.translate("DeleteItem", err)
	}
	e.logger.Debug("Record deleted", zap.String("pk", pk), zap.String("sk", sk))
	return nil
}

// ============================================================================
// QUERY OPERATIONS
// ============================================================================

// SortCondition restricts the sort key of a query.
type SortCondition struct {
	value  string
	prefix bool
}

// AnySort matches the whole partition.
var AnySort = SortCondition{}

// SortEquals matches one exact sort key.
func SortEquals(v string) SortCondition { return SortCondition{value: v} }

// SortBeginsWith matches sort keys with the given prefix.
func SortBeginsWith(v string) SortCondition { return SortCondition{value: v, prefix: true} }

// QueryByPrimaryKeyPrefix returns the records of one partition whose sort
// key starts with skPrefix, in ascending sort key order. limit <= 0 means
// every matching record.
func (e *Engine) QueryByPrimaryKeyPrefix(ctx context.Context, pk, skPrefix string, limit int32) ([]StoredRecord, error) {
	sort := AnySort
	if skPrefix != "" {
		sort = SortBeginsWith(skPrefix)
	}
	return e.query(ctx, "", AttrPK, AttrSK, pk, sort, limit)
}

// QueryByIndex queries an alternate index. Results follow the index sort
// key, which is not always the domain order.
func (e *Engine) QueryByIndex(ctx context.Context, idx keys.Index, pk string, sort SortCondition, limit int32) ([]StoredRecord, error) {
	name, ok := e.indexNames[idx]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown index %q", idx))
	}
	pkName, skName := indexAttributes(idx)
	return e.query(ctx, name, pkName, skName, pk, sort, limit)
}

func (e *Engine) query(ctx context.Context, indexName, pkName, skName, pk string, sort SortCondition, limit int32) ([]StoredRecord, error) {
	if pk == "" {
		return nil, apperrors.NewInvalidKeyError("query", "partition key")
	}

	keyCond := expression.Key(pkName).Equal(expression.Value(pk))
	if sort.value != "" {
		if sort.prefix {
			keyCond = keyCond.And(expression.Key(skName).BeginsWith(sort.value))
		} else {
			keyCond = keyCond.And(expression.Key(skName).Equal(expression.Value(sort.value)))
		}
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build key condition").WithCause(err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(e.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}
	if indexName != "" {
		input.IndexName = aws.String(indexName)
	}

	var items []map[string]types.AttributeValue
	for {
		if limit > 0 {
			input.Limit = aws.Int32(limit - int32(len(items)))
		}
		var out *dynamodb.QueryOutput
		err := e.call(ctx, "Query", func(ctx context.Context) error {
			var err error
			out, err = e.client.Query(ctx, input)
			return err
		})
		if err != nil {
			return nil, e.translate("Query", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && int32(len(items)) >= limit) {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	e.logger.Debug("Query completed",
		zap.String("index", indexName),
		zap.String("pk", pk),
		zap.Int("count", len(items)),
	)
	return newStoredRecords(items)
}

// ScanByEntityType walks the whole table and keeps records of one type.
// This is the slow path for access patterns no index covers.
func (e *Engine) ScanByEntityType(ctx context.Context, entityType keys.EntityType) ([]StoredRecord, error) {
	filter := expression.Name(AttrEntityType).Equal(expression.Value(string(entityType)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build scan filter").WithCause(err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(e.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	var items []map[string]types.AttributeValue
	pages := 0
	for {
		var out *dynamodb.ScanOutput
		err := e.call(ctx, "Scan", func(ctx context.Context) error {
			var err error
			out, err = e.client.Scan(ctx, input)
			return err
		})
		if err != nil {
			return nil, e.translate("Scan", err)
		}
		pages++
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	e.logger.Info("Full table scan completed",
		zap.String("entityType", string(entityType)),
		zap.Int("pages", pages),
		zap.Int("count", len(items)),
	)
	return newStoredRecords(items)
}

// ============================================================================
// BATCH OPERATIONS
// ============================================================================

// BatchGet reads many records. Missing keys are omitted; results follow the
// order of the first occurrence of each key.
func (e *Engine) BatchGet(ctx context.Context, pairs []keys.Pair) ([]StoredRecord, error) {
	unique := make([]keys.Pair, 0, len(pairs))
	seen := make(map[keys.Pair]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	var (
		mu    sync.Mutex
		found = make(map[keys.Pair]map[string]types.AttributeValue, len(unique))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(unique); start += e.batchGetSize {
		end := start + e.batchGetSize
		if end > len(unique) {
			end = len(unique)
		}
		chunk := unique[start:end]
		g.Go(func() error {
			items, err := e.batchGetChunk(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				found[keys.Pair{PK: stringAttr(item, AttrPK), SK: stringAttr(item, AttrSK)}] = item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ordered := make([]map[string]types.AttributeValue, 0, len(found))
	for _, p := range unique {
		if item, ok := found[p]; ok {
			ordered = append(ordered, item)
		}
	}
	return newStoredRecords(ordered)
}

func (e *Engine) batchGetChunk(ctx context.Context, chunk []keys.Pair) ([]map[string]types.AttributeValue, error) {
	requestKeys := make([]map[string]types.AttributeValue, 0, len(chunk))
	for _, p := range chunk {
		requestKeys = append(requestKeys, keyAttributes(p))
	}
	pending := map[string]types.KeysAndAttributes{
		e.tableName: {Keys: requestKeys, ConsistentRead: aws.Bool(true)},
	}

	var items []map[string]types.AttributeValue
	for attempt := 0; ; attempt++ {
		var out *dynamodb.BatchGetItemOutput
		err := e.call(ctx, "BatchGetItem", func(ctx context.Context) error {
			var err error
			out, err = e.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: pending})
			return err
		})
		if err != nil {
			return nil, e.translate("BatchGetItem", err)
		}
		items = append(items, out.Responses[e.tableName]...)

		unprocessed, ok := out.UnprocessedKeys[e.tableName]
		if !ok || len(unprocessed.Keys) == 0 {
			return items, nil
		}
		if attempt+1 >= e.retry.MaxAttempts {
			return nil, apperrors.NewStorageUnavailableError("BatchGetItem", attempt+1,
				fmt.Errorf("%d keys left unprocessed", len(unprocessed.Keys)))
		}
		e.logger.Warn("Retrying unprocessed batch keys",
			zap.Int("unprocessed", len(unprocessed.Keys)),
			zap.Int("attempt", attempt+1),
		)
		if err := sleep(ctx, e.retry.delay(attempt)); err != nil {
			return nil, apperrors.NewStorageUnavailableError("BatchGetItem", attempt+1, err)
		}
		pending = map[string]types.KeysAndAttributes{e.tableName: unprocessed}
	}
}

// BatchWrite puts and deletes records in chunks of at most BatchWriteSize,
// one underlying batch call per chunk. Chunks are not atomic with each
// other: when a chunk fails, earlier chunks stay committed and the error
// reports how many were.
func (e *Engine) BatchWrite(ctx context.Context, puts []interface{}, deletes []keys.Pair) error {
	requests := make([]types.WriteRequest, 0, len(puts)+len(deletes))
	for _, record := range puts {
		item, err := e.prepareItem(record)
		if err != nil {
			return err
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, p := range deletes {
		if p.PK == "" || p.SK == "" {
			return apperrors.NewInvalidKeyError("delete", "PK and SK")
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyAttributes(p)}})
	}
	if len(requests) == 0 {
		return nil
	}

	chunks := 0
	for start := 0; start < len(requests); start += e.batchWriteSize {
		end := start + e.batchWriteSize
		if end > len(requests) {
			end = len(requests)
		}
		if err := e.batchWriteChunk(ctx, requests[start:end]); err != nil {
			e.logger.Error("Batch write stopped part way",
				zap.Int("committedChunks", chunks),
				zap.Int("committedItems", start),
				zap.Int("totalItems", len(requests)),
				zap.Error(err),
			)
			if appErr := apperrors.GetAppError(err); appErr != nil {
				appErr.WithDetail("committedChunks", chunks).WithDetail("committedItems", start)
			}
			return err
		}
		chunks++
	}

	e.logger.Debug("Batch write completed",
		zap.Int("items", len(requests)),
		zap.Int("chunks", chunks),
	)
	return nil
}

func (e *Engine) batchWriteChunk(ctx context.Context, chunk []types.WriteRequest) error {
	pending := chunk
	for attempt := 0; ; attempt++ {
		var out *dynamodb.BatchWriteItemOutput
		err := e.call(ctx, "BatchWriteItem", func(ctx context.Context) error {
			var err error
			out, err = e.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{e.tableName: pending},
			})
			return err
		})
		if err != nil {
			return e.translate("BatchWriteItem", err)
		}

		unprocessed := out.UnprocessedItems[e.tableName]
		if len(unprocessed) == 0 {
			return nil
		}
		if attempt+1 >= e.retry.MaxAttempts {
			return apperrors.NewStorageUnavailableError("BatchWriteItem", attempt+1,
				fmt.Errorf("%d items left unprocessed", len(unprocessed)))
		}
		e.logger.Warn("Retrying unprocessed batch items",
			zap.Int("unprocessed", len(unprocessed)),
			zap.Int("attempt", attempt+1),
		)
		if err := sleep(ctx, e.retry.delay(attempt)); err != nil {
			return apperrors.NewStorageUnavailableError("BatchWriteItem", attempt+1, err)
		}
		pending = unprocessed
	}
}

// HealthCheck verifies the table is reachable and active.
func (e *Engine) HealthCheck(ctx context.Context) error {
	var out *dynamodb.DescribeTableOutput
	err := e.call(ctx, "DescribeTable", func(ctx context.Context) error {
		var err error
		out, err = e.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(e.tableName)})
		return err
	})
	if err != nil {
		return e.translate("DescribeTable", err)
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return apperrors.NewStorageUnavailableError("DescribeTable", 1, fmt.Errorf("table %s is not active", e.tableName))
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

// prepareItem marshals a record and applies engine-owned fields.
func (e *Engine) prepareItem(record interface{}) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode record").WithCause(err)
	}
	entityType := stringAttr(item, AttrEntityType)
	if entityType == "" {
		return nil, apperrors.NewInvalidKeyError("record", AttrEntityType)
	}
	if stringAttr(item, AttrPK) == "" {
		return nil, apperrors.NewInvalidKeyError(entityType, AttrPK)
	}
	if stringAttr(item, AttrSK) == "" {
		return nil, apperrors.NewInvalidKeyError(entityType, AttrSK)
	}

	if stringAttr(item, AttrID) == "" {
		item[AttrID] = &types.AttributeValueMemberS{Value: e.newID()}
	}
	now := &types.AttributeValueMemberS{Value: e.Now()}
	if stringAttr(item, AttrCreatedAt) == "" {
		item[AttrCreatedAt] = now
	}
	item[AttrUpdatedAt] = now
	return item, nil
}

// call runs one store request with tracing, metrics, retry and the breaker.
func (e *Engine) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	run := func(ctx context.Context) error { return e.withRetry(ctx, op, fn) }

	var err error
	if e.tracer != nil {
		err = e.tracer.TraceFunction(ctx, "dynamodb."+op, run)
	} else {
		err = run(ctx)
	}
	if e.metrics != nil {
		e.metrics.RecordOperation(ctx, op, time.Since(start), err)
	}
	return err
}

func (e *Engine) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < e.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.retry.delay(attempt - 1)
			e.logger.Warn("Retrying storage operation",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if e.metrics != nil {
				e.metrics.RecordRetry(ctx, op, attempt+1)
			}
			if err := sleep(ctx, delay); err != nil {
				return apperrors.NewStorageUnavailableError(op, attempt, err)
			}
		}

		err := e.execute(ctx, fn)
		if err == nil {
			return nil
		}
		if isBreakerRejection(err) {
			return apperrors.NewStorageUnavailableError(op, attempt+1, err)
		}
		if !IsTransientError(err) {
			return err
		}
		lastErr = err
	}

	e.logger.Error("Storage operation failed after retries",
		zap.String("operation", op),
		zap.Int("attempts", e.retry.MaxAttempts),
		zap.Error(lastErr),
	)
	return apperrors.NewStorageUnavailableError(op, e.retry.MaxAttempts, lastErr)
}

func (e *Engine) execute(ctx context.Context, fn func(context.Context) error) error {
	if e.breaker == nil {
		return fn(ctx)
	}
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}

// translate maps a non-conditional failure onto the error taxonomy.
func (e *Engine) translate(op string, err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStorageUnavailableError(op, 1, err)
	}
	var missing *types.ResourceNotFoundException
	if errors.As(err, &missing) {
		return apperrors.NewStorageUnavailableError(op, 1, err)
	}
	return apperrors.NewInternalError(fmt.Sprintf("storage operation '%s' failed", op)).WithCause(err)
}

// sameWrite reports whether stored is the item this call put. updatedAt is
// stamped per call, so a foreign writer never matches all three attributes.
func sameWrite(item, stored map[string]types.AttributeValue) bool {
	if len(stored) == 0 {
		return false
	}
	for _, attr := range []string{AttrID, AttrCreatedAt, AttrUpdatedAt} {
		if stringAttr(item, attr) != stringAttr(stored, attr) {
			return false
		}
	}
	return true
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
