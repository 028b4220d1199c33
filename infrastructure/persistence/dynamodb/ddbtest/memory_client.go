// Package ddbtest provides an in-memory stand-in for the DynamoDB API used
// by the storage engine tests. It evaluates the condition, key condition,
// filter and update expressions emitted by the SDK expression builder.
package ddbtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// Operation names accepted by Calls, FailNext and BeforeOp hooks.
const (
	OpGetItem        = "GetItem"
	OpPutItem        = "PutItem"
	OpUpdateItem     = "UpdateItem"
	OpDeleteItem     = "DeleteItem"
	OpQuery          = "Query"
	OpScan           = "Scan"
	OpBatchGetItem   = "BatchGetItem"
	OpBatchWriteItem = "BatchWriteItem"
	OpDescribeTable  = "DescribeTable"
)

type keyAttrs struct {
	pk string
	sk string
}

type itemKey struct {
	pk string
	sk string
}

// MemoryClient is a single-table in-memory DynamoDB. It is safe for
// concurrent use.
type MemoryClient struct {
	mu      sync.Mutex
	table   string
	indexes map[string]keyAttrs
	items   map[itemKey]item

	calls             map[string]int
	failures          map[string][]error
	writeSizes        []int
	unprocessedWrites int
	unprocessedGets   int
	pageSize          int
	beforeOp          func(op string, input interface{})
}

// NewMemoryClient creates an empty table with GSI1 and GSI2 projected on
// GSI1PK/GSI1SK and GSI2PK/GSI2SK.
func NewMemoryClient(table string) *MemoryClient {
	return &MemoryClient{
		table: table,
		indexes: map[string]keyAttrs{
			"":     {pk: "PK", sk: "SK"},
			"GSI1": {pk: "GSI1PK", sk: "GSI1SK"},
			"GSI2": {pk: "GSI2PK", sk: "GSI2SK"},
		},
		items:    make(map[itemKey]item),
		calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
}

// test controls

// Calls returns how many times op was invoked, failed calls included.
func (c *MemoryClient) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// ResetCalls clears the call counters and recorded batch sizes.
func (c *MemoryClient) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = make(map[string]int)
	c.writeSizes = nil
}

// FailNext makes the next len(errs) calls of op return errs in order.
func (c *MemoryClient) FailNext(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], errs...)
}

// BeforeOp installs a hook called before every operation, outside the lock.
func (c *MemoryClient) BeforeOp(fn func(op string, input interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeOp = fn
}

// SetPageSize caps the items returned per Query or Scan page.
func (c *MemoryClient) SetPageSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageSize = n
}

// LeaveUnprocessedWrites makes the next batch write report its last n
// requests as unprocessed.
func (c *MemoryClient) LeaveUnprocessedWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unprocessedWrites = n
}

// LeaveUnprocessedGets makes the next batch get report its last n keys as
// unprocessed.
func (c *MemoryClient) LeaveUnprocessedGets(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unprocessedGets = n
}

// BatchWriteSizes returns the request count of every batch write call.
func (c *MemoryClient) BatchWriteSizes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.writeSizes...)
}

// Len returns the number of stored items.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Raw returns a copy of the stored item under pk/sk.
func (c *MemoryClient) Raw(pk, sk string) (map[string]types.AttributeValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored, ok := c.items[itemKey{pk, sk}]
	return copyItem(stored), ok
}

// Store writes an item directly, bypassing conditions and counters.
func (c *MemoryClient) Store(raw map[string]types.AttributeValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, err := keyOf(raw)
	if err != nil {
		return err
	}
	c.items[key] = copyItem(raw)
	return nil
}

// ThrottlingError returns a retryable throughput error.
func ThrottlingError() error {
	return &types.ProvisionedThroughputExceededException{Message: aws.String("rate exceeded")}
}

// ValidationError returns a non-retryable request error.
func ValidationError(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

// dynamodb API

func (c *MemoryClient) begin(op, table string, input interface{}) error {
	c.mu.Lock()
	hook := c.beforeOp
	c.mu.Unlock()
	if hook != nil {
		hook(op, input)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	if queue := c.failures[op]; len(queue) > 0 {
		c.failures[op] = queue[1:]
		return queue[0]
	}
	if table != "" && table != c.table {
		return &types.ResourceNotFoundException{Message: aws.String("requested resource not found: " + table)}
	}
	return nil
}

func (c *MemoryClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := c.begin(OpGetItem, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	key, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: copyItem(c.items[key])}, nil
}

func (c *MemoryClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := c.begin(OpPutItem, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	key, err := keyOf(in.Item)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues,
		old, in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld); err != nil {
		return nil, err
	}
	c.items[key] = copyItem(in.Item)

	out := &dynamodb.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (c *MemoryClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if err := c.begin(OpUpdateItem, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	key, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues,
		old, in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld); err != nil {
		return nil, err
	}

	base := copyItem(old)
	if base == nil {
		base = copyItem(in.Key)
	}
	cur := copyItem(base)
	if in.UpdateExpression != nil {
		actions, touched, err := compileUpdate(*in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, ValidationError(err.Error())
		}
		for _, name := range touched {
			if name == "PK" || name == "SK" {
				return nil, ValidationError("cannot update attribute " + name + ", this attribute is part of the key")
			}
		}
		for _, act := range actions {
			if err := act(base, cur); err != nil {
				return nil, ValidationError(err.Error())
			}
		}
	}
	c.items[key] = cur

	out := &dynamodb.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = copyItem(cur)
	case types.ReturnValueAllOld:
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (c *MemoryClient) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := c.begin(OpDeleteItem, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	key, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.items[key]
	if err := checkCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues,
		old, in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld); err != nil {
		return nil, err
	}
	delete(c.items, key)

	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (c *MemoryClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := c.begin(OpQuery, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	attrs, ok := c.indexes[aws.ToString(in.IndexName)]
	if !ok {
		return nil, ValidationError("the table does not have the specified index: " + aws.ToString(in.IndexName))
	}
	if in.KeyConditionExpression == nil {
		return nil, ValidationError("key condition expression is required")
	}
	keyCond, err := compileCondition(*in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, ValidationError(err.Error())
	}
	filter, err := optionalCondition(in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []item
	for _, stored := range c.items {
		if _, ok := stored[attrs.pk]; !ok {
			continue
		}
		if _, ok := stored[attrs.sk]; !ok {
			continue
		}
		if keyCond(stored) {
			matched = append(matched, stored)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := sortValue(matched[i], attrs.sk), sortValue(matched[j], attrs.sk)
		if a != b {
			return a < b
		}
		return primaryString(matched[i]) < primaryString(matched[j])
	})
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	page, last := c.paginate(matched, in.ExclusiveStartKey, in.Limit, attrs)
	out := &dynamodb.QueryOutput{LastEvaluatedKey: last}
	for _, stored := range page {
		if filter == nil || filter(stored) {
			out.Items = append(out.Items, copyItem(stored))
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(len(page))
	return out, nil
}

func (c *MemoryClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if err := c.begin(OpScan, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	filter, err := optionalCondition(in.FilterExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	all := make([]item, 0, len(c.items))
	for _, stored := range c.items {
		all = append(all, stored)
	}
	sort.Slice(all, func(i, j int) bool { return primaryString(all[i]) < primaryString(all[j]) })

	page, last := c.paginate(all, in.ExclusiveStartKey, in.Limit, c.indexes[""])
	out := &dynamodb.ScanOutput{LastEvaluatedKey: last}
	for _, stored := range page {
		if filter == nil || filter(stored) {
			out.Items = append(out.Items, copyItem(stored))
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(len(page))
	return out, nil
}

func (c *MemoryClient) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	if err := c.begin(OpBatchGetItem, "", in); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := &dynamodb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for table, req := range in.RequestItems {
		if table != c.table {
			return nil, &types.ResourceNotFoundException{Message: aws.String("requested resource not found: " + table)}
		}
		if len(req.Keys) > 100 {
			return nil, ValidationError("too many items requested for the BatchGetItem call")
		}
		wanted := req.Keys
		if n := c.unprocessedGets; n > 0 {
			if n > len(wanted) {
				n = len(wanted)
			}
			out.UnprocessedKeys[table] = types.KeysAndAttributes{Keys: wanted[len(wanted)-n:], ConsistentRead: req.ConsistentRead}
			wanted = wanted[:len(wanted)-n]
			c.unprocessedGets = 0
		}
		for _, k := range wanted {
			key, err := keyOf(k)
			if err != nil {
				return nil, err
			}
			if stored, ok := c.items[key]; ok {
				out.Responses[table] = append(out.Responses[table], copyItem(stored))
			}
		}
	}
	return out, nil
}

func (c *MemoryClient) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	if err := c.begin(OpBatchWriteItem, "", in); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		if table != c.table {
			return nil, &types.ResourceNotFoundException{Message: aws.String("requested resource not found: " + table)}
		}
		if len(reqs) > 25 {
			return nil, ValidationError("too many items requested for the BatchWriteItem call")
		}
		c.writeSizes = append(c.writeSizes, len(reqs))
		if n := c.unprocessedWrites; n > 0 {
			if n > len(reqs) {
				n = len(reqs)
			}
			out.UnprocessedItems[table] = reqs[len(reqs)-n:]
			reqs = reqs[:len(reqs)-n]
			c.unprocessedWrites = 0
		}
		for _, req := range reqs {
			switch {
			case req.PutRequest != nil:
				key, err := keyOf(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				c.items[key] = copyItem(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				key, err := keyOf(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(c.items, key)
			}
		}
	}
	return out, nil
}

func (c *MemoryClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if err := c.begin(OpDescribeTable, aws.ToString(in.TableName), in); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   aws.String(c.table),
		TableStatus: types.TableStatusActive,
		ItemCount:   aws.Int64(int64(len(c.items))),
	}}, nil
}

// helpers

// paginate must be called with c.mu held.
func (c *MemoryClient) paginate(sorted []item, start map[string]types.AttributeValue, limit *int32, attrs keyAttrs) ([]item, map[string]types.AttributeValue) {
	from := 0
	if len(start) > 0 {
		startKey, err := keyOf(start)
		if err == nil {
			for i, stored := range sorted {
				if k, _ := keyOf(stored); k == startKey {
					from = i + 1
					break
				}
			}
		}
	}
	size := len(sorted) - from
	if limit != nil && int(*limit) < size {
		size = int(*limit)
	}
	if c.pageSize > 0 && c.pageSize < size {
		size = c.pageSize
	}
	page := sorted[from : from+size]
	if from+size >= len(sorted) || size == 0 {
		return page, nil
	}

	lastItem := page[len(page)-1]
	last := map[string]types.AttributeValue{"PK": lastItem["PK"], "SK": lastItem["SK"]}
	if v, ok := lastItem[attrs.pk]; ok {
		last[attrs.pk] = v
	}
	if v, ok := lastItem[attrs.sk]; ok {
		last[attrs.sk] = v
	}
	return page, last
}

func checkCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, old item, returnOld bool) error {
	if expr == nil || *expr == "" {
		return nil
	}
	pred, err := compileCondition(*expr, names, values)
	if err != nil {
		return ValidationError(err.Error())
	}
	subject := old
	if subject == nil {
		subject = item{}
	}
	if pred(subject) {
		return nil
	}
	ccf := &types.ConditionalCheckFailedException{Message: aws.String("the conditional request failed")}
	if returnOld {
		ccf.Item = copyItem(old)
	}
	return ccf
}

func optionalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue) (predicate, error) {
	if expr == nil || *expr == "" {
		return nil, nil
	}
	pred, err := compileCondition(*expr, names, values)
	if err != nil {
		return nil, ValidationError(err.Error())
	}
	return pred, nil
}

func keyOf(attrs map[string]types.AttributeValue) (itemKey, error) {
	pk, okP := attrs["PK"].(*types.AttributeValueMemberS)
	sk, okS := attrs["SK"].(*types.AttributeValueMemberS)
	if !okP || !okS || pk.Value == "" || sk.Value == "" {
		return itemKey{}, ValidationError("one or more parameter values were invalid: missing the key PK or SK")
	}
	return itemKey{pk: pk.Value, sk: sk.Value}, nil
}

func sortValue(stored item, name string) string {
	switch v := stored[name].(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return fmt.Sprintf("%020s", v.Value)
	}
	return ""
}

func primaryString(stored item) string {
	k, _ := keyOf(stored)
	return k.pk + "\x00" + k.sk
}

func copyItem(src map[string]types.AttributeValue) map[string]types.AttributeValue {
	if src == nil {
		return nil
	}
	dst := make(map[string]types.AttributeValue, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
