package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"
	"github.com/legrandjeremy/maxence-rag/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another owner holds an unexpired lock.
var ErrLockHeld = errors.New("lock already held")

const lockSortKey = "LOCK"

// DistributedLock provides mutual exclusion between processes sharing the
// table, using conditional writes on a LOCK#<resource> record.
type DistributedLock struct {
	client    DynamoAPI
	tableName string
	now       utils.Clock
	logger    *zap.Logger
}

// lockRecord is the stored lock. ExpiresAt is compared lexically, so it is
// always written in the fixed-width ISO format.
type lockRecord struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	LockID     string `dynamodbav:"LockID"`
	Owner      string `dynamodbav:"Owner"`
	AcquiredAt string `dynamodbav:"AcquiredAt"`
	ExpiresAt  string `dynamodbav:"ExpiresAt"`
	TTL        int64  `dynamodbav:"TTL"`
}

// NewDistributedLock creates a lock manager on the given table.
func NewDistributedLock(client DynamoAPI, tableName string, clock utils.Clock, logger *zap.Logger) *DistributedLock {
	if clock == nil {
		clock = utils.SystemClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		now:       clock,
		logger:    logger.Named("lock"),
	}
}

func lockKey(resource string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: "LOCK#" + resource},
		AttrSK: &types.AttributeValueMemberS{Value: lockSortKey},
	}
}

// Acquire takes the lock for resource if it is free or expired.
func (dl *DistributedLock) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (*Lock, error) {
	now := dl.now()
	expiresAt := now.Add(ttl)
	rec := lockRecord{
		PK:         "LOCK#" + resource,
		SK:         lockSortKey,
		LockID:     uuid.NewString(),
		Owner:      owner,
		AcquiredAt: utils.FormatISO(now),
		ExpiresAt:  utils.FormatISO(expiresAt),
		TTL:        expiresAt.Unix(),
	}
	item := map[string]types.AttributeValue{
		AttrPK:       &types.AttributeValueMemberS{Value: rec.PK},
		AttrSK:       &types.AttributeValueMemberS{Value: rec.SK},
		"LockID":     &types.AttributeValueMemberS{Value: rec.LockID},
		"Owner":      &types.AttributeValueMemberS{Value: rec.Owner},
		"AcquiredAt": &types.AttributeValueMemberS{Value: rec.AcquiredAt},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: rec.ExpiresAt},
		"TTL":        &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)},
	}

	// Owner is a reserved word, so everything goes through placeholders.
	cond := expression.AttributeNotExists(expression.Name(AttrPK)).
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(utils.FormatISO(now))))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lock condition: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(dl.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Debug("Lock already held",
				zap.String("resource", resource),
				zap.String("owner", owner),
			)
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, resource)
		}
		return nil, apperrors.NewStorageUnavailableError("AcquireLock", 1, err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", resource),
		zap.String("lockID", rec.LockID),
		zap.String("owner", owner),
		zap.Duration("ttl", ttl),
	)
	return &Lock{
		manager:   dl,
		resource:  resource,
		lockID:    rec.LockID,
		owner:     owner,
		expiresAt: expiresAt,
	}, nil
}

// TryAcquire polls Acquire until it succeeds, ctx ends or timeout passes.
func (dl *DistributedLock) TryAcquire(ctx context.Context, resource, owner string, ttl, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	interval := 100 * time.Millisecond

	for {
		lock, err := dl.Acquire(ctx, resource, owner, ttl)
		if err == nil || !errors.Is(err, ErrLockHeld) {
			return lock, err
		}
		if !time.Now().Add(interval).Before(deadline) {
			return nil, fmt.Errorf("timeout acquiring lock for %s: %w", resource, err)
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
		if interval < time.Second {
			interval = time.Duration(float64(interval) * 1.5)
		}
	}
}

// Release deletes the lock if it is still held by lockID. A lock that has
// already expired and been taken over is left alone.
func (dl *DistributedLock) Release(ctx context.Context, resource, lockID, owner string) error {
	cond := expression.Name("LockID").Equal(expression.Value(lockID)).
		And(expression.Name("Owner").Equal(expression.Value(owner)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build release condition: %w", err)
	}

	_, err = dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(dl.tableName),
		Key:                       lockKey(resource),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			dl.logger.Warn("Lock already released or taken over",
				zap.String("resource", resource),
				zap.String("lockID", lockID),
				zap.String("owner", owner),
			)
			return nil
		}
		return apperrors.NewStorageUnavailableError("ReleaseLock", 1, err)
	}

	dl.logger.Debug("Lock released",
		zap.String("resource", resource),
		zap.String("lockID", lockID),
	)
	return nil
}

// Lock is an acquired lock.
type Lock struct {
	manager   *DistributedLock
	resource  string
	lockID    string
	owner     string
	expiresAt time.Time
}

// Release gives the lock back.
func (l *Lock) Release(ctx context.Context) error {
	return l.manager.Release(ctx, l.resource, l.lockID, l.owner)
}

// ID returns the lock identifier.
func (l *Lock) ID() string { return l.lockID }

// IsExpired reports whether the lease has run out.
func (l *Lock) IsExpired() bool {
	return !l.manager.now().Before(l.expiresAt)
}
