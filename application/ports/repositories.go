package ports

import (
	"context"
	"time"

	"github.com/legrandjeremy/maxence-rag/domain/events"
	"github.com/legrandjeremy/maxence-rag/domain/keys"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
)

// Store is the single-table storage contract every entity service is built
// on. *dynamodb.Engine is the production implementation.
type Store interface {
	// Create inserts a record and fails with AlreadyExists if its key is taken
	Create(ctx context.Context, record interface{}) (storage.StoredRecord, error)

	// Put writes a record unconditionally
	Put(ctx context.Context, record interface{}) (storage.StoredRecord, error)

	// Get reads one record, NotFound if missing
	Get(ctx context.Context, pk, sk string) (storage.StoredRecord, error)

	// Update merges a partial update into an existing record
	Update(ctx context.Context, pk, sk string, set *storage.UpdateSet, opts ...storage.UpdateOption) (storage.StoredRecord, error)

	// Delete removes a record; deleting a missing key succeeds
	Delete(ctx context.Context, pk, sk string) error

	// QueryByPrimaryKeyPrefix lists a partition, optionally narrowed by sort key prefix
	QueryByPrimaryKeyPrefix(ctx context.Context, pk, skPrefix string, limit int32) ([]storage.StoredRecord, error)

	// QueryByIndex lists an alternate index partition in sort key order
	QueryByIndex(ctx context.Context, idx keys.Index, pk string, sort storage.SortCondition, limit int32) ([]storage.StoredRecord, error)

	// ScanByEntityType reads every record with the given tag
	ScanByEntityType(ctx context.Context, entityType keys.EntityType) ([]storage.StoredRecord, error)

	// BatchGet reads many keys; missing keys are omitted
	BatchGet(ctx context.Context, pairs []keys.Pair) ([]storage.StoredRecord, error)

	// BatchWrite puts and deletes in chunks, not atomically across chunks
	BatchWrite(ctx context.Context, puts []interface{}, deletes []keys.Pair) error

	// Now returns the engine's current timestamp string
	Now() string
}

// Locker grants a cross-process lease on a named resource.
type Locker interface {
	TryAcquire(ctx context.Context, resource, owner string, ttl, timeout time.Duration) (*storage.Lock, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Metrics records business counters next to the engine's own metrics.
type Metrics interface {
	IncrementCounter(ctx context.Context, metric string, dimensions map[string]string)
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, events.DomainEvent) error        { return nil }
func (NopPublisher) PublishBatch(context.Context, []events.DomainEvent) error { return nil }

// NopMetrics discards metrics.
type NopMetrics struct{}

func (NopMetrics) IncrementCounter(context.Context, string, map[string]string) {}

var _ Store = (*storage.Engine)(nil)
