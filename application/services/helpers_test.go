package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/legrandjeremy/maxence-rag/domain/events"
	storage "github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb"
	"github.com/legrandjeremy/maxence-rag/infrastructure/persistence/dynamodb/ddbtest"

	"github.com/stretchr/testify/require"
)

const testTable = "test-player-management"

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

func newStore(t *testing.T) (*storage.Engine, *ddbtest.MemoryClient) {
	t.Helper()
	client := ddbtest.NewMemoryClient(testTable)
	clock := &tickingClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	seq := 0
	engine, err := storage.NewEngine(client, storage.Options{
		TableName: testTable,
		Retry:     storage.RetryPolicy{MaxAttempts: 2},
		Clock:     clock.Now,
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("gen-%d", seq)
		},
	})
	require.NoError(t, err)
	return engine, client
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, es []events.DomainEvent) error {
	for _, e := range es {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetEventType()
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *recordingMetrics) IncrementCounter(_ context.Context, metric string, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[metric]++
}

func (m *recordingMetrics) count(metric string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[metric]
}

func ptr[T any](v T) *T { return &v }
