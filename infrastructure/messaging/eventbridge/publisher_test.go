package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/legrandjeremy/maxence-rag/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	calls  []*eventbridge.PutEventsInput
	failOn int
	err    error
}

func (f *fakeAPI) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	out := &eventbridge.PutEventsOutput{Entries: make([]types.PutEventsResultEntry, len(in.Entries))}
	if f.failOn > 0 && len(f.calls) == f.failOn {
		out.FailedEntryCount = 1
		out.Entries[0].ErrorCode = aws.String("InternalFailure")
	}
	return out, nil
}

func guardEvents(n int) []events.DomainEvent {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewCounterGuardFailed("k1", "portrait", "p", ts)
	}
	return out
}

func TestPublishBatchChunksByTen(t *testing.T) {
	api := &fakeAPI{}
	p := NewPublisher(api, "bus", nil)

	require.NoError(t, p.PublishBatch(context.Background(), guardEvents(23)))
	require.Len(t, api.calls, 3)
	assert.Len(t, api.calls[0].Entries, 10)
	assert.Len(t, api.calls[2].Entries, 3)

	entry := api.calls[0].Entries[0]
	assert.Equal(t, "bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeCounterGuardFailed, aws.ToString(entry.DetailType))

	var detail map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "portrait", detail["category"])
}

func TestPublishReportsFailedEntries(t *testing.T) {
	api := &fakeAPI{failOn: 2}
	p := NewPublisher(api, "bus", nil)

	err := p.PublishBatch(context.Background(), guardEvents(25))
	assert.Error(t, err)
	assert.Len(t, api.calls, 2, "stops at the failing chunk")
}

func TestPublishTransportError(t *testing.T) {
	api := &fakeAPI{err: errors.New("network down")}
	p := NewPublisher(api, "bus", nil)

	assert.Error(t, p.Publish(context.Background(), guardEvents(1)[0]))
	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}
