package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestRecordOperationSendsLatencyAndCount(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewMetrics("PlayerManagement", cw, nil)

	m.RecordOperation(context.Background(), "GetItem", 12*time.Millisecond, errors.New("boom"))

	require.Len(t, cw.inputs, 1)
	in := cw.inputs[0]
	assert.Equal(t, "PlayerManagement", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 2)
	assert.Equal(t, "StorageOperationLatency", aws.ToString(in.MetricData[0].MetricName))
	assert.Equal(t, 12.0, aws.ToFloat64(in.MetricData[0].Value))
	assert.Equal(t, "failure", aws.ToString(in.MetricData[1].Dimensions[1].Value))
}

func TestIncrementCounterOrdersDimensions(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewMetrics("ns", cw, nil)

	m.IncrementCounter(context.Background(), "CounterGuardFailed", map[string]string{"Category": "portrait", "Action": "delete"})

	dims := cw.inputs[0].MetricData[0].Dimensions
	require.Len(t, dims, 2)
	assert.Equal(t, "Action", aws.ToString(dims[0].Name))
	assert.Equal(t, "Category", aws.ToString(dims[1].Name))
}

func TestMetricsWithoutClientIsSilent(t *testing.T) {
	m := NewMetrics("ns", nil, nil)
	assert.NotPanics(t, func() {
		m.RecordRetry(context.Background(), "Query", 2)
	})
}

func TestMetricsSwallowTransportErrors(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewMetrics("ns", cw, nil)
	assert.NotPanics(t, func() {
		m.IncrementCounter(context.Background(), "X", nil)
	})
	assert.Len(t, cw.inputs, 1)
}

func TestTraceFunctionWithoutSegmentRunsPlain(t *testing.T) {
	tracer := NewTracer("player-management", true)
	called := false
	err := tracer.TraceFunction(context.Background(), "GetItem", func(context.Context) error {
		called = true
		return errors.New("inner")
	})
	assert.True(t, called)
	assert.EqualError(t, err, "inner")
}

func TestDisabledTracerStartSegmentIsNoop(t *testing.T) {
	tracer := NewTracer("player-management", false)
	ctx := context.Background()

	got, end := tracer.StartSegment(ctx, "reconcile")
	assert.Equal(t, ctx, got)
	assert.Nil(t, xray.GetSegment(got))
	assert.NotPanics(t, func() {
		tracer.AddAnnotation(got, "table", "t")
		tracer.AddMetadata(got, "report", map[string]int{"fixed": 1})
		end(errors.New("boom"))
	})
}

func TestStartSegmentOpensRootSegment(t *testing.T) {
	tracer := NewTracer("player-management", true)

	ctx, end := tracer.StartSegment(context.Background(), "health")
	require.NotNil(t, xray.GetSegment(ctx))

	called := false
	err := tracer.TraceFunction(ctx, "GetItem", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.NotPanics(t, func() {
		tracer.AddAnnotation(ctx, "table", "dev-player-management")
		tracer.AddMetadata(ctx, "attempts", 2)
		end(nil)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	dev, err := NewLogger("development", "")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("production", "loud")
	assert.Error(t, err)
}
