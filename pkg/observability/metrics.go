package observability

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// CloudWatchAPI is the part of the CloudWatch client Metrics uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes storage and domain metrics to CloudWatch. A Metrics
// without a client drops everything.
type Metrics struct {
	namespace string
	client    CloudWatchAPI
	logger    *zap.Logger
	now       func() time.Time
}

// NewMetrics creates a new metrics instance.
func NewMetrics(namespace string, client CloudWatchAPI, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordOperation records latency and outcome of one storage call.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	dims := []types.Dimension{
		{Name: aws.String("Operation"), Value: aws.String(operation)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}
	m.put(ctx,
		types.MetricDatum{
			MetricName: aws.String("StorageOperationLatency"),
			Dimensions: dims,
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  aws.Time(m.now()),
		},
		types.MetricDatum{
			MetricName: aws.String("StorageOperationCount"),
			Dimensions: dims,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(m.now()),
		},
	)
}

// RecordRetry counts a retried storage call.
func (m *Metrics) RecordRetry(ctx context.Context, operation string, attempt int) {
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String("StorageRetry"),
		Dimensions: []types.Dimension{
			{Name: aws.String("Operation"), Value: aws.String(operation)},
		},
		Value:     aws.Float64(1),
		Unit:      types.StandardUnitCount,
		Timestamp: aws.Time(m.now()),
	})
}

// IncrementCounter adds one to a named domain metric.
func (m *Metrics) IncrementCounter(ctx context.Context, metric string, dimensions map[string]string) {
	names := make([]string, 0, len(dimensions))
	for name := range dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	var cwDimensions []types.Dimension
	for _, name := range names {
		cwDimensions = append(cwDimensions, types.Dimension{
			Name:  aws.String(name),
			Value: aws.String(dimensions[name]),
		})
	}
	m.put(ctx, types.MetricDatum{
		MetricName: aws.String(metric),
		Dimensions: cwDimensions,
		Value:      aws.Float64(1),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(m.now()),
	})
}

func (m *Metrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m == nil || m.client == nil {
		return
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	// Metrics never fail the operation they describe.
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send metrics",
			zap.String("metric", aws.ToString(data[0].MetricName)),
			zap.Error(err),
		)
	}
}
