// Package metrics defines the delivery metrics surface for the reminder
// worker, with a CloudWatch-backed implementation and a no-op for
// deployments that run without metrics.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"remindbot/internal/types"
)

// Result labels a delivery outcome.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Metric and dimension names.
const (
	MetricDeliveryAttempt = "ReminderDeliveryAttempt"
	MetricDeliveryLatency = "ReminderDeliveryLatency"
	MetricCycleLeased     = "ReminderCycleLeased"

	DimResult = "Result"
)

// Recorder records worker delivery metrics. Implementations must never fail
// the caller; metric emission problems are logged and swallowed.
type Recorder interface {
	// RecordDelivery counts one delivery outcome.
	RecordDelivery(ctx context.Context, result Result)
	// RecordLatency records how long a delivery attempt took.
	RecordLatency(ctx context.Context, duration time.Duration)
	// RecordCycle records how many leases a poll cycle obtained.
	RecordCycle(ctx context.Context, leased int)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchRecorder implements Recorder.
var _ Recorder = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder publishes delivery metrics to a CloudWatch namespace.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to the given namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatchRecorder) RecordDelivery(ctx context.Context, result Result) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(DimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"result", string(result),
		)
	}
}

func (m *CloudWatchRecorder) RecordLatency(ctx context.Context, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func (m *CloudWatchRecorder) RecordCycle(ctx context.Context, leased int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricCycleLeased),
				Value:      aws.Float64(float64(leased)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record cycle metric",
			"error", err.Error(),
			"leased", leased,
		)
	}
}

// Compile-time assertion that Noop implements Recorder.
var _ Recorder = Noop{}

// Noop discards all metrics.
type Noop struct{}

func (Noop) RecordDelivery(context.Context, Result)       {}
func (Noop) RecordLatency(context.Context, time.Duration) {}
func (Noop) RecordCycle(context.Context, int)             {}
