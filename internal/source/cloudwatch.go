// Package source provides telemetry sources for the triage pipeline. The
// CloudWatch source reads production metrics and logs; the synthetic source
// generates deterministic series for local development and tests.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/triagestack/triage-engine/internal/models"
)

// metricPeriod is the CloudWatch aggregation period in seconds.
const metricPeriod = 300

// CloudWatchConfig holds the settings needed to reach CloudWatch.
type CloudWatchConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Namespace       string
	LogGroup        string
	MetricNames     []string
}

// CloudWatchSource fetches metric statistics and filtered log events for a
// time window.
type CloudWatchSource struct {
	metrics   *cloudwatch.Client
	logs      *cloudwatchlogs.Client
	namespace string
	logGroup  string
	names     []string
	logger    *slog.Logger
}

// NewCloudWatchSource builds the AWS clients from the default credential
// chain, with optional static credentials and endpoint override for local
// stacks.
func NewCloudWatchSource(ctx context.Context, cfg CloudWatchConfig, logger *slog.Logger) (*CloudWatchSource, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &CloudWatchSource{
		metrics:   cloudwatch.NewFromConfig(awsCfg),
		logs:      cloudwatchlogs.NewFromConfig(awsCfg),
		namespace: cfg.Namespace,
		logGroup:  cfg.LogGroup,
		names:     cfg.MetricNames,
		logger:    logger,
	}, nil
}

// FetchMetricSamples retrieves aggregated datapoints for every configured
// metric name over the window. The Maximum statistic carries the worst
// observed value inside each period.
func (s *CloudWatchSource) FetchMetricSamples(ctx context.Context, window models.TimeWindow) ([]models.MetricSample, error) {
	var samples []models.MetricSample
	for _, name := range s.names {
		out, err := s.metrics.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
			Namespace:  aws.String(s.namespace),
			MetricName: aws.String(name),
			StartTime:  aws.Time(window.Start),
			EndTime:    aws.Time(window.End),
			Period:     aws.Int32(metricPeriod),
			Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage, cwtypes.StatisticMaximum},
		})
		if err != nil {
			return nil, fmt.Errorf("get statistics for %s: %w", name, err)
		}
		for _, dp := range out.Datapoints {
			if dp.Timestamp == nil || dp.Maximum == nil {
				continue
			}
			samples = append(samples, models.MetricSample{
				Name:      name,
				Timestamp: *dp.Timestamp,
				Value:     *dp.Maximum,
				Unit:      string(dp.Unit),
			})
		}
	}
	s.logger.Debug("fetched cloudwatch metrics",
		"namespace", s.namespace, "metrics", len(s.names), "samples", len(samples))
	return samples, nil
}

// FetchLogEvents retrieves all log events in the window, following
// pagination tokens until the result set is exhausted.
func (s *CloudWatchSource) FetchLogEvents(ctx context.Context, window models.TimeWindow) ([]models.LogEvent, error) {
	var (
		events    []models.LogEvent
		nextToken *string
	)
	for {
		out, err := s.logs.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
			LogGroupName: aws.String(s.logGroup),
			StartTime:    aws.Int64(window.Start.UnixMilli()),
			EndTime:      aws.Int64(window.End.UnixMilli()),
			NextToken:    nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("filter log events in %s: %w", s.logGroup, err)
		}
		for _, ev := range out.Events {
			if ev.Timestamp == nil || ev.Message == nil {
				continue
			}
			event := models.LogEvent{
				Timestamp: time.UnixMilli(*ev.Timestamp).UTC(),
				Message:   *ev.Message,
			}
			if ev.LogStreamName != nil {
				event.Stream = *ev.LogStreamName
			}
			events = append(events, event)
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	s.logger.Debug("fetched cloudwatch logs", "group", s.logGroup, "events", len(events))
	return events, nil
}
