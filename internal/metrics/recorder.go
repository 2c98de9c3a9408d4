package metrics

import (
	"context"
	"time"
)

// Recorder fans API and pipeline metrics out to CloudWatch and Sentry.
// A nil *Recorder is a no-op so callers can record unconditionally.
type Recorder struct {
	cloudwatch *Client
	sentry     *SentryMetrics
}

// NewRecorder combines the CloudWatch and Sentry backends. Either may be nil.
func NewRecorder(cloudwatchClient *Client, sentryMetrics *SentryMetrics) *Recorder {
	return &Recorder{
		cloudwatch: cloudwatchClient,
		sentry:     sentryMetrics,
	}
}

// RecordAPIRequest records one HTTP request's endpoint, status and latency.
func (r *Recorder) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordAPIRequest(endpoint, statusCode, duration)
	}
	if r.sentry != nil {
		r.sentry.RecordAPIRequest(ctx, endpoint, statusCode, duration)
	}
}

// RecordPipelineRun records the outcome and duration of one pipeline run.
func (r *Recorder) RecordPipelineRun(flow string, success bool, duration time.Duration) {
	if r == nil {
		return
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordPipelineRun(flow, success, duration)
	}
	if r.sentry != nil {
		r.sentry.RecordPipelineRun(context.Background(), flow, success, duration)
	}
}

// RecordStageDuration records how long a single pipeline stage took.
func (r *Recorder) RecordStageDuration(stage string, duration time.Duration) {
	if r == nil {
		return
	}
	if r.cloudwatch != nil {
		r.cloudwatch.RecordStageDuration(stage, duration)
	}
	if r.sentry != nil {
		r.sentry.RecordStageDuration(context.Background(), stage, duration)
	}
}
