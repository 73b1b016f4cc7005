package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 消息分发相关指标
	MessagesSentTotal    metric.Int64Counter
	MessagesFailedTotal  metric.Int64Counter
	MessagesSkippedTotal metric.Int64Counter
	MessageRetryTotal    metric.Int64Counter
	SendDuration         metric.Float64Histogram
	BatchClaimed         metric.Int64Histogram
	QueuePending         metric.Int64UpDownCounter
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	meter   = otel.Meter("lojazap")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	metrics = &OTelMetrics{}

	metrics.MessagesSentTotal, err = meter.Int64Counter(
		"dispatch_messages_sent_total",
		metric.WithDescription("Total number of messages delivered to the gateway"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.MessagesFailedTotal, err = meter.Int64Counter(
		"dispatch_messages_failed_total",
		metric.WithDescription("Total number of messages that exhausted retries or failed permanently"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.MessagesSkippedTotal, err = meter.Int64Counter(
		"dispatch_messages_skipped_total",
		metric.WithDescription("Total number of messages skipped for undeliverable recipients"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	metrics.MessageRetryTotal, err = meter.Int64Counter(
		"dispatch_message_retry_total",
		metric.WithDescription("Total number of requeued send attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return err
	}

	metrics.SendDuration, err = meter.Float64Histogram(
		"dispatch_send_duration_seconds",
		metric.WithDescription("Time spent on one gateway send call in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics.BatchClaimed, err = meter.Int64Histogram(
		"dispatch_batch_claimed",
		metric.WithDescription("Number of queue items claimed per worker batch"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return err
	}

	metrics.QueuePending, err = meter.Int64UpDownCounter(
		"dispatch_queue_pending",
		metric.WithDescription("Number of pending items observed in the message queue"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordSent 记录发送成功
func (m *OTelMetrics) RecordSent(ctx context.Context, source string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("credential_source", source),
		attribute.String("status", "sent"),
	}

	m.MessagesSentTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.SendDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
}

// RecordFailed 记录终局失败
func (m *OTelMetrics) RecordFailed(ctx context.Context, reason string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("reason", reason),
		attribute.String("status", "failed"),
	}

	m.MessagesFailedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if duration > 0 {
		m.SendDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
}

// RecordSkipped 记录跳过
func (m *OTelMetrics) RecordSkipped(ctx context.Context, reason string) {
	m.MessagesSkippedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordRetry 记录一次重新入队
func (m *OTelMetrics) RecordRetry(ctx context.Context, attempt int) {
	m.MessageRetryTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("attempt", fmt.Sprintf("%d", attempt)),
	))
}

// RecordBatch 记录一次批处理领取的行数
func (m *OTelMetrics) RecordBatch(ctx context.Context, claimed int) {
	m.BatchClaimed.Record(ctx, int64(claimed))
}
