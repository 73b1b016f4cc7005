package metrics

import (
	"context"
)

// RecordMessageSent 记录消息发送成功
func RecordMessageSent(source string, duration float64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordSent(ctx, source, duration)
	}
}

// RecordMessageFailed 记录消息终局失败
func RecordMessageFailed(reason string, duration float64) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordFailed(ctx, reason, duration)
	}
}

// RecordMessageSkipped 记录消息跳过
func RecordMessageSkipped(reason string) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordSkipped(ctx, reason)
	}
}

// RecordMessageRetry 记录消息重试入队
func RecordMessageRetry(attempt int) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordRetry(ctx, attempt)
	}
}

// RecordBatchClaimed 记录一次批处理领取数量
func RecordBatchClaimed(claimed int) {
	ctx := context.Background()
	m := GetMetrics()
	if m != nil {
		m.RecordBatch(ctx, claimed)
	}
}
