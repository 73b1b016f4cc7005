package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"LojaZap/internal/cache"
	"LojaZap/internal/model"
	"LojaZap/internal/model/dto"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/logger"
	"LojaZap/storage/mq"
)

// SingleEnqueuer 独立事件消息入队能力（由 CampaignService 实现）
type SingleEnqueuer interface {
	EnqueueSingle(ctx context.Context, req *dto.EnqueueSingleRequest) (*dto.EnqueueSingleResponse, error)
}

var enqueueService SingleEnqueuer

// SetEnqueueService 设置入队服务（在 worker 启动时调用）
func SetEnqueueService(s SingleEnqueuer) {
	enqueueService = s
}

// StartCashbackEarnedConsumer 启动返现到账消费者：
// 每条事件生成一条独立队列行，由分发 worker 按正常流程发送。
func StartCashbackEarnedConsumer(ctx context.Context) error {
	handler := func(body []byte) error {
		var msg model.CashbackEarnedMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("failed to unmarshal cashback earned message: %w", err)
		}

		// 【幂等性检查】使用 SETNX 原子性地检查并标记消息正在处理
		processed, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID, 24*time.Hour)
		if err != nil {
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
			// 检查失败时继续处理（不阻塞业务），可能重复入队
		} else if !processed {
			logger.Logger.Info("Message already processed or being processed, skipping",
				zap.String("message_id", msg.MessageID),
			)
			return errors.NewSkipError("message %s already processed", msg.MessageID)
		}

		if enqueueService == nil {
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("enqueue service not configured")
		}

		resp, err := enqueueService.EnqueueSingle(ctx, &dto.EnqueueSingleRequest{
			StoreID:      msg.StoreID,
			ContactName:  msg.ContactName,
			Phone:        msg.Phone,
			RenderedBody: msg.RenderedBody,
		})
		if err != nil {
			// 入队失败取消标记，允许重投
			cache.UnmarkMessageProcessing(ctx, msg.MessageID)
			return fmt.Errorf("failed to enqueue cashback message: %w", err)
		}

		logger.Logger.Info("Cashback message enqueued",
			zap.String("message_id", msg.MessageID),
			zap.Int64("store_id", msg.StoreID),
			zap.Int64("item_id", resp.ItemID),
		)

		if err := cache.MarkMessageProcessed(ctx, msg.MessageID); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}

		return nil
	}

	return mq.Consume(mq.ConsumeOptions{
		Queue:         mq.CashbackEarnedQueue,
		ConsumerTag:   "cashback_earned_consumer",
		PrefetchCount: 10,
		Handler:       handler,
	})
}

// StartAllConsumers 启动所有消费者（在 worker 启动时调用）
func StartAllConsumers(ctx context.Context) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"cashback_earned", StartCashbackEarnedConsumer},
	}

	for _, c := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer",
				zap.String("consumer_name", name),
			)

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(c.name, c.consumer)
	}

	wg.Wait()
}
