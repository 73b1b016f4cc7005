package queue

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"LojaZap/internal/model"
	"LojaZap/pkg/logger"
	"LojaZap/pkg/snowflake"
	"LojaZap/storage/mq"
)

// PublishCampaignEvent 发布活动生命周期事件（供报表/看板等下游消费）
func PublishCampaignEvent(msg model.CampaignEventMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextID()
		if err != nil {
			logger.Logger.Error("Failed to generate message ID",
				zap.Int64("campaign_id", msg.CampaignID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = fmt.Sprintf("campaign_%s_%d", msg.Event, id)
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().Format(time.RFC3339)
	}

	routingKey := fmt.Sprintf("%s.%s", mq.CampaignEventRoutingKeyPrefix, msg.Event)

	err := mq.PublishMessage(
		mq.CampaignsExchange,
		routingKey,
		msg,
	)

	if err != nil {
		logger.Logger.Error("Failed to publish campaign event",
			zap.String("message_id", msg.MessageID),
			zap.Int64("campaign_id", msg.CampaignID),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published campaign event",
		zap.String("message_id", msg.MessageID),
		zap.Int64("campaign_id", msg.CampaignID),
		zap.String("event", msg.Event),
	)

	return nil
}

// PublishCashbackEarned 发布返现到账事件，worker 消费后生成一条独立队列行
func PublishCashbackEarned(msg model.CashbackEarnedMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextID()
		if err != nil {
			logger.Logger.Error("Failed to generate message ID",
				zap.Int64("store_id", msg.StoreID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = fmt.Sprintf("cashback_%d", id)
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().Format(time.RFC3339)
	}

	err := mq.PublishMessage(
		mq.EventsExchange,
		mq.CashbackEarnedRoutingKey,
		msg,
	)

	if err != nil {
		logger.Logger.Error("Failed to publish cashback earned event",
			zap.String("message_id", msg.MessageID),
			zap.Int64("store_id", msg.StoreID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published cashback earned event",
		zap.String("message_id", msg.MessageID),
		zap.Int64("store_id", msg.StoreID),
	)

	return nil
}
