package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"LojaZap/internal/model"
	pkgerrors "LojaZap/pkg/errors"
	"LojaZap/storage/database"
)

// QueueRepository 消息队列行持久化接口
type QueueRepository interface {
	// GetByID 按主键查询队列行
	GetByID(ctx context.Context, id int64) (*model.MessageQueueItem, error)

	// Create 写入单条队列行（独立事件消息）
	Create(ctx context.Context, item *model.MessageQueueItem) error

	// ListClaimable 按 scheduled_at 升序返回可领取的行：pending、到期，
	// 且所属活动（如有）处于 running 并在发送窗口内。
	// 选取阶段就过滤掉不可发的活动行，避免它们长期霸占批次名额。
	ListClaimable(ctx context.Context, now time.Time, limit int) ([]*model.MessageQueueItem, error)

	// Claim 原子领取：pending -> processing，attempts +1。
	// 返回 false 表示该行已被其他 worker 领走或已被取消。
	Claim(ctx context.Context, id int64, now time.Time) (bool, error)

	// MarkSent 领取中的行进入 sent 终态
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed 领取中的行进入 failed 终态并记录原因
	MarkFailed(ctx context.Context, id int64, reason string) error

	// MarkSkipped 领取中的行进入 skipped 终态并记录原因
	MarkSkipped(ctx context.Context, id int64, reason string) error

	// Requeue 领取中的行退回 pending 等待下一轮（保留 attempts）
	Requeue(ctx context.Context, id int64, reason string) error

	// ReleaseByCampaign 活动启动时把 scheduled 行放行为 pending 并立即到期
	ReleaseByCampaign(ctx context.Context, campaignID int64, now time.Time) (int64, error)

	// CancelByCampaign 取消清扫：活动下 pending/scheduled 的行批量置为 cancelled。
	// processing 中的行不动，让其自然完成。
	CancelByCampaign(ctx context.Context, campaignID int64) (int64, error)

	// CountsByCampaign 按状态统计活动的队列行数
	CountsByCampaign(ctx context.Context, campaignID int64) (map[model.QueueItemStatus]int64, error)

	// CountNonTerminalByCampaign 统计活动下未到终态的行数（自动完成判定用）
	CountNonTerminalByCampaign(ctx context.Context, campaignID int64) (int64, error)
}

type gormQueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository 创建基于 gorm 的队列仓储
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &gormQueueRepository{db: db}
}

// DefaultQueueRepository 使用全局数据库连接的仓储
func DefaultQueueRepository() QueueRepository {
	return NewQueueRepository(database.DB())
}

func (r *gormQueueRepository) GetByID(ctx context.Context, id int64) (*model.MessageQueueItem, error) {
	var item model.MessageQueueItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.QueueItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return &item, nil
}

func (r *gormQueueRepository) Create(ctx context.Context, item *model.MessageQueueItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create queue item: %w", err)
	}
	return nil
}

func (r *gormQueueRepository) ListClaimable(ctx context.Context, now time.Time, limit int) ([]*model.MessageQueueItem, error) {
	var items []*model.MessageQueueItem
	// 独立行（campaign_id 为空）随时可发；活动行必须 running 且在窗口内。
	// 间隔与日限额需要每行重新评估，留给服务层在领取前判断。
	err := r.db.WithContext(ctx).
		Select("message_queue_items.*").
		Joins("LEFT JOIN campaigns ON campaigns.id = message_queue_items.campaign_id").
		Where("message_queue_items.status = ? AND message_queue_items.scheduled_at <= ?",
			model.QueueItemStatusPending, now).
		Where("message_queue_items.campaign_id IS NULL OR (campaigns.status = ? AND campaigns.start_hour <= ? AND campaigns.end_hour >= ?)",
			model.CampaignStatusRunning, now.Hour(), now.Hour()).
		Order("message_queue_items.scheduled_at ASC, message_queue_items.id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable items: %w", err)
	}
	return items, nil
}

func (r *gormQueueRepository) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	// 条件更新做乐观锁：status 守卫保证同一行只会被一个 worker 领走
	result := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("id = ? AND status = ?", id, model.QueueItemStatusPending).
		Updates(map[string]interface{}{
			"status":          model.QueueItemStatusProcessing,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim queue item: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormQueueRepository) MarkSent(ctx context.Context, id int64) error {
	return r.finish(ctx, id, model.QueueItemStatusSent, "")
}

func (r *gormQueueRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.finish(ctx, id, model.QueueItemStatusFailed, reason)
}

func (r *gormQueueRepository) MarkSkipped(ctx context.Context, id int64, reason string) error {
	return r.finish(ctx, id, model.QueueItemStatusSkipped, reason)
}

func (r *gormQueueRepository) finish(ctx context.Context, id int64, to model.QueueItemStatus, reason string) error {
	updates := map[string]interface{}{"status": to}
	if reason != "" {
		updates["error_message"] = truncateReason(reason)
	}

	err := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("id = ? AND status = ?", id, model.QueueItemStatusProcessing).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to finish queue item: %w", err)
	}
	return nil
}

func (r *gormQueueRepository) Requeue(ctx context.Context, id int64, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("id = ? AND status = ?", id, model.QueueItemStatusProcessing).
		Updates(map[string]interface{}{
			"status":        model.QueueItemStatusPending,
			"error_message": truncateReason(reason),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to requeue queue item: %w", err)
	}
	return nil
}

func (r *gormQueueRepository) ReleaseByCampaign(ctx context.Context, campaignID int64, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("campaign_id = ? AND status = ?", campaignID, model.QueueItemStatusScheduled).
		Updates(map[string]interface{}{
			"status":       model.QueueItemStatusPending,
			"scheduled_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release scheduled items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormQueueRepository) CancelByCampaign(ctx context.Context, campaignID int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]model.QueueItemStatus{model.QueueItemStatusPending, model.QueueItemStatusScheduled}).
		Update("status", model.QueueItemStatusCancelled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cancel queue items: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *gormQueueRepository) CountsByCampaign(ctx context.Context, campaignID int64) (map[model.QueueItemStatus]int64, error) {
	var rows []struct {
		Status model.QueueItemStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	counts := make(map[model.QueueItemStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *gormQueueRepository) CountNonTerminalByCampaign(ctx context.Context, campaignID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]model.QueueItemStatus{
				model.QueueItemStatusPending,
				model.QueueItemStatusScheduled,
				model.QueueItemStatusProcessing,
			}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count non-terminal items: %w", err)
	}
	return count, nil
}

// truncateReason 限制落库的错误描述长度，与列宽保持一致
func truncateReason(reason string) string {
	const max = 512
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}
