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

// CampaignRepository 活动持久化接口
type CampaignRepository interface {
	// GetByID 按主键查询活动
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)

	// Create 在单个事务内创建活动、模板与队列行
	Create(ctx context.Context, campaign *model.Campaign, templates []*model.CampaignTemplate, items []*model.MessageQueueItem) error

	// UpdateStatusGuarded 条件状态迁移：仅当前状态在 from 集合内才改写。
	// 返回 false 表示守卫未命中（并发迁移或非法起点）。
	UpdateStatusGuarded(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, extra map[string]interface{}) (bool, error)

	// IncrementSent 发送成功计数 +1 并刷新 last_sent_at
	IncrementSent(ctx context.Context, id int64, sentAt time.Time) error

	// IncrementFailed 终局失败计数 +1
	IncrementFailed(ctx context.Context, id int64) error

	// ListTemplates 按创建顺序返回活动的文案变体
	ListTemplates(ctx context.Context, campaignID int64) ([]*model.CampaignTemplate, error)

	// ListDueScheduled 返回预约启动时间已到的 scheduled 活动
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error)

	// CountSentSince 统计活动在 since 之后进入 sent 态的队列行数（日限额回填用）
	CountSentSince(ctx context.Context, campaignID int64, since time.Time) (int64, error)

	// DeleteCascade 删除活动及其模板与队列行
	DeleteCascade(ctx context.Context, id int64) error
}

type gormCampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository 创建基于 gorm 的活动仓储
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &gormCampaignRepository{db: db}
}

// DefaultCampaignRepository 使用全局数据库连接的仓储
func DefaultCampaignRepository() CampaignRepository {
	return NewCampaignRepository(database.DB())
}

func (r *gormCampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).First(&campaign, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.CampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

func (r *gormCampaignRepository) Create(ctx context.Context, campaign *model.Campaign, templates []*model.CampaignTemplate, items []*model.MessageQueueItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(campaign).Error; err != nil {
			return fmt.Errorf("failed to create campaign: %w", err)
		}

		for _, tpl := range templates {
			tpl.CampaignID = campaign.ID
		}
		if len(templates) > 0 {
			if err := tx.Create(templates).Error; err != nil {
				return fmt.Errorf("failed to create campaign templates: %w", err)
			}
		}

		for _, item := range items {
			item.CampaignID = &campaign.ID
		}
		if len(items) > 0 {
			// 大名单分批写入，避免超出参数上限
			if err := tx.CreateInBatches(items, 500).Error; err != nil {
				return fmt.Errorf("failed to create queue items: %w", err)
			}
		}
		return nil
	})
}

func (r *gormCampaignRepository) UpdateStatusGuarded(ctx context.Context, id int64, from []model.CampaignStatus, to model.CampaignStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *gormCampaignRepository) IncrementSent(ctx context.Context, id int64, sentAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sent_count":   gorm.Expr("sent_count + 1"),
			"last_sent_at": sentAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment sent count: %w", err)
	}
	return nil
}

func (r *gormCampaignRepository) IncrementFailed(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("failed_count", gorm.Expr("failed_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment failed count: %w", err)
	}
	return nil
}

func (r *gormCampaignRepository) ListTemplates(ctx context.Context, campaignID int64) ([]*model.CampaignTemplate, error) {
	var templates []*model.CampaignTemplate
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign templates: %w", err)
	}
	return templates, nil
}

func (r *gormCampaignRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	var campaigns []*model.Campaign
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?",
			model.CampaignStatusScheduled, now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due scheduled campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *gormCampaignRepository) CountSentSince(ctx context.Context, campaignID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.MessageQueueItem{}).
		Where("campaign_id = ? AND status = ? AND last_attempt_at >= ?",
			campaignID, model.QueueItemStatusSent, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sent items: %w", err)
	}
	return count, nil
}

func (r *gormCampaignRepository) DeleteCascade(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&model.MessageQueueItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete queue items: %w", err)
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&model.CampaignTemplate{}).Error; err != nil {
			return fmt.Errorf("failed to delete campaign templates: %w", err)
		}
		if err := tx.Delete(&model.Campaign{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete campaign: %w", err)
		}
		return nil
	})
}
