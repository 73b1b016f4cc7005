package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LojaZap/internal/model"
	"LojaZap/internal/model/dto"
	"LojaZap/internal/queue"
	"LojaZap/internal/repository"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/logger"
	"LojaZap/pkg/snowflake"
)

const (
	defaultStartHour = 8
	defaultEndHour   = 20
)

// EventPublisher 活动生命周期事件发布接口
type EventPublisher interface {
	PublishCampaignEvent(ctx context.Context, event string, campaign *model.Campaign) error
}

type mqEventPublisher struct{}

func (mqEventPublisher) PublishCampaignEvent(_ context.Context, event string, campaign *model.Campaign) error {
	return queue.PublishCampaignEvent(model.CampaignEventMessage{
		MessageID:  uuid.NewString(),
		CampaignID: campaign.ID,
		StoreID:    campaign.StoreID,
		Event:      event,
		OccurredAt: time.Now().Format(time.RFC3339),
	})
}

type CampaignService struct {
	campaigns repository.CampaignRepository
	queue     repository.QueueRepository
	stores    repository.StoreRepository
	publisher EventPublisher

	now func() time.Time
}

var (
	campaignService *CampaignService
	campaignOnce    sync.Once
)

func Campaign() *CampaignService {
	campaignOnce.Do(func() {
		campaignService = NewCampaignService(
			repository.DefaultCampaignRepository(),
			repository.DefaultQueueRepository(),
			repository.DefaultStoreRepository(),
			mqEventPublisher{},
		)
	})
	return campaignService
}

// NewCampaignService 创建活动服务（测试时注入仓储与事件发布器）
func NewCampaignService(campaigns repository.CampaignRepository, queue repository.QueueRepository, stores repository.StoreRepository, publisher EventPublisher) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		queue:     queue,
		stores:    stores,
		publisher: publisher,
		now:       time.Now,
	}
}

// EnqueueCampaign 创建活动并一次性物化收件人队列：每个收件人一条队列行。
// 默认落地为 draft（行为 pending），待显式激活后才可被 worker 领取；
// 带未来 scheduled_for 的落地为 scheduled（行为 scheduled），到点由 worker 自动启动。
func (s *CampaignService) EnqueueCampaign(ctx context.Context, req *dto.CreateCampaignRequest) (*dto.CreateCampaignResponse, error) {
	if len(req.Templates) == 0 {
		return nil, errors.CampaignNoContent
	}

	if _, err := s.stores.GetByID(ctx, req.StoreID); err != nil {
		return nil, err
	}

	campaign := &model.Campaign{
		StoreID:            req.StoreID,
		Name:               req.Name,
		Category:           req.Category,
		Status:             model.CampaignStatusDraft,
		StartHour:          req.StartHour,
		EndHour:            req.EndHour,
		MinIntervalMinutes: req.MinIntervalMinutes,
		DailyLimit:         req.DailyLimit,
		TotalRecipients:    len(req.Recipients),
	}
	if campaign.StartHour == 0 && campaign.EndHour == 0 {
		campaign.StartHour = defaultStartHour
		campaign.EndHour = defaultEndHour
	}

	templates := make([]*model.CampaignTemplate, 0, len(req.Templates))
	for _, body := range req.Templates {
		templates = append(templates, &model.CampaignTemplate{Body: body})
	}

	now := s.now()
	itemStatus := model.QueueItemStatusPending
	scheduledAt := now
	if req.ScheduledFor != nil && req.ScheduledFor.After(now) {
		campaign.Status = model.CampaignStatusScheduled
		campaign.ScheduledFor = req.ScheduledFor
		itemStatus = model.QueueItemStatusScheduled
		scheduledAt = *req.ScheduledFor
	}

	items := make([]*model.MessageQueueItem, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		code, err := snowflake.NextID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate item code: %w", err)
		}
		items = append(items, &model.MessageQueueItem{
			ItemCode:    code,
			StoreID:     req.StoreID,
			ContactName: recipient.Name,
			Phone:       recipient.Phone,
			Status:      itemStatus,
			ScheduledAt: scheduledAt,
		})
	}

	if err := s.campaigns.Create(ctx, campaign, templates, items); err != nil {
		return nil, err
	}

	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}

	logger.Logger.Info("campaign enqueued",
		zap.Int64("campaign_id", campaign.ID),
		zap.Int64("store_id", campaign.StoreID),
		zap.Int("recipients", len(items)),
		zap.Int("templates", len(templates)))

	return &dto.CreateCampaignResponse{CampaignID: campaign.ID, ItemIDs: itemIDs}, nil
}

// EnqueueSingle 投递一条独立事件消息（已渲染文案），立即可被 worker 领取。
func (s *CampaignService) EnqueueSingle(ctx context.Context, req *dto.EnqueueSingleRequest) (*dto.EnqueueSingleResponse, error) {
	if _, err := s.stores.GetByID(ctx, req.StoreID); err != nil {
		return nil, err
	}

	code, err := snowflake.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate item code: %w", err)
	}

	now := s.now()
	item := &model.MessageQueueItem{
		ItemCode:     code,
		StoreID:      req.StoreID,
		ContactName:  req.ContactName,
		Phone:        req.Phone,
		RenderedBody: req.RenderedBody,
		Status:       model.QueueItemStatusPending,
		ScheduledAt:  now,
	}
	if err := s.queue.Create(ctx, item); err != nil {
		return nil, err
	}

	return &dto.EnqueueSingleResponse{ItemID: item.ID, ItemCode: item.ItemCode, Queued: now}, nil
}

// Activate 激活活动：draft/scheduled -> running，记录启动时间并广播事件。
// 预约活动提前手动激活时，scheduled 行立即放行。
func (s *CampaignService) Activate(ctx context.Context, campaignID int64) error {
	now := s.now()
	ok, err := s.campaigns.UpdateStatusGuarded(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignStatusDraft, model.CampaignStatusScheduled},
		model.CampaignStatusRunning,
		map[string]interface{}{"started_at": now})
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionConflict(ctx, campaignID)
	}

	if _, err := s.queue.ReleaseByCampaign(ctx, campaignID, now); err != nil {
		return err
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	logger.Logger.Info("campaign status changed",
		zap.Int64("campaign_id", campaignID),
		zap.String("status", string(model.CampaignStatusRunning)))

	s.publishEvent(ctx, "activated", campaign)
	return nil
}

// Pause 暂停活动：running -> paused，队列行原地保留。
func (s *CampaignService) Pause(ctx context.Context, campaignID int64) error {
	return s.transition(ctx, campaignID, "paused",
		[]model.CampaignStatus{model.CampaignStatusRunning},
		model.CampaignStatusPaused, nil)
}

// Resume 恢复活动：paused -> running。
func (s *CampaignService) Resume(ctx context.Context, campaignID int64) error {
	return s.transition(ctx, campaignID, "resumed",
		[]model.CampaignStatus{model.CampaignStatusPaused},
		model.CampaignStatusRunning, nil)
}

// Cancel 取消活动并清扫队列：pending/scheduled 行置为 cancelled，
// 正在发送的行让其自然完成。终态活动不可取消。
func (s *CampaignService) Cancel(ctx context.Context, campaignID int64) error {
	ok, err := s.campaigns.UpdateStatusGuarded(ctx, campaignID,
		[]model.CampaignStatus{
			model.CampaignStatusDraft,
			model.CampaignStatusScheduled,
			model.CampaignStatusRunning,
			model.CampaignStatusPaused,
		},
		model.CampaignStatusCancelled,
		map[string]interface{}{"finished_at": s.now()})
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionConflict(ctx, campaignID)
	}

	swept, err := s.queue.CancelByCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	logger.Logger.Info("campaign cancelled",
		zap.Int64("campaign_id", campaignID),
		zap.Int64("swept_items", swept))

	s.publishEvent(ctx, "cancelled", campaign)
	return nil
}

// Duplicate 复制活动配置与文案变体为一个新的 draft，进度计数归零，不复制队列行。
func (s *CampaignService) Duplicate(ctx context.Context, campaignID int64) (*model.Campaign, error) {
	original, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	templates, err := s.campaigns.ListTemplates(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	clone := &model.Campaign{
		StoreID:            original.StoreID,
		Name:               original.Name + " (cópia)",
		Category:           original.Category,
		Status:             model.CampaignStatusDraft,
		StartHour:          original.StartHour,
		EndHour:            original.EndHour,
		MinIntervalMinutes: original.MinIntervalMinutes,
		DailyLimit:         original.DailyLimit,
	}

	clonedTemplates := make([]*model.CampaignTemplate, 0, len(templates))
	for _, tpl := range templates {
		clonedTemplates = append(clonedTemplates, &model.CampaignTemplate{Body: tpl.Body})
	}

	if err := s.campaigns.Create(ctx, clone, clonedTemplates, nil); err != nil {
		return nil, err
	}
	return clone, nil
}

// Delete 删除活动及其模板与队列行。仅 draft 和 cancelled 可删，保护审计痕迹。
func (s *CampaignService) Delete(ctx context.Context, campaignID int64) error {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if campaign.Status != model.CampaignStatusDraft && campaign.Status != model.CampaignStatusCancelled {
		return errors.NotDeletable
	}

	return s.campaigns.DeleteCascade(ctx, campaignID)
}

// Stats 返回按状态聚合的队列行计数。直接数行而不读缓存列，永不漂移。
func (s *CampaignService) Stats(ctx context.Context, campaignID int64) (*dto.CampaignStatsResponse, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	counts, err := s.queue.CountsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(counts)+1)
	var total int64
	for status, count := range counts {
		result[string(status)] = count
		total += count
	}
	result["total"] = total

	return &dto.CampaignStatsResponse{
		CampaignID: campaignID,
		Status:     string(campaign.Status),
		Counts:     result,
	}, nil
}

func (s *CampaignService) transition(ctx context.Context, campaignID int64, event string, from []model.CampaignStatus, to model.CampaignStatus, extra map[string]interface{}) error {
	ok, err := s.campaigns.UpdateStatusGuarded(ctx, campaignID, from, to, extra)
	if err != nil {
		return err
	}
	if !ok {
		return s.transitionConflict(ctx, campaignID)
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	logger.Logger.Info("campaign status changed",
		zap.Int64("campaign_id", campaignID),
		zap.String("status", string(to)))

	s.publishEvent(ctx, event, campaign)
	return nil
}

// transitionConflict 区分「活动不存在」与「状态守卫未命中」
func (s *CampaignService) transitionConflict(ctx context.Context, campaignID int64) error {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return err
	}
	return errors.InvalidTransition
}

// publishEvent 事件广播失败只记日志，不回滚状态迁移
func (s *CampaignService) publishEvent(ctx context.Context, event string, campaign *model.Campaign) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCampaignEvent(ctx, event, campaign); err != nil {
		logger.Logger.Warn("failed to publish campaign event",
			zap.Int64("campaign_id", campaign.ID),
			zap.String("event", event),
			zap.Error(err))
	}
}
