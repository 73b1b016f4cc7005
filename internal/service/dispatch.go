package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"LojaZap/config"
	"LojaZap/internal/cache"
	"LojaZap/internal/model"
	"LojaZap/internal/repository"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/logger"
	"LojaZap/pkg/metrics"
	"LojaZap/pkg/whatsapp"
	"LojaZap/utils"
)

// maxSendAttempts 每行最多的发送尝试次数（含首次），超过即落 failed
const maxSendAttempts = 3

// credentialResolver 凭证级联解析（由 CredentialService 实现）
type credentialResolver interface {
	Resolve(ctx context.Context, storeID int64) (*Resolution, error)
}

// dailyCounter 活动当日发送计数（Redis 实现，丢失时由数据库回填）
type dailyCounter interface {
	Get(ctx context.Context, campaignID int64, date string) (int64, bool, error)
	Incr(ctx context.Context, campaignID int64, date string) error
	Seed(ctx context.Context, campaignID int64, date string, count int64) error
}

type redisDailyCounter struct{}

func (redisDailyCounter) Get(ctx context.Context, campaignID int64, date string) (int64, bool, error) {
	return cache.GetDailySent(ctx, campaignID, date)
}

func (redisDailyCounter) Incr(ctx context.Context, campaignID int64, date string) error {
	return cache.IncrDailySent(ctx, campaignID, date)
}

func (redisDailyCounter) Seed(ctx context.Context, campaignID int64, date string, count int64) error {
	return cache.SeedDailySent(ctx, campaignID, date, count)
}

// BatchResult 一轮批处理的结果统计
type BatchResult struct {
	Listed   int
	Claimed  int
	Sent     int
	Failed   int
	Skipped  int
	Requeued int
	Deferred int // 因活动调度约束本轮跳过领取的行数
}

type DispatchService struct {
	queue       repository.QueueRepository
	campaigns   repository.CampaignRepository
	stores      repository.StoreRepository
	credentials credentialResolver
	sender      whatsapp.Client
	publisher   EventPublisher
	daily       dailyCounter

	sendTimeout time.Duration
	now         func() time.Time
}

var (
	dispatchService *DispatchService
	dispatchOnce    sync.Once
)

func Dispatch() *DispatchService {
	dispatchOnce.Do(func() {
		dispatchService = NewDispatchService(
			repository.DefaultQueueRepository(),
			repository.DefaultCampaignRepository(),
			repository.DefaultStoreRepository(),
			Credential(),
			whatsapp.GetClient(),
			mqEventPublisher{},
			redisDailyCounter{},
			config.Cfg.WhatsAppTimeout,
		)
	})
	return dispatchService
}

// NewDispatchService 创建分发服务（测试时注入全部协作方）
func NewDispatchService(
	queue repository.QueueRepository,
	campaigns repository.CampaignRepository,
	stores repository.StoreRepository,
	credentials credentialResolver,
	sender whatsapp.Client,
	publisher EventPublisher,
	daily dailyCounter,
	sendTimeout time.Duration,
) *DispatchService {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &DispatchService{
		queue:       queue,
		campaigns:   campaigns,
		stores:      stores,
		credentials: credentials,
		sender:      sender,
		publisher:   publisher,
		daily:       daily,
		sendTimeout: sendTimeout,
		now:         time.Now,
	}
}

// RunBatch 执行一轮队列批处理：
// 列出到期的 pending 行，逐行做活动约束校验、原子领取、发送并落终态。
// 单行的任何错误只影响该行，绝不中断整批。
func (s *DispatchService) RunBatch(ctx context.Context, batchSize int) (*BatchResult, error) {
	now := s.now()

	// 到点的预约活动先启动，它们放行的队列行本轮就能被领取
	s.activateDue(ctx, now)

	items, err := s.queue.ListClaimable(ctx, now, batchSize)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Listed: len(items)}
	touched := make(map[int64]struct{})

	for _, item := range items {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		s.processItem(ctx, item, result, touched)
	}

	metrics.RecordBatchClaimed(result.Claimed)

	// 批尾检查：本轮触达的活动里，队列已全部到终态的置为 completed
	for campaignID := range touched {
		s.maybeComplete(ctx, campaignID)
	}

	return result, nil
}

func (s *DispatchService) processItem(ctx context.Context, item *model.MessageQueueItem, result *BatchResult, touched map[int64]struct{}) {
	now := s.now()

	var campaign *model.Campaign
	if item.CampaignID != nil {
		var err error
		campaign, err = s.campaigns.GetByID(ctx, *item.CampaignID)
		if err != nil {
			logger.Logger.Error("failed to load campaign for queue item",
				zap.Int64("item_id", item.ID),
				zap.Error(err))
			return
		}
		touched[*item.CampaignID] = struct{}{}

		// 活动约束：不满足就把行留在队列里，下一轮再看
		if !s.campaignEligible(ctx, campaign, now) {
			result.Deferred++
			return
		}
	}

	claimed, err := s.queue.Claim(ctx, item.ID, now)
	if err != nil {
		logger.Logger.Error("failed to claim queue item",
			zap.Int64("item_id", item.ID),
			zap.Error(err))
		return
	}
	if !claimed {
		// 被其他 worker 抢走或已被取消清扫
		return
	}
	result.Claimed++
	attempts := item.Attempts + 1

	outcome := s.deliver(ctx, item, campaign, now)
	switch {
	case outcome.err == nil:
		if err := s.queue.MarkSent(ctx, item.ID); err != nil {
			logger.Logger.Error("failed to mark item sent", zap.Int64("item_id", item.ID), zap.Error(err))
			return
		}
		result.Sent++
		metrics.RecordMessageSent(outcome.source, outcome.duration)
		if campaign != nil {
			if err := s.campaigns.IncrementSent(ctx, campaign.ID, now); err != nil {
				logger.Logger.Error("failed to increment sent count", zap.Int64("campaign_id", campaign.ID), zap.Error(err))
			}
			if err := s.daily.Incr(ctx, campaign.ID, utils.DayKey(now)); err != nil {
				logger.Logger.Warn("failed to increment daily counter", zap.Int64("campaign_id", campaign.ID), zap.Error(err))
			}
		}

	case errors.IsSkip(outcome.err):
		if err := s.queue.MarkSkipped(ctx, item.ID, outcome.err.Error()); err != nil {
			logger.Logger.Error("failed to mark item skipped", zap.Int64("item_id", item.ID), zap.Error(err))
			return
		}
		result.Skipped++
		metrics.RecordMessageSkipped(outcome.err.Error())
		logger.Logger.Info("queue item skipped",
			zap.Int64("item_id", item.ID),
			zap.String("reason", outcome.err.Error()))

	case errors.IsNonRetryable(outcome.err) || attempts >= maxSendAttempts:
		if err := s.queue.MarkFailed(ctx, item.ID, outcome.err.Error()); err != nil {
			logger.Logger.Error("failed to mark item failed", zap.Int64("item_id", item.ID), zap.Error(err))
			return
		}
		result.Failed++
		metrics.RecordMessageFailed(outcome.err.Error(), outcome.duration)
		if campaign != nil {
			if err := s.campaigns.IncrementFailed(ctx, campaign.ID); err != nil {
				logger.Logger.Error("failed to increment failed count", zap.Int64("campaign_id", campaign.ID), zap.Error(err))
			}
		}
		logger.Logger.Error("queue item failed permanently",
			zap.Int64("item_id", item.ID),
			zap.Int("attempts", attempts),
			zap.Error(outcome.err))

	default:
		// 瞬时故障：退回队列，attempts 已在领取时 +1
		if err := s.queue.Requeue(ctx, item.ID, outcome.err.Error()); err != nil {
			logger.Logger.Error("failed to requeue item", zap.Int64("item_id", item.ID), zap.Error(err))
			return
		}
		result.Requeued++
		metrics.RecordMessageRetry(attempts)
		logger.Logger.Warn("queue item send failed, will retry",
			zap.Int64("item_id", item.ID),
			zap.Int("attempts", attempts),
			zap.Error(outcome.err))
	}
}

type deliverOutcome struct {
	err      error
	source   string
	duration float64
}

// deliver 校验收件人与凭证，渲染文案并调用网关。
// 返回的错误类型决定队列行的终态：SkipError -> skipped，
// NonRetryableError / 超出尝试上限 -> failed，其余 -> 退回重试。
func (s *DispatchService) deliver(ctx context.Context, item *model.MessageQueueItem, campaign *model.Campaign, now time.Time) deliverOutcome {
	store, err := s.stores.GetByID(ctx, item.StoreID)
	if err != nil {
		// 引用的门店不存在是数据事故，重试不可能自愈
		if errors.Is(err, errors.StoreNotFound) {
			return deliverOutcome{err: errors.NewNonRetryableError(
				errors.StoreNotFound.Code, errors.StoreNotFound.Message,
				fmt.Sprintf("store %d referenced by item %d", item.StoreID, item.ID))}
		}
		return deliverOutcome{err: err}
	}
	if !store.MessagingEnabled {
		return deliverOutcome{err: errors.NewSkipError("messaging disabled for store %d (%s)", store.ID, store.Slug)}
	}

	phone := utils.Normalize(item.Phone)
	if !utils.IsDeliverable(phone) {
		return deliverOutcome{err: errors.NewSkipError("phone %q is not deliverable", item.Phone)}
	}

	resolution, err := s.credentials.Resolve(ctx, item.StoreID)
	if err != nil {
		// 凭证缺失是配置事故而非收件人问题：大声失败，不静默跳过
		if !errors.IsSkip(err) {
			logger.Logger.Error("credential resolution failed",
				zap.Int64("item_id", item.ID),
				zap.Int64("store_id", item.StoreID),
				zap.Error(err))
			return deliverOutcome{err: errors.NewNonRetryableError(
				errors.CredentialUnresolved.Code, errors.CredentialUnresolved.Message, err.Error())}
		}
		return deliverOutcome{err: err}
	}

	body, err := s.renderBody(ctx, item, campaign, store)
	if err != nil {
		return deliverOutcome{err: err}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	start := s.now()
	_, err = s.sender.SendText(sendCtx, resolution.Credentials, phone, body)
	duration := s.now().Sub(start).Seconds()

	return deliverOutcome{err: err, source: string(resolution.Source), duration: duration}
}

// renderBody 独立行直接用预渲染文案；活动行按行号确定性选一个模板变体再做占位符替换。
func (s *DispatchService) renderBody(ctx context.Context, item *model.MessageQueueItem, campaign *model.Campaign, store *model.Store) (string, error) {
	if campaign == nil {
		return item.RenderedBody, nil
	}

	templates, err := s.campaigns.ListTemplates(ctx, campaign.ID)
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", errors.NewNonRetryableError(
			errors.CampaignNoContent.Code, errors.CampaignNoContent.Message, "")
	}

	tpl := templates[item.ID%int64(len(templates))]
	body := strings.ReplaceAll(tpl.Body, "{nome}", item.ContactName)
	body = strings.ReplaceAll(body, "{loja}", store.Name)
	return body, nil
}

// campaignEligible 判断活动此刻是否允许发送：
// 状态必须是 running，且满足发送窗口、行间最小间隔、当日限额。
func (s *DispatchService) campaignEligible(ctx context.Context, campaign *model.Campaign, now time.Time) bool {
	if campaign.Status != model.CampaignStatusRunning {
		return false
	}

	if !utils.WithinWindow(now, campaign.StartHour, campaign.EndHour) {
		return false
	}

	if campaign.MinIntervalMinutes > 0 && campaign.LastSentAt != nil {
		interval := time.Duration(campaign.MinIntervalMinutes) * time.Minute
		if now.Sub(*campaign.LastSentAt) < interval {
			return false
		}
	}

	if campaign.DailyLimit > 0 {
		sentToday, err := s.dailySent(ctx, campaign.ID, now)
		if err != nil {
			logger.Logger.Warn("failed to read daily counter, deferring item",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(err))
			return false
		}
		if sentToday >= int64(campaign.DailyLimit) {
			return false
		}
	}

	return true
}

// dailySent 读取当日发送计数，缓存缺失时用数据库统计值回填
func (s *DispatchService) dailySent(ctx context.Context, campaignID int64, now time.Time) (int64, error) {
	date := utils.DayKey(now)
	count, found, err := s.daily.Get(ctx, campaignID, date)
	if err != nil {
		return 0, err
	}
	if found {
		return count, nil
	}

	count, err = s.campaigns.CountSentSince(ctx, campaignID, utils.StartOfDay(now))
	if err != nil {
		return 0, err
	}
	if err := s.daily.Seed(ctx, campaignID, date, count); err != nil {
		logger.Logger.Warn("failed to seed daily counter", zap.Int64("campaign_id", campaignID), zap.Error(err))
	}
	return count, nil
}

// activateDue 预约启动时间已到的活动由 worker 自动转入 running 并放行其队列行。
// 单个活动的失败不影响其余活动，下一轮重试。
func (s *DispatchService) activateDue(ctx context.Context, now time.Time) {
	due, err := s.campaigns.ListDueScheduled(ctx, now, 50)
	if err != nil {
		logger.Logger.Warn("failed to list due scheduled campaigns", zap.Error(err))
		return
	}

	for _, campaign := range due {
		ok, err := s.campaigns.UpdateStatusGuarded(ctx, campaign.ID,
			[]model.CampaignStatus{model.CampaignStatusScheduled},
			model.CampaignStatusRunning,
			map[string]interface{}{"started_at": now})
		if err != nil {
			logger.Logger.Error("failed to start scheduled campaign",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(err))
			continue
		}
		if !ok {
			// 并发下已被其他 worker 启动或被取消
			continue
		}

		released, err := s.queue.ReleaseByCampaign(ctx, campaign.ID, now)
		if err != nil {
			logger.Logger.Error("failed to release scheduled items",
				zap.Int64("campaign_id", campaign.ID),
				zap.Error(err))
			continue
		}

		logger.Logger.Info("scheduled campaign started",
			zap.Int64("campaign_id", campaign.ID),
			zap.Int64("released_items", released))

		if s.publisher != nil {
			if err := s.publisher.PublishCampaignEvent(ctx, "activated", campaign); err != nil {
				logger.Logger.Warn("failed to publish campaign activated event",
					zap.Int64("campaign_id", campaign.ID),
					zap.Error(err))
			}
		}
	}
}

// maybeComplete 活动队列全部到终态时置为 completed 并广播事件
func (s *DispatchService) maybeComplete(ctx context.Context, campaignID int64) {
	remaining, err := s.queue.CountNonTerminalByCampaign(ctx, campaignID)
	if err != nil {
		logger.Logger.Error("failed to check campaign completion",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err))
		return
	}
	if remaining > 0 {
		return
	}

	ok, err := s.campaigns.UpdateStatusGuarded(ctx, campaignID,
		[]model.CampaignStatus{model.CampaignStatusRunning},
		model.CampaignStatusCompleted,
		map[string]interface{}{"finished_at": s.now()})
	if err != nil {
		logger.Logger.Error("failed to complete campaign",
			zap.Int64("campaign_id", campaignID),
			zap.Error(err))
		return
	}
	if !ok {
		return
	}

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return
	}

	logger.Logger.Info("campaign completed", zap.Int64("campaign_id", campaignID))

	if s.publisher != nil {
		if err := s.publisher.PublishCampaignEvent(ctx, "completed", campaign); err != nil {
			logger.Logger.Warn("failed to publish campaign completed event",
				zap.Int64("campaign_id", campaignID),
				zap.Error(err))
		}
	}
}
