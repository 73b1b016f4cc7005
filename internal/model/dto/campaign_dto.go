package dto

import "time"

// RecipientInput 活动收件人（由排除在核心外的 CRUD 层提供快照）
type RecipientInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone" binding:"required"`
}

// CreateCampaignRequest 创建活动并物化收件人队列
type CreateCampaignRequest struct {
	StoreID            int64            `json:"store_id" binding:"required"`
	Name               string           `json:"name" binding:"required"`
	Category           string           `json:"category"`
	ScheduledFor       *time.Time       `json:"scheduled_for"` // 未来时刻 = 预约活动，到点由 worker 启动
	StartHour          int              `json:"start_hour"`
	EndHour            int              `json:"end_hour"`
	MinIntervalMinutes int              `json:"min_interval_minutes"`
	DailyLimit         int              `json:"daily_limit"`
	Templates          []string         `json:"templates" binding:"required"`
	Recipients         []RecipientInput `json:"recipients"`
}

// CreateCampaignResponse 返回创建的活动与队列行标识
type CreateCampaignResponse struct {
	CampaignID int64   `json:"campaign_id"`
	ItemIDs    []int64 `json:"item_ids"`
}

// CampaignStatsResponse 队列行计数聚合，永远反映真实行数
type CampaignStatsResponse struct {
	CampaignID int64            `json:"campaign_id"`
	Status     string           `json:"status"`
	Counts     map[string]int64 `json:"counts"`
}

// EnqueueSingleRequest 独立事件发送（如返现通知）
type EnqueueSingleRequest struct {
	StoreID      int64  `json:"store_id" binding:"required"`
	ContactName  string `json:"contact_name"`
	Phone        string `json:"phone" binding:"required"`
	RenderedBody string `json:"rendered_body" binding:"required"`
}

// EnqueueSingleResponse 返回创建的队列行标识
type EnqueueSingleResponse struct {
	ItemID   int64     `json:"item_id"`
	ItemCode int64     `json:"item_code"`
	Queued   time.Time `json:"queued_at"`
}
