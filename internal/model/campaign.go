package model

import (
	"time"
)

// CampaignStatus 活动生命周期状态枚举
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCancelled CampaignStatus = "cancelled"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// IsTerminal 终态不允许任何迁移
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCancelled || s == CampaignStatusCompleted
}

// Campaign 批量发送活动。调度约束（发送窗口、间隔、日限额）决定队列行的可领取性。
type Campaign struct {
	BaseModel
	StoreID  int64          `gorm:"not null;index" json:"store_id"`
	Name     string         `gorm:"type:varchar(128);not null" json:"name"`
	Category string         `gorm:"type:varchar(64)" json:"category"`
	Status   CampaignStatus `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`

	// 调度配置
	ScheduledFor       *time.Time `gorm:"type:timestamptz" json:"scheduled_for,omitempty"` // 预约启动时间，null = 手动激活

	StartHour          int `gorm:"type:smallint;not null;default:8" json:"start_hour"`
	EndHour            int `gorm:"type:smallint;not null;default:20" json:"end_hour"` // 闭区间
	MinIntervalMinutes int `gorm:"type:smallint;not null;default:0" json:"min_interval_minutes"`
	DailyLimit         int `gorm:"not null;default:0" json:"daily_limit"` // 0 = 不限

	// 进度计数：只增不减，sent+failed <= total
	TotalRecipients int `gorm:"not null;default:0" json:"total_recipients"`
	SentCount       int `gorm:"not null;default:0" json:"sent_count"`
	FailedCount     int `gorm:"not null;default:0" json:"failed_count"`

	LastSentAt *time.Time `gorm:"type:timestamptz" json:"last_sent_at,omitempty"`
	StartedAt  *time.Time `gorm:"type:timestamptz" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`
}

// TableName 指定表名
func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignTemplate 活动文案变体，发送时按队列行确定性选取其一。
type CampaignTemplate struct {
	BaseModel
	CampaignID int64  `gorm:"not null;index" json:"campaign_id"`
	Body       string `gorm:"type:text;not null" json:"body"`
}

// TableName 指定表名
func (CampaignTemplate) TableName() string {
	return "campaign_templates"
}
