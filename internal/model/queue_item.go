package model

import (
	"time"
)

// QueueItemStatus 队列行状态枚举
type QueueItemStatus string

const (
	QueueItemStatusPending    QueueItemStatus = "pending"
	QueueItemStatusScheduled  QueueItemStatus = "scheduled" // 预约活动的行，活动启动时放行为 pending

	QueueItemStatusProcessing QueueItemStatus = "processing"
	QueueItemStatusSent       QueueItemStatus = "sent"
	QueueItemStatusFailed     QueueItemStatus = "failed"
	QueueItemStatusCancelled  QueueItemStatus = "cancelled"
	QueueItemStatusSkipped    QueueItemStatus = "skipped"
)

// IsTerminal 终态的行不再被任何操作改写
func (s QueueItemStatus) IsTerminal() bool {
	switch s {
	case QueueItemStatusSent, QueueItemStatusFailed, QueueItemStatusCancelled, QueueItemStatusSkipped:
		return true
	}
	return false
}

// MessageQueueItem 单次投递单元：一条消息、一个收件人。
// 活动行由活动激活时物化（每收件人一行），独立行由业务事件（如返现到账）产生。
// 状态只由 worker（claim/结果）和活动取消清扫改写，且只向前走。
type MessageQueueItem struct {
	BaseModel
	ItemCode   int64  `gorm:"uniqueIndex;not null" json:"item_code"`
	CampaignID *int64 `gorm:"index:idx_queue_campaign" json:"campaign_id,omitempty"` // null = 独立事件行
	StoreID    int64  `gorm:"not null;index" json:"store_id"`

	ContactName string `gorm:"type:varchar(128)" json:"contact_name"`
	Phone       string `gorm:"type:varchar(32)" json:"phone"` // 原始录入，发送前归一化
	// 独立事件行携带已渲染文案；活动行留空，发送时从模板渲染
	RenderedBody string `gorm:"type:text" json:"rendered_body,omitempty"`

	Status        QueueItemStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_queue_claim" json:"status"`
	Attempts      int             `gorm:"type:smallint;not null;default:0" json:"attempts"`
	LastAttemptAt *time.Time      `gorm:"type:timestamptz" json:"last_attempt_at,omitempty"`
	ErrorMessage  string          `gorm:"type:varchar(512)" json:"error_message,omitempty"` // 最后一次失败原因，覆盖写
	ScheduledAt   time.Time       `gorm:"type:timestamptz;not null;index:idx_queue_claim" json:"scheduled_at"`
}

// TableName 指定表名
func (MessageQueueItem) TableName() string {
	return "message_queue_items"
}
