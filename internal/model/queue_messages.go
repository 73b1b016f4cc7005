package model

// CashbackEarnedMessage 返现到账事件，由业务侧投递到 MQ，消费后生成一条独立队列行。
type CashbackEarnedMessage struct {
	MessageID    string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	StoreID      int64  `json:"store_id"`
	ContactName  string `json:"contact_name"`
	Phone        string `json:"phone"`
	AmountCents  int64  `json:"amount_cents"`
	RenderedBody string `json:"rendered_body"` // 业务层已渲染好的文案
	OccurredAt   string `json:"occurred_at"`
}

// CampaignEventMessage 活动生命周期事件（用于事件总线，供报表/看板消费）。
type CampaignEventMessage struct {
	MessageID  string `json:"message_id"`
	CampaignID int64  `json:"campaign_id"`
	StoreID    int64  `json:"store_id"`
	Event      string `json:"event"` // activated, paused, resumed, cancelled, completed
	OccurredAt string `json:"occurred_at"`
}
