package mq

// 消息拓扑：业务事件走 events 交换机，活动生命周期事件走 campaigns 交换机。
const (
	EventsExchange    = "lojazap.events"
	CampaignsExchange = "lojazap.campaigns"

	CashbackEarnedQueue      = "lojazap.cashback.earned"
	CashbackEarnedRoutingKey = "events.cashback.earned"

	CampaignEventRoutingKeyPrefix = "campaigns" // campaigns.<event>
)
