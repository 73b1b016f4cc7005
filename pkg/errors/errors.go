package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 活动生命周期错误。
var (
	CampaignNotFound  = Definition{Code: "CAMPAIGN_NOT_FOUND", Message: "Campaign not found"}
	InvalidTransition = Definition{Code: "INVALID_TRANSITION", Message: "Campaign status transition not allowed"}
	NotDeletable      = Definition{Code: "NOT_DELETABLE", Message: "Campaign can only be deleted in draft or cancelled status"}
	CampaignNoContent = Definition{Code: "CAMPAIGN_NO_CONTENT", Message: "Campaign has no message templates"}
)

// 队列 / 分发错误。
var (
	QueueItemNotFound    = Definition{Code: "QUEUE_ITEM_NOT_FOUND", Message: "Queue item not found"}
	CredentialUnresolved = Definition{Code: "CREDENTIAL_UNRESOLVED", Message: "No WhatsApp credential resolved at any cascade tier"}
	StoreNotFound        = Definition{Code: "STORE_NOT_FOUND", Message: "Store not found"}
	InvalidPhone         = Definition{Code: "INVALID_PHONE", Message: "Phone number is not deliverable"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	CampaignNotFound.Code:     CampaignNotFound,
	InvalidTransition.Code:    InvalidTransition,
	NotDeletable.Code:         NotDeletable,
	CampaignNoContent.Code:    CampaignNoContent,
	QueueItemNotFound.Code:    QueueItemNotFound,
	CredentialUnresolved.Code: CredentialUnresolved,
	StoreNotFound.Code:        StoreNotFound,
	InvalidPhone.Code:         InvalidPhone,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
