package model

// Store 租户（门店）。核心只读取消息相关字段，其余画像归 CRUD 层维护。
type Store struct {
	BaseModel
	Name string `gorm:"type:varchar(128);not null" json:"name"`
	Slug string `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug"`
	// 门店级的消息开关：关闭后该租户的所有发送直接按 SKIPPED 处理
	MessagingEnabled bool `gorm:"not null;default:true" json:"messaging_enabled"`
}

// TableName 指定表名
func (Store) TableName() string {
	return "stores"
}

// CredentialStatus WhatsApp 凭证连接状态枚举
type CredentialStatus string

const (
	CredentialStatusConnected    CredentialStatus = "connected"
	CredentialStatusDisconnected CredentialStatus = "disconnected"
	CredentialStatusPending      CredentialStatus = "pending"
)

// WhatsAppCredential 发送身份记录：门店专属或全局共享（is_global）。
type WhatsAppCredential struct {
	BaseModel
	StoreID    *int64           `gorm:"index" json:"store_id,omitempty"` // 全局凭证无归属门店
	SiteSlug   string           `gorm:"type:varchar(64);not null" json:"site_slug"`
	CustomerID string           `gorm:"type:varchar(64);not null" json:"customer_id"`
	Status     CredentialStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	IsGlobal   bool             `gorm:"not null;default:false;index" json:"is_global"`
}

// TableName 指定表名
func (WhatsAppCredential) TableName() string {
	return "whatsapp_credentials"
}
