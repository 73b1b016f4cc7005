package database

import (
	"fmt"

	"LojaZap/internal/model"
)

// Migrate 执行 AutoMigrate，保证核心表存在。
// 列级变更仍然走外部迁移工具，这里只兜底建表和索引。
func Migrate() error {
	if db == nil {
		return fmt.Errorf("database is not initialized")
	}

	return db.AutoMigrate(
		&model.Store{},
		&model.WhatsAppCredential{},
		&model.Campaign{},
		&model.CampaignTemplate{},
		&model.MessageQueueItem{},
	)
}
