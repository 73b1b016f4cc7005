package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"LojaZap/config"
	"LojaZap/internal/repository"
	"LojaZap/pkg/errors"
	"LojaZap/pkg/logger"
	"LojaZap/pkg/whatsapp"
)

// CredentialSource 凭证来源层级
type CredentialSource string

const (
	SourceTenant CredentialSource = "tenant" // 门店专属凭证
	SourceGlobal CredentialSource = "global" // 平台共享凭证
	SourceEnv    CredentialSource = "env"    // 部署级兜底配置
)

// Resolution 凭证解析结果
type Resolution struct {
	Credentials whatsapp.Credentials
	Source      CredentialSource
}

type CredentialService struct {
	stores repository.StoreRepository
	creds  repository.CredentialRepository

	defaultSiteSlug   string
	defaultCustomerID string
}

var (
	credentialService *CredentialService
	credentialOnce    sync.Once
)

func Credential() *CredentialService {
	credentialOnce.Do(func() {
		credentialService = NewCredentialService(
			repository.DefaultStoreRepository(),
			repository.DefaultCredentialRepository(),
			config.Cfg.DefaultSiteSlug,
			config.Cfg.DefaultCustomerID,
		)
	})
	return credentialService
}

// NewCredentialService 创建凭证解析服务（测试时注入仓储与兜底配置）
func NewCredentialService(stores repository.StoreRepository, creds repository.CredentialRepository, defaultSiteSlug, defaultCustomerID string) *CredentialService {
	return &CredentialService{
		stores:            stores,
		creds:             creds,
		defaultSiteSlug:   defaultSiteSlug,
		defaultCustomerID: defaultCustomerID,
	}
}

// Resolve 逐级解析门店的发送身份：门店专属 -> 平台全局 -> 部署配置。
// 门店关闭消息功能时返回 SkipError（收件人不可达，而非系统故障）；
// 三级全部落空返回 CREDENTIAL_UNRESOLVED，由调用方按终局失败处理。
func (s *CredentialService) Resolve(ctx context.Context, storeID int64) (*Resolution, error) {
	store, err := s.stores.GetByID(ctx, storeID)
	if err != nil {
		return nil, err
	}

	if !store.MessagingEnabled {
		return nil, errors.NewSkipError("messaging disabled for store %d (%s)", store.ID, store.Slug)
	}

	// 第一级：门店自己连接的号
	cred, err := s.creds.GetByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		return &Resolution{
			Credentials: whatsapp.Credentials{SiteSlug: cred.SiteSlug, CustomerID: cred.CustomerID},
			Source:      SourceTenant,
		}, nil
	}

	// 第二级：平台共享凭证
	cred, err = s.creds.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		return &Resolution{
			Credentials: whatsapp.Credentials{SiteSlug: cred.SiteSlug, CustomerID: cred.CustomerID},
			Source:      SourceGlobal,
		}, nil
	}

	// 第三级：环境变量兜底
	if s.defaultSiteSlug != "" && s.defaultCustomerID != "" {
		return &Resolution{
			Credentials: whatsapp.Credentials{SiteSlug: s.defaultSiteSlug, CustomerID: s.defaultCustomerID},
			Source:      SourceEnv,
		}, nil
	}

	logger.Logger.Error("no whatsapp credential resolved at any tier",
		zap.Int64("store_id", storeID),
		zap.String("store_slug", store.Slug))
	return nil, errors.CredentialUnresolved
}
