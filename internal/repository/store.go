package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"LojaZap/internal/model"
	pkgerrors "LojaZap/pkg/errors"
	"LojaZap/storage/database"
)

// StoreRepository 门店（租户）读取接口
type StoreRepository interface {
	// GetByID 按主键查询门店
	GetByID(ctx context.Context, id int64) (*model.Store, error)
}

// CredentialRepository WhatsApp 凭证读取接口
type CredentialRepository interface {
	// GetByStore 查询门店专属且已连接的凭证，无则返回 nil
	GetByStore(ctx context.Context, storeID int64) (*model.WhatsAppCredential, error)

	// GetGlobal 查询全局共享且已连接的凭证，无则返回 nil
	GetGlobal(ctx context.Context) (*model.WhatsAppCredential, error)
}

type gormStoreRepository struct {
	db *gorm.DB
}

// NewStoreRepository 创建基于 gorm 的门店仓储
func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &gormStoreRepository{db: db}
}

// DefaultStoreRepository 使用全局数据库连接的仓储
func DefaultStoreRepository() StoreRepository {
	return NewStoreRepository(database.DB())
}

func (r *gormStoreRepository) GetByID(ctx context.Context, id int64) (*model.Store, error) {
	var store model.Store
	err := r.db.WithContext(ctx).First(&store, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.StoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return &store, nil
}

type gormCredentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository 创建基于 gorm 的凭证仓储
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepository{db: db}
}

// DefaultCredentialRepository 使用全局数据库连接的仓储
func DefaultCredentialRepository() CredentialRepository {
	return NewCredentialRepository(database.DB())
}

func (r *gormCredentialRepository) GetByStore(ctx context.Context, storeID int64) (*model.WhatsAppCredential, error) {
	var cred model.WhatsAppCredential
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_global = false AND status = ?", storeID, model.CredentialStatusConnected).
		Order("updated_at DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store credential: %w", err)
	}
	return &cred, nil
}

func (r *gormCredentialRepository) GetGlobal(ctx context.Context) (*model.WhatsAppCredential, error) {
	var cred model.WhatsAppCredential
	err := r.db.WithContext(ctx).
		Where("is_global = true AND status = ?", model.CredentialStatusConnected).
		Order("updated_at DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get global credential: %w", err)
	}
	return &cred, nil
}
