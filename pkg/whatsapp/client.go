package whatsapp

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"LojaZap/config"
	"LojaZap/pkg/logger"
)

// Credentials 发送身份：网关按 (site_slug, customer_id) 区分租户会话。
type Credentials struct {
	SiteSlug   string
	CustomerID string
}

// SendResponse 网关发送响应
type SendResponse struct {
	MessageID  string // 网关返回的消息ID
	StatusCode string // 网关业务状态码（如 "OK"）
	Message    string // 错误消息（如果有）
	Provider   string // 网关标识
}

// Client WhatsApp 发送客户端接口
type Client interface {
	// SendText 以指定租户身份向已归一化的号码发送一条文本消息
	SendText(ctx context.Context, creds Credentials, phone, body string) (*SendResponse, error)
}

var (
	waClient Client
	waOnce   sync.Once
	waErr    error
)

// Init 初始化 WhatsApp 网关客户端
func Init() error {
	waOnce.Do(func() {
		cfg := config.Cfg

		if cfg.WhatsAppGatewayURL == "" {
			waErr = fmt.Errorf("WHATSAPP_GATEWAY_URL is not configured")
			logger.Logger.Error("Failed to initialize WhatsApp client", zap.Error(waErr))
			return
		}

		waClient = NewGatewayClient(cfg.WhatsAppGatewayURL, cfg.WhatsAppToken, cfg.WhatsAppTimeout)

		logger.Logger.Info("WhatsApp client initialized successfully",
			zap.String("gateway", cfg.WhatsAppGatewayURL),
		)
	})

	return waErr
}

func GetClient() Client {
	if waClient == nil {
		panic("WhatsApp client not initialized, call whatsapp.Init() first")
	}
	return waClient
}

func SendText(ctx context.Context, creds Credentials, phone, body string) (*SendResponse, error) {
	return GetClient().SendText(ctx, creds, phone, body)
}
