package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"LojaZap/pkg/errors"
	"LojaZap/pkg/logger"
)

// GatewayClient 通过外部 webhook 网关代发 WhatsApp 消息。
// 网关是不透明能力：任何实现了「以租户身份向号码发文本」的服务都满足契约。
type GatewayClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewGatewayClient(baseURL string, token string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	SiteSlug   string `json:"site_slug"`
	CustomerID string `json:"customer_id"`
	Phone      string `json:"phone"`
	Message    string `json:"message"`
}

type sendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

func (c *GatewayClient) SendText(ctx context.Context, creds Credentials, phone, body string) (*SendResponse, error) {
	payload, err := json.Marshal(sendRequest{
		SiteSlug:   creds.SiteSlug,
		CustomerID: creds.CustomerID,
		Phone:      phone,
		Message:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger.Logger.Debug("Sending message to WhatsApp gateway",
		zap.String("site_slug", creds.SiteSlug),
		zap.String("phone", phone),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		// 超时与网络错误都按可重试处理
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	var result sendResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			result = sendResult{Error: strings.TrimSpace(string(raw))}
		}
	}

	if resp.StatusCode >= 400 {
		logger.Logger.Error("Gateway returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("code", result.Code),
			zap.String("error", result.Error),
			zap.String("site_slug", creds.SiteSlug),
		)

		// 4xx（除限流和超时）说明请求本身有问题，重试无意义
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return nil, errors.NewNonRetryableError(result.Code, result.Error, fmt.Sprintf("gateway rejected send (HTTP %d)", resp.StatusCode))
		}
		return nil, fmt.Errorf("gateway error: HTTP %d: %s", resp.StatusCode, result.Error)
	}

	if !result.Success {
		if isNonRetryableCode(result.Code) {
			return nil, errors.NewNonRetryableError(result.Code, result.Error, "gateway configuration error")
		}
		return nil, fmt.Errorf("gateway send failed: %s - %s", result.Code, result.Error)
	}

	return &SendResponse{
		MessageID:  result.MessageID,
		StatusCode: "OK",
		Provider:   "gateway",
	}, nil
}

// isNonRetryableCode 网关侧明确表示重试无望的业务码
func isNonRetryableCode(code string) bool {
	switch code {
	case "SESSION_NOT_FOUND", "INVALID_CREDENTIALS", "NUMBER_NOT_ON_WHATSAPP", "TENANT_BLOCKED":
		return true
	}
	return false
}
