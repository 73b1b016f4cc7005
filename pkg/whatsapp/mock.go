package whatsapp

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	Creds Credentials
	Phone string
	Body  string
}

// MockClient 可配置的网关 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool
	// Err 非空时每次调用都返回该错误（优先于 FailNext）
	Err error
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls: make([]MockCall, 0),
	}
}

func (m *MockClient) SendText(ctx context.Context, creds Credentials, phone, body string) (*SendResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{
		Creds: creds,
		Phone: phone,
		Body:  body,
	})

	if m.Err != nil {
		return nil, m.Err
	}

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock gateway send failure")
	}

	return &SendResponse{
		MessageID:  "mock-message-id",
		StatusCode: "OK",
		Provider:   "mock",
	}, nil
}

// CallCount 返回累计调用次数（并发安全）
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
