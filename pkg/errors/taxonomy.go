package errors

import (
	stderrors "errors"
	"fmt"
)

// SkipError 表示收件人永远收不到这条消息（无手机号、号码不合法、门店关闭了消息功能）。
// 与发送故障严格区分：队列行落 SKIPPED，不计失败、不重试。
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

func NewSkipError(format string, args ...interface{}) *SkipError {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

func IsSkip(err error) bool {
	var se *SkipError
	return stderrors.As(err, &se)
}

// NonRetryableError 表示重试也不可能成功的发送失败（配置错误、网关 4xx）。
type NonRetryableError struct {
	Code    string
	Message string
	Reason  string
}

func (e *NonRetryableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s - %s", e.Reason, e.Code, e.Message)
	}
	return fmt.Sprintf("%s - %s", e.Code, e.Message)
}

func NewNonRetryableError(code, message, reason string) *NonRetryableError {
	return &NonRetryableError{Code: code, Message: message, Reason: reason}
}

func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return stderrors.As(err, &nre)
}

// Is 透传标准库的错误链匹配，省去调用方再引一次 errors 包。
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
